package contentsystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileEntryV2(path, md5 string, size uint64) DepotEntry {
	return DepotEntry{V2: &DepotEntryV2{File: &FileV2{
		Path:   path,
		Chunks: []ChunkV2{{MD5: md5, CompressedMD5: md5 + "-c", Size: size, CompressedSize: size}},
	}}}
}

func dirEntryV2(path string) DepotEntry {
	return DepotEntry{V2: &DepotEntryV2{Directory: &DirectoryV2{Path: path}}}
}

func TestDiff_FreshInstall(t *testing.T) {
	newLists := []FileList{NewFileList("P", []DepotEntry{
		fileEntryV2("A", "m1", 10),
		dirEntryV2("dir"),
	})}

	report := Diff(newLists, nil, nil)

	require.Len(t, report.Directories, 1)
	assert.Equal(t, "dir", report.Directories[0])
	require.Len(t, report.Download, 1)
	assert.Equal(t, "P", report.Download[0].ProductID)
	require.Len(t, report.Download[0].Files, 1)
	assert.Equal(t, "A", report.Download[0].Files[0].Path())
	assert.Empty(t, report.Deleted)
	assert.Empty(t, report.Patches)
	assert.Equal(t, 1, report.TotalFileCount)
}

func TestDiff_IdenticalSingleChunkUnchanged(t *testing.T) {
	oldLists := []FileList{NewFileList("P", []DepotEntry{fileEntryV2("A", "m1", 10)})}
	newLists := []FileList{NewFileList("P", []DepotEntry{fileEntryV2("A", "m1", 10)})}

	report := Diff(newLists, oldLists, nil)

	assert.Empty(t, report.Download)
	assert.Empty(t, report.Deleted)
}

func TestDiff_SingleChunkChangeTriggersRedownload(t *testing.T) {
	oldLists := []FileList{NewFileList("P", []DepotEntry{fileEntryV2("A", "m1", 10)})}
	newLists := []FileList{NewFileList("P", []DepotEntry{fileEntryV2("A", "m2", 10)})}

	report := Diff(newLists, oldLists, nil)

	require.Len(t, report.Download, 1)
	require.Len(t, report.Download[0].Files, 1)
	assert.Equal(t, "A", report.Download[0].Files[0].Path())
}

func TestDiff_RemovedPathIsDeleted(t *testing.T) {
	oldLists := []FileList{NewFileList("P", []DepotEntry{
		fileEntryV2("A", "m1", 10),
		fileEntryV2("B", "m2", 20),
	})}
	newLists := []FileList{NewFileList("P", []DepotEntry{fileEntryV2("A", "m1", 10)})}

	report := Diff(newLists, oldLists, nil)

	assert.Empty(t, report.Download)
	require.Len(t, report.Deleted, 1)
	assert.Equal(t, "B", report.Deleted[0])
}

func TestDiff_PatchAvailableExcludesFromDownload(t *testing.T) {
	oldLists := []FileList{NewFileList("P", []DepotEntry{fileEntryV2("A", "m1", 10)})}
	newLists := []FileList{NewFileList("P", []DepotEntry{fileEntryV2("A", "m2", 10)})}
	patchLists := []FileList{NewFileList("P", []DepotEntry{
		{V2: &DepotEntryV2{Diff: &DiffV2{
			SourcePath: "A", TargetPath: "A", MD5Source: "m1", MD5Target: "m2", MD5Diff: "d1",
			Chunks: []ChunkV2{{MD5: "d1", Size: 4, CompressedSize: 4}},
		}}},
	})}

	report := Diff(newLists, oldLists, patchLists)

	assert.Empty(t, report.Download)
	require.Len(t, report.Patches, 1)
	assert.Equal(t, "P", report.Patches[0].ProductID)
	assert.Equal(t, "A", report.Patches[0].Destination.Path())
}

func TestDiff_EmptyV2FileAlwaysIncluded(t *testing.T) {
	newLists := []FileList{NewFileList("P", []DepotEntry{
		{V2: &DepotEntryV2{File: &FileV2{Path: "empty.txt"}}},
	})}

	report := Diff(newLists, nil, nil)

	require.Len(t, report.Download, 1)
	require.Len(t, report.Download[0].Files, 1)
	assert.Equal(t, int64(0), report.Download[0].Files[0].Size())
}

func TestDiff_CrossGenerationMD5Match(t *testing.T) {
	md5 := "abc123"
	oldLists := []FileList{NewFileList("P", []DepotEntry{
		{V1: &DepotEntryV1{File: &FileV1{Path: "A", Size: 10, MD5: md5}}},
	})}
	newLists := []FileList{NewFileList("P", []DepotEntry{
		{V2: &DepotEntryV2{File: &FileV2{Path: "A", MD5: &md5, Chunks: []ChunkV2{{MD5: "x", Size: 10}}}}},
	})}

	report := Diff(newLists, oldLists, nil)

	assert.Empty(t, report.Download)
}
