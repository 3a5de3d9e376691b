package contentsystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func TestDownloadV1_ZeroSizeCreatesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "empty")
	http := newFakeHTTPClient()

	err := downloadV1(context.Background(), http, Endpoint{URLFormat: "https://cdn"}, &FileV1{Size: 0}, dest, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestDownloadV1_RangedFetchRenamesIntoPlace(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "A")
	http := newFakeHTTPClient()
	http.setPlain("https://cdn/main.bin", []byte("0123456789"))

	err := downloadV1(context.Background(), http, Endpoint{URLFormat: "https://cdn"}, &FileV1{Size: 5, Offset: 2}, dest, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("23456"), data)

	_, err = os.Stat(dest + ".download")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadV2_FansOutChunksAndWritesAtOffset(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "A")
	http := newFakeHTTPClient()

	chunk0 := []byte("hello")
	chunk1 := []byte("world!")
	ep := Endpoint{URLFormat: "https://cdn"}
	http.setZlib(assembleURL(ep, hashToGalaxyPath("c0md5")), chunk0)
	http.setZlib(assembleURL(ep, hashToGalaxyPath("c1md5")), chunk1)

	chunks := []ChunkV2{
		{CompressedMD5: "c0md5", Size: uint64(len(chunk0))},
		{CompressedMD5: "c1md5", Size: uint64(len(chunk1))},
	}

	sem := semaphore.NewWeighted(6)
	err := downloadV2(context.Background(), http, ep, chunks, dest, sem, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, chunk0...), chunk1...), data)

	_, err = os.Stat(dest + ".state")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadV2_EmptyChunkListCreatesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "empty")
	http := newFakeHTTPClient()
	sem := semaphore.NewWeighted(6)

	err := downloadV2(context.Background(), http, Endpoint{URLFormat: "https://cdn"}, nil, dest, sem, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestDownloadV2_ResumesFromExistingBitmap(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "A")
	http := newFakeHTTPClient()

	chunk0 := []byte("hello")
	chunk1 := []byte("world!")
	ep := Endpoint{URLFormat: "https://cdn"}
	// Only chunk1's body is registered: chunk0 is pre-marked done, so the
	// worker must not re-fetch it.
	http.setZlib(assembleURL(ep, hashToGalaxyPath("c1md5")), chunk1)

	chunks := []ChunkV2{
		{CompressedMD5: "c0md5", Size: uint64(len(chunk0))},
		{CompressedMD5: "c1md5", Size: uint64(len(chunk1))},
	}

	// Seed the .download sidecar with chunk0 already written, and a
	// bitmap marking it complete.
	require.NoError(t, os.WriteFile(dest+".download", append(chunk0, make([]byte, len(chunk1))...), 0o644))
	cs := newChunkState(2)
	cs.Chunks[0] = true
	require.NoError(t, cs.save(dest+".state"))

	sem := semaphore.NewWeighted(6)
	err := downloadV2(context.Background(), http, ep, chunks, dest, sem, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, chunk0...), chunk1...), data)
}
