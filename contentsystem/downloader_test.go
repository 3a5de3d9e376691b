package contentsystem

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloader_FreshInstallNoD(t *testing.T) {
	dir := t.TempDir()
	ep := Endpoint{URLFormat: "https://cdn", SupportsGeneration: []uint32{1, 2}}
	http := newFakeHTTPClient()

	manifestHash := "abcd1234"
	depotBody, err := json.Marshal(DepotDetails{Depot: DepotV2{Items: []DepotEntryV2{
		{File: &FileV2{Path: "A", Chunks: []ChunkV2{{CompressedMD5: "c1c1c1", MD5: "m1", Size: 10, CompressedSize: 6}}}},
		{Directory: &DirectoryV2{Path: "dir"}},
	}}})
	require.NoError(t, err)
	http.setZlib(assembleURL(ep, hashToGalaxyPath(manifestHash)), depotBody)
	http.setZlib(assembleURL(ep, hashToGalaxyPath("c1c1c1")), []byte("0123456789"))

	manifest := &Manifest{V2: &ManifestV2{
		BaseProductID:    "P",
		InstallDirectory: "Game",
		Depots: []ManifestDepotV2{
			{ProductID: "P", Languages: []string{"en-US"}, Manifest: manifestHash},
		},
	}}

	core := &Core{HTTP: http, Links: &fakeLinkProvider{endpoint: ep}}
	b := &Builder{Core: core, Manifest: manifest, Language: "en-US", InstallRoot: dir}
	dl, err := b.Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, dl.Prepare(ctx))

	space, err := dl.RequiredSpace()
	require.NoError(t, err)
	assert.Equal(t, int64(10), space)

	events := dl.Events()
	done := make(chan struct{})
	go func() {
		for range events {
		}
		close(done)
	}()

	require.NoError(t, dl.Download(ctx))
	<-done

	data, err := os.ReadFile(filepath.Join(dir, "Game", "A"))
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), data)

	_, err = os.Stat(filepath.Join(dir, "Game", ".gog-warp-build"))
	assert.True(t, os.IsNotExist(err))
}

// TestDownloader_SFCBlobIsFetchedAndExtracted covers the maintainer-review
// fix wiring the SFC blob into the download path: a FileList whose files
// are entirely SFC-backed must still cause the blob to be fetched once and
// have each file's byte range sliced out of it.
func TestDownloader_SFCBlobIsFetchedAndExtracted(t *testing.T) {
	dir := t.TempDir()
	ep := Endpoint{URLFormat: "https://cdn", SupportsGeneration: []uint32{2}}
	http := newFakeHTTPClient()

	manifestHash := "abcd1234"
	sfcBlobMD5 := "feed5678"
	sfcRaw := []byte("HELLOWORLD") // "HELLO" (0,5) + "WORLD" (5,5)

	depotBody, err := json.Marshal(DepotDetails{Depot: DepotV2{
		Items: []DepotEntryV2{
			{File: &FileV2{Path: "small1.txt", SFCRef: &SmallFilesContainerRef{Offset: 0, Size: 5}}},
			{File: &FileV2{Path: "small2.txt", SFCRef: &SmallFilesContainerRef{Offset: 5, Size: 5}}},
		},
		SmallFilesContainer: &SmallFilesContainer{
			Chunks: []ChunkV2{{MD5: sfcBlobMD5, CompressedMD5: sfcBlobMD5 + "-c", Size: uint64(len(sfcRaw)), CompressedSize: uint64(len(sfcRaw))}},
		},
	}})
	require.NoError(t, err)
	http.setZlib(assembleURL(ep, hashToGalaxyPath(manifestHash)), depotBody)
	http.setZlib(assembleURL(ep, hashToGalaxyPath(sfcBlobMD5+"-c")), sfcRaw)

	manifest := &Manifest{V2: &ManifestV2{
		BaseProductID:    "P",
		InstallDirectory: "Game",
		Depots: []ManifestDepotV2{
			{ProductID: "P", Languages: []string{"en-US"}, Manifest: manifestHash},
		},
	}}

	core := &Core{HTTP: http, Links: &fakeLinkProvider{endpoint: ep}}
	b := &Builder{Core: core, Manifest: manifest, Language: "en-US", InstallRoot: dir}
	dl, err := b.Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, dl.Prepare(ctx))

	events := dl.Events()
	done := make(chan struct{})
	go func() {
		for range events {
		}
		close(done)
	}()

	require.NoError(t, dl.Download(ctx))
	<-done

	data1, err := os.ReadFile(filepath.Join(dir, "Game", "small1.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("HELLO"), data1)

	data2, err := os.ReadFile(filepath.Join(dir, "Game", "small2.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("WORLD"), data2)

	_, err = os.Stat(filepath.Join(dir, "Game", sfcBlobMD5))
	assert.True(t, os.IsNotExist(err), "SFC blob must be removed once every file is extracted from it")
}

// TestDownloader_DependencyFilesUseDependenciesLink covers the
// maintainer-review fix threading FileList.IsDependency through
// downloadEntry: dependency chunks must be fetched via the dedicated public
// DependenciesLink endpoint, never the per-product SecureLink one.
func TestDownloader_DependencyFilesUseDependenciesLink(t *testing.T) {
	dir := t.TempDir()
	productEp := Endpoint{URLFormat: "https://product-cdn", SupportsGeneration: []uint32{2}}
	depEp := Endpoint{URLFormat: "https://dependencies-cdn", SupportsGeneration: []uint32{2}}
	httpClient := newFakeHTTPClient()

	dependencyManifestHash := "dddd2222"
	repoBody, err := json.Marshal(dependenciesRepository{Depots: []dependencyDepotRef{
		{DependencyID: "redist1", Manifest: dependencyManifestHash},
	}})
	require.NoError(t, err)
	httpClient.setPlain(assembleURL(depEp, "repository.json"), repoBody)

	depotBody, err := json.Marshal(DepotDetails{Depot: DepotV2{Items: []DepotEntryV2{
		{File: &FileV2{Path: "redist1.exe", Chunks: []ChunkV2{{MD5: "rm1", CompressedMD5: "rm1-c", Size: 4, CompressedSize: 4}}}},
	}}})
	require.NoError(t, err)
	httpClient.setZlib(assembleURL(depEp, hashToGalaxyPath(dependencyManifestHash)), depotBody)
	httpClient.setZlib(assembleURL(depEp, hashToGalaxyPath("rm1-c")), []byte("redi"))

	core := &Core{HTTP: httpClient, Links: &fakeLinkProvider{endpoint: productEp, depEndpoint: depEp}}
	b := &Builder{Core: core, DependencyIDs: []string{"redist1"}, InstallPath: filepath.Join(dir, "Game")}
	dl, err := b.Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, dl.Prepare(ctx))

	events := dl.Events()
	done := make(chan struct{})
	go func() {
		for range events {
		}
		close(done)
	}()

	require.NoError(t, dl.Download(ctx))
	<-done

	data, err := os.ReadFile(filepath.Join(dir, "Game", "redist1.exe"))
	require.NoError(t, err)
	assert.Equal(t, []byte("redi"), data)

	lp := core.Links.(*fakeLinkProvider)
	lp.mu.Lock()
	defer lp.mu.Unlock()
	assert.Zero(t, lp.secureLinkCalls, "dependency chunk must not go through the per-product secure link")
	assert.Greater(t, lp.depLinkCalls, 0, "dependency chunk must be resolved via the dependencies link")
}

// TestDownloader_VerifyDemotesCorruptedDoneFile covers the maintainer-review
// fix wiring the verifier into the download path: with Verify enabled, a
// corrupted Done file must be demoted and re-fetched rather than silently
// left corrupt.
func TestDownloader_VerifyDemotesCorruptedDoneFile(t *testing.T) {
	dir := t.TempDir()
	ep := Endpoint{URLFormat: "https://cdn", SupportsGeneration: []uint32{1, 2}}
	httpClient := newFakeHTTPClient()

	manifestHash := "abcd1234"
	depotBody, err := json.Marshal(DepotDetails{Depot: DepotV2{Items: []DepotEntryV2{
		{File: &FileV2{Path: "A", Chunks: []ChunkV2{{MD5: "m1", CompressedMD5: "m1-c", Size: 10, CompressedSize: 10}}}},
	}}})
	require.NoError(t, err)
	httpClient.setZlib(assembleURL(ep, hashToGalaxyPath(manifestHash)), depotBody)
	httpClient.setZlib(assembleURL(ep, hashToGalaxyPath("m1-c")), []byte("0123456789"))

	manifest := &Manifest{V2: &ManifestV2{
		BaseProductID:    "P",
		InstallDirectory: "Game",
		Depots: []ManifestDepotV2{
			{ProductID: "P", Languages: []string{"en-US"}, Manifest: manifestHash},
		},
	}}

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Game"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Game", "A"), []byte("XXXXXXXXXX"), 0o644))

	core := &Core{HTTP: httpClient, Links: &fakeLinkProvider{endpoint: ep}}
	b := &Builder{Core: core, Manifest: manifest, Language: "en-US", InstallRoot: dir, Verify: true}
	dl, err := b.Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, dl.Prepare(ctx))

	events := dl.Events()
	done := make(chan struct{})
	go func() {
		for range events {
		}
		close(done)
	}()

	require.NoError(t, dl.Download(ctx))
	<-done

	data, err := os.ReadFile(filepath.Join(dir, "Game", "A"))
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), data, "corrupted Done file must be demoted by the verifier and re-downloaded")
}

func TestDownloader_DownloadBeforePrepareIsNotReady(t *testing.T) {
	core := &Core{HTTP: newFakeHTTPClient(), Links: &fakeLinkProvider{}}
	b := &Builder{Core: core, Manifest: &Manifest{V2: &ManifestV2{InstallDirectory: "Game"}}, InstallRoot: t.TempDir()}
	dl, err := b.Build()
	require.NoError(t, err)

	err = dl.Download(context.Background())
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindNotReady, cerr.Kind())
}

func TestBuilder_MissingCoreErrors(t *testing.T) {
	b := &Builder{Manifest: &Manifest{V2: &ManifestV2{}}, InstallRoot: t.TempDir()}
	_, err := b.Build()
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindDownloaderBuilder, cerr.Kind())
}
