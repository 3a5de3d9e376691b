package contentsystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkState_SaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "A.state")

	cs := newChunkState(3)
	cs.Chunks[0] = true
	cs.Chunks[2] = true
	require.NoError(t, cs.save(path))

	loaded, err := loadChunkState(path, 3)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, loaded.Chunks)
	assert.False(t, loaded.done())
}

func TestChunkState_LoadResizesOnChunkCountChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "A.state")

	cs := newChunkState(2)
	cs.Chunks[0] = true
	cs.Chunks[1] = true
	require.NoError(t, cs.save(path))

	loaded, err := loadChunkState(path, 4)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false, false}, loaded.Chunks)
}

func TestChunkState_MissingSidecarYieldsFreshBitmap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.state")

	cs, err := loadChunkState(path, 5)
	require.NoError(t, err)
	assert.Len(t, cs.Chunks, 5)
	assert.False(t, cs.done())
}

func TestChunkState_CorruptSidecarIsToleratedAsFreshAllocation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "A.state")
	require.NoError(t, os.WriteFile(path, []byte("not a valid gob stream"), 0o644))

	cs, err := loadChunkState(path, 2)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false}, cs.Chunks)
}

func TestFileStatusOf_NotInitialized(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, StatusNotInitialized, FileStatusOf(filepath.Join(dir, "missing")))
}

func TestFileStatusOf_Done(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "A")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.Equal(t, StatusDone, FileStatusOf(path))
}
