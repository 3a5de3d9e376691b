package contentsystem

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/sync/semaphore"
)

// downloadV1 streams a single ranged GET into a path.download sidecar
// and renames it into place on clean completion (spec §4.5 "V1
// worker"). Zero-byte files are created without any network I/O.
func downloadV1(ctx context.Context, http HTTPClient, endpoint Endpoint, f *FileV1, destPath string, counters *progressCounters) error {
	if f.Size == 0 {
		fh, err := os.Create(destPath)
		if err != nil {
			return ioError(err)
		}
		if err := fh.Close(); err != nil {
			return ioError(err)
		}
		return nil
	}

	downloadPath := destPath + ".download"
	fh, err := os.OpenFile(downloadPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return ioError(err)
	}
	defer fh.Close()
	if err := preallocate(fh, f.Size); err != nil {
		return err
	}

	url := assembleURL(endpoint, "main.bin")
	body, err := http.GetRange(ctx, url, f.Offset, f.Size)
	if err != nil {
		return err
	}
	defer body.Close()

	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return ioError(err)
	}
	n, err := io.Copy(fh, body)
	if err != nil {
		return ioError(err)
	}
	if counters != nil {
		counters.addDownloaded(n)
		counters.addWritten(n)
	}
	if err := fh.Sync(); err != nil {
		return ioError(err)
	}
	fh.Close()
	if err := os.Rename(downloadPath, destPath); err != nil {
		return ioError(err)
	}
	return nil
}

// chunkResult is what a chunk-fetch task hands back to the writer loop.
type chunkResult struct {
	index  int
	offset int64
	data   []byte
	err    error
}

// fetchChunk downloads and zlib-decompresses one V2 chunk, per spec
// §4.5 "V2 worker". The result buffer is exactly c.Size bytes.
func fetchChunk(ctx context.Context, http HTTPClient, endpoint Endpoint, c ChunkV2, index int, offset int64) chunkResult {
	if c.Size == 0 {
		return chunkResult{index: index, offset: offset, data: nil}
	}
	galaxyPath := hashToGalaxyPath(c.CompressedMD5)
	url := assembleURL(endpoint, galaxyPath)
	status, body, err := http.Get(ctx, url)
	if err != nil {
		return chunkResult{index: index, err: err}
	}
	if status >= 400 {
		return chunkResult{index: index, err: requestError(nil)}
	}
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return chunkResult{index: index, err: zlibError(err)}
	}
	defer zr.Close()
	buf := make([]byte, c.Size)
	if _, err := io.ReadFull(zr, buf); err != nil {
		return chunkResult{index: index, err: zlibError(err)}
	}
	return chunkResult{index: index, offset: offset, data: buf}
}

// downloadV2 fans out the chunk set of a V2 file under the shared chunk
// semaphore, writing each completed chunk at its fixed offset and
// persisting the bitmap after every write (spec §4.5 / §5 ordering).
func downloadV2(ctx context.Context, http HTTPClient, endpoint Endpoint, chunks []ChunkV2, destPath string, chunkSem *semaphore.Weighted, counters *progressCounters) error {
	if len(chunks) == 0 {
		fh, err := os.Create(destPath)
		if err != nil {
			return ioError(err)
		}
		if err := fh.Close(); err != nil {
			return ioError(err)
		}
		return nil
	}

	var totalSize int64
	offsets := make([]int64, len(chunks))
	for i, c := range chunks {
		offsets[i] = totalSize
		totalSize += int64(c.Size)
	}

	downloadPath := destPath + ".download"
	fh, err := os.OpenFile(downloadPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return ioError(err)
	}
	defer fh.Close()
	if err := preallocate(fh, totalSize); err != nil {
		return err
	}

	var statePath string
	var cs *chunkState
	if len(chunks) > 1 {
		statePath = destPath + ".state"
		cs, err = loadChunkState(statePath, len(chunks))
		if err != nil {
			return err
		}
	} else {
		cs = newChunkState(len(chunks))
	}

	results := make(chan chunkResult, len(chunks))
	pending := 0
	for i, c := range chunks {
		if cs.Chunks[i] {
			continue
		}
		if err := chunkSem.Acquire(ctx, 1); err != nil {
			return cancelledError()
		}
		pending++
		go func(i int, c ChunkV2, offset int64) {
			defer chunkSem.Release(1)
			results <- fetchChunk(ctx, http, endpoint, c, i, offset)
		}(i, c, offsets[i])
	}

	for n := 0; n < pending; n++ {
		res := <-results
		if res.err != nil {
			return res.err
		}
		if len(res.data) > 0 {
			if _, err := fh.WriteAt(res.data, res.offset); err != nil {
				return ioError(err)
			}
			if counters != nil {
				counters.addDownloaded(int64(len(res.data)))
				counters.addWritten(int64(len(res.data)))
			}
		}
		cs.Chunks[res.index] = true
		if statePath != "" {
			if err := cs.save(statePath); err != nil {
				return err
			}
		}
	}

	if err := fh.Sync(); err != nil {
		return ioError(err)
	}
	fh.Close()
	if err := os.Rename(downloadPath, destPath); err != nil {
		return ioError(err)
	}
	if statePath != "" {
		os.Remove(statePath)
	}
	return nil
}
