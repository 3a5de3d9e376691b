package contentsystem

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// md5File returns the hex-encoded MD5 of the whole file at path.
func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", ioError(err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", ioError(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// md5Span returns the hex-encoded MD5 of the byte range [offset, offset+size)
// of the file at path.
func md5Span(path string, offset, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", ioError(err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, offset, size)); err != nil {
		return "", ioError(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyResult reports what VerifyFile decided needs to happen to a
// tracked file after recomputing its hashes (spec §4.9).
type VerifyResult int

const (
	// VerifyOK means the on-disk bytes already match; no action needed.
	VerifyOK VerifyResult = iota
	// VerifyDemoteAllocated means the whole file must be re-fetched from
	// scratch (old `.download` sidecar recreated, no partial credit).
	VerifyDemoteAllocated
	// VerifyPartialRewrite means a chunk bitmap was rewritten with the
	// failing bits cleared so only those chunks are re-fetched.
	VerifyPartialRewrite
	// VerifyRemoved means the finalized file was deleted outright,
	// forcing re-application of its patch.
	VerifyRemoved
)

// VerifyFile re-validates one finalized entry against its expected
// hashes, demoting or removing it on mismatch per spec §4.9. finalPath
// is the entry's destination path (already promoted, status Done).
func VerifyFile(entry DepotEntry, finalPath string) (VerifyResult, error) {
	switch {
	case entry.V1 != nil && entry.V1.File != nil:
		return verifyV1File(entry.V1.File, finalPath)
	case entry.V2 != nil && entry.V2.File != nil:
		return verifyV2File(entry.V2.File, finalPath)
	case entry.V2 != nil && entry.V2.Diff != nil:
		return verifyV2Diff(entry.V2.Diff, finalPath)
	default:
		return VerifyOK, nil
	}
}

func verifyV1File(f *FileV1, finalPath string) (VerifyResult, error) {
	if f.Size == 0 {
		return VerifyOK, nil
	}
	sum, err := md5File(finalPath)
	if err != nil {
		return VerifyOK, err
	}
	if sum == f.MD5 {
		return VerifyOK, nil
	}
	if err := os.Rename(finalPath, finalPath+".download"); err != nil {
		return VerifyOK, ioError(err)
	}
	return VerifyDemoteAllocated, nil
}

func verifyV2File(f *FileV2, finalPath string) (VerifyResult, error) {
	if len(f.Chunks) == 0 {
		return VerifyOK, nil
	}
	if f.MD5 != nil {
		sum, err := md5File(finalPath)
		if err != nil {
			return VerifyOK, err
		}
		if sum == *f.MD5 {
			return VerifyOK, nil
		}
	}

	cs := newChunkState(len(f.Chunks))
	var offset int64
	mismatch := false
	for i, c := range f.Chunks {
		sum, err := md5Span(finalPath, offset, int64(c.Size))
		if err != nil {
			return VerifyOK, err
		}
		ok := sum == c.MD5
		cs.Chunks[i] = ok
		if !ok {
			mismatch = true
		}
		offset += int64(c.Size)
	}
	if !mismatch {
		return VerifyOK, nil
	}

	if len(f.Chunks) == 1 {
		if err := os.Rename(finalPath, finalPath+".download"); err != nil {
			return VerifyOK, ioError(err)
		}
		return VerifyDemoteAllocated, nil
	}

	if err := os.Rename(finalPath, finalPath+".download"); err != nil {
		return VerifyOK, ioError(err)
	}
	if err := cs.save(finalPath + ".state"); err != nil {
		return VerifyOK, err
	}
	return VerifyPartialRewrite, nil
}

func verifyV2Diff(d *DiffV2, finalPath string) (VerifyResult, error) {
	sum, err := md5File(finalPath)
	if err != nil {
		return VerifyOK, err
	}
	if sum == d.MD5Target {
		return VerifyOK, nil
	}
	if err := os.Remove(finalPath); err != nil {
		return VerifyOK, ioError(err)
	}
	return VerifyRemoved, nil
}

// VerifyPartial re-verifies only the chunks a partial download's bitmap
// already claims as done, rewriting the bitmap to reflect reality (spec
// §4.9 "Partial File/Diff").
func VerifyPartial(chunks []ChunkV2, downloadPath, statePath string) error {
	cs, err := loadChunkState(statePath, len(chunks))
	if err != nil {
		return err
	}
	var offset int64
	changed := false
	for i, c := range chunks {
		size := int64(c.Size)
		if cs.Chunks[i] {
			sum, err := md5Span(downloadPath, offset, size)
			if err != nil {
				return err
			}
			if sum != c.MD5 {
				cs.Chunks[i] = false
				changed = true
			}
		}
		offset += size
	}
	if changed {
		return cs.save(statePath)
	}
	return nil
}

// VerifyPatchDownloaded verifies a downloaded-but-unapplied .diff blob
// against its chunk md5s; on failure it demotes the file back to
// Allocated with a bitmap recording which diff chunks must be re-fetched
// (spec §4.9 "PatchDownloaded Diff").
func VerifyPatchDownloaded(d *DiffV2, diffPath string) (VerifyResult, error) {
	cs := newChunkState(len(d.Chunks))
	var offset int64
	mismatch := false
	for i, c := range d.Chunks {
		sum, err := md5Span(diffPath, offset, int64(c.Size))
		if err != nil {
			return VerifyOK, err
		}
		ok := sum == c.MD5
		cs.Chunks[i] = ok
		if !ok {
			mismatch = true
		}
		offset += int64(c.Size)
	}
	if !mismatch {
		return VerifyOK, nil
	}
	if err := os.Rename(diffPath, diffPath+".download"); err != nil {
		return VerifyOK, ioError(err)
	}
	if err := cs.save(diffPath + ".state"); err != nil {
		return VerifyOK, err
	}
	return VerifyPartialRewrite, nil
}

// VerifySFC MD5s each chunk span of a Done SFC blob in sequence; the
// first mismatch demotes the blob back to its .download sidecar (spec
// §4.9 "For each SFC in the report").
func VerifySFC(sfc *SmallFilesContainer, blobPath string) (VerifyResult, error) {
	var offset int64
	for _, c := range sfc.Chunks {
		sum, err := md5Span(blobPath, offset, int64(c.Size))
		if err != nil {
			return VerifyOK, err
		}
		if sum != c.MD5 {
			if err := os.Rename(blobPath, blobPath+".download"); err != nil {
				return VerifyOK, ioError(err)
			}
			return VerifyDemoteAllocated, nil
		}
		offset += int64(c.Size)
	}
	return VerifyOK, nil
}
