package contentsystem

import "strings"

// normalizePath converts a manifest-supplied path to the canonical
// forward-slash, no-leading/trailing-slash form used throughout the
// diff/download pipeline (spec §3 invariants).
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	return p
}

// EntryKind classifies a DepotEntry regardless of manifest generation.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
	KindLink
	KindDiff
)

// DepotEntry is the uniform "entry" abstraction spanning V1 and V2:
// path, size, compressed size, is-directory, is-support, kind. The
// orchestrator and diff engine operate on this instead of branching on
// generation directly (spec §9 design note).
type DepotEntry struct {
	V1 *DepotEntryV1
	V2 *DepotEntryV2
}

// Path returns the entry's normalized path.
func (e DepotEntry) Path() string {
	if e.V1 != nil {
		return e.V1.Path()
	}
	return e.V2.Path()
}

// Kind classifies the entry.
func (e DepotEntry) Kind() EntryKind {
	if e.V1 != nil {
		if e.V1.IsDirectory() {
			return KindDirectory
		}
		return KindFile
	}
	switch {
	case e.V2.Directory != nil:
		return KindDirectory
	case e.V2.Link != nil:
		return KindLink
	case e.V2.Diff != nil:
		return KindDiff
	default:
		return KindFile
	}
}

// IsDirectory reports whether the entry must be created as a directory.
func (e DepotEntry) IsDirectory() bool { return e.Kind() == KindDirectory }

// IsSupport reports whether the entry is flagged as a support file
// (V1's explicit support flag, or V2's "support" flag).
func (e DepotEntry) IsSupport() bool {
	if e.V1 != nil {
		return e.V1.File != nil && e.V1.File.Support
	}
	return e.V2.IsSupport()
}

// Size returns the entry's uncompressed size in bytes, or 0 for
// directories/links/entries whose size isn't meaningful standalone.
func (e DepotEntry) Size() int64 {
	if e.V1 != nil {
		if e.V1.File != nil {
			return e.V1.File.Size
		}
		return 0
	}
	if e.V2.File != nil {
		var total uint64
		for _, c := range e.V2.File.Chunks {
			total += c.Size
		}
		return int64(total)
	}
	if e.V2.Diff != nil {
		var total uint64
		for _, c := range e.V2.Diff.Chunks {
			total += c.Size
		}
		return int64(total)
	}
	return 0
}

// CompressedSize returns the entry's on-wire (compressed) size.
func (e DepotEntry) CompressedSize() int64 {
	if e.V1 != nil {
		if e.V1.File != nil {
			return e.V1.File.Size // V1 blobs aren't independently compressed per file
		}
		return 0
	}
	var total uint64
	chunks := e.v2Chunks()
	for _, c := range chunks {
		total += c.CompressedSize
	}
	return int64(total)
}

func (e DepotEntry) v2Chunks() []ChunkV2 {
	if e.V2 == nil {
		return nil
	}
	if e.V2.File != nil {
		return e.V2.File.Chunks
	}
	if e.V2.Diff != nil {
		return e.V2.Diff.Chunks
	}
	return nil
}

// FileList is a product-scoped collection of entries, as returned by
// depot/dependency/patch fetches (spec §3).
type FileList struct {
	ProductID    string
	Files        []DepotEntry
	IsDependency bool
	SFC          *SmallFilesContainer
}

// NewFileList constructs a FileList for a product, with no SFC attached.
func NewFileList(productID string, files []DepotEntry) FileList {
	return FileList{ProductID: productID, Files: files}
}
