package contentsystem

import "encoding/json"

// ManifestV2 is the V2 manifest wire format, ported from
// original_source/src/content_system/types/v2.rs.
type ManifestV2 struct {
	BaseProductID    string             `json:"baseProductId"`
	ClientID         string             `json:"clientId,omitempty"`
	ClientSecret     string             `json:"clientSecret,omitempty"`
	Dependencies     []string           `json:"dependencies"`
	Depots           []ManifestDepotV2  `json:"depots"`
	InstallDirectory string             `json:"installDirectory"`
	Platform         string             `json:"platform"`
	Products         []ManifestProductV2 `json:"products"`
	Tags             []string           `json:"tags"`
}

// ManifestDepotV2 is one language/DLC-scoped depot reference within a V2
// manifest.
type ManifestDepotV2 struct {
	Size           uint64   `json:"size"`
	CompressedSize uint64   `json:"compressedSize"`
	Languages      []string `json:"languages"`
	Manifest       string   `json:"manifest"`
	ProductID      string   `json:"productId"`
}

// ManifestProductV2 names one product covered by the manifest.
type ManifestProductV2 struct {
	Name          string `json:"name"`
	ProductID     string `json:"productId"`
	TempExecutable string `json:"tempExecutable"`
	TempArguments  string `json:"tempArguments"`
}

// DepotDetails is the decompressed body of a V2 depot/patch/dependency
// file-list fetch.
type DepotDetails struct {
	Depot DepotV2 `json:"depot"`
}

// DepotV2 is the decoded depot body: entries plus an optional SFC.
type DepotV2 struct {
	Items               []DepotEntryV2       `json:"items"`
	SmallFilesContainer *SmallFilesContainer `json:"smallFilesContainer"`
}

// ChunkV2 is one content-addressed, zlib-compressed slice of a V2 file.
type ChunkV2 struct {
	CompressedMD5  string `json:"compressedMd5"`
	MD5            string `json:"md5"`
	Size           uint64 `json:"size"`
	CompressedSize uint64 `json:"compressedSize"`
}

// SmallFilesContainerRef points a small file at its byte range within the
// product's SFC blob.
type SmallFilesContainerRef struct {
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
}

// SmallFilesContainer is a single CDN blob packing many small files; it
// is itself described as one chunk.
type SmallFilesContainer struct {
	Chunks []ChunkV2 `json:"chunks"`
}

// DepotEntryV2 is the { File, Directory, Link, Diff } tagged variant of a
// V2 file-list entry. Exactly one field is populated.
type DepotEntryV2 struct {
	File      *FileV2
	Directory *DirectoryV2
	Link      *LinkV2
	Diff      *DiffV2
}

// FileV2 is a chunked file, optionally backed by the SFC instead of its
// own chunks.
type FileV2 struct {
	Path    string                  `json:"path"`
	Chunks  []ChunkV2               `json:"chunks"`
	SFCRef  *SmallFilesContainerRef `json:"sfcRef"`
	SHA256  *string                 `json:"sha256"`
	MD5     *string                 `json:"md5"`
	Flags   []string                `json:"flags"`
}

// IsSupport reports whether the "support" flag is present.
func (f FileV2) IsSupport() bool {
	for _, fl := range f.Flags {
		if fl == "support" {
			return true
		}
	}
	return false
}

// DirectoryV2 is a directory that must exist on disk.
type DirectoryV2 struct {
	Path string `json:"path"`
}

// LinkV2 is a symlink entry.
type LinkV2 struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}

// DiffV2 is an xdelta3 binary delta between a known source and target
// version of a file.
type DiffV2 struct {
	SourcePath string    `json:"sourcePath"`
	TargetPath string    `json:"targetPath"`
	MD5Source  string    `json:"md5Source"`
	MD5Target  string    `json:"md5Target"`
	MD5Diff    string    `json:"md5"`
	Chunks     []ChunkV2 `json:"chunks"`
}

type depotEntryV2Wire struct {
	Type   string                  `json:"type"`
	Path   string                  `json:"path,omitempty"`
	Chunks []ChunkV2               `json:"chunks,omitempty"`
	SFCRef *SmallFilesContainerRef `json:"sfcRef,omitempty"`
	SHA256 *string                 `json:"sha256,omitempty"`
	MD5    *string                 `json:"md5,omitempty"`
	Flags  []string                `json:"flags,omitempty"`

	Target string `json:"target,omitempty"`

	SourcePath string `json:"sourcePath,omitempty"`
	TargetPath string `json:"targetPath,omitempty"`
	MD5Source  string `json:"md5Source,omitempty"`
	MD5Target  string `json:"md5Target,omitempty"`
}

// UnmarshalJSON dispatches on the "type" discriminant
// (DepotFile/DepotDirectory/DepotLink/DepotDiff), matching the
// #[serde(tag = "type")] enum in the original.
func (e *DepotEntryV2) UnmarshalJSON(data []byte) error {
	var wire depotEntryV2Wire
	if err := json.Unmarshal(data, &wire); err != nil {
		return serdeError(err)
	}
	switch wire.Type {
	case "DepotDirectory":
		e.Directory = &DirectoryV2{Path: wire.Path}
	case "DepotLink":
		e.Link = &LinkV2{Path: wire.Path, Target: wire.Target}
	case "DepotDiff":
		e.Diff = &DiffV2{
			SourcePath: wire.SourcePath,
			TargetPath: wire.TargetPath,
			MD5Source:  wire.MD5Source,
			MD5Target:  wire.MD5Target,
			MD5Diff:    strOr(wire.MD5, ""),
			Chunks:     wire.Chunks,
		}
	default: // "DepotFile" or unrecognized falls back to file
		e.File = &FileV2{
			Path:   wire.Path,
			Chunks: wire.Chunks,
			SFCRef: wire.SFCRef,
			SHA256: wire.SHA256,
			MD5:    wire.MD5,
			Flags:  wire.Flags,
		}
	}
	return nil
}

func strOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func (e DepotEntryV2) MarshalJSON() ([]byte, error) {
	switch {
	case e.Directory != nil:
		return json.Marshal(depotEntryV2Wire{Type: "DepotDirectory", Path: e.Directory.Path})
	case e.Link != nil:
		return json.Marshal(depotEntryV2Wire{Type: "DepotLink", Path: e.Link.Path, Target: e.Link.Target})
	case e.Diff != nil:
		md5 := e.Diff.MD5Diff
		return json.Marshal(depotEntryV2Wire{
			Type: "DepotDiff", SourcePath: e.Diff.SourcePath, TargetPath: e.Diff.TargetPath,
			MD5Source: e.Diff.MD5Source, MD5Target: e.Diff.MD5Target, MD5: &md5, Chunks: e.Diff.Chunks,
		})
	default:
		return json.Marshal(depotEntryV2Wire{
			Type: "DepotFile", Path: e.File.Path, Chunks: e.File.Chunks,
			SFCRef: e.File.SFCRef, SHA256: e.File.SHA256, MD5: e.File.MD5, Flags: e.File.Flags,
		})
	}
}

// Path returns the entry's normalized path.
func (e DepotEntryV2) Path() string {
	switch {
	case e.File != nil:
		return normalizePath(e.File.Path)
	case e.Directory != nil:
		return normalizePath(e.Directory.Path)
	case e.Link != nil:
		return normalizePath(e.Link.Path)
	default:
		return normalizePath(e.Diff.TargetPath)
	}
}

// IsDirectory reports whether the entry is a directory marker.
func (e DepotEntryV2) IsDirectory() bool { return e.Directory != nil }

// IsSupport reports whether the entry carries the "support" flag
// (only File entries can).
func (e DepotEntryV2) IsSupport() bool {
	if e.File == nil {
		return false
	}
	return e.File.IsSupport()
}
