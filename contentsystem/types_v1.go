package contentsystem

import "encoding/json"

// ManifestV1 is the V1 manifest wire format, ported from
// original_source/src/content_system/types/v1.rs.
type ManifestV1 struct {
	Product ManifestProductV1 `json:"product"`
}

// ManifestProductV1 is the V1 "product" body.
type ManifestProductV1 struct {
	Timestamp        uint32           `json:"timestamp"`
	Depots           []ManifestDepotV1 `json:"depots"`
	SupportCommands  []SupportCommandV1 `json:"support_commands"`
	InstallDirectory string            `json:"installDirectory"`
	GameIDs          []GameIDV1        `json:"gameIDs"`
}

// ManifestDepotV1 is the untagged { Files, Redist } depot variant.
// Exactly one of Files/Redist is populated, matching the serde(untagged)
// enum in the original.
type ManifestDepotV1 struct {
	Files  *ManifestDepotFilesV1
	Redist *ManifestDepotRedistV1
}

type manifestDepotV1Wire struct {
	Languages []string `json:"languages,omitempty"`
	Size      string   `json:"size,omitempty"`
	GameIDs   []string `json:"gameIDs,omitempty"`
	Systems   []string `json:"systems,omitempty"`
	Manifest  string   `json:"manifest,omitempty"`
	Redist    string   `json:"redist,omitempty"`
}

// ManifestDepotFilesV1 is a language/DLC-scoped files depot.
type ManifestDepotFilesV1 struct {
	Languages []string
	Size      string
	GameIDs   []string
	Systems   []string
	Manifest  string
}

// ManifestDepotRedistV1 is a redistributable (runtime prerequisite) depot.
type ManifestDepotRedistV1 struct {
	Redist string
	Size   string
}

// UnmarshalJSON picks the Files or Redist variant by which discriminating
// field is present, the Go equivalent of serde's untagged enum.
func (d *ManifestDepotV1) UnmarshalJSON(data []byte) error {
	var wire manifestDepotV1Wire
	if err := json.Unmarshal(data, &wire); err != nil {
		return serdeError(err)
	}
	if wire.Manifest != "" {
		d.Files = &ManifestDepotFilesV1{
			Languages: wire.Languages,
			Size:      wire.Size,
			GameIDs:   wire.GameIDs,
			Systems:   wire.Systems,
			Manifest:  wire.Manifest,
		}
		return nil
	}
	d.Redist = &ManifestDepotRedistV1{Redist: wire.Redist, Size: wire.Size}
	return nil
}

func (d ManifestDepotV1) MarshalJSON() ([]byte, error) {
	if d.Files != nil {
		return json.Marshal(manifestDepotV1Wire{
			Languages: d.Files.Languages,
			Size:      d.Files.Size,
			GameIDs:   d.Files.GameIDs,
			Systems:   d.Files.Systems,
			Manifest:  d.Files.Manifest,
		})
	}
	return json.Marshal(manifestDepotV1Wire{Redist: d.Redist.Redist, Size: d.Redist.Size})
}

// SupportCommandV1 describes an install-time support executable.
type SupportCommandV1 struct {
	Languages []string `json:"languages"`
	Executable string  `json:"executable"`
	GameID     string  `json:"gameID"`
	Argument   string  `json:"argument"`
	Systems    []string `json:"systems"`
}

// GameIDV1 names one product covered by the manifest (base game or DLC).
type GameIDV1 struct {
	GameID     string            `json:"gameID"`
	Name       map[string]string `json:"name"`
	Standalone bool              `json:"standalone"`
}

// DepotEntryV1 is the { File, Directory } variant of a V1 file-list entry.
type DepotEntryV1 struct {
	File      *FileV1
	Directory *DirectoryV1
}

// FileV1 is a plain byte-range file within a single blob (main.bin).
type FileV1 struct {
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	Offset     int64  `json:"offset"`
	MD5        string `json:"hash"`
	Support    bool   `json:"support"`
	Executable bool   `json:"executable"`
}

// DirectoryV1 is a directory that must exist on disk.
type DirectoryV1 struct {
	Path string `json:"path"`
}

type depotEntryV1Wire struct {
	Type       string `json:"type"`
	Path       string `json:"path"`
	Size       int64  `json:"size,omitempty"`
	Offset     int64  `json:"offset,omitempty"`
	MD5        string `json:"hash,omitempty"`
	Support    bool   `json:"support,omitempty"`
	Executable bool   `json:"executable,omitempty"`
}

// UnmarshalJSON dispatches on the "type" discriminant the CDN uses to tag
// file vs directory entries within a V1 depot file list.
func (e *DepotEntryV1) UnmarshalJSON(data []byte) error {
	var wire depotEntryV1Wire
	if err := json.Unmarshal(data, &wire); err != nil {
		return serdeError(err)
	}
	if wire.Type == "directory" {
		e.Directory = &DirectoryV1{Path: wire.Path}
		return nil
	}
	e.File = &FileV1{
		Path:       wire.Path,
		Size:       wire.Size,
		Offset:     wire.Offset,
		MD5:        wire.MD5,
		Support:    wire.Support,
		Executable: wire.Executable,
	}
	return nil
}

func (e DepotEntryV1) MarshalJSON() ([]byte, error) {
	if e.Directory != nil {
		return json.Marshal(depotEntryV1Wire{Type: "directory", Path: e.Directory.Path})
	}
	return json.Marshal(depotEntryV1Wire{
		Type: "file", Path: e.File.Path, Size: e.File.Size, Offset: e.File.Offset,
		MD5: e.File.MD5, Support: e.File.Support, Executable: e.File.Executable,
	})
}

// Path returns the entry's normalized path, satisfying the uniform entry
// abstraction from spec §3.
func (e DepotEntryV1) Path() string {
	if e.File != nil {
		return normalizePath(e.File.Path)
	}
	return normalizePath(e.Directory.Path)
}

// IsDirectory reports whether the entry is a directory marker.
func (e DepotEntryV1) IsDirectory() bool { return e.Directory != nil }
