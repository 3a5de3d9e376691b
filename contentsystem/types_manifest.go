package contentsystem

import (
	"encoding/json"
	"time"
)

// Platform identifies the target OS of a build/manifest.
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformOsX     Platform = "osx"
)

// Endpoint is a signed-URL template with named substitution parameters,
// as returned by the secure-link provider and the build listing.
type Endpoint struct {
	EndpointName        string            `json:"endpoint_name"`
	URL                 string            `json:"url"`
	URLFormat           string            `json:"url_format"`
	Parameters          map[string]string `json:"parameters"`
	Priority            uint32            `json:"priority"`
	MaxFails            uint32            `json:"max_fails"`
	SupportsGeneration  []uint32          `json:"supports_generation"`
	FallbackOnly        bool              `json:"fallback_only"`
}

// SupportsGen reports whether this endpoint can serve the given manifest
// generation (1 or 2).
func (e Endpoint) SupportsGen(gen uint32) bool {
	for _, g := range e.SupportsGeneration {
		if g == gen {
			return true
		}
	}
	return false
}

// Build is a single labelled build record of a product for a platform.
// Out of the Downloader's core scope (build discovery is a Non-goal) but
// shares Endpoint/Platform with it, see SPEC_FULL.md §4.10.
type Build struct {
	BuildID       string     `json:"build_id"`
	ProductID     string     `json:"product_id"`
	OS            Platform   `json:"os"`
	Branch        *string    `json:"branch"`
	VersionName   string     `json:"version_name"`
	Tags          []string   `json:"tags"`
	Public        bool       `json:"public"`
	DatePublished time.Time  `json:"date_published"`
	Generation    uint32     `json:"generation"`
	URLs          []Endpoint `json:"urls"`
}

// BuildResponse is the build-listing endpoint's response envelope.
type BuildResponse struct {
	TotalCount uint32  `json:"total_count"`
	Count      uint32  `json:"count"`
	Items      []Build `json:"items"`
}

// SizeInfo reports installed vs download size of a manifest/build.
type SizeInfo struct {
	DiskSize     uint64 `json:"disk_size"`
	DownloadSize uint64 `json:"download_size"`
}

// ManifestGeneration tags which wire generation a Manifest was parsed
// from.
type ManifestGeneration int

const (
	GenV1 ManifestGeneration = 1
	GenV2 ManifestGeneration = 2
)

// Manifest is the tagged { V1, V2 } variant described in spec §3. Exactly
// one of V1/V2 is non-nil.
type Manifest struct {
	V1 *ManifestV1
	V2 *ManifestV2
}

// Generation reports which manifest generation is populated.
func (m *Manifest) Generation() ManifestGeneration {
	if m.V1 != nil {
		return GenV1
	}
	return GenV2
}

// InstallDirectory returns the directory name the game should be
// installed under, relative to an install root.
func (m *Manifest) InstallDirectory() string {
	if m.V1 != nil {
		return m.V1.Product.InstallDirectory
	}
	return m.V2.InstallDirectory
}

// BaseProductID returns the manifest's root product id.
func (m *Manifest) BaseProductID() string {
	if m.V1 != nil {
		if len(m.V1.Product.GameIDs) > 0 {
			return m.V1.Product.GameIDs[0].GameID
		}
		return ""
	}
	return m.V2.BaseProductID
}

// Timestamp returns the repository timestamp required to sign V1 URLs.
// Only meaningful for V1 manifests.
func (m *Manifest) Timestamp() (uint32, bool) {
	if m.V1 == nil {
		return 0, false
	}
	return m.V1.Product.Timestamp, true
}

// DLCIDs returns the manifest's list of installable DLC product ids.
func (m *Manifest) DLCIDs() []string {
	if m.V1 != nil {
		var ids []string
		for _, gid := range m.V1.Product.GameIDs[1:] {
			ids = append(ids, gid.GameID)
		}
		return ids
	}
	var ids []string
	for _, p := range m.V2.Products {
		if p.ProductID != m.V2.BaseProductID {
			ids = append(ids, p.ProductID)
		}
	}
	return ids
}

// DependencyIDs returns the manifest's dependency id list (V2 only; V1
// has no dependency concept).
func (m *Manifest) DependencyIDs() []string {
	if m.V2 == nil {
		return nil
	}
	return m.V2.Dependencies
}

// Languages returns every distinct, normalized language code the
// manifest's depots carry, excluding the "*" wildcard.
func (m *Manifest) Languages() []string {
	seen := map[string]bool{}
	var out []string
	add := func(lang string) {
		norm := normalizeLanguage(lang)
		if norm == "*" || seen[norm] {
			return
		}
		seen[norm] = true
		out = append(out, norm)
	}
	if m.V1 != nil {
		for _, d := range m.V1.Product.Depots {
			if d.Files == nil {
				continue
			}
			for _, l := range d.Files.Languages {
				add(l)
			}
		}
	} else {
		for _, d := range m.V2.Depots {
			for _, l := range d.Languages {
				if l == "*" {
					continue
				}
				add(l)
			}
		}
	}
	return out
}

// UnmarshalJSON decodes a Manifest by sniffing V2-only fields, mirroring
// the serde(untagged) decode strategy of the original Rust Manifest enum.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var probe struct {
		BaseProductID string `json:"baseProductId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return serdeError(err)
	}
	if probe.BaseProductID != "" {
		var v2 ManifestV2
		if err := json.Unmarshal(data, &v2); err != nil {
			return serdeError(err)
		}
		m.V2 = &v2
		return nil
	}
	var v1 ManifestV1
	if err := json.Unmarshal(data, &v1); err != nil {
		return serdeError(err)
	}
	m.V1 = &v1
	return nil
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	if m.V1 != nil {
		return json.Marshal(m.V1)
	}
	return json.Marshal(m.V2)
}
