package contentsystem

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/zlib"
)

// fetchDepot resolves one manifest depot's file list. V2 depot bodies are
// zlib-compressed on the wire; V1 bodies are plain JSON. Ported from
// original_source/src/content_system/*/depot.rs.
func fetchDepot(ctx context.Context, http HTTPClient, url string, gen ManifestGeneration) (DepotV2, error) {
	status, body, err := http.Get(ctx, url)
	if err != nil {
		return DepotV2{}, err
	}
	if status >= 500 {
		return DepotV2{}, requestError(nil)
	}

	if gen == GenV1 {
		var details DepotDetails
		if err := json.Unmarshal(body, &details); err != nil {
			return DepotV2{}, serdeError(err)
		}
		return details.Depot, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return DepotV2{}, zlibError(err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return DepotV2{}, zlibError(err)
	}
	var details DepotDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return DepotV2{}, serdeError(err)
	}
	return details.Depot, nil
}

// selectedDepotsV1 returns the V1 depots matching the requested language
// and whose file set is populated (not a redist-only depot), per spec
// §4.1's depot-selection rule.
func selectedDepotsV1(m *ManifestV1, language string) []ManifestDepotV1 {
	norm := normalizeLanguage(language)
	var out []ManifestDepotV1
	for _, d := range m.Product.Depots {
		if d.Files == nil {
			continue
		}
		for _, l := range d.Files.Languages {
			if normalizeLanguage(l) == norm || normalizeLanguage(l) == "*" {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// selectedDepotsV2 returns the V2 depots belonging to the base product or
// one of the requested DLC ids, whose language set contains "*" or
// exactly the requested language, per spec §4.1.
func selectedDepotsV2(m *ManifestV2, language string, dlcs []string) []ManifestDepotV2 {
	norm := normalizeLanguage(language)
	wanted := map[string]bool{m.BaseProductID: true}
	for _, id := range dlcs {
		wanted[id] = true
	}
	var out []ManifestDepotV2
	for _, d := range m.Depots {
		if !wanted[d.ProductID] {
			continue
		}
		for _, l := range d.Languages {
			if l == "*" || normalizeLanguage(l) == norm {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// GetDepots fetches and parses every depot matching the requested
// language and DLC set, returning one FileList per depot (spec §4.1
// get_depots). For V1 manifests depots are selected by language only:
// dlcs is not consulted and every files depot of any game id is
// included. The base manifest's own entries (for V1, the product's
// top-level GameIDs outside of depot scope) are not included here;
// callers merge FileLists across depots/dependencies themselves.
func GetDepots(ctx context.Context, http HTTPClient, links LinkProvider, bearerToken string, m *Manifest, language string, dlcs []string) ([]FileList, error) {
	switch m.Generation() {
	case GenV1:
		return getDepotsV1(ctx, http, links, bearerToken, m, language)
	default:
		return getDepotsV2(ctx, http, links, bearerToken, m, language, dlcs)
	}
}

func getDepotsV1(ctx context.Context, http HTTPClient, links LinkProvider, bearerToken string, m *Manifest, language string) ([]FileList, error) {
	depots := selectedDepotsV1(m.V1, language)
	var out []FileList
	for _, d := range depots {
		productID := m.BaseProductID()
		endpoints, err := links.SecureLink(ctx, GenV1, productID, d.Files.Manifest, "main", bearerToken)
		if err != nil {
			return nil, err
		}
		ep := bestEndpoint(endpoints, 1)
		if ep == nil {
			return nil, notReadyError("no endpoint available for depot")
		}
		url := assembleURL(*ep, d.Files.Manifest)
		dv2, err := fetchDepot(ctx, http, url, GenV1)
		if err != nil {
			return nil, err
		}
		fl := NewFileList(productID, toEntries(dv2.Items, nil))
		fl.SFC = dv2.SmallFilesContainer
		out = append(out, fl)
	}
	return out, nil
}

func getDepotsV2(ctx context.Context, http HTTPClient, links LinkProvider, bearerToken string, m *Manifest, language string, dlcs []string) ([]FileList, error) {
	depots := selectedDepotsV2(m.V2, language, dlcs)
	var out []FileList
	for _, d := range depots {
		galaxyPath := hashToGalaxyPath(d.Manifest)
		endpoints, err := links.SecureLink(ctx, GenV2, d.ProductID, galaxyPath, "main", bearerToken)
		if err != nil {
			return nil, err
		}
		ep := bestEndpoint(endpoints, 2)
		if ep == nil {
			return nil, notReadyError("no endpoint available for depot")
		}
		url := assembleURL(*ep, galaxyPath)
		dv2, err := fetchDepot(ctx, http, url, GenV2)
		if err != nil {
			return nil, err
		}
		fl := NewFileList(d.ProductID, toEntries(nil, dv2.Items))
		fl.SFC = dv2.SmallFilesContainer
		out = append(out, fl)
	}
	return out, nil
}

// bestEndpoint picks the lowest-priority, non-fallback-only endpoint that
// supports the given generation, falling back to a fallback-only one if
// nothing else qualifies.
func bestEndpoint(endpoints []Endpoint, gen uint32) *Endpoint {
	var best, fallback *Endpoint
	for i := range endpoints {
		e := &endpoints[i]
		if !e.SupportsGen(gen) {
			continue
		}
		if e.FallbackOnly {
			if fallback == nil || e.Priority < fallback.Priority {
				fallback = e
			}
			continue
		}
		if best == nil || e.Priority < best.Priority {
			best = e
		}
	}
	if best != nil {
		return best
	}
	return fallback
}

func toEntries(v1 []DepotEntryV1, v2 []DepotEntryV2) []DepotEntry {
	if v2 != nil {
		out := make([]DepotEntry, len(v2))
		for i := range v2 {
			out[i] = DepotEntry{V2: &v2[i]}
		}
		return out
	}
	out := make([]DepotEntry, len(v1))
	for i := range v1 {
		out[i] = DepotEntry{V1: &v1[i]}
	}
	return out
}
