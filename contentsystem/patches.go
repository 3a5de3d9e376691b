package contentsystem

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/zlib"
)

// patchIndexEntry names the generation-to-generation patch depot for one
// build transition.
type patchIndexEntry struct {
	BaselineBuildID string `json:"baseline_build_id"`
	TargetBuildID   string `json:"target_build_id"`
	Manifest        string `json:"manifest"`
}

type patchIndex struct {
	Patches []patchIndexEntry `json:"patches"`
}

// GetPatch fetches the binary-diff depot covering the transition from
// baselineBuildID to targetBuildID, if the CDN has precomputed one. A nil
// FileList with no error means no patch path exists and the caller must
// fall back to a full download of the affected files (spec §4.3).
func GetPatch(ctx context.Context, http HTTPClient, links LinkProvider, productID, baselineBuildID, targetBuildID string) (*FileList, error) {
	endpoints, err := links.DependenciesLink(ctx)
	if err != nil {
		return nil, err
	}
	ep := bestEndpoint(endpoints, 2)
	if ep == nil {
		return nil, notReadyError("no endpoint available for patch index")
	}

	status, body, err := http.Get(ctx, assembleURL(*ep, "patches/"+productID+"/index.json"))
	if err != nil {
		return nil, err
	}
	if status == 404 {
		return nil, nil
	}
	if status >= 500 {
		return nil, requestError(nil)
	}
	var idx patchIndex
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, serdeError(err)
	}

	var match *patchIndexEntry
	for i := range idx.Patches {
		p := &idx.Patches[i]
		if p.BaselineBuildID == baselineBuildID && p.TargetBuildID == targetBuildID {
			match = p
			break
		}
	}
	if match == nil {
		return nil, nil
	}

	galaxyPath := hashToGalaxyPath(match.Manifest)
	status, body, err = http.Get(ctx, assembleURL(*ep, galaxyPath))
	if err != nil {
		return nil, err
	}
	if status >= 500 {
		return nil, requestError(nil)
	}
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, zlibError(err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, zlibError(err)
	}
	var details DepotDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, serdeError(err)
	}
	fl := NewFileList(productID, toEntries(nil, details.Depot.Items))
	fl.SFC = details.Depot.SmallFilesContainer
	return &fl, nil
}
