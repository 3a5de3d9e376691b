package contentsystem

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/zlib"
)

// dependenciesManifestURL is the well-known path of the shared
// redistributables manifest served off the dependencies endpoint set.
const dependenciesManifestURL = "/dependencies/repository.json"

// dependenciesRepository is the wire shape of the shared redist
// manifest: a flat list of named depots, each independently fetchable.
type dependenciesRepository struct {
	Depots []dependencyDepotRef `json:"depots"`
}

type dependencyDepotRef struct {
	DependencyID string `json:"dependencyId"`
	Manifest     string `json:"manifest"`
}

// GetDependencies fetches the shared redistributables manifest and
// returns the FileLists for the requested dependency ids, per spec §4.2.
// Dependencies are fetched off the public endpoint set, not the
// per-product secure link (they carry no license restriction).
func GetDependencies(ctx context.Context, http HTTPClient, links LinkProvider, wanted []string) ([]FileList, error) {
	if len(wanted) == 0 {
		return nil, nil
	}
	endpoints, err := links.DependenciesLink(ctx)
	if err != nil {
		return nil, err
	}
	ep := bestEndpoint(endpoints, 2)
	if ep == nil {
		return nil, notReadyError("no endpoint available for dependencies repository")
	}

	status, body, err := http.Get(ctx, assembleURL(*ep, "repository.json"))
	if err != nil {
		return nil, err
	}
	if status >= 500 {
		return nil, requestError(nil)
	}
	var repo dependenciesRepository
	if err := json.Unmarshal(body, &repo); err != nil {
		return nil, serdeError(err)
	}

	want := map[string]bool{}
	for _, id := range wanted {
		want[id] = true
	}

	var out []FileList
	for _, ref := range repo.Depots {
		if !want[ref.DependencyID] {
			continue
		}
		galaxyPath := hashToGalaxyPath(ref.Manifest)
		depotURL := assembleURL(*ep, galaxyPath)
		status, body, err := http.Get(ctx, depotURL)
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
		raw, err := io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, zlibError(err)
		}
		var details DepotDetails
		if err := json.Unmarshal(raw, &details); err != nil {
			return nil, serdeError(err)
		}
		fl := NewFileList(ref.DependencyID, toEntries(nil, details.Depot.Items))
		fl.IsDependency = true
		fl.SFC = details.Depot.SmallFilesContainer
		out = append(out, fl)
	}
	return out, nil
}
