package contentsystem

import (
	"context"
	"encoding/json"
	"fmt"
)

// buildsURLFormat is the well-known builds-listing endpoint, queried
// per product id and platform. Build discovery is a collaborator
// concern (Non-goal of the core downloader, spec §1) that shares the
// Endpoint/Platform types, see SPEC_FULL.md §4.10.
const buildsURLFormat = "https://content-system.gog.com/products/%s/os/%s/builds"

// ListBuilds fetches every published build of productID for platform,
// newest first as returned by the API. It does not consult the secure
// link provider: this endpoint is unauthenticated metadata, not a CDN
// chunk fetch.
func ListBuilds(ctx context.Context, http HTTPClient, productID string, platform Platform) (BuildResponse, error) {
	status, body, err := http.Get(ctx, fmt.Sprintf(buildsURLFormat, productID, platform))
	if err != nil {
		return BuildResponse{}, err
	}
	if status >= 400 {
		return BuildResponse{}, requestError(nil)
	}
	var resp BuildResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return BuildResponse{}, serdeError(err)
	}
	return resp, nil
}
