package contentsystem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// HTTPClient is the narrow collaborator interface the core consumes for
// arbitrary fetches and bearer-authenticated JSON calls (spec §6). A
// concrete implementation backs onto *http.Client (optionally wrapped by
// retryablehttp for backoff); the Downloader never constructs one of its
// own, it's provided via Core.
type HTTPClient interface {
	// Get performs a plain GET and returns the raw response body and
	// status code; the caller is responsible for status handling.
	Get(ctx context.Context, url string) (status int, body []byte, err error)
	// GetRange performs a GET with a byte-range header and returns the
	// response body as a stream the caller must Close.
	GetRange(ctx context.Context, url string, offset, size int64) (io.ReadCloser, error)
	// GetAuthJSON performs a bearer-authenticated GET and decodes the
	// JSON response body into out.
	GetAuthJSON(ctx context.Context, url, bearerToken string, out interface{}) error
}

// defaultHTTPClient is the retryablehttp-backed HTTPClient used outside
// of tests (SPEC_FULL.md ambient retry/backoff layer).
type defaultHTTPClient struct {
	rc *retryablehttp.Client
}

// NewDefaultHTTPClient builds the standard HTTPClient: a retryablehttp
// client with exponential backoff over transient 5xx/connection errors,
// logging through logrus the way the rest of this module does.
func NewDefaultHTTPClient(logger *logrus.Logger) HTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 5
	rc.Logger = logger
	return &defaultHTTPClient{rc: rc}
}

func (c *defaultHTTPClient) Get(ctx context.Context, url string) (int, []byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, requestError(err)
	}
	resp, err := c.rc.Do(req)
	if err != nil {
		return 0, nil, requestError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, ioError(err)
	}
	return resp.StatusCode, body, nil
}

func (c *defaultHTTPClient) GetRange(ctx context.Context, url string, offset, size int64) (io.ReadCloser, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, requestError(err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+size-1))
	resp, err := c.rc.Do(req)
	if err != nil {
		return nil, requestError(err)
	}
	return resp.Body, nil
}

func (c *defaultHTTPClient) GetAuthJSON(ctx context.Context, url, bearerToken string, out interface{}) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return requestError(err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	resp, err := c.rc.Do(req)
	if err != nil {
		return requestError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return unauthorizedError()
	}
	if resp.StatusCode == http.StatusBadRequest {
		return invalidSessionError()
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return serdeError(err)
	}
	return nil
}

// LinkProvider is the signed-URL collaborator interface the core
// consumes (spec §6). It obtains endpoint descriptors for a product and
// path root; implementations are expected to retry 5xx with backoff and
// surface 401/400-on-refresh per spec §7.
type LinkProvider interface {
	// SecureLink returns endpoint descriptors for the given manifest
	// generation, product id, CDN path root, and bearer token.
	SecureLink(ctx context.Context, generation ManifestGeneration, productID, path, root, bearerToken string) ([]Endpoint, error)
	// DependenciesLink returns the dedicated public endpoint set used for
	// dependency depots, which carries no bearer token.
	DependenciesLink(ctx context.Context) ([]Endpoint, error)
}

// Core bundles the auth/client handles the Downloader needs: an
// HTTPClient for arbitrary fetches, a LinkProvider for signed CDN
// endpoints, and the bearer token to present to it. Construction of the
// token store/OAuth flow itself is out of scope (spec §1).
type Core struct {
	HTTP        HTTPClient
	Links       LinkProvider
	BearerToken string
	Logger      *logrus.Logger
}
