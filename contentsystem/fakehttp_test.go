package contentsystem

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"sync"
)

// fakeHTTPClient serves canned responses keyed by exact URL, used by the
// worker/downloader tests in place of a real CDN.
type fakeHTTPClient struct {
	bodies map[string][]byte
	status map[string]int
}

func newFakeHTTPClient() *fakeHTTPClient {
	return &fakeHTTPClient{bodies: map[string][]byte{}, status: map[string]int{}}
}

func (f *fakeHTTPClient) setPlain(url string, body []byte) {
	f.bodies[url] = body
	f.status[url] = 200
}

func (f *fakeHTTPClient) setZlib(url string, raw []byte) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()
	f.setPlain(url, buf.Bytes())
}

func (f *fakeHTTPClient) Get(ctx context.Context, url string) (int, []byte, error) {
	body, ok := f.bodies[url]
	if !ok {
		return 404, nil, nil
	}
	return f.status[url], body, nil
}

func (f *fakeHTTPClient) GetRange(ctx context.Context, url string, offset, size int64) (io.ReadCloser, error) {
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("fake http: no body registered for %s", url)
	}
	end := offset + size
	if end > int64(len(body)) {
		end = int64(len(body))
	}
	return io.NopCloser(bytes.NewReader(body[offset:end])), nil
}

func (f *fakeHTTPClient) GetAuthJSON(ctx context.Context, url, bearerToken string, out interface{}) error {
	return fmt.Errorf("not implemented in fake")
}

// fakeLinkProvider returns one fixed, unsigned endpoint per call and
// separately counts which bucket (per-product vs dependencies) was used,
// so tests can assert a call was routed correctly.
type fakeLinkProvider struct {
	endpoint    Endpoint
	depEndpoint Endpoint

	mu              sync.Mutex
	secureLinkCalls int
	depLinkCalls    int
}

func (f *fakeLinkProvider) SecureLink(ctx context.Context, gen ManifestGeneration, productID, path, root, bearerToken string) ([]Endpoint, error) {
	f.mu.Lock()
	f.secureLinkCalls++
	f.mu.Unlock()
	return []Endpoint{f.endpoint}, nil
}

func (f *fakeLinkProvider) DependenciesLink(ctx context.Context) ([]Endpoint, error) {
	f.mu.Lock()
	f.depLinkCalls++
	f.mu.Unlock()
	ep := f.depEndpoint
	if ep.URLFormat == "" {
		ep = f.endpoint
	}
	return []Endpoint{ep}, nil
}
