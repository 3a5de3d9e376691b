package contentsystem

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
)

// secureLinkCache lazily obtains and memoises signed endpoint sets keyed
// by (productID, kind) so that repeated worker tasks against the same
// product share one provider round trip (spec §4.7 item 3). Dependency
// depots are looked up separately via DependenciesLink and memoised
// under the empty-productID key.
type secureLinkCache struct {
	mu    sync.Mutex
	links LinkProvider
	table map[secureLinkKey][]Endpoint
}

type secureLinkKey struct {
	productID string
	kind      string
}

func newSecureLinkCache(links LinkProvider) *secureLinkCache {
	return &secureLinkCache{links: links, table: map[secureLinkKey][]Endpoint{}}
}

// Get returns the memoised endpoint set for (productID, kind), fetching
// and caching it on first use; generation, path and root are only passed
// to the provider on that first fetch and are not part of the cache key.
// kind is an
// opaque bucket discriminator — callers use "" for ordinary file
// downloads and "patch" for the dedicated per-product patch bucket
// described in spec §4.7 item 3 ("{product}patch").
func (c *secureLinkCache) Get(ctx context.Context, gen ManifestGeneration, productID, path, root, bearerToken, kind string) ([]Endpoint, error) {
	key := secureLinkKey{productID: productID, kind: kind}

	c.mu.Lock()
	if eps, ok := c.table[key]; ok {
		c.mu.Unlock()
		return eps, nil
	}
	c.mu.Unlock()

	eps, err := fetchWithBackoff(ctx, func() ([]Endpoint, error) {
		return c.links.SecureLink(ctx, gen, productID, path, root, bearerToken)
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.table[key] = eps
	c.mu.Unlock()
	return eps, nil
}

// GetDependencies returns the memoised public dependency endpoint set.
func (c *secureLinkCache) GetDependencies(ctx context.Context) ([]Endpoint, error) {
	key := secureLinkKey{productID: "", kind: "dependencies"}

	c.mu.Lock()
	if eps, ok := c.table[key]; ok {
		c.mu.Unlock()
		return eps, nil
	}
	c.mu.Unlock()

	eps, err := fetchWithBackoff(ctx, func() ([]Endpoint, error) {
		return c.links.DependenciesLink(ctx)
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.table[key] = eps
	c.mu.Unlock()
	return eps, nil
}

// fetchWithBackoff retries a signed-link lookup with exponential backoff
// (spec §6: 5xx / transient request errors must be retried). KindRequest
// errors and errors that are not a *Error are retried; it bails out
// immediately on a cancelled context or an *Error of any other kind, such
// as an authentication failure. Exhausting every attempt on a
// persistently failing request surfaces as KindMaximumRetries (spec §7)
// rather than the raw underlying error.
func fetchWithBackoff(ctx context.Context, fn func() ([]Endpoint, error)) ([]Endpoint, error) {
	eps, err := retry.DoWithData(
		fn,
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(3*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool {
			var cerr *Error
			if errors.As(err, &cerr) {
				return cerr.Kind() == KindRequest
			}
			return true
		}),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return eps, nil
	}
	if ctx.Err() != nil {
		return nil, cancelledError()
	}
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Kind() == KindRequest {
		return nil, maximumRetriesError()
	}
	return nil, err
}
