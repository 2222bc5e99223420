package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/portraitquiz/pkg/catalog"
)

// CatalogFallback implements [catalog.Fetcher] over a primary collection
// endpoint and optional mirrors, each behind its own circuit breaker.
//
// Every failure it returns, including a request rejected because all
// breakers are open, wraps [catalog.ErrTransport]. Context errors pass
// through untouched and never trip a breaker.
type CatalogFallback struct {
	group *FallbackGroup[catalog.Fetcher]
}

var _ catalog.Fetcher = (*CatalogFallback)(nil)

// NewCatalogFallback creates a [CatalogFallback] with primary as the
// preferred endpoint.
func NewCatalogFallback(primary catalog.Fetcher, primaryName string, cfg FallbackConfig) *CatalogFallback {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = catalogFailure
	}
	return &CatalogFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers a mirror endpoint.
func (f *CatalogFallback) AddFallback(name string, fetcher catalog.Fetcher) {
	f.group.AddFallback(name, fetcher)
}

// FetchPage fetches from the first healthy endpoint.
func (f *CatalogFallback) FetchPage(ctx context.Context, filter string, page, pageSize int) (*catalog.Page, error) {
	p, err := ExecuteWithResult(f.group, func(fetcher catalog.Fetcher) (*catalog.Page, error) {
		return fetcher.FetchPage(ctx, filter, page, pageSize)
	})
	if err == nil {
		return p, nil
	}
	if errors.Is(err, ErrAllFailed) && !errors.Is(err, catalog.ErrTransport) {
		err = errors.Join(catalog.ErrTransport, err)
	}
	return nil, err
}

// catalogFailure counts transport errors against the breaker even when they
// carry a client-side timeout, and ignores the caller's cancellation.
func catalogFailure(err error) bool {
	return errors.Is(err, catalog.ErrTransport) || CountsAsFailure(err)
}

// Health reports the breaker state of every endpoint.
func (f *CatalogFallback) Health() []EntryHealth {
	return f.group.Health()
}

// Available reports whether at least one endpoint would currently admit a
// request.
func (f *CatalogFallback) Available() bool {
	for _, h := range f.group.Health() {
		if h.State != StateOpen {
			return true
		}
	}
	return false
}
