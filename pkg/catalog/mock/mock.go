// Package mock provides a test double for catalog.Fetcher.
//
// Fetcher serves pages cut from in-memory collections, one per filter, so
// tests can exercise pagination without a network. Individual pages can be
// made to fail, and a Before hook can block or observe requests to simulate
// slow or superseded calls.
//
// Example:
//
//	f := &mock.Fetcher{Collections: map[string][]catalog.Character{
//	    "Frozen": {elsa, anna, olaf},
//	}}
//	page, _ := f.FetchPage(ctx, "Frozen", 1, 200)
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/portraitquiz/pkg/catalog"
)

// FetchCall records a single invocation of Fetcher.FetchPage.
type FetchCall struct {
	Filter   string
	Page     int
	PageSize int
}

// Fetcher is a mock implementation of catalog.Fetcher.
type Fetcher struct {
	mu sync.Mutex

	// Collections maps a filter ("" for unfiltered) to its full character
	// list. Unknown filters yield an empty page with zero total pages.
	Collections map[string][]catalog.Character

	// Err, if non-nil, is returned from every call.
	Err error

	// PageErrs maps a page number to the error returned for it.
	PageErrs map[int]error

	// Before, if non-nil, runs before the page is served. A non-nil return
	// is passed through as the call's error. It may block on ctx.
	Before func(ctx context.Context, call FetchCall) error

	calls []FetchCall
}

var _ catalog.Fetcher = (*Fetcher)(nil)

// FetchPage records the call and serves the requested slice of the matching
// collection.
func (f *Fetcher) FetchPage(ctx context.Context, filter string, page, pageSize int) (*catalog.Page, error) {
	call := FetchCall{Filter: filter, Page: page, PageSize: pageSize}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	before := f.Before
	f.mu.Unlock()

	if before != nil {
		if err := before(ctx, call); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if err := f.PageErrs[page]; err != nil {
		return nil, err
	}

	all := f.Collections[filter]
	if pageSize <= 0 {
		pageSize = len(all)
	}
	total := 0
	if len(all) > 0 && pageSize > 0 {
		total = (len(all) + pageSize - 1) / pageSize
	}
	p := &catalog.Page{
		Info:       catalog.PageInfo{Count: 0, TotalPages: total},
		Characters: []catalog.Character{},
	}
	if page >= 1 && page <= total {
		lo := (page - 1) * pageSize
		hi := min(lo+pageSize, len(all))
		p.Characters = slices.Clone(all[lo:hi])
	}
	p.Info.Count = len(p.Characters)
	return p, nil
}

// Calls returns a copy of the recorded calls in arrival order.
func (f *Fetcher) Calls() []FetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallCount returns the number of recorded calls.
func (f *Fetcher) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Reset clears all recorded calls. Thread-safe.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
