package sampler

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/portraitquiz/pkg/catalog"
)

// Domain errors. Both are recoverable by retrying.
var (
	ErrNoCharacters     = errors.New("no characters found for this category")
	ErrNoValidCharacter = errors.New("could not find a valid character, try again")
)

// Overrides supplies pre-bundled character lists for categories that should
// bypass the network.
type Overrides interface {
	Lookup(category string) ([]catalog.Character, bool)
}

// Deps are the collaborators and limits of a sampling step.
type Deps struct {
	Fetcher          catalog.Fetcher
	Overrides        Overrides
	Rand             Rand
	MaxAttempts      int
	BrowsePageSize   int
	FilteredPageSize int
}

// Next selects the next character for filter given the session state s and
// returns it together with the successor state. s is never modified.
//
// A filter different from s.Filter starts a new session. Failures return the
// successor state alongside the error so that learned facts survive: once the
// unfiltered page count is known it is never fetched again, even when a later
// page request in the same call fails. A failed call never records LastID.
func Next(ctx context.Context, d Deps, s State, filter string) (catalog.Character, State, error) {
	if s.Filter != filter {
		s = NewState(filter)
	}
	if filter != "" {
		return nextFiltered(ctx, d, s)
	}
	return nextBrowse(ctx, d, s)
}

func nextFiltered(ctx context.Context, d Deps, s State) (catalog.Character, State, error) {
	next := s.clone()
	if !next.PoolBuilt {
		pool, err := buildPool(ctx, d, s.Filter)
		if err != nil {
			return catalog.Character{}, s, err
		}
		if len(pool) == 0 {
			return catalog.Character{}, s, ErrNoCharacters
		}
		next.Pool = pool
		next.PoolBuilt = true
	}

	c, ok := pick(next.Pool, next, d.Rand)
	if !ok {
		return catalog.Character{}, s, ErrNoCharacters
	}
	next.LastID, next.HasLast = c.ID, true
	return c, next, nil
}

// buildPool materialises the pool of filter. A bundled list wins over the
// network and is used as is. Otherwise page 1 is fetched to learn the page count and
// the remaining pages are fetched concurrently; any failure fails the build.
func buildPool(ctx context.Context, d Deps, filter string) ([]catalog.Character, error) {
	if d.Overrides != nil {
		if cs, ok := d.Overrides.Lookup(filter); ok {
			return cs, nil
		}
	}

	first, err := d.Fetcher.FetchPage(ctx, filter, 1, d.FilteredPageSize)
	if err != nil {
		return nil, fmt.Errorf("sampler: build pool for %q: page 1: %w", filter, err)
	}
	pool := catalog.FilterValid(first.Characters)
	total := first.Info.TotalPages
	if total <= 1 {
		return pool, nil
	}

	rest := make([][]catalog.Character, total-1)
	eg, egCtx := errgroup.WithContext(ctx)
	for page := 2; page <= total; page++ {
		eg.Go(func() error {
			p, err := d.Fetcher.FetchPage(egCtx, filter, page, d.FilteredPageSize)
			if err != nil {
				return fmt.Errorf("sampler: build pool for %q: page %d: %w", filter, page, err)
			}
			rest[page-2] = catalog.FilterValid(p.Characters)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(append([][]catalog.Character{pool}, rest...)...), nil
}

func nextBrowse(ctx context.Context, d Deps, s State) (catalog.Character, State, error) {
	next := s.clone()
	if next.TotalPages == 0 {
		first, err := d.Fetcher.FetchPage(ctx, "", 1, d.BrowsePageSize)
		if err != nil {
			return catalog.Character{}, s, fmt.Errorf("sampler: learn page count: %w", err)
		}
		next.TotalPages = max(first.Info.TotalPages, 1)
	}

	for attempt := 1; attempt <= d.MaxAttempts; attempt++ {
		page := d.Rand.IntN(next.TotalPages) + 1
		p, err := d.Fetcher.FetchPage(ctx, "", page, d.BrowsePageSize)
		if err != nil {
			return catalog.Character{}, next, fmt.Errorf("sampler: attempt %d: page %d: %w", attempt, page, err)
		}
		if c, ok := pick(catalog.FilterValid(p.Characters), next, d.Rand); ok {
			next.LastID, next.HasLast = c.ID, true
			return c, next, nil
		}
	}
	return catalog.Character{}, next, ErrNoValidCharacter
}
