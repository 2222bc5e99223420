package sampler

import (
	"slices"

	"github.com/MrWong99/portraitquiz/pkg/catalog"
)

// State is the sampling state of one session: everything learned for the
// current filter. It is a value; [Next] returns a new State instead of
// mutating its argument.
type State struct {
	// Filter is the category the state belongs to. Empty means unfiltered.
	Filter string

	// TotalPages is the cached page count for unfiltered browsing. Zero means
	// not learned yet.
	TotalPages int

	// Pool is the materialised list of valid characters for Filter. Only used
	// in filtered mode.
	Pool []catalog.Character

	// PoolBuilt reports whether Pool has been built for Filter.
	PoolBuilt bool

	// LastID is the identifier of the most recently shown character, valid
	// when HasLast is set.
	LastID  int
	HasLast bool
}

// NewState returns the empty state of a brand-new session for filter.
func NewState(filter string) State {
	return State{Filter: filter}
}

// Reset discards the pool, the cached page count and the last shown
// identifier, and binds the state to filter.
func (s *State) Reset(filter string) {
	*s = NewState(filter)
}

// clone returns a copy of s that shares no slice memory with it.
func (s State) clone() State {
	s.Pool = slices.Clone(s.Pool)
	return s
}

// Rand is the random source used for page and character selection.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// pick chooses uniformly from pool. When pool holds more than one character
// the last shown identifier is excluded; if exclusion leaves nothing the full
// pool is used. It returns false for an empty pool.
func pick(pool []catalog.Character, s State, rng Rand) (catalog.Character, bool) {
	switch len(pool) {
	case 0:
		return catalog.Character{}, false
	case 1:
		return pool[0], true
	}
	candidates := pool
	if s.HasLast {
		others := make([]catalog.Character, 0, len(pool))
		for _, c := range pool {
			if c.ID != s.LastID {
				others = append(others, c)
			}
		}
		if len(others) > 0 {
			candidates = others
		}
	}
	return candidates[rng.IntN(len(candidates))], true
}
