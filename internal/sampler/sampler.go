// Package sampler picks the next character to show in a quiz session.
//
// Two modes exist. With a category filter the sampler builds the complete
// pool for that category once (a bundled list as is when one exists,
// otherwise the valid characters from every page of the remote collection,
// fetched concurrently) and draws from it. Without a filter it browses: it
// learns the collection's page count once, then fetches random pages until
// one yields a valid character or the attempt budget runs out.
//
// Draws never repeat the previously shown character when an alternative
// exists. [Next] is the pure step function; [Sampler] wraps it with the
// per-session state and the supersession rule: a newer FetchNext cancels the
// older one, whose result is discarded without touching state.
package sampler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/portraitquiz/internal/observe"
	"github.com/MrWong99/portraitquiz/pkg/catalog"
)

// ErrSuperseded is returned by [Sampler.FetchNext] when a newer call
// replaced this one before it could commit. It is not a failure and should
// not be shown to the user.
var ErrSuperseded = errors.New("sampler: superseded by a newer request")

// DefaultMaxAttempts is the number of random pages tried in browse mode.
const DefaultMaxAttempts = 5

// Option is a functional option for configuring a [Sampler].
type Option func(*Sampler)

// WithRand sets the random source. Useful for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(s *Sampler) {
		if r != nil {
			s.rng = &lockedRand{r: r}
		}
	}
}

// WithOverrides sets the bundled category lists consulted before the network.
func WithOverrides(o Overrides) Option {
	return func(s *Sampler) { s.overrides = o }
}

// WithMaxAttempts sets the browse-mode attempt budget. Default: 5.
func WithMaxAttempts(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithPageSizes sets the page sizes for browsing and pool building.
// Defaults: [catalog.BrowsePageSize] and [catalog.FilteredPageSize].
func WithPageSizes(browse, filtered int) Option {
	return func(s *Sampler) {
		if browse > 0 {
			s.browsePageSize = browse
		}
		if filtered > 0 {
			s.filteredPageSize = filtered
		}
	}
}

// WithMetrics records outcomes and latencies on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Sampler) { s.metrics = m }
}

// Sampler holds the sampling state of one session. It is safe for concurrent
// use; concurrent FetchNext calls supersede each other in call order.
type Sampler struct {
	fetcher          catalog.Fetcher
	overrides        Overrides
	rng              Rand
	maxAttempts      int
	browsePageSize   int
	filteredPageSize int
	metrics          *observe.Metrics

	mu      sync.Mutex
	state   State
	gen     uint64
	cancel  context.CancelFunc
	commits int
}

// New returns a Sampler that reads pages from f.
func New(f catalog.Fetcher, opts ...Option) *Sampler {
	s := &Sampler{
		fetcher:          f,
		rng:              &lockedRand{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))},
		maxAttempts:      DefaultMaxAttempts,
		browsePageSize:   catalog.BrowsePageSize,
		filteredPageSize: catalog.FilteredPageSize,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FetchNext returns the next character for filter.
//
// Any FetchNext still in flight is cancelled first; it then returns
// [ErrSuperseded] and leaves the state alone. When ctx itself is cancelled
// the context error is returned and the state is left alone. Domain errors
// ([ErrNoCharacters], [ErrNoValidCharacter]) and transport errors (wrapping
// [catalog.ErrTransport]) are returned as is.
func (s *Sampler) FetchNext(ctx context.Context, filter string) (catalog.Character, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "sampler.FetchNext")
	span.SetAttributes(attribute.String("catalog.filter", filter))

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	callCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	snapshot := s.state.clone()
	s.mu.Unlock()
	defer cancel()

	c, next, err := Next(callCtx, s.deps(), snapshot, filter)

	s.mu.Lock()
	superseded := s.gen != gen
	if !superseded {
		s.cancel = nil
		if ctx.Err() == nil {
			s.state = next
			s.commits++
		}
	}
	s.mu.Unlock()

	switch {
	case superseded:
		err = ErrSuperseded
	case ctx.Err() != nil:
		err = ctx.Err()
	}
	s.record(ctx, filter, err, time.Since(start))
	observe.EndSpan(span, spanErr(err))
	if err != nil {
		return catalog.Character{}, err
	}
	return c, nil
}

// Snapshot returns a copy of the current session state.
func (s *Sampler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Reset cancels any in-flight call and starts a new session for filter.
func (s *Sampler) Reset(filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.state.Reset(filter)
}

func (s *Sampler) deps() Deps {
	return Deps{
		Fetcher:          s.fetcher,
		Overrides:        s.overrides,
		Rand:             s.rng,
		MaxAttempts:      s.maxAttempts,
		BrowsePageSize:   s.browsePageSize,
		FilteredPageSize: s.filteredPageSize,
	}
}

func (s *Sampler) record(ctx context.Context, filter string, err error, d time.Duration) {
	if s.metrics == nil {
		return
	}
	mode := "browse"
	if filter != "" {
		mode = "filtered"
	}
	s.metrics.RecordSamplerOutcome(context.WithoutCancel(ctx), mode, Outcome(err), d.Seconds())
}

// Outcome classifies a FetchNext error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrNoCharacters):
		return "no_characters"
	case errors.Is(err, ErrNoValidCharacter):
		return "no_valid_character"
	case errors.Is(err, catalog.ErrTransport):
		return "transport_error"
	default:
		return "error"
	}
}

// spanErr hides supersession from tracing: it is routine, not a failure.
func spanErr(err error) error {
	if errors.Is(err, ErrSuperseded) {
		return context.Canceled
	}
	return err
}

// lockedRand serialises access to a *rand.Rand, which is not safe for
// concurrent use. A superseded call may still be drawing when its successor
// starts.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
