package quiz

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/portraitquiz/internal/match"
	"github.com/MrWong99/portraitquiz/internal/observe"
	"github.com/MrWong99/portraitquiz/internal/sampler"
)

// ErrGameNotFound is returned for unknown or evicted game ids.
var ErrGameNotFound = errors.New("quiz: game not found")

// DefaultIdleTimeout is how long a game may sit unused before eviction.
const DefaultIdleTimeout = 30 * time.Minute

// SamplerFactory builds the sampler for a new game.
type SamplerFactory func() *sampler.Sampler

// ManagerOption is a functional option for configuring a [Manager].
type ManagerOption func(*Manager)

// WithIdleTimeout sets the idle eviction timeout. Default: 30m.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// WithVerifier sets the initial answer verifier. Default: match.New().
func WithVerifier(v *match.Verifier) ManagerOption {
	return func(m *Manager) {
		if v != nil {
			m.verifier.Store(v)
		}
	}
}

// WithMetrics records verdicts and the live-game gauge on mt.
func WithMetrics(mt *observe.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// Manager keeps the live games of this process in memory. Games do not
// survive a restart. All methods are safe for concurrent use.
type Manager struct {
	newSampler  SamplerFactory
	idleTimeout time.Duration
	metrics     *observe.Metrics
	now         func() time.Time
	verifier    atomic.Pointer[match.Verifier]

	mu    sync.Mutex
	games map[string]*Game
}

// NewManager creates a Manager that gives each game a sampler from factory.
func NewManager(factory SamplerFactory, opts ...ManagerOption) *Manager {
	m := &Manager{
		newSampler:  factory,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		games:       make(map[string]*Game),
	}
	m.verifier.Store(match.New())
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetVerifier swaps the verifier used by every game's next guess.
func (m *Manager) SetVerifier(v *match.Verifier) {
	if v != nil {
		m.verifier.Store(v)
	}
}

// Verifier returns the verifier currently in use.
func (m *Manager) Verifier() *match.Verifier {
	return m.verifier.Load()
}

// Create starts a new game for filter.
func (m *Manager) Create(ctx context.Context, filter string) *Game {
	now := m.now()
	g := &Game{
		id:         uuid.NewString(),
		sampler:    m.newSampler(),
		verify:     func(t, target string) match.Verdict { return m.verifier.Load().Verify(t, target) },
		metrics:    m.metrics,
		now:        m.now,
		filter:     filter,
		createdAt:  now,
		lastActive: now,
	}

	m.mu.Lock()
	m.games[g.id] = g
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveGames.Add(ctx, 1)
	}
	observe.Logger(ctx).Info("game created", "game_id", g.id, "filter", filter)
	return g
}

// Get returns the game with id.
func (m *Manager) Get(id string) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// Delete ends the game with id and cancels any draw it has in flight.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	g, ok := m.games[id]
	delete(m.games, id)
	m.mu.Unlock()

	if !ok {
		return ErrGameNotFound
	}
	g.close()
	if m.metrics != nil {
		m.metrics.ActiveGames.Add(ctx, -1)
	}
	observe.Logger(ctx).Info("game deleted", "game_id", id)
	return nil
}

// Len returns the number of live games.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.games)
}

// Sweep evicts games idle for longer than the idle timeout as of now and
// returns how many were evicted.
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	m.mu.Lock()
	var stale []*Game
	for id, g := range m.games {
		if now.Sub(g.idleSince()) > m.idleTimeout {
			stale = append(stale, g)
			delete(m.games, id)
		}
	}
	m.mu.Unlock()

	for _, g := range stale {
		g.close()
	}
	if len(stale) > 0 {
		if m.metrics != nil {
			m.metrics.ActiveGames.Add(ctx, -int64(len(stale)))
		}
		slog.Info("evicted idle games", "count", len(stale))
	}
	return len(stale)
}

// Run sweeps every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx, m.now())
		}
	}
}

// Close ends every game.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	games := m.games
	m.games = make(map[string]*Game)
	m.mu.Unlock()

	for _, g := range games {
		g.close()
	}
	if m.metrics != nil && len(games) > 0 {
		m.metrics.ActiveGames.Add(ctx, -int64(len(games)))
	}
}
