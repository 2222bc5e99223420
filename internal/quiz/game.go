// Package quiz runs portrait quiz games: each game shows one character per
// round, accepts a single spoken or typed guess, and keeps score.
//
// A [Game] owns its own [sampler.Sampler], so rounds never repeat the
// previous character and category switches start a fresh sampling session.
// The [Manager] keeps live games in memory and evicts idle ones.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/portraitquiz/internal/match"
	"github.com/MrWong99/portraitquiz/internal/observe"
	"github.com/MrWong99/portraitquiz/internal/sampler"
	"github.com/MrWong99/portraitquiz/pkg/catalog"
)

var (
	// ErrNoRound is returned by Guess before the first round was drawn.
	ErrNoRound = errors.New("quiz: no round in progress")

	// ErrAlreadyAnswered is returned by Guess when the current round already
	// received its guess.
	ErrAlreadyAnswered = errors.New("quiz: round already answered")
)

// Round is one character shown to the player.
type Round struct {
	Number    int
	Character catalog.Character
	Answered  bool
	StartedAt time.Time
}

// Result is the outcome of a guess.
type Result struct {
	Verdict  match.Verdict
	Answer   string
	Score    int
	Attempts int
}

// Stats summarises a game.
type Stats struct {
	ID         string
	Filter     string
	Score      int
	Attempts   int
	Rounds     int
	CreatedAt  time.Time
	LastActive time.Time
}

// Game is one player's quiz. All methods are safe for concurrent use.
type Game struct {
	id      string
	sampler *sampler.Sampler
	verify  func(transcript, target string) match.Verdict
	metrics *observe.Metrics
	now     func() time.Time

	mu         sync.Mutex
	filter     string
	round      *Round
	draws      uint64
	rounds     int
	score      int
	attempts   int
	createdAt  time.Time
	lastActive time.Time
}

// ID returns the game's identifier.
func (g *Game) ID() string { return g.id }

// Filter returns the current category filter. Empty means all characters.
func (g *Game) Filter() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filter
}

// Next draws the next character for the current filter and starts a new
// round. A call superseded by a newer Next, Skip or SetFilter returns
// [sampler.ErrSuperseded] and leaves the current round in place, even when
// its character arrived after the newer call had already finished.
func (g *Game) Next(ctx context.Context) (Round, error) {
	g.mu.Lock()
	filter := g.filter
	g.draws++
	draw := g.draws
	g.lastActive = g.now()
	g.mu.Unlock()

	c, err := g.sampler.FetchNext(ctx, filter)
	if err != nil {
		return Round{}, fmt.Errorf("quiz: next round: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draws != draw || g.filter != filter {
		return Round{}, fmt.Errorf("quiz: next round: %w", sampler.ErrSuperseded)
	}
	g.rounds++
	g.round = &Round{Number: g.rounds, Character: c, StartedAt: g.now()}
	g.lastActive = g.round.StartedAt
	return *g.round, nil
}

// Skip abandons the current round without touching the score and draws the
// next one. It is also how a client retries after a portrait fails to load.
func (g *Game) Skip(ctx context.Context) (Round, error) {
	observe.Logger(ctx).Debug("round skipped", "game_id", g.id)
	return g.Next(ctx)
}

// SetFilter switches the category. The next round starts a new sampling
// session; any draw in flight is superseded.
func (g *Game) SetFilter(filter string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if filter == g.filter {
		return
	}
	g.filter = filter
	g.draws++
	g.round = nil
	g.lastActive = g.now()
	g.sampler.Reset(filter)
}

// Current returns the round in progress.
func (g *Game) Current() (Round, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.round == nil {
		return Round{}, false
	}
	return *g.round, true
}

// Guess checks transcript against the current character. Each round takes
// one guess; a match scores a point.
func (g *Game) Guess(ctx context.Context, transcript string) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.round == nil {
		return Result{}, ErrNoRound
	}
	if g.round.Answered {
		return Result{}, ErrAlreadyAnswered
	}

	v := g.verify(transcript, g.round.Character.Name)
	g.round.Answered = true
	g.attempts++
	if v.IsMatch {
		g.score++
	}
	g.lastActive = g.now()
	if g.metrics != nil {
		g.metrics.RecordVerdict(ctx, v.Tier.String(), v.IsMatch)
	}
	observe.Logger(ctx).Debug("guess verified",
		"game_id", g.id,
		"round", g.round.Number,
		"tier", v.Tier.String(),
		"match", v.IsMatch,
		"confidence", v.Confidence,
	)
	return Result{
		Verdict:  v,
		Answer:   g.round.Character.Name,
		Score:    g.score,
		Attempts: g.attempts,
	}, nil
}

// Stats returns a snapshot of the game's score board.
func (g *Game) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		ID:         g.id,
		Filter:     g.filter,
		Score:      g.score,
		Attempts:   g.attempts,
		Rounds:     g.rounds,
		CreatedAt:  g.createdAt,
		LastActive: g.lastActive,
	}
}

func (g *Game) idleSince() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastActive
}

// close cancels any draw in flight.
func (g *Game) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sampler.Reset(g.filter)
}
