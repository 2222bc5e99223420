// Package app wires the portraitquiz subsystems into a running server.
//
// New builds everything from a [config.Config]: telemetry, the collection
// clients behind their circuit breakers, the bundled category lists, the
// game manager and the HTTP API. Run serves until its context is cancelled
// and Shutdown drains in-flight requests and tears everything down.
//
// Tests inject a [catalog.Fetcher] with [WithFetcher] so that no request
// leaves the process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/portraitquiz/internal/api"
	"github.com/MrWong99/portraitquiz/internal/config"
	"github.com/MrWong99/portraitquiz/internal/health"
	"github.com/MrWong99/portraitquiz/internal/match"
	"github.com/MrWong99/portraitquiz/internal/observe"
	"github.com/MrWong99/portraitquiz/internal/quiz"
	"github.com/MrWong99/portraitquiz/internal/resilience"
	"github.com/MrWong99/portraitquiz/internal/sampler"
	"github.com/MrWong99/portraitquiz/pkg/catalog"
	"github.com/MrWong99/portraitquiz/pkg/catalog/bundled"
	"github.com/MrWong99/portraitquiz/pkg/catalog/disneyapi"
)

// Version is reported in telemetry. Set at build time with -ldflags.
var Version = "dev"

// App owns all subsystem lifetimes.
type App struct {
	cfg   *config.Config
	level *slog.LevelVar

	tel       *observe.Telemetry
	ownTel    bool
	metrics   *observe.Metrics
	fetcher   catalog.Fetcher
	fallback  *resilience.CatalogFallback
	overrides *bundled.Overrides
	games     *quiz.Manager
	health    *health.Handler
	api       *api.Server
	server    *http.Server
	listener  net.Listener
	watcher   *config.Watcher

	// closers run in order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithFetcher replaces the collection clients built from config. The
// circuit breakers are skipped as well.
func WithFetcher(f catalog.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithLevelVar lets config reloads change the level of the process logger.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithListener serves on l instead of listening on cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithWatcher applies every config revision w accepts. The watcher is
// polled while Run is active.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithTelemetry reuses already initialised telemetry instead of calling
// [observe.InitProvider].
func WithTelemetry(t *observe.Telemetry) Option {
	return func(a *App) { a.tel = t }
}

// New wires an App from cfg. cfg must have passed [config.Validate].
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
	}
	a.level.Set(slogLevel(cfg.Server.LogLevel))

	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	if err := a.initCatalog(); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	a.games = quiz.NewManager(a.newSampler,
		quiz.WithIdleTimeout(cfg.Quiz.IdleTimeout),
		quiz.WithVerifier(newVerifier(cfg.Match)),
		quiz.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, func(ctx context.Context) error {
		a.games.Close(ctx)
		return nil
	})

	var checkers []health.Checker
	if a.fallback != nil {
		checkers = append(checkers, health.CatalogChecker(a.fallback.Available))
	}
	a.health = health.New(checkers...)

	apiCfg := api.Config{
		Games:      a.games,
		Categories: cfg.Quiz.Categories,
		Bundled:    a.overrides.Categories(),
		Metrics:    a.metrics,
		Health:     a.health,
	}
	if cfg.Server.MetricsEnabled() {
		apiCfg.MetricsHandler = a.tel.MetricsHandler
	}
	a.api = api.New(apiCfg)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.api,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if a.ownTel {
		a.closers = append(a.closers, a.tel.Shutdown)
	}
	return a, nil
}

func (a *App) initTelemetry(ctx context.Context) error {
	if a.tel == nil {
		tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: Version})
		if err != nil {
			return err
		}
		a.tel = tel
		a.ownTel = true
	}
	m, err := observe.NewMetrics(a.tel.MeterProvider)
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

func (a *App) initCatalog() error {
	overrides, err := bundled.Load(a.cfg.Catalog.BundledFiles...)
	if err != nil {
		return err
	}
	a.overrides = overrides

	if a.fetcher != nil {
		return nil
	}

	c := a.cfg.Catalog
	client := func(baseURL string) *disneyapi.Client {
		opts := []disneyapi.Option{
			disneyapi.WithBaseURL(baseURL),
			disneyapi.WithTimeout(c.Timeout),
			disneyapi.WithRequestHook(a.metrics.RecordCatalogRequest),
		}
		if c.UserAgent != "" {
			opts = append(opts, disneyapi.WithUserAgent(c.UserAgent))
		}
		return disneyapi.New(opts...)
	}

	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  c.CircuitBreaker.MaxFailures,
			ResetTimeout: c.CircuitBreaker.ResetTimeout,
		},
	}
	a.fallback = resilience.NewCatalogFallback(client(c.BaseURL), "primary", fbCfg)
	for i, mirror := range c.Mirrors {
		a.fallback.AddFallback(fmt.Sprintf("mirror-%d", i+1), client(mirror))
	}
	a.fetcher = a.fallback
	return nil
}

// newSampler gives every game its own sampling session.
func (a *App) newSampler() *sampler.Sampler {
	c := a.cfg
	return sampler.New(a.fetcher,
		sampler.WithOverrides(a.overrides),
		sampler.WithMaxAttempts(c.Sampler.MaxAttempts),
		sampler.WithPageSizes(c.Catalog.BrowsePageSize, c.Catalog.FilteredPageSize),
		sampler.WithMetrics(a.metrics),
	)
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler { return a.api }

// Games returns the game manager.
func (a *App) Games() *quiz.Manager { return a.games }

// Run serves HTTP, sweeps idle games and polls the config watcher until ctx
// is cancelled. It returns ctx.Err() after a clean stop, or the error that
// made the server fail.
func (a *App) Run(ctx context.Context) error {
	l := a.listener
	if l == nil {
		var err error
		if l, err = net.Listen("tcp", a.cfg.Server.ListenAddr); err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.games.Run(ctx, a.cfg.Quiz.SweepInterval)
	}()
	if a.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.watcher.Run(ctx)
		}()
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.server.Serve(l) }()

	slog.Info("app running",
		"addr", l.Addr().String(),
		"categories", len(a.cfg.Quiz.Categories),
		"bundled", len(a.overrides.Categories()),
	)

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else {
			err = fmt.Errorf("app: serve: %w", err)
		}
	}
	wg.Wait()
	return err
}

// ApplyConfig applies the reloadable settings of next. It is the callback
// handed to [config.NewWatcher].
func (a *App) ApplyConfig(old, next *config.Config) {
	d := config.Diff(old, next)
	if d.LogLevelChanged {
		a.level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MatchChanged {
		a.games.SetVerifier(newVerifier(d.NewMatch))
		slog.Info("match settings changed", "threshold", d.NewMatch.Threshold, "phonetic", d.NewMatch.Phonetic)
	}
	if d.CategoriesChanged {
		a.api.SetCategories(d.NewCategories)
		slog.Info("categories changed", "count", len(d.NewCategories))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "settings", d.RestartRequired)
	}
}

// Shutdown marks the server as draining, waits for in-flight requests and
// runs the closers. Remaining closers are skipped once ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.health.SetDraining(true)

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			if ctx.Err() != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func newVerifier(mc config.MatchConfig) *match.Verifier {
	return match.New(match.WithThreshold(mc.Threshold), match.WithPhonetic(mc.Phonetic))
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}
