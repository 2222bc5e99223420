// Package api exposes portrait quiz games over HTTP: a JSON API for game
// lifecycle and guesses, a bare verification endpoint, and a websocket play
// channel on which draws run asynchronously so a newer request supersedes an
// older one.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/portraitquiz/internal/health"
	"github.com/MrWong99/portraitquiz/internal/observe"
	"github.com/MrWong99/portraitquiz/internal/quiz"
	"github.com/MrWong99/portraitquiz/internal/sampler"
	"github.com/MrWong99/portraitquiz/pkg/catalog"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Config holds the collaborators of a [Server].
type Config struct {
	// Games is required.
	Games *quiz.Manager

	// Categories is the configured category menu.
	Categories []string

	// Bundled lists categories served from pre-bundled data. They are
	// appended to the menu when not already present.
	Bundled []string

	// Metrics enables the observe middleware when non-nil.
	Metrics *observe.Metrics

	// MetricsHandler is mounted at /metrics when non-nil.
	MetricsHandler http.Handler

	// Health is mounted at /healthz and /readyz when non-nil.
	Health *health.Handler

	// OriginPatterns are extra host patterns allowed to open the websocket
	// from another origin.
	OriginPatterns []string
}

// Server serves the quiz API.
type Server struct {
	games          *quiz.Manager
	bundled        []string
	categories     atomic.Pointer[[]string]
	originPatterns []string
	router         chi.Router
}

// New builds a Server and its routes.
func New(cfg Config) *Server {
	s := &Server{
		games:          cfg.Games,
		bundled:        slices.Clone(cfg.Bundled),
		originPatterns: slices.Clone(cfg.OriginPatterns),
	}
	s.SetCategories(cfg.Categories)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(observe.Middleware(cfg.Metrics))
	}

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", s.listCategories)
		r.Post("/verify", s.verify)
		r.Route("/games", func(r chi.Router) {
			r.Post("/", s.createGame)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getGame)
				r.Delete("/", s.deleteGame)
				r.Put("/filter", s.setFilter)
				r.Post("/next", s.next)
				r.Post("/skip", s.skip)
				r.Post("/guess", s.guess)
				r.Get("/play", s.play)
			})
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetCategories replaces the configured category menu.
func (s *Server) SetCategories(categories []string) {
	c := slices.Clone(categories)
	s.categories.Store(&c)
}

// Categories returns the configured menu followed by the bundled categories
// it does not already name.
func (s *Server) Categories() []string {
	configured := *s.categories.Load()
	out := slices.Clone(configured)
	for _, b := range s.bundled {
		if !slices.Contains(out, b) {
			out = append(out, b)
		}
	}
	return out
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an error to its HTTP status and the message shown to the
// player.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, quiz.ErrGameNotFound):
		return http.StatusNotFound, quiz.ErrGameNotFound.Error()
	case errors.Is(err, sampler.ErrNoCharacters):
		return http.StatusNotFound, sampler.ErrNoCharacters.Error()
	case errors.Is(err, sampler.ErrNoValidCharacter):
		return http.StatusNotFound, sampler.ErrNoValidCharacter.Error()
	case errors.Is(err, quiz.ErrNoRound):
		return http.StatusConflict, quiz.ErrNoRound.Error()
	case errors.Is(err, quiz.ErrAlreadyAnswered):
		return http.StatusConflict, quiz.ErrAlreadyAnswered.Error()
	case errors.Is(err, catalog.ErrTransport):
		return http.StatusBadGateway, "character collection unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Warn("request failed", "path", r.URL.Path, "status", code, "err", err)
	}
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}
