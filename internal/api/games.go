package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/portraitquiz/internal/match"
	"github.com/MrWong99/portraitquiz/internal/quiz"
	"github.com/MrWong99/portraitquiz/internal/sampler"
)

type filterRequest struct {
	Filter string `json:"filter"`
}

type guessRequest struct {
	Transcript string `json:"transcript"`
}

type verifyRequest struct {
	Transcript string   `json:"transcript"`
	Target     string   `json:"target"`
	Threshold  *float64 `json:"threshold,omitempty"`
}

type createdResponse struct {
	ID     string `json:"id"`
	Filter string `json:"filter"`
}

type statsResponse struct {
	ID         string    `json:"id"`
	Filter     string    `json:"filter"`
	Score      int       `json:"score"`
	Attempts   int       `json:"attempts"`
	Rounds     int       `json:"rounds"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// portrait is what a player sees during a round. The name stays hidden
// until the guess is in.
type portrait struct {
	ID        int    `json:"id"`
	ImageURL  string `json:"image_url"`
	SourceURL string `json:"source_url,omitempty"`
}

type roundResponse struct {
	Number    int       `json:"number"`
	Character portrait  `json:"character"`
	Answered  bool      `json:"answered"`
	StartedAt time.Time `json:"started_at"`
}

type verdictResponse struct {
	IsMatch    bool    `json:"is_match"`
	Confidence float64 `json:"confidence"`
	Tier       string  `json:"tier"`
}

type resultResponse struct {
	verdictResponse
	Answer   string `json:"answer"`
	Score    int    `json:"score"`
	Attempts int    `json:"attempts"`
}

func toStats(st quiz.Stats) statsResponse {
	return statsResponse(st)
}

func toRound(r quiz.Round) roundResponse {
	return roundResponse{
		Number: r.Number,
		Character: portrait{
			ID:        r.Character.ID,
			ImageURL:  r.Character.ImageURL,
			SourceURL: r.Character.SourceURL,
		},
		Answered:  r.Answered,
		StartedAt: r.StartedAt,
	}
}

func toVerdict(v match.Verdict) verdictResponse {
	return verdictResponse{IsMatch: v.IsMatch, Confidence: v.Confidence, Tier: v.Tier.String()}
}

func toResult(res quiz.Result) resultResponse {
	return resultResponse{
		verdictResponse: toVerdict(res.Verdict),
		Answer:          res.Answer,
		Score:           res.Score,
		Attempts:        res.Attempts,
	}
}

func (s *Server) game(w http.ResponseWriter, r *http.Request) (*quiz.Game, bool) {
	g, err := s.games.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return g, true
}

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"categories": s.Categories()})
}

func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g := s.games.Create(r.Context(), req.Filter)
	writeJSON(w, http.StatusCreated, createdResponse{ID: g.ID(), Filter: req.Filter})
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	g, ok := s.game(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toStats(g.Stats()))
}

func (s *Server) deleteGame(w http.ResponseWriter, r *http.Request) {
	if err := s.games.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setFilter(w http.ResponseWriter, r *http.Request) {
	g, ok := s.game(w, r)
	if !ok {
		return
	}
	var req filterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g.SetFilter(req.Filter)
	writeJSON(w, http.StatusOK, toStats(g.Stats()))
}

func (s *Server) next(w http.ResponseWriter, r *http.Request) {
	s.draw(w, r, (*quiz.Game).Next)
}

func (s *Server) skip(w http.ResponseWriter, r *http.Request) {
	s.draw(w, r, (*quiz.Game).Skip)
}

type drawFunc func(*quiz.Game, context.Context) (quiz.Round, error)

func (s *Server) draw(w http.ResponseWriter, r *http.Request, fn drawFunc) {
	g, ok := s.game(w, r)
	if !ok {
		return
	}
	round, err := fn(g, r.Context())
	switch {
	case errors.Is(err, sampler.ErrSuperseded):
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		writeError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, toRound(round))
	}
}

func (s *Server) guess(w http.ResponseWriter, r *http.Request) {
	g, ok := s.game(w, r)
	if !ok {
		return
	}
	var req guessRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := g.Guess(r.Context(), req.Transcript)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResult(res))
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v := s.games.Verifier()
	if req.Threshold != nil {
		t := *req.Threshold
		if t <= 0 || t > 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "threshold must be in (0, 1]"})
			return
		}
		v = match.New(match.WithThreshold(t), match.WithPhonetic(v.Phonetic()))
	}
	writeJSON(w, http.StatusOK, toVerdict(v.Verify(req.Transcript, req.Target)))
}
