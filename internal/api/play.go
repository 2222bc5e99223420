package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/portraitquiz/internal/observe"
	"github.com/MrWong99/portraitquiz/internal/sampler"
)

// Play channel message types.
const (
	msgNext   = "next"
	msgSkip   = "skip"
	msgGuess  = "guess"
	msgFilter = "filter"

	msgRound  = "round"
	msgResult = "result"
	msgError  = "error"
)

const playReadLimit = 8 << 10

// clientMessage is sent by the player.
type clientMessage struct {
	Type       string `json:"type"`
	Filter     string `json:"filter,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// serverMessage is sent to the player. Exactly one of Round, Result or
// Error is set, matching Type.
type serverMessage struct {
	Type   string          `json:"type"`
	Round  *roundResponse  `json:"round,omitempty"`
	Result *resultResponse `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Status int             `json:"status,omitempty"`
}

// play upgrades to a websocket and runs the game interactively until the
// client goes away. Draws run in the background; a draw superseded by a
// newer next, skip or filter message is dropped without a reply.
func (s *Server) play(w http.ResponseWriter, r *http.Request) {
	g, ok := s.game(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		observe.Logger(r.Context()).Warn("play: websocket accept failed", "game_id", g.ID(), "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(playReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := observe.Logger(ctx).With("game_id", g.ID())
	log.Debug("play: connected")

	var draws sync.WaitGroup
	defer draws.Wait()

	send := func(m serverMessage) {
		if err := wsjson.Write(ctx, conn, m); err != nil && ctx.Err() == nil {
			log.Debug("play: write failed", "err", err)
		}
	}

	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("play: client closed")
			default:
				if ctx.Err() == nil {
					log.Debug("play: read failed", "err", err)
				}
			}
			cancel()
			return
		}

		switch msg.Type {
		case msgNext, msgSkip:
			draw := g.Next
			if msg.Type == msgSkip {
				draw = g.Skip
			}
			draws.Add(1)
			go func() {
				defer draws.Done()
				round, err := draw(ctx)
				switch {
				case errors.Is(err, sampler.ErrSuperseded):
				case err != nil:
					if ctx.Err() == nil {
						send(errorMessage(err))
					}
				default:
					rr := toRound(round)
					send(serverMessage{Type: msgRound, Round: &rr})
				}
			}()
		case msgGuess:
			res, err := g.Guess(ctx, msg.Transcript)
			if err != nil {
				send(errorMessage(err))
				continue
			}
			rr := toResult(res)
			send(serverMessage{Type: msgResult, Result: &rr})
		case msgFilter:
			g.SetFilter(msg.Filter)
		default:
			send(serverMessage{Type: msgError, Error: "unknown message type " + strconv.Quote(msg.Type), Status: http.StatusBadRequest})
		}
	}
}

func errorMessage(err error) serverMessage {
	code, msg := statusFor(err)
	return serverMessage{Type: msgError, Error: msg, Status: code}
}
