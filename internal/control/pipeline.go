package control

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/parrot/internal/config"
	"github.com/MrWong99/parrot/internal/observe"
	"github.com/MrWong99/parrot/internal/pipeline"
)

// statusWriteTimeout bounds one websocket write to a slow client.
const statusWriteTimeout = 5 * time.Second

type runningResponse struct {
	Running bool `json:"running"`
}

type silenceBody struct {
	Ms int `json:"ms"`
}

// handleStart starts a run under the server's base context, not the request
// context, so the run outlives the request. Starting a running pipeline is a
// no-op.
func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.pipe.Start(s.baseCtx)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.pipe.Stop()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRunning(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, runningResponse{Running: s.pipe.Running()})
}

func (s *Server) handleGetSilence(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, silenceBody{Ms: int(s.pipe.SilenceDuration().Milliseconds())})
}

// handleSetSilence takes effect at the next poll of a running pipeline.
func (s *Server) handleSetSilence(w http.ResponseWriter, r *http.Request) {
	var body silenceBody
	if !decode(w, r, &body) {
		return
	}
	if err := config.ValidateSilenceMs(body.Ms); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.pipe.SetSilenceDuration(time.Duration(body.Ms) * time.Millisecond)
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleStatusCurrent(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pipe.Status())
}

// handleStatusStream upgrades to a websocket and sends the current status
// followed by every change until the client goes away or the server's base
// context ends. Clients that fall behind lose the oldest events.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("control: status websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := s.pipe.Subscribe(pipeline.DefaultSubscriberBuffer)
	defer cancel()

	// The client never sends anything; CloseRead handles control frames and
	// cancels ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-s.baseCtx.Done():
			stop()
		case <-ctx.Done():
		}
	}()

	send := func(ev pipeline.Event) error {
		wctx, wcancel := context.WithTimeout(ctx, statusWriteTimeout)
		defer wcancel()
		return wsjson.Write(wctx, conn, ev)
	}

	if err := send(s.pipe.Status()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := send(ev); err != nil {
				return
			}
		}
	}
}
