// Package extension serves the browser extension over a websocket. The
// extension sends transcripts and answers browser RPCs; the server runs the
// agent and pushes progress and results back.
package extension

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chris/whispr/internal/bridge"
	"github.com/chris/whispr/internal/browser"
)

const (
	maxFrameBytes     = 1 << 20
	defaultRPCTimeout = 10 * time.Second
)

// RunnerFactory builds the runner for one connection, bound to the browser
// on the other end of it.
type RunnerFactory func(b browser.Browser) bridge.Runner

type Server struct {
	sessions   *bridge.Manager
	newRunner  RunnerFactory
	logger     *slog.Logger
	rpcTimeout time.Duration
	upgrader   websocket.Upgrader

	wg sync.WaitGroup
}

func NewServer(sessions *bridge.Manager, newRunner RunnerFactory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sessions:   sessions,
		newRunner:  newRunner,
		logger:     logger,
		rpcTimeout: defaultRPCTimeout,
		upgrader: websocket.Upgrader{
			// The extension connects from a chrome-extension:// origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

// Wait blocks until every connection handler has returned.
func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wg.Add(1)
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxFrameBytes)

	// Work started on this connection outlives the HTTP request but not the
	// socket.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	c := newConn(ctx, ws, s.rpcTimeout, s.logger)
	session, err := s.sessions.Open(ctx, r.URL.Query().Get("session"), s.newRunner(c))
	if err != nil {
		s.logger.Error("opening session", "error", err)
		c.writeFrame(errorFrame("", "Error: could not open session."))
		return
	}
	c.logger = c.logger.With("session", session.ID())
	c.logger.Info("extension connected", "remote", r.RemoteAddr)

	if err := c.writeFrame(sessionFrame(session.ID())); err != nil {
		return
	}
	c.serve(session)

	cancel()
	c.close()
	c.logger.Info("extension disconnected")
}
