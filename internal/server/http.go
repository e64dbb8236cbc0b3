package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/zeusync/zombiebox/internal/core/game"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
)

// HTTPServer serves read-only status endpoints from the latest game snapshot.
type HTTPServer struct {
	addr     string
	server   *http.Server
	router   *mux.Router
	snapshot func() *game.Snapshot
	logger   log.Log
}

func NewHTTPServer(addr string, snapshot func() *game.Snapshot, logger log.Log) *HTTPServer {
	s := &HTTPServer{
		addr:     addr,
		router:   mux.NewRouter(),
		snapshot: snapshot,
		logger:   log.OrNop(logger).With(log.String("component", "http")),
	}
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	return s
}

func (s *HTTPServer) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "http listen %s", s.addr)
	}
	s.server = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	srv := s.server
	s.logger.Info("Status endpoint listening", log.String("addr", ln.Addr().String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status endpoint failed", log.Error(err))
		}
	}()
	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type health struct {
	Status string `json:"status"`
	Tick   uint64 `json:"tick"`
	State  string `json:"state"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshot()
	writeJSON(w, health{Status: "ok", Tick: snap.Tick, State: snap.StateName})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.snapshot())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
