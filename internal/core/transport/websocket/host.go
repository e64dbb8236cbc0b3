// Package websocket carries the session transport over gorilla/websocket. Each
// websocket message is one frame prefixed with its channel byte; both channels share the
// ordered connection.
package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/transport"
)

// Path is the upgrade endpoint.
const Path = "/ws"

const (
	writeTimeout = 5 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	sendQueue    = 256
)

var _ transport.Host = (*Host)(nil)

type Host struct {
	addr     string
	router   *mux.Router
	server   *http.Server
	upgrader websocket.Upgrader
	peers    *transport.Peers
	inbox    *transport.Inbox
	ids      transport.IDAllocator
	logger   log.Log

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// NewHost creates a host that will listen on addr and admit at most capacity peers.
func NewHost(addr string, capacity int, logger log.Log) *Host {
	h := &Host{
		addr:   addr,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		peers:  transport.NewPeers(capacity),
		inbox:  transport.NewInbox(transport.DefaultInboxSize),
		logger: log.OrNop(logger).With(log.String("component", "transport.websocket")),
	}
	h.router.HandleFunc(Path, h.handleUpgrade).Methods(http.MethodGet)
	return h
}

// Handler exposes the router for embedding in another server or httptest.
func (h *Host) Handler() http.Handler { return h.router }

// Start binds the listen address and serves in the background. A bind failure is
// returned to the caller and the host stays unusable.
func (h *Host) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return errors.Wrapf(err, "websocket listen %s", h.addr)
	}
	h.mu.Lock()
	h.listener = ln
	h.server = &http.Server{Handler: h.router, ReadHeaderTimeout: 5 * time.Second}
	srv := h.server
	h.mu.Unlock()

	h.logger.Info("listening", log.String("addr", ln.Addr().String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("serve failed", log.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address, or the configured one before Start.
func (h *Host) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

func (h *Host) Events() <-chan transport.Event { return h.inbox.Events() }
func (h *Host) Networked() bool                { return true }
func (h *Host) RemoteCount() int               { return h.peers.Len() }

func (h *Host) Send(to models.ParticipantID, ch transport.Channel, payload []byte) error {
	return h.peers.Send(to, ch, payload)
}

func (h *Host) Broadcast(ch transport.Channel, payload []byte) error {
	return h.peers.Broadcast(ch, payload)
}

func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	srv := h.server
	h.mu.Unlock()

	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = srv.Shutdown(ctx)
		cancel()
	}
	h.peers.CloseAll()
	h.wg.Wait()
	h.inbox.Close()
	return err
}

func (h *Host) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Host) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if h.isClosed() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if h.peers.Full() {
		http.Error(w, transport.ErrFull.Error(), http.StatusServiceUnavailable)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", log.Error(err))
		return
	}

	id := h.ids.Next()
	c := newConn(ws, h.logger.With(log.Participant(int64(id))))
	if err := h.peers.Add(id, c); err != nil {
		c.closeWith(websocket.CloseTryAgainLater, err.Error())
		return
	}
	h.logger.Info("participant connected", log.Participant(int64(id)), log.String("remote", ws.RemoteAddr().String()))
	h.inbox.Push(transport.Event{Kind: transport.Connected, Participant: id})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.readLoop(func(ch transport.Channel, payload []byte) {
			h.inbox.Push(transport.Event{Kind: transport.Received, Participant: id, Channel: ch, Payload: payload})
		})
		if h.peers.Remove(id) {
			h.logger.Info("participant disconnected", log.Participant(int64(id)))
			h.inbox.Push(transport.Event{Kind: transport.Disconnected, Participant: id})
		}
	}()
}
