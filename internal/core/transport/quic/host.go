// Package quic carries the session transport over quic-go: one bidirectional stream per
// participant for the reliable channel and datagrams for the unreliable one.
package quic

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/transport"
)

const handshakeTimeout = 10 * time.Second

var _ transport.Host = (*Host)(nil)

type Host struct {
	addr   string
	tls    *tls.Config
	peers  *transport.Peers
	inbox  *transport.Inbox
	ids    transport.IDAllocator
	logger log.Log

	mu       sync.Mutex
	listener *quic.Listener
	cancel   context.CancelFunc
	closed   bool
	wg       sync.WaitGroup
}

func NewHost(addr string, capacity int, tlsConf *tls.Config, logger log.Log) *Host {
	return &Host{
		addr:   addr,
		tls:    tlsConf,
		peers:  transport.NewPeers(capacity),
		inbox:  transport.NewInbox(transport.DefaultInboxSize),
		logger: log.OrNop(logger).With(log.String("component", "transport.quic")),
	}
}

// Start binds the UDP listener and accepts participants in the background.
func (h *Host) Start(ctx context.Context) error {
	ln, err := quic.ListenAddr(h.addr, h.tls, quicConfig())
	if err != nil {
		return errors.Wrapf(err, "quic listen %s", h.addr)
	}
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.listener = ln
	h.cancel = cancel
	h.mu.Unlock()

	h.logger.Info("listening", log.String("addr", ln.Addr().String()))
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.acceptLoop(ctx, ln)
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
	ln, cancel := h.listener, h.cancel
	h.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
	}
	if ln != nil {
		err = ln.Close()
	}
	h.peers.CloseAll()
	h.wg.Wait()
	h.inbox.Close()
	return err
}

func (h *Host) acceptLoop(ctx context.Context, ln *quic.Listener) {
	for {
		qc, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("accept failed", log.Error(err))
			}
			return
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.serve(ctx, qc)
		}()
	}
}

func (h *Host) serve(ctx context.Context, qc *quic.Conn) {
	if h.peers.Full() {
		_ = qc.CloseWithError(closeFull, transport.ErrFull.Error())
		return
	}
	actx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	stream, err := qc.AcceptStream(actx)
	cancel()
	if err != nil {
		h.logger.Debug("no control stream", log.Error(err))
		_ = qc.CloseWithError(closeNormal, "no control stream")
		return
	}

	id := h.ids.Next()
	c := newConn(qc, stream, h.logger.With(log.Participant(int64(id))))
	if err := h.peers.Add(id, c); err != nil {
		c.closeWith(closeFull, err.Error())
		return
	}
	h.logger.Info("participant connected", log.Participant(int64(id)), log.String("remote", qc.RemoteAddr().String()))
	h.inbox.Push(transport.Event{Kind: transport.Connected, Participant: id})

	c.readLoop(func(ch transport.Channel, payload []byte) {
		h.inbox.Push(transport.Event{Kind: transport.Received, Participant: id, Channel: ch, Payload: payload})
	})
	if h.peers.Remove(id) {
		h.logger.Info("participant disconnected", log.Participant(int64(id)))
		h.inbox.Push(transport.Event{Kind: transport.Disconnected, Participant: id})
	}
}
