package server

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/core/discovery"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/game"
	"github.com/zeusync/zombiebox/internal/core/level"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/protocol"
	"github.com/zeusync/zombiebox/internal/core/transport"
)

// keyframeEvery forces a full state frame every N state broadcasts so participants
// recover from lost unreliable frames.
const keyframeEvery = 30

// Options configure a Server beyond its configuration.
type Options struct {
	// Pilot drives the host player. Required for an offline session to make progress.
	Pilot Pilot
	// Loader builds the level. The static loader is used when nil.
	Loader level.Loader
	Rand   *rand.Rand
}

// Server hosts one session: it owns the Game, feeds it transport events between ticks
// and replicates the result to remote participants.
type Server struct {
	cfg    config.Config
	host   transport.Host
	game   *game.Game
	loader level.Loader
	events bus.EventBus
	local  *localPilot

	delta  *protocol.DeltaTracker
	frames int
	seqs   map[models.ParticipantID]uint32
	subs   []bus.Subscription

	status     *HTTPServer
	advertiser *discovery.Advertiser

	running int32 // atomic bool
	closed  int32 // atomic bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	logger log.Log
}

// starter is implemented by hosts that bind a listener.
type starter interface {
	Start(ctx context.Context) error
}

// NewServer creates a server on host. The game is created here so the server can act
// as its lifecycle replicator.
func NewServer(cfg config.Config, host transport.Host, events bus.EventBus, logger log.Log, opts Options) *Server {
	logger = log.OrNop(logger)
	if events == nil {
		events = bus.New()
	}
	s := &Server{
		cfg:    cfg,
		host:   host,
		loader: opts.Loader,
		events: events,
		delta:  protocol.NewDeltaTracker(),
		seqs:   make(map[models.ParticipantID]uint32),
		logger: logger.With(log.String("component", "server")),
	}
	if s.loader == nil {
		s.loader = level.NewStaticLoader(cfg)
	}
	if opts.Pilot != nil {
		s.local = &localPilot{pilot: opts.Pilot}
	}
	s.game = game.New(cfg, game.Options{Rand: opts.Rand, Replicator: s}, events, logger)
	s.subscribe()

	s.logger.Info("Server created",
		log.String("transport", cfg.Server.Transport),
		log.Int("max_participants", cfg.Server.MaxParticipants),
		log.Int("tick_rate", cfg.Server.TickRate))
	return s
}

// Game exposes the simulation, mainly for tests and the status endpoint.
func (s *Server) Game() *game.Game { return s.game }

// Start binds the transport, loads the level and starts the tick loop. A transport that
// cannot listen is fatal: the error is returned and the session does not start.
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	if err := s.open(ctx); err != nil {
		atomic.StoreInt32(&s.running, 0)
		return err
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)
	s.group.Go(func() error { return s.loop(ctx) })

	s.logger.Info("Server started")
	return nil
}

// open binds the transport and loads the level without starting the tick loop.
func (s *Server) open(ctx context.Context) error {
	if st, ok := s.host.(starter); ok {
		if err := st.Start(ctx); err != nil {
			s.logger.Error("Failed to create listener", log.Error(err))
			return fmt.Errorf("%w: %w", ErrListenerFailed, err)
		}
	}

	if _, err := level.LoadAndNotify(ctx, s.loader, s.game.OnWorldReady); err != nil {
		_ = s.host.Close()
		return err
	}

	if s.cfg.Server.HTTPAddr != "" {
		s.status = NewHTTPServer(s.cfg.Server.HTTPAddr, s.game.Snapshot, s.logger)
		if err := s.status.Start(ctx); err != nil {
			s.logger.Warn("Status endpoint unavailable", log.Error(err))
			s.status = nil
		}
	}
	s.advertise()
	return nil
}

// Wait blocks until the tick loop ends.
func (s *Server) Wait() error {
	if s.group == nil {
		return ErrServerNotRunning
	}
	return s.group.Wait()
}

// Stop ends the tick loop and closes the transport.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}
	s.logger.Info("Stopping server")

	s.cancel()
	err := s.group.Wait()
	if s.status != nil {
		_ = s.status.Stop(ctx)
	}
	if s.advertiser != nil {
		s.advertiser.Shutdown()
	}
	_ = s.host.Close()

	s.logger.Info("Server stopped")
	return err
}

// Close stops the server if needed and releases its subscriptions.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&s.running) == 1 {
		_ = s.Stop(context.Background())
	} else {
		_ = s.host.Close()
	}
	for _, sub := range s.subs {
		_ = s.events.Unsubscribe(sub)
	}
	s.logger.Info("Server closed")
	return nil
}

func (s *Server) loop(ctx context.Context) error {
	dt := s.cfg.TickDuration()
	ticker := time.NewTicker(dt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(dt)
		}
	}
}

// Tick drains the inbox, steps the game once and replicates. The tick loop calls it;
// tests call it directly to drive the server deterministically.
func (s *Server) Tick(dt time.Duration) *game.Snapshot {
	s.drain()
	s.drivePilot()
	snap := s.game.Step(dt)
	if snap.Tick%uint64(s.cfg.Server.SnapshotEvery) == 0 {
		s.sendState(snap)
	}
	return snap
}

func (s *Server) drain() {
	for {
		select {
		case ev := <-s.host.Events():
			s.handle(ev)
		default:
			return
		}
	}
}

func (s *Server) handle(ev transport.Event) {
	switch ev.Kind {
	case transport.Connected:
		s.welcome(ev.Participant)
		s.game.Connect(ev.Participant)
	case transport.Disconnected:
		delete(s.seqs, ev.Participant)
		s.game.Disconnect(ev.Participant)
	case transport.Received:
		s.receive(ev)
	}
}

func (s *Server) receive(ev transport.Event) {
	if !s.game.Coordinator().Connected(ev.Participant) {
		s.logger.Debug("Dropped frame from unknown participant", log.Participant(int64(ev.Participant)))
		return
	}
	msg, err := protocol.Unmarshal(ev.Channel == transport.Reliable, ev.Payload)
	if err != nil {
		s.logger.Debug("Dropped malformed frame", log.Participant(int64(ev.Participant)), log.Error(err))
		return
	}
	switch m := msg.(type) {
	case *protocol.IntentUpdate:
		if prev, ok := s.seqs[ev.Participant]; ok && int32(m.Seq-prev) <= 0 {
			return
		}
		s.seqs[ev.Participant] = m.Seq
		if !s.game.ApplyIntent(ev.Participant, m.Entity, m.Intent) {
			s.logger.Debug("Dropped intent from non-writer",
				log.Participant(int64(ev.Participant)),
				log.Entity(string(m.Entity)))
		}
	case *protocol.FireRequest:
		s.game.Fire(ev.Participant, m.Slot)
	default:
		s.logger.Debug("Dropped server-only message",
			log.Participant(int64(ev.Participant)),
			log.String("kind", msg.Kind().String()))
	}
}

func (s *Server) advertise() {
	if !s.cfg.Server.Advertise || !s.host.Networked() {
		return
	}
	_, portStr, err := net.SplitHostPort(s.cfg.Server.ListenAddr)
	if err != nil {
		s.logger.Warn("Cannot advertise session", log.Error(err))
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		s.logger.Warn("Cannot advertise session", log.Error(err))
		return
	}
	name := discovery.InstanceName(hostname(), port)
	adv, err := discovery.Advertise(name, s.cfg.Server.Transport, port, nil, s.logger)
	if err != nil {
		s.logger.Warn("Cannot advertise session", log.Error(err))
		return
	}
	s.advertiser = adv
}
