// Package client is a remote participant: it mirrors the server's session into a
// Replica, authors its own player's intent and asks the server to fire.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/input"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/protocol"
	"github.com/zeusync/zombiebox/internal/core/transport"
	"github.com/zeusync/zombiebox/internal/core/transport/quic"
	"github.com/zeusync/zombiebox/internal/core/transport/websocket"
)

var (
	ErrNotWelcomed = errors.New("client: not welcomed yet")
	ErrNotWriter   = errors.New("client: not the intent writer")
	ErrOffline     = errors.New("client: offline sessions cannot be joined")
)

// Pilot decides the intent of the client's player each intent tick.
type Pilot interface {
	Decide(self entity.State, entities []entity.State) input.Intent
}

type Client struct {
	conn    transport.Conn
	replica *Replica
	rate    int

	mu    sync.Mutex
	seq   uint32
	edges input.Snapshot

	logger log.Log
}

// New wraps an established connection.
func New(conn transport.Conn, cfg config.Config, events bus.EventBus, logger log.Log) *Client {
	logger = log.OrNop(logger)
	rate := cfg.Client.IntentRate
	if rate <= 0 {
		rate = 30
	}
	return &Client{
		conn:    conn,
		replica: NewReplica(events, logger),
		rate:    rate,
		logger:  logger.With(log.String("component", "client")),
	}
}

func (c *Client) Replica() *Replica { return c.replica }

// Dial connects to a host at addr using the configured transport, retrying with
// exponential backoff up to cfg.Client.DialAttempts times. Exhausting the attempts is
// fatal for the client.
func Dial(ctx context.Context, cfg config.Config, addr string, logger log.Log) (transport.Conn, error) {
	var dial func(context.Context) (transport.Conn, error)
	switch cfg.Server.Transport {
	case config.TransportWebSocket:
		dial = func(ctx context.Context) (transport.Conn, error) {
			return websocket.Dial(ctx, "ws://"+addr+websocket.Path, logger)
		}
	case config.TransportQUIC:
		dial = func(ctx context.Context) (transport.Conn, error) {
			return quic.Dial(ctx, addr, logger)
		}
	default:
		return nil, ErrOffline
	}

	logger = log.OrNop(logger)
	var conn transport.Conn
	attempt := 0
	op := func() error {
		attempt++
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		cn, err := dial(dctx)
		if err != nil {
			logger.Warn("Dial failed", log.String("addr", addr), log.Int("attempt", attempt), log.Error(err))
			return err
		}
		conn = cn
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(max(cfg.Client.DialAttempts-1, 0))),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, errors.Wrapf(err, "unreachable host %s after %d attempts", addr, attempt)
	}
	return conn, nil
}

// Run applies incoming messages and, when pilot is not nil, sends intents at the
// configured rate. It returns when ctx is done or the connection ends.
func (c *Client) Run(ctx context.Context, pilot Pilot) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-c.conn.Done():
				return transport.ErrClosed
			case pkt, ok := <-c.conn.Incoming():
				if !ok {
					return transport.ErrClosed
				}
				c.Handle(pkt)
			}
		}
	})
	if pilot != nil {
		g.Go(func() error {
			ticker := time.NewTicker(time.Second / time.Duration(c.rate))
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-c.conn.Done():
					return transport.ErrClosed
				case <-ticker.C:
					c.Drive(pilot)
				}
			}
		})
	}
	err := g.Wait()
	_ = c.conn.Close()
	if errors.Is(err, transport.ErrClosed) {
		c.logger.Info("Connection closed")
		return nil
	}
	return err
}

// Handle decodes and applies one packet.
func (c *Client) Handle(pkt transport.Packet) {
	msg, err := protocol.Unmarshal(pkt.Channel == transport.Reliable, pkt.Payload)
	if err != nil {
		c.logger.Debug("Dropped malformed frame", log.Error(err))
		return
	}
	c.replica.Apply(msg)
}

// Drive asks pilot for an intent and sends it.
func (c *Client) Drive(pilot Pilot) {
	self, ok := c.replica.Self()
	if !ok || self.Dead {
		return
	}
	if err := c.SendIntent(pilot.Decide(self, c.replica.Entities())); err != nil {
		c.logger.Debug("Intent not sent", log.Error(err))
	}
}

// SendIntent sends the intent facet of the client's player. A pistol press is turned
// into a fire request; the server decides whether it is honoured.
func (c *Client) SendIntent(intent input.Intent) error {
	if !c.replica.Welcomed() {
		return ErrNotWelcomed
	}
	name := entity.PlayerName(c.replica.Participant())
	if !c.replica.CanWrite(name, models.FacetIntent) {
		return ErrNotWriter
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.edges.Set(intent)
	c.edges.Advance()
	pressed := c.edges.Pressed(input.ActionShoot)
	c.mu.Unlock()

	if err := c.send(&protocol.IntentUpdate{Entity: name, Seq: seq, Intent: intent}); err != nil {
		return err
	}
	if self, ok := c.replica.Self(); ok && pressed && self.Weapon == models.WeaponPistol {
		return c.send(&protocol.FireRequest{Slot: models.WeaponPistol})
	}
	return nil
}

func (c *Client) send(msg protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.Send(transport.ChannelFor(msg.Kind().Reliable()), data)
}

func (c *Client) Close() error { return c.conn.Close() }
