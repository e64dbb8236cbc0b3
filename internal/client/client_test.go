package client

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/input"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/protocol"
	"github.com/zeusync/zombiebox/internal/core/session"
	"github.com/zeusync/zombiebox/internal/core/transport"
	"github.com/zeusync/zombiebox/internal/core/transport/loopback"
	"github.com/zeusync/zombiebox/internal/server"
)

func packet(t *testing.T, msg protocol.Message) transport.Packet {
	t.Helper()
	data, err := protocol.Marshal(msg)
	require.NoError(t, err)
	return transport.Packet{Channel: transport.ChannelFor(msg.Kind().Reliable()), Payload: data}
}

func hostEvents(hub *loopback.Hub) []transport.Event {
	var out []transport.Event
	for {
		select {
		case ev := <-hub.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSendIntentNeedsWelcomeAndAuthority(t *testing.T) {
	hub := loopback.New(true, 4)
	conn, err := hub.Dial()
	require.NoError(t, err)
	c := New(conn, config.Default(), nil, log.NewNop())

	assert.ErrorIs(t, c.SendIntent(input.Intent{}), ErrNotWelcomed)

	w := welcomeFor(conn.ID())
	w.Authority = w.Authority[:3]
	c.Handle(packet(t, w))
	assert.ErrorIs(t, c.SendIntent(input.Intent{}), ErrNotWriter)
}

func TestPistolPressSendsOneFireRequest(t *testing.T) {
	hub := loopback.New(true, 4)
	conn, err := hub.Dial()
	require.NoError(t, err)
	c := New(conn, config.Default(), nil, log.NewNop())
	c.Handle(packet(t, welcomeFor(conn.ID())))
	hostEvents(hub)

	held := input.Intent{Shooting: true, Aim: models.Vec2{X: 1}}
	require.NoError(t, c.SendIntent(held))
	require.NoError(t, c.SendIntent(held))

	var intents []*protocol.IntentUpdate
	fires := 0
	for _, ev := range hostEvents(hub) {
		msg, err := protocol.Unmarshal(ev.Channel == transport.Reliable, ev.Payload)
		require.NoError(t, err)
		switch m := msg.(type) {
		case *protocol.IntentUpdate:
			intents = append(intents, m)
		case *protocol.FireRequest:
			fires++
			assert.Equal(t, models.WeaponPistol, m.Slot)
		}
	}
	require.Len(t, intents, 2)
	assert.Less(t, intents[0].Seq, intents[1].Seq)
	assert.Equal(t, entity.PlayerName(conn.ID()), intents[0].Entity)
	assert.Equal(t, 1, fires)
}

func TestDialOfflineIsRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Transport = config.TransportOffline
	_, err := Dial(t.Context(), cfg, "127.0.0.1:1", log.NewNop())
	assert.ErrorIs(t, err, ErrOffline)
}

func TestDialGivesUpAfterAttempts(t *testing.T) {
	cfg := config.Default()
	cfg.Client.DialAttempts = 2
	start := time.Now()
	_, err := Dial(t.Context(), cfg, "127.0.0.1:1", log.NewNop())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestBotJoinsServerOverLoopback(t *testing.T) {
	cfg := config.Default()
	cfg.Server.HTTPAddr = ""
	hub := loopback.New(true, 4)
	srv := server.NewServer(cfg, hub, bus.New(), log.NewNop(), server.Options{Rand: rand.New(rand.NewSource(3))})
	require.NoError(t, srv.Start(t.Context()))
	defer srv.Close()

	conn, err := hub.Dial()
	require.NoError(t, err)
	c := New(conn, cfg, nil, log.NewNop())
	done := make(chan error, 1)
	go func() { done <- c.Run(t.Context(), NewBrain(rand.New(rand.NewSource(1)))) }()

	r := c.Replica()
	require.Eventually(t, func() bool {
		if r.State() != session.Playing {
			return false
		}
		_, ok := r.Self()
		return ok && len(r.Entities()) > 2
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, r.Wave().Wave)

	require.NoError(t, c.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("client did not stop")
	}
}
