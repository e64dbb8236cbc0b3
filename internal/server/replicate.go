package server

import (
	"os"

	"github.com/zeusync/zombiebox/internal/core/authority"
	"github.com/zeusync/zombiebox/internal/core/combat"
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/game"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/protocol"
	"github.com/zeusync/zombiebox/internal/core/session"
	"github.com/zeusync/zombiebox/internal/core/transport"
	"github.com/zeusync/zombiebox/internal/core/wave"
)

// Spawned broadcasts a new entity and its authority assignments.
func (s *Server) Spawned(e *entity.Entity, assignments []authority.Assignment) {
	s.broadcast(&protocol.Spawn{Entity: e.State(), Authority: assignments})
}

func (s *Server) Despawned(name models.EntityName) {
	s.broadcast(&protocol.Despawn{Name: name})
}

// welcome sends the live state to a participant that just connected. It is built from
// the world rather than the last snapshot so it reflects everything broadcast so far.
func (s *Server) welcome(p models.ParticipantID) {
	entities := s.game.World().Entities(0)
	states := make([]entity.State, 0, len(entities))
	for _, e := range entities {
		states = append(states, e.State())
	}
	s.send(p, &protocol.Welcome{
		Participant: p,
		Tick:        s.game.Tick(),
		State:       s.game.Machine().State(),
		Wave:        s.game.Waves().Status(),
		Entities:    states,
		Authority:   s.game.Registry().Snapshot(),
		Kills:       s.game.Combat().KillTable(),
	})
}

func (s *Server) sendState(snap *game.Snapshot) {
	if s.host.RemoteCount() == 0 {
		return
	}
	s.frames++
	if s.frames%keyframeEvery == 0 {
		s.delta.Reset()
	}
	changed := s.delta.Changed(snap.Entities)
	if len(changed) == 0 {
		return
	}
	s.broadcast(&protocol.StateFrame{Tick: snap.Tick, Entities: changed})
}

// subscribe forwards observer events that remote participants must mirror.
func (s *Server) subscribe() {
	on := func(topic string, fn func(data any) protocol.Message) {
		sub, err := s.events.Subscribe(topic, func(e bus.Event) error {
			if msg := fn(e.Data()); msg != nil {
				s.broadcast(msg)
			}
			return nil
		})
		if err != nil {
			s.logger.Warn("Subscribe failed", log.String("topic", topic), log.Error(err))
			return
		}
		s.subs = append(s.subs, sub)
	}

	on(session.TopicStateChanged, func(data any) protocol.Message {
		if c, ok := data.(session.StateChanged); ok {
			return &protocol.SessionState{State: c.To}
		}
		return nil
	})
	on(session.TopicLobby, func(data any) protocol.Message {
		if l, ok := data.(session.Lobby); ok {
			return &protocol.LobbyUpdate{Current: l.Current, Required: l.Required}
		}
		return nil
	})
	waveUpdate := func(any) protocol.Message {
		st := s.game.Waves().Status()
		return &protocol.WaveUpdate{Wave: st.Wave, Live: st.Live, Phase: st.Phase}
	}
	on(wave.TopicChanged, waveUpdate)
	on(wave.TopicPhase, waveUpdate)
	on(combat.TopicHealth, func(data any) protocol.Message {
		if h, ok := data.(combat.Health); ok {
			return &protocol.HealthUpdate{Entity: h.Entity, Health: h.Health, MaxHealth: h.MaxHealth}
		}
		return nil
	})
	on(combat.TopicKills, func(data any) protocol.Message {
		if k, ok := data.(combat.Kills); ok {
			return &protocol.KillsUpdate{Player: k.Player, Kills: k.Kills}
		}
		return nil
	})
}

func (s *Server) send(to models.ParticipantID, msg protocol.Message) {
	data, err := protocol.Marshal(msg)
	if err != nil {
		s.logger.Error("Encode failed", log.String("kind", msg.Kind().String()), log.Error(err))
		return
	}
	if err := s.host.Send(to, transport.ChannelFor(msg.Kind().Reliable()), data); err != nil {
		s.logger.Debug("Send failed", log.Participant(int64(to)), log.Error(err))
	}
}

func (s *Server) broadcast(msg protocol.Message) {
	if s.host == nil || s.host.RemoteCount() == 0 {
		return
	}
	data, err := protocol.Marshal(msg)
	if err != nil {
		s.logger.Error("Encode failed", log.String("kind", msg.Kind().String()), log.Error(err))
		return
	}
	if err := s.host.Broadcast(transport.ChannelFor(msg.Kind().Reliable()), data); err != nil {
		s.logger.Debug("Broadcast incomplete", log.String("kind", msg.Kind().String()), log.Error(err))
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "host"
	}
	return h
}
