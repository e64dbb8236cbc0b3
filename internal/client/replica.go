package client

import (
	"sync"

	"github.com/zeusync/zombiebox/internal/core/authority"
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/protocol"
	"github.com/zeusync/zombiebox/internal/core/session"
	"github.com/zeusync/zombiebox/internal/core/wave"
)

// Replica is a participant's read-only copy of the session. It only changes through
// messages from the server; nothing here is authoritative.
type Replica struct {
	mu       sync.RWMutex
	self     models.ParticipantID
	welcomed bool
	tick     uint64
	frame    uint64

	registry *authority.Registry
	machine  *session.Machine
	entities map[models.EntityName]entity.State
	order    []models.EntityName
	wave     wave.Status
	kills    map[models.ParticipantID]int
	lobby    session.Lobby

	logger log.Log
}

// NewReplica creates an empty replica. Session transitions are published on events.
func NewReplica(events bus.EventBus, logger log.Log) *Replica {
	logger = log.OrNop(logger)
	return &Replica{
		registry: authority.NewRegistry(0, logger),
		machine:  session.NewMachine(false, nil, events, logger),
		entities: make(map[models.EntityName]entity.State),
		kills:    make(map[models.ParticipantID]int),
		logger:   logger.With(log.String("component", "replica")),
	}
}

// Apply folds one server message into the replica. Everything before the welcome is
// ignored because the welcome carries the full state.
func (r *Replica) Apply(msg protocol.Message) {
	if w, ok := msg.(*protocol.Welcome); ok {
		r.welcome(w)
		return
	}
	r.mu.Lock()
	welcomed := r.welcomed
	r.mu.Unlock()
	if !welcomed {
		return
	}

	switch m := msg.(type) {
	case *protocol.SessionState:
		r.machine.Mirror(m.State)
	default:
		r.mu.Lock()
		r.applyLocked(msg)
		r.mu.Unlock()
	}
}

func (r *Replica) welcome(w *protocol.Welcome) {
	r.mu.Lock()
	r.self = w.Participant
	r.welcomed = true
	r.tick = w.Tick
	r.frame = w.Tick
	r.registry = authority.NewRegistry(w.Participant, r.logger)
	r.registry.Mirror(w.Authority)
	r.entities = make(map[models.EntityName]entity.State, len(w.Entities))
	r.order = r.order[:0]
	for _, e := range w.Entities {
		r.upsertLocked(e)
	}
	r.wave = w.Wave
	r.kills = make(map[models.ParticipantID]int, len(w.Kills))
	for p, n := range w.Kills {
		r.kills[p] = n
	}
	r.mu.Unlock()

	r.machine.Mirror(w.State)
	r.logger.Info("Welcomed",
		log.Participant(int64(w.Participant)),
		log.Int("entities", len(w.Entities)),
		log.String("state", w.State.String()))
}

func (r *Replica) applyLocked(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Spawn:
		r.upsertLocked(m.Entity)
		r.registry.Mirror(m.Authority)
	case *protocol.Despawn:
		r.removeLocked(m.Name)
		r.registry.Revoke(m.Name)
	case *protocol.StateFrame:
		// Unreliable frames may arrive out of order.
		if m.Tick <= r.frame {
			return
		}
		r.frame = m.Tick
		r.tick = m.Tick
		for _, s := range m.Entities {
			if _, ok := r.entities[s.Name]; ok {
				r.entities[s.Name] = s
			}
		}
	case *protocol.HealthUpdate:
		if s, ok := r.entities[m.Entity]; ok {
			s.Health = m.Health
			s.Dead = m.Health <= 0
			r.entities[m.Entity] = s
		}
	case *protocol.KillsUpdate:
		r.kills[m.Player] = m.Kills
	case *protocol.WaveUpdate:
		r.wave = wave.Status{Wave: m.Wave, Live: m.Live, Phase: m.Phase}
	case *protocol.LobbyUpdate:
		r.lobby = session.Lobby{Current: m.Current, Required: m.Required}
	default:
		r.logger.Debug("Ignored message", log.String("kind", msg.Kind().String()))
	}
}

func (r *Replica) upsertLocked(s entity.State) {
	if _, ok := r.entities[s.Name]; !ok {
		r.order = append(r.order, s.Name)
	}
	r.entities[s.Name] = s
}

func (r *Replica) removeLocked(name models.EntityName) {
	if _, ok := r.entities[name]; !ok {
		return
	}
	delete(r.entities, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Replica) Welcomed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.welcomed
}

// Participant is the id assigned by the server.
func (r *Replica) Participant() models.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.self
}

func (r *Replica) Tick() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tick
}

// Self returns the participant's own player.
func (r *Replica) Self() (entity.State, bool) {
	return r.Entity(entity.PlayerName(r.Participant()))
}

func (r *Replica) Entity(name models.EntityName) (entity.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.entities[name]
	return s, ok
}

// Entities returns the replicated entities in spawn order.
func (r *Replica) Entities() []entity.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.State, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.entities[n])
	}
	return out
}

// CanWrite reports whether this participant authors facet of name.
func (r *Replica) CanWrite(name models.EntityName, facet models.Facet) bool {
	r.mu.RLock()
	reg := r.registry
	r.mu.RUnlock()
	return reg.IsLocalWriter(authority.Key{Entity: name, Facet: facet})
}

func (r *Replica) State() session.State { return r.machine.State() }

func (r *Replica) Wave() wave.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.wave
}

func (r *Replica) Kills(p models.ParticipantID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kills[p]
}

func (r *Replica) Lobby() session.Lobby {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lobby
}
