package session

import (
	"sync"

	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
)

const (
	TopicStateChanged = "session.state_changed"
	TopicLobby        = "session.lobby"
)

// StateChanged is the payload of TopicStateChanged.
type StateChanged struct {
	From State
	To   State
}

// Lobby is the payload of TopicLobby.
type Lobby struct {
	Current  int
	Required int
}

// Participants reports how many remote participants are connected.
type Participants interface {
	RemoteCount() int
}

// ParticipantsFunc adapts a function to Participants.
type ParticipantsFunc func() int

func (f ParticipantsFunc) RemoteCount() int { return f() }

// Machine owns the session state. Only the server decides transitions; clients mirror
// replicated values.
type Machine struct {
	mu           sync.RWMutex
	state        State
	server       bool
	participants Participants
	events       bus.EventBus
	logger       log.Log
}

// NewMachine creates a machine in WaitingToStart. participants may be nil for a local
// session.
func NewMachine(server bool, participants Participants, events bus.EventBus, logger log.Log) *Machine {
	return &Machine{
		state:        WaitingToStart,
		server:       server,
		participants: participants,
		events:       events,
		logger:       log.OrNop(logger).With(log.String("component", "session")),
	}
}

func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetState requests a transition. Off the server it is a silent no-op.
func (m *Machine) SetState(to State) Transition {
	m.mu.Lock()
	from := m.state
	t := Transition{From: from, To: to}

	switch {
	case !m.server:
		m.mu.Unlock()
		return t
	case from == to:
		m.mu.Unlock()
		t.Accepted = true
		return t
	case to == Paused && m.remoteCount() > 0:
		t.Err = ErrPauseNetworked
	case !CanTransition(from, to):
		t.Err = ErrInvalidTransition
	}
	if t.Err != nil {
		m.mu.Unlock()
		m.logger.Warn("Rejected session transition",
			log.String("from", from.String()),
			log.String("to", to.String()),
			log.Error(t.Err))
		return t
	}

	m.state = to
	m.mu.Unlock()

	t.Accepted = true
	t.Effect = EffectOf(to)
	m.logger.Info("Session state changed",
		log.String("from", from.String()),
		log.String("to", to.String()))
	m.publish(TopicStateChanged, StateChanged{From: from, To: to})
	return t
}

// Mirror applies a state replicated from the server and returns the entry effect to
// run. It never re-validates the edge.
func (m *Machine) Mirror(to State) Transition {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()

	t := Transition{From: from, To: to, Accepted: true}
	if from == to {
		return t
	}
	t.Effect = EffectOf(to)
	m.publish(TopicStateChanged, StateChanged{From: from, To: to})
	return t
}

// PublishLobby reports lobby progress while waiting for participants.
func (m *Machine) PublishLobby(current, required int) {
	m.publish(TopicLobby, Lobby{Current: current, Required: required})
}

func (m *Machine) remoteCount() int {
	if m.participants == nil {
		return 0
	}
	return m.participants.RemoteCount()
}

func (m *Machine) publish(topic string, data any) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(bus.NewEvent(topic, "session", data)); err != nil {
		m.logger.Warn("Session observer failed", log.String("topic", topic), log.Error(err))
	}
}
