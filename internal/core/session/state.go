package session

import "errors"

// State is the coarse lifecycle of a game session.
type State uint8

const (
	WaitingToStart State = iota
	Playing
	Paused
	GameOver
)

func (s State) String() string {
	switch s {
	case WaitingToStart:
		return "waiting_to_start"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case GameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidTransition = errors.New("session: invalid state transition")
	ErrPauseNetworked    = errors.New("session: cannot pause while remote participants are connected")
)

// edges lists every allowed transition. GameOver has no outgoing edge.
var edges = map[State][]State{
	WaitingToStart: {Playing, GameOver},
	Playing:        {Paused, GameOver},
	Paused:         {Playing, GameOver},
}

// CanTransition reports whether from -> to is an edge of the session graph.
func CanTransition(from, to State) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Effect is the world-processing side effect of entering a state. It is executed at
// the end of the tick, never inside the transition itself.
type Effect uint8

const (
	EffectNone Effect = iota
	EffectFreeze
	EffectResume
)

func (e Effect) String() string {
	switch e {
	case EffectFreeze:
		return "freeze"
	case EffectResume:
		return "resume"
	default:
		return "none"
	}
}

// EffectOf returns the entry effect of s.
func EffectOf(s State) Effect {
	if s == Playing {
		return EffectResume
	}
	return EffectFreeze
}

// Processor is the switch an Effect toggles.
type Processor interface {
	SetProcessing(enabled bool)
}

// Apply executes the effect against p.
func (e Effect) Apply(p Processor) {
	switch e {
	case EffectFreeze:
		p.SetProcessing(false)
	case EffectResume:
		p.SetProcessing(true)
	}
}

// Transition is the outcome of a state change request.
type Transition struct {
	From     State
	To       State
	Accepted bool
	Err      error
	Effect   Effect
}

// Changed reports whether the transition moved the machine to a new state.
func (t Transition) Changed() bool {
	return t.Accepted && t.From != t.To
}
