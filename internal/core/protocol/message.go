package protocol

import (
	"github.com/zeusync/zombiebox/internal/core/authority"
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/input"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/session"
	"github.com/zeusync/zombiebox/internal/core/wave"
)

// Kind is a byte identifier for the message type.
type Kind byte

const (
	KindWelcome Kind = iota + 1
	KindSpawn
	KindDespawn
	KindSession
	KindWave
	KindHealth
	KindKills
	KindLobby
	KindState
	KindIntent
	KindFire
)

func (k Kind) String() string {
	switch k {
	case KindWelcome:
		return "welcome"
	case KindSpawn:
		return "spawn"
	case KindDespawn:
		return "despawn"
	case KindSession:
		return "session"
	case KindWave:
		return "wave"
	case KindHealth:
		return "health"
	case KindKills:
		return "kills"
	case KindLobby:
		return "lobby"
	case KindState:
		return "state"
	case KindIntent:
		return "intent"
	case KindFire:
		return "fire"
	default:
		return "unknown"
	}
}

// Reliable reports whether messages of this kind travel on the ordered channel.
// Periodic transforms and intents are superseded by the next one and may be lost.
func (k Kind) Reliable() bool {
	return k != KindState && k != KindIntent
}

// Message is the fundamental data unit exchanged over the network.
type Message interface {
	Kind() Kind
}

// Welcome is sent to a participant right after it connects. It carries the full
// replicated state so late joiners converge.
type Welcome struct {
	Participant models.ParticipantID         `json:"participant" msgpack:"p"`
	Tick        uint64                       `json:"tick" msgpack:"t"`
	State       session.State                `json:"state" msgpack:"s"`
	Wave        wave.Status                  `json:"wave" msgpack:"w"`
	Entities    []entity.State               `json:"entities" msgpack:"e"`
	Authority   []authority.Assignment       `json:"authority" msgpack:"a"`
	Kills       map[models.ParticipantID]int `json:"kills" msgpack:"k"`
}

// Spawn announces a new entity with its authority assignments.
type Spawn struct {
	Entity    entity.State           `json:"entity" msgpack:"e"`
	Authority []authority.Assignment `json:"authority" msgpack:"a"`
}

type Despawn struct {
	Name models.EntityName `json:"name" msgpack:"n"`
}

// SessionState replicates an accepted session transition.
type SessionState struct {
	State session.State `json:"state" msgpack:"s"`
}

type WaveUpdate struct {
	Wave  int        `json:"wave" msgpack:"w"`
	Live  int        `json:"live" msgpack:"l"`
	Phase wave.Phase `json:"phase" msgpack:"p"`
}

type HealthUpdate struct {
	Entity    models.EntityName `json:"entity" msgpack:"e"`
	Health    int               `json:"health" msgpack:"h"`
	MaxHealth int               `json:"max_health" msgpack:"m"`
}

type KillsUpdate struct {
	Player models.ParticipantID `json:"player" msgpack:"p"`
	Kills  int                  `json:"kills" msgpack:"k"`
}

type LobbyUpdate struct {
	Current  int `json:"current" msgpack:"c"`
	Required int `json:"required" msgpack:"r"`
}

// StateFrame carries the transforms of entities that changed since the previous frame.
type StateFrame struct {
	Tick     uint64         `json:"tick" msgpack:"t"`
	Entities []entity.State `json:"entities" msgpack:"e"`
}

// IntentUpdate carries the intent facet of the sender's player.
type IntentUpdate struct {
	Entity models.EntityName `json:"entity" msgpack:"e"`
	Seq    uint32            `json:"seq" msgpack:"q"`
	Intent input.Intent      `json:"intent" msgpack:"i"`
}

// FireRequest asks the server to fire slot. The server validates it.
type FireRequest struct {
	Slot models.WeaponSlot `json:"slot" msgpack:"s"`
}

func (*Welcome) Kind() Kind      { return KindWelcome }
func (*Spawn) Kind() Kind        { return KindSpawn }
func (*Despawn) Kind() Kind      { return KindDespawn }
func (*SessionState) Kind() Kind { return KindSession }
func (*WaveUpdate) Kind() Kind   { return KindWave }
func (*HealthUpdate) Kind() Kind { return KindHealth }
func (*KillsUpdate) Kind() Kind  { return KindKills }
func (*LobbyUpdate) Kind() Kind  { return KindLobby }
func (*StateFrame) Kind() Kind   { return KindState }
func (*IntentUpdate) Kind() Kind { return KindIntent }
func (*FireRequest) Kind() Kind  { return KindFire }

// New returns an empty message of kind k.
func New(k Kind) (Message, error) {
	switch k {
	case KindWelcome:
		return &Welcome{}, nil
	case KindSpawn:
		return &Spawn{}, nil
	case KindDespawn:
		return &Despawn{}, nil
	case KindSession:
		return &SessionState{}, nil
	case KindWave:
		return &WaveUpdate{}, nil
	case KindHealth:
		return &HealthUpdate{}, nil
	case KindKills:
		return &KillsUpdate{}, nil
	case KindLobby:
		return &LobbyUpdate{}, nil
	case KindState:
		return &StateFrame{}, nil
	case KindIntent:
		return &IntentUpdate{}, nil
	case KindFire:
		return &FireRequest{}, nil
	default:
		return nil, ErrUnknownKind
	}
}
