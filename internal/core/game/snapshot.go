package game

import (
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/session"
	"github.com/zeusync/zombiebox/internal/core/wave"
)

// Snapshot is an immutable copy of the session taken at the end of a tick. It is safe
// to read from any goroutine.
type Snapshot struct {
	Tick         uint64                                     `json:"tick"`
	State        session.State                              `json:"state"`
	StateName    string                                     `json:"state_name"`
	Processing   bool                                       `json:"processing"`
	Wave         wave.Status                                `json:"wave"`
	PlayersAlive int                                        `json:"players_alive"`
	Participants int                                        `json:"participants"`
	Players      map[models.ParticipantID]models.EntityName `json:"players"`
	Kills        map[models.ParticipantID]int               `json:"kills"`
	Entities     []entity.State                             `json:"entities"`
}

func (g *Game) buildSnapshot() *Snapshot {
	entities := g.world.Entities(0)
	states := make([]entity.State, 0, len(entities))
	for _, e := range entities {
		states = append(states, e.State())
	}
	state := g.machine.State()
	return &Snapshot{
		Tick:         g.tick,
		State:        state,
		StateName:    state.String(),
		Processing:   g.world.Processing(),
		Wave:         g.waves.Status(),
		PlayersAlive: g.combat.PlayersAlive(),
		Participants: g.spawn.RemoteCount(),
		Players:      g.spawn.Players(),
		Kills:        g.combat.KillTable(),
		Entities:     states,
	}
}

// Entity returns the state of name in the snapshot.
func (s *Snapshot) Entity(name models.EntityName) (entity.State, bool) {
	for _, e := range s.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return entity.State{}, false
}

// Count returns the number of entities of kind in the snapshot.
func (s *Snapshot) Count(kind models.Kind) int {
	n := 0
	for _, e := range s.Entities {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
