package entity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/zeusync/zombiebox/internal/core/models"
)

// PlayerName is the entity name of a participant's player: its id in decimal.
func PlayerName(owner models.ParticipantID) models.EntityName {
	return models.EntityName(owner.String())
}

// Namer generates unique names for server-spawned entities.
type Namer struct {
	tick  uint64
	seq   uint32
	token func() string
}

func NewNamer() *Namer {
	return &Namer{token: uuid.NewString}
}

// SetTick starts a new tick; bullet sequence numbers restart from zero.
func (n *Namer) SetTick(tick uint64) {
	if tick != n.tick {
		n.tick = tick
		n.seq = 0
	}
}

// Bullet returns Bullet_<owner>_<tick>_<seq>. Several shots in the same tick get
// increasing sequence numbers.
func (n *Namer) Bullet(owner models.ParticipantID) models.EntityName {
	name := fmt.Sprintf("Bullet_%d_%d_%d", owner, n.tick, n.seq)
	n.seq++
	return models.EntityName(name)
}

// Enemy returns Enemy_<random token>.
func (n *Namer) Enemy() models.EntityName {
	return models.EntityName("Enemy_" + n.token())
}
