package client

import (
	"math/rand"
	"time"

	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/input"
	"github.com/zeusync/zombiebox/internal/core/models"
)

// Brain is a simple headless player: it keeps its distance from the nearest enemy,
// shoots at it and switches to the machine gun when crowded.
type Brain struct {
	rng *rand.Rand
	// Range is the distance at which the brain starts shooting.
	Range float64
	// Keep is the distance below which it backs off.
	Keep float64
	// Crowd is the number of enemies in range that makes the machine gun worthwhile.
	Crowd int

	trigger  bool
	switchIn int
	wander   models.Vec2
	turnIn   int
}

// switchDelay is the number of decisions between weapon switches. The weapon reported
// back by the server lags the press.
const switchDelay = 20

func NewBrain(rng *rand.Rand) *Brain {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Brain{rng: rng, Range: 450, Keep: 160, Crowd: 3}
}

func (b *Brain) Decide(self entity.State, entities []entity.State) input.Intent {
	var intent input.Intent
	if b.switchIn > 0 {
		b.switchIn--
	}

	target, dist, inRange := b.nearestEnemy(self, entities)
	if target == nil {
		b.trigger = false
		intent.Move = b.wanderDir()
		return intent
	}

	toward := target.Position.Sub(self.Position)
	intent.Aim = toward.Normalized()
	if dist < b.Keep {
		intent.Move = toward.Scale(-1).Normalized()
	} else {
		intent.Move = models.Vec2{X: -toward.Y, Y: toward.X}.Normalized().Scale(0.5)
	}

	if dist <= b.Range {
		if self.Weapon == models.WeaponMachineGun {
			intent.Shooting = true
		} else {
			// The pistol fires on a press, so release every other decision.
			b.trigger = !b.trigger
			intent.Shooting = b.trigger
		}
	}

	wantGun := inRange >= b.Crowd
	if b.switchIn == 0 && wantGun != (self.Weapon == models.WeaponMachineGun) {
		intent.SwitchWeapon = true
		b.switchIn = switchDelay
	}
	return intent
}

func (b *Brain) nearestEnemy(self entity.State, entities []entity.State) (*entity.State, float64, int) {
	var (
		best     *entity.State
		bestDist float64
		inRange  int
	)
	for i := range entities {
		e := &entities[i]
		if e.Kind != models.KindEnemy || e.Dead {
			continue
		}
		d := self.Position.Distance(e.Position)
		if d <= b.Range {
			inRange++
		}
		if best == nil || d < bestDist {
			best, bestDist = e, d
		}
	}
	return best, bestDist, inRange
}

func (b *Brain) wanderDir() models.Vec2 {
	if b.turnIn <= 0 || b.wander.IsZero() {
		b.wander = models.Vec2{X: b.rng.Float64()*2 - 1, Y: b.rng.Float64()*2 - 1}.Normalized()
		b.turnIn = 30 + b.rng.Intn(60)
	}
	b.turnIn--
	return b.wander
}
