package input

import (
	"math"

	"github.com/zeusync/zombiebox/internal/core/models"
)

// Action is a discrete button-like input.
type Action uint8

const (
	ActionShoot Action = iota + 1
	ActionSwitchWeapon
)

func (a Action) String() string {
	switch a {
	case ActionShoot:
		return "shoot"
	case ActionSwitchWeapon:
		return "switch_weapon"
	default:
		return "unknown"
	}
}

// Intent is the client-authored facet of a player: what the participant wants to do
// this tick.
type Intent struct {
	Move         models.Vec2 `json:"move" msgpack:"m"`
	Aim          models.Vec2 `json:"aim" msgpack:"a"`
	Shooting     bool        `json:"shooting" msgpack:"s"`
	SwitchWeapon bool        `json:"switch_weapon" msgpack:"w"`
}

// Has reports whether the action is held in this intent.
func (i Intent) Has(a Action) bool {
	switch a {
	case ActionShoot:
		return i.Shooting
	case ActionSwitchWeapon:
		return i.SwitchWeapon
	default:
		return false
	}
}

// Sanitized zeroes non-finite components and clamps the movement vector to unit length
// so a client cannot move faster than its configured speed.
func (i Intent) Sanitized() Intent {
	i.Move = finite(i.Move)
	i.Aim = finite(i.Aim)
	if i.Move.Len() > 1 {
		i.Move = i.Move.Normalized()
	}
	return i
}

func finite(v models.Vec2) models.Vec2 {
	if math.IsNaN(v.X) || math.IsInf(v.X, 0) {
		v.X = 0
	}
	if math.IsNaN(v.Y) || math.IsInf(v.Y, 0) {
		v.Y = 0
	}
	return v
}
