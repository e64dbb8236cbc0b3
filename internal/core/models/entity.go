package models

import (
	"math"
	"strconv"
)

// ParticipantID identifies a connection endpoint. ServerID always denotes the host.
type ParticipantID int64

// ServerID is the participant id of the server/host.
const ServerID ParticipantID = 1

func (p ParticipantID) String() string {
	return strconv.FormatInt(int64(p), 10)
}

// IsServer reports whether p is the host.
func (p ParticipantID) IsServer() bool {
	return p == ServerID
}

// EntityName is the network-stable, globally unique name of a replicated entity.
type EntityName string

// Kind is the category of a networked entity.
type Kind uint8

const (
	KindPlayer Kind = iota + 1
	KindEnemy
	KindBullet
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindEnemy:
		return "enemy"
	case KindBullet:
		return "bullet"
	default:
		return "unknown"
	}
}

// Facet is an independently-authored subset of an entity's state.
type Facet uint8

const (
	// FacetPhysics covers position, velocity, rotation and health.
	FacetPhysics Facet = iota + 1
	// FacetIntent covers movement vector, aim direction and action presses.
	FacetIntent
)

func (f Facet) String() string {
	switch f {
	case FacetPhysics:
		return "physics"
	case FacetIntent:
		return "intent"
	default:
		return "unknown"
	}
}

// WeaponSlot is a player's weapon.
type WeaponSlot uint8

const (
	WeaponPistol WeaponSlot = iota
	WeaponMachineGun
)

func (w WeaponSlot) String() string {
	switch w {
	case WeaponPistol:
		return "pistol"
	case WeaponMachineGun:
		return "machine_gun"
	default:
		return "unknown"
	}
}

// Next returns the slot selected by a weapon switch.
func (w WeaponSlot) Next() WeaponSlot {
	if w == WeaponPistol {
		return WeaponMachineGun
	}
	return WeaponPistol
}

// Vec2 is a 2D vector in world units.
type Vec2 struct {
	X float64 `json:"x" msgpack:"x" yaml:"x"`
	Y float64 `json:"y" msgpack:"y" yaml:"y"`
}

func (v Vec2) Add(o Vec2) Vec2         { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2         { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(s float64) Vec2    { return Vec2{v.X * s, v.Y * s} }
func (v Vec2) Len() float64            { return math.Hypot(v.X, v.Y) }
func (v Vec2) IsZero() bool            { return v.X == 0 && v.Y == 0 }
func (v Vec2) Angle() float64          { return math.Atan2(v.Y, v.X) }
func (v Vec2) Distance(o Vec2) float64 { return o.Sub(v).Len() }

// Normalized returns the unit vector of v, or the zero vector when v is zero.
func (v Vec2) Normalized() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// Rect is an axis-aligned area anchored at the origin.
type Rect struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Clamp returns p moved inside r.
func (r Rect) Clamp(p Vec2) Vec2 {
	return Vec2{X: math.Max(0, math.Min(r.Width, p.X)), Y: math.Max(0, math.Min(r.Height, p.Y))}
}

func (r Rect) Contains(p Vec2) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= r.Width && p.Y <= r.Height
}
