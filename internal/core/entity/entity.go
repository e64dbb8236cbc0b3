package entity

import (
	"github.com/zeusync/zombiebox/internal/core/input"
	"github.com/zeusync/zombiebox/internal/core/models"
)

// Entity is a networked object of the session: a player, an enemy or a bullet.
type Entity struct {
	Name      models.EntityName
	Kind      models.Kind
	Owner     models.ParticipantID
	Position  models.Vec2
	Velocity  models.Vec2
	Rotation  float64
	Speed     float64
	Radius    float64
	Health    int
	MaxHealth int
	Dead      bool

	Player *PlayerState
	Bullet *BulletState
}

// PlayerState is the player-only part of an entity.
type PlayerState struct {
	Input    input.Snapshot
	Weapon   models.WeaponSlot
	Cooldown float64
	Kills    int
	// Fire holds round-trip fire requests received since the last tick.
	Fire []models.WeaponSlot
}

// BulletState is the bullet-only part of an entity.
type BulletState struct {
	// Source is the player whose shot created the bullet. Kills are attributed to it.
	Source    models.ParticipantID
	Damage    int
	Remaining float64
	Consumed  bool
}

func (e *Entity) Alive() bool { return !e.Dead }

func (e *Entity) IsPlayer() bool { return e.Kind == models.KindPlayer }
func (e *Entity) IsEnemy() bool  { return e.Kind == models.KindEnemy }
func (e *Entity) IsBullet() bool { return e.Kind == models.KindBullet }

// State is the replicated view of an entity.
type State struct {
	Name     models.EntityName    `json:"name" msgpack:"n"`
	Kind     models.Kind          `json:"kind" msgpack:"k"`
	Owner    models.ParticipantID `json:"owner" msgpack:"o"`
	Position models.Vec2          `json:"position" msgpack:"p"`
	Velocity models.Vec2          `json:"velocity" msgpack:"v"`
	Rotation float64              `json:"rotation" msgpack:"r"`
	Health   int                  `json:"health" msgpack:"h"`
	Dead     bool                 `json:"dead,omitempty" msgpack:"d,omitempty"`
	Weapon   models.WeaponSlot    `json:"weapon,omitempty" msgpack:"w,omitempty"`
	Kills    int                  `json:"kills,omitempty" msgpack:"x,omitempty"`
}

// State copies the replicated fields.
func (e *Entity) State() State {
	s := State{
		Name:     e.Name,
		Kind:     e.Kind,
		Owner:    e.Owner,
		Position: e.Position,
		Velocity: e.Velocity,
		Rotation: e.Rotation,
		Health:   e.Health,
		Dead:     e.Dead,
	}
	if e.Player != nil {
		s.Weapon = e.Player.Weapon
		s.Kills = e.Player.Kills
	}
	return s
}

// ApplyState overwrites the physics facet from a replicated state. Clients call it only
// after the authority registry accepted the update.
func (e *Entity) ApplyState(s State) {
	e.Position = s.Position
	e.Velocity = s.Velocity
	e.Rotation = s.Rotation
	e.Health = s.Health
	e.Dead = s.Dead
	if e.Player != nil {
		e.Player.Weapon = s.Weapon
		e.Player.Kills = s.Kills
	}
}

// FromState builds a mirror entity on a client.
func FromState(s State) *Entity {
	e := &Entity{
		Name:     s.Name,
		Kind:     s.Kind,
		Owner:    s.Owner,
		Position: s.Position,
		Velocity: s.Velocity,
		Rotation: s.Rotation,
		Health:   s.Health,
		Dead:     s.Dead,
	}
	if s.Kind == models.KindPlayer {
		e.Player = &PlayerState{Weapon: s.Weapon, Kills: s.Kills}
	}
	return e
}
