package entity

import (
	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/core/models"
)

// Template describes how to instantiate an entity kind.
type Template struct {
	Kind   models.Kind
	Health int
	Speed  float64
	Radius float64
	// Bullet only.
	Damage   int
	Lifetime float64
}

// Templates groups the templates used by the spawn coordinator. A nil Enemy template
// keeps the wave engine inert.
type Templates struct {
	Player *Template
	Enemy  *Template
	Bullet *Template
}

// TemplatesFromConfig builds the templates from configuration.
func TemplatesFromConfig(cfg config.Config) Templates {
	return Templates{
		Player: &Template{
			Kind:   models.KindPlayer,
			Health: cfg.Player.Health,
			Speed:  cfg.Player.Speed,
			Radius: cfg.Player.Radius,
		},
		Enemy: &Template{
			Kind:   models.KindEnemy,
			Health: cfg.Enemy.Health,
			Speed:  cfg.Enemy.Speed,
			Radius: cfg.Enemy.Radius,
			Damage: cfg.Enemy.ContactDamage,
		},
		Bullet: &Template{
			Kind:     models.KindBullet,
			Speed:    cfg.Bullet.Speed,
			Radius:   cfg.Bullet.Radius,
			Damage:   cfg.Bullet.Damage,
			Lifetime: cfg.Bullet.Lifetime.Seconds(),
		},
	}
}

// New instantiates t at position under the given owner.
func (t *Template) New(name models.EntityName, owner models.ParticipantID, at models.Vec2) *Entity {
	e := &Entity{
		Name:      name,
		Kind:      t.Kind,
		Owner:     owner,
		Position:  at,
		Speed:     t.Speed,
		Radius:    t.Radius,
		Health:    t.Health,
		MaxHealth: t.Health,
	}
	switch t.Kind {
	case models.KindPlayer:
		e.Player = &PlayerState{Weapon: models.WeaponPistol}
	case models.KindBullet:
		e.Health = 1
		e.MaxHealth = 1
		e.Bullet = &BulletState{Source: owner, Damage: t.Damage, Remaining: t.Lifetime}
	}
	return e
}
