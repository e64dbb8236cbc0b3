package world

import (
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/models"
)

// Mover integrates an entity's motion toward a desired direction.
type Mover interface {
	Move(e *entity.Entity, direction models.Vec2, dt float64)
}

// PathPlanner returns the next waypoint on the way from one point to another.
type PathPlanner interface {
	NextWaypoint(from, to models.Vec2) models.Vec2
}

// Contact is a pair of touching entities.
type Contact struct {
	A *entity.Entity
	B *entity.Entity
}

// ContactDetector reports touching pairs among entities.
type ContactDetector interface {
	Detect(entities []*entity.Entity) []Contact
}

// KinematicMover moves at the entity speed without inertia and keeps actors inside
// Bounds. Bullets are not clamped.
type KinematicMover struct {
	Bounds models.Rect
}

func (m KinematicMover) Move(e *entity.Entity, direction models.Vec2, dt float64) {
	e.Velocity = direction.Normalized().Scale(e.Speed)
	if !direction.IsZero() {
		e.Rotation = direction.Angle()
	}
	e.Position = e.Position.Add(e.Velocity.Scale(dt))
	if e.Kind != models.KindBullet && m.Bounds.Width > 0 {
		e.Position = m.Bounds.Clamp(e.Position)
	}
}

// StraightPlanner heads directly to the target.
type StraightPlanner struct{}

func (StraightPlanner) NextWaypoint(_, to models.Vec2) models.Vec2 { return to }

// RadiusContacts treats every entity as a circle. Pairs of the same kind are ignored.
type RadiusContacts struct{}

func (RadiusContacts) Detect(entities []*entity.Entity) []Contact {
	var out []Contact
	for i, a := range entities {
		if a.Dead {
			continue
		}
		for _, b := range entities[i+1:] {
			if b.Dead || a.Kind == b.Kind {
				continue
			}
			if a.Position.Distance(b.Position) <= a.Radius+b.Radius {
				out = append(out, Contact{A: a, B: b})
			}
		}
	}
	return out
}
