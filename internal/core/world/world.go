package world

import (
	"errors"
	"sort"

	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/models"
)

var (
	ErrDuplicateName = errors.New("world: entity name already in use")
	ErrNotFound      = errors.New("world: entity not found")
)

// DespawnHook observes entities leaving the world.
type DespawnHook func(e *entity.Entity)

// World stores the live entities of one session. It is owned by the simulation tick and
// is not safe for concurrent use.
type World struct {
	entities   map[models.EntityName]*entity.Entity
	order      map[models.EntityName]uint64
	next       uint64
	deferred   []func()
	processing bool
	hooks      []DespawnHook

	Bounds   models.Rect
	Mover    Mover
	Planner  PathPlanner
	Contacts ContactDetector
}

// New creates a world with the default collaborators. World processing starts disabled.
func New(bounds models.Rect) *World {
	return &World{
		entities: make(map[models.EntityName]*entity.Entity),
		order:    make(map[models.EntityName]uint64),
		Bounds:   bounds,
		Mover:    KinematicMover{Bounds: bounds},
		Planner:  StraightPlanner{},
		Contacts: RadiusContacts{},
	}
}

// Add inserts e. Names are unique for the lifetime of the entity.
func (w *World) Add(e *entity.Entity) error {
	if _, ok := w.entities[e.Name]; ok {
		return ErrDuplicateName
	}
	w.entities[e.Name] = e
	w.order[e.Name] = w.next
	w.next++
	return nil
}

// Get returns the entity called name.
func (w *World) Get(name models.EntityName) (*entity.Entity, bool) {
	e, ok := w.entities[name]
	return e, ok
}

// Remove deletes name immediately and runs the despawn hooks.
func (w *World) Remove(name models.EntityName) (*entity.Entity, error) {
	e, ok := w.entities[name]
	if !ok {
		return nil, ErrNotFound
	}
	delete(w.entities, name)
	delete(w.order, name)
	for _, h := range w.hooks {
		h(e)
	}
	return e, nil
}

// Destroy removes name at the next Flush. Destroying an entity twice, or one that is
// already gone at flush time, is a no-op.
func (w *World) Destroy(name models.EntityName) {
	w.Defer(func() {
		_, _ = w.Remove(name)
	})
}

// OnDespawn registers a hook run for every removed entity.
func (w *World) OnDespawn(h DespawnHook) {
	w.hooks = append(w.hooks, h)
}

// Entities returns the entities of kind in insertion order. Kind 0 selects all.
func (w *World) Entities(kind models.Kind) []*entity.Entity {
	out := make([]*entity.Entity, 0, len(w.entities))
	for _, e := range w.entities {
		if kind == 0 || e.Kind == kind {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return w.order[out[i].Name] < w.order[out[j].Name] })
	return out
}

// OwnedBy returns every entity owned by p in insertion order.
func (w *World) OwnedBy(p models.ParticipantID) []*entity.Entity {
	var out []*entity.Entity
	for _, e := range w.Entities(0) {
		if e.Owner == p {
			out = append(out, e)
		}
	}
	return out
}

func (w *World) Len() int { return len(w.entities) }

// Defer queues fn to run at the end of the tick.
func (w *World) Defer(fn func()) {
	w.deferred = append(w.deferred, fn)
}

// Flush runs queued side effects in order. Effects queued while flushing run in the
// same flush.
func (w *World) Flush() int {
	n := 0
	for len(w.deferred) > 0 {
		queue := w.deferred
		w.deferred = nil
		for _, fn := range queue {
			fn()
			n++
		}
	}
	return n
}

// Pending returns the number of queued side effects.
func (w *World) Pending() int { return len(w.deferred) }

// SetBounds resizes the world. A default KinematicMover follows the new bounds.
func (w *World) SetBounds(bounds models.Rect) {
	w.Bounds = bounds
	if _, ok := w.Mover.(KinematicMover); ok {
		w.Mover = KinematicMover{Bounds: bounds}
	}
}

// SetProcessing enables or disables simulation of the world.
func (w *World) SetProcessing(enabled bool) { w.processing = enabled }

func (w *World) Processing() bool { return w.processing }
