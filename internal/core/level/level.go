package level

import (
	"context"

	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/core/models"
)

// Level is a loaded arena: its bounds and the spawn containers.
type Level struct {
	Name         string
	Bounds       models.Rect
	PlayerSpawns []models.Vec2
	EnemySpawns  []models.Vec2
}

// PlayerSpawn returns the spawn point of participant p. Points are reused when there
// are more participants than points.
func (l *Level) PlayerSpawn(p models.ParticipantID) models.Vec2 {
	if len(l.PlayerSpawns) == 0 {
		return models.Vec2{X: l.Bounds.Width / 2, Y: l.Bounds.Height / 2}
	}
	idx := int(p-models.ServerID) % len(l.PlayerSpawns)
	if idx < 0 {
		idx = -idx
	}
	return l.PlayerSpawns[idx]
}

// Loader builds the world for a session.
type Loader interface {
	Load(ctx context.Context) (*Level, error)
}

// ReadyFunc is notified once the world is loaded.
type ReadyFunc func(*Level)

// StaticLoader loads the arena described in configuration.
type StaticLoader struct {
	Arena config.ArenaConfig
}

func NewStaticLoader(cfg config.Config) *StaticLoader {
	return &StaticLoader{Arena: cfg.Arena}
}

func (s *StaticLoader) Load(ctx context.Context) (*Level, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := &Level{
		Name:         "arena",
		Bounds:       models.Rect{Width: s.Arena.Width, Height: s.Arena.Height},
		PlayerSpawns: append([]models.Vec2(nil), s.Arena.PlayerSpawns...),
		EnemySpawns:  append([]models.Vec2(nil), s.Arena.EnemySpawns...),
	}
	return l, nil
}

// LoadAndNotify loads the level and calls every ready callback in order.
func LoadAndNotify(ctx context.Context, loader Loader, ready ...ReadyFunc) (*Level, error) {
	l, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, fn := range ready {
		fn(l)
	}
	return l, nil
}
