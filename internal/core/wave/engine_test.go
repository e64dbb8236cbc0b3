package wave

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
)

type fakeSpawner struct {
	n      int
	spawns []models.Vec2
	names  []models.EntityName
	fail   bool
}

func (f *fakeSpawner) SpawnEnemy(_ *entity.Template, at models.Vec2) (models.EntityName, error) {
	if f.fail {
		return "", fmt.Errorf("boom")
	}
	f.n++
	name := models.EntityName(fmt.Sprintf("Enemy_%d", f.n))
	f.spawns = append(f.spawns, at)
	f.names = append(f.names, name)
	return name, nil
}

var points = []models.Vec2{{X: 0}, {X: 1}, {X: 2}}

func newEngine(b bus.EventBus) (*Engine, *fakeSpawner) {
	e := New(3, 5*time.Second, rand.New(rand.NewSource(1)), b, log.NewNop())
	sp := &fakeSpawner{}
	e.Configure(points, &entity.Template{Kind: models.KindEnemy}, sp)
	return e, sp
}

func killAll(e *Engine, names []models.EntityName) {
	for _, n := range names {
		e.OnEnemyDied(n)
	}
}

func TestWaveBatchesGrowWithWaveNumber(t *testing.T) {
	e, sp := newEngine(bus.New())
	e.Start()
	assert.Equal(t, 1, e.Wave())
	assert.Equal(t, 3, e.Live())

	killAll(e, sp.names)
	assert.Equal(t, Resting, e.Phase())

	e.Tick(4 * time.Second)
	assert.Equal(t, Resting, e.Phase())
	e.Tick(time.Second)
	assert.Equal(t, 2, e.Wave())
	assert.Equal(t, Spawning, e.Phase())
	assert.Equal(t, 6, e.Live())
	assert.Len(t, sp.names, 9)
}

func TestDeathsCountedExactlyOnce(t *testing.T) {
	b := bus.New()
	var phases []Phase
	_, _ = b.Subscribe(TopicPhase, func(ev bus.Event) error {
		phases = append(phases, ev.Data().(PhaseChanged).Phase)
		return nil
	})
	e, sp := newEngine(b)
	e.Start()

	first := sp.names[0]
	assert.True(t, e.OnEnemyDied(first))
	assert.False(t, e.OnEnemyDied(first))
	assert.False(t, e.OnEnemyDied("Enemy_unknown"))
	assert.Equal(t, 2, e.Live())

	killAll(e, sp.names)
	killAll(e, sp.names)
	assert.Equal(t, 0, e.Live())
	assert.Equal(t, []Phase{Spawning, Resting}, phases, "exactly one rest scheduled")
}

func TestHaltCancelsCooldown(t *testing.T) {
	e, sp := newEngine(bus.New())
	e.Start()
	killAll(e, sp.names)
	require.Equal(t, Resting, e.Phase())

	e.Halt()
	e.Tick(time.Minute)
	assert.Equal(t, Halted, e.Phase())
	assert.Equal(t, 1, e.Wave())
	assert.Len(t, sp.names, 3)
}

func TestHaltLeavesLiveEnemiesTracked(t *testing.T) {
	e, sp := newEngine(bus.New())
	e.Start()
	e.Halt()
	assert.Equal(t, 3, e.Live())

	killAll(e, sp.names)
	assert.Equal(t, Halted, e.Phase(), "no rest while halted")

	e.Start()
	assert.Equal(t, Resting, e.Phase())
	e.Tick(5 * time.Second)
	assert.Equal(t, 2, e.Wave())
}

func TestEmptySpawnPointsAreInert(t *testing.T) {
	e := New(3, time.Second, rand.New(rand.NewSource(1)), bus.New(), log.NewNop())
	sp := &fakeSpawner{}
	e.Configure(nil, &entity.Template{}, sp)
	e.Start()
	e.Tick(time.Minute)
	assert.Equal(t, Halted, e.Phase())
	assert.Zero(t, sp.n)
	assert.True(t, e.reported)
	assert.ErrorIs(t, e.ready(), ErrNoSpawnPoints)
}

func TestMissingTemplateIsInert(t *testing.T) {
	e := New(3, time.Second, nil, nil, log.NewNop())
	e.Configure(points, nil, &fakeSpawner{})
	e.Start()
	assert.Equal(t, Halted, e.Phase())
	assert.ErrorIs(t, e.ready(), ErrNoTemplate)
}

func TestSpawnPointsChosenUniformly(t *testing.T) {
	e := New(300, time.Second, rand.New(rand.NewSource(42)), nil, log.NewNop())
	sp := &fakeSpawner{}
	e.Configure(points, &entity.Template{}, sp)
	e.Start()

	counts := make(map[float64]int)
	for _, p := range sp.spawns {
		counts[p.X]++
	}
	require.Len(t, counts, 3)
	for x, n := range counts {
		assert.InDelta(t, 100, n, 40, "point %v", x)
	}
}

func TestFailedSpawnsRestInsteadOfStalling(t *testing.T) {
	e, sp := newEngine(nil)
	sp.fail = true
	e.Start()
	assert.Equal(t, Resting, e.Phase())
	assert.Equal(t, 0, e.Live())
}

func TestChangedEventsCarryCounts(t *testing.T) {
	b := bus.New()
	var got []Changed
	_, _ = b.Subscribe(TopicChanged, func(ev bus.Event) error {
		got = append(got, ev.Data().(Changed))
		return nil
	})
	e, sp := newEngine(b)
	e.Start()
	e.OnEnemyDied(sp.names[1])
	assert.Equal(t, []Changed{{Wave: 1, Live: 3}, {Wave: 1, Live: 2}}, got)
	assert.Equal(t, Status{Wave: 1, Live: 2, Phase: Spawning}, e.Status())
}
