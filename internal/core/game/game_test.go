package game

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zombiebox/internal/core/combat"
	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/input"
	"github.com/zeusync/zombiebox/internal/core/level"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/session"
	"github.com/zeusync/zombiebox/internal/core/spawn"
	"github.com/zeusync/zombiebox/internal/core/wave"
)

const dt = time.Second / 60

func offlineConfig() config.Config {
	cfg := config.Default()
	cfg.Server.Transport = config.TransportOffline
	return cfg
}

func newGame(t *testing.T, cfg config.Config) (*Game, bus.EventBus) {
	t.Helper()
	b := bus.New()
	g := New(cfg, Options{Rand: rand.New(rand.NewSource(7))}, b, log.NewNop())
	_, err := level.LoadAndNotify(context.Background(), level.NewStaticLoader(cfg), g.OnWorldReady)
	require.NoError(t, err)
	return g, b
}

func steps(g *Game, n int) *Snapshot {
	var s *Snapshot
	for i := 0; i < n; i++ {
		s = g.Step(dt)
	}
	return s
}

func killEnemies(g *Game) {
	for _, e := range g.World().Entities(models.KindEnemy) {
		g.Combat().ApplyDamage(e, e.Health, combat.Source{})
	}
}

func TestLocalSessionLifecycle(t *testing.T) {
	g, _ := newGame(t, offlineConfig())
	assert.Equal(t, session.Playing, g.Machine().State())
	assert.False(t, g.World().Processing(), "resume effect runs at the end of the tick")

	snap := g.Step(dt)
	assert.True(t, snap.Processing)
	assert.Equal(t, 1, snap.Wave.Wave)
	assert.Equal(t, 3, snap.Count(models.KindEnemy))
	assert.Equal(t, 1, snap.Count(models.KindPlayer))
	assert.Equal(t, 1, snap.PlayersAlive)
}

func TestEnemiesChaseNearestPlayer(t *testing.T) {
	g, _ := newGame(t, offlineConfig())
	host, ok := g.Coordinator().Player(models.ServerID)
	require.True(t, ok)

	before := make(map[models.EntityName]float64)
	for _, e := range g.World().Entities(models.KindEnemy) {
		before[e.Name] = e.Position.Distance(host.Position)
	}
	steps(g, 30)
	for _, e := range g.World().Entities(models.KindEnemy) {
		assert.Less(t, e.Position.Distance(host.Position), before[e.Name])
	}
}

func TestWaveAdvancesOnceAfterCooldown(t *testing.T) {
	cfg := offlineConfig()
	cfg.Wave.Cooldown = time.Second
	g, b := newGame(t, cfg)
	var phases []wave.Phase
	_, _ = b.Subscribe(wave.TopicPhase, func(e bus.Event) error {
		phases = append(phases, e.Data().(wave.PhaseChanged).Phase)
		return nil
	})
	g.Step(dt)

	killEnemies(g)
	killEnemies(g)
	assert.Equal(t, wave.Resting, g.Waves().Phase())

	steps(g, 59)
	assert.Equal(t, 1, g.Waves().Wave())
	snap := steps(g, 2)
	assert.Equal(t, 2, snap.Wave.Wave)
	assert.Equal(t, 6, snap.Count(models.KindEnemy))
	assert.Equal(t, []wave.Phase{wave.Resting, wave.Spawning}, phases)
}

func TestLastPlayerDeathEndsSession(t *testing.T) {
	g, b := newGame(t, offlineConfig())
	var changes []session.StateChanged
	_, _ = b.Subscribe(session.TopicStateChanged, func(e bus.Event) error {
		changes = append(changes, e.Data().(session.StateChanged))
		return nil
	})
	g.Step(dt)

	host, _ := g.Coordinator().Player(models.ServerID)
	g.Combat().ApplyDamage(host, 99, combat.Source{})
	g.Combat().ApplyDamage(host, 99, combat.Source{})
	assert.Equal(t, session.GameOver, g.Machine().State())
	assert.Equal(t, wave.Halted, g.Waves().Phase())

	snap := g.Step(dt)
	assert.False(t, snap.Processing)
	assert.Equal(t, []session.StateChanged{{From: session.Playing, To: session.GameOver}}, changes)

	frozen := snap.Entities
	snap = steps(g, 120)
	assert.Equal(t, frozen, snap.Entities, "world is frozen after game over")
}

func TestPauseOnlyWhenLocal(t *testing.T) {
	g, _ := newGame(t, offlineConfig())
	g.Step(dt)
	tr := g.RequestState(session.Paused)
	require.True(t, tr.Accepted)
	snap := g.Step(dt)
	assert.False(t, snap.Processing)

	g.RequestState(session.Playing)
	assert.True(t, g.Step(dt).Processing)

	cfg := config.Default()
	cfg.Session.MinParticipants = 1
	net, _ := newGame(t, cfg)
	net.Connect(2)
	require.Equal(t, session.Playing, net.Machine().State())
	tr = net.RequestState(session.Paused)
	assert.ErrorIs(t, tr.Err, session.ErrPauseNetworked)
}

func TestMachineGunFiresAtConfiguredRate(t *testing.T) {
	g, b := newGame(t, offlineConfig())
	shots := 0
	_, _ = b.Subscribe(spawn.TopicSpawned, func(e bus.Event) error {
		if e.Data().(spawn.Lifecycle).Kind == models.KindBullet {
			shots++
		}
		return nil
	})
	g.Step(dt)

	require.True(t, g.SetLocalIntent(input.Intent{SwitchWeapon: true}))
	g.Step(dt)
	host, _ := g.Coordinator().Player(models.ServerID)
	require.Equal(t, models.WeaponMachineGun, host.Player.Weapon)

	// holding switch keeps the machine gun selected
	g.SetLocalIntent(input.Intent{SwitchWeapon: true, Shooting: true, Aim: models.Vec2{Y: -1}})
	steps(g, 60)
	assert.Equal(t, models.WeaponMachineGun, host.Player.Weapon)
	assert.Equal(t, 5, shots)
}

func TestPistolNeedsFireRequests(t *testing.T) {
	g, b := newGame(t, offlineConfig())
	shots := 0
	_, _ = b.Subscribe(spawn.TopicSpawned, func(e bus.Event) error {
		if e.Data().(spawn.Lifecycle).Kind == models.KindBullet {
			shots++
		}
		return nil
	})
	g.Step(dt)

	g.SetLocalIntent(input.Intent{Shooting: true, Aim: models.Vec2{X: 1}})
	steps(g, 30)
	assert.Zero(t, shots, "holding the trigger does not fire the pistol")

	g.Fire(models.ServerID, models.WeaponPistol)
	g.Step(dt)
	assert.Equal(t, 1, shots)

	g.Fire(models.ServerID, models.WeaponMachineGun)
	g.Step(dt)
	assert.Equal(t, 1, shots, "request for an inactive weapon is dropped")
}

func TestIntentAcceptedOnlyFromOwner(t *testing.T) {
	cfg := config.Default()
	g, _ := newGame(t, cfg)
	g.Connect(2)
	g.Connect(3)

	assert.True(t, g.ApplyIntent(2, "2", input.Intent{Move: models.Vec2{X: 1}}))
	assert.False(t, g.ApplyIntent(3, "2", input.Intent{Move: models.Vec2{X: -1}}))
	assert.False(t, g.ApplyIntent(2, "1", input.Intent{}))

	p2, _ := g.Coordinator().Player(2)
	assert.Equal(t, models.Vec2{X: 1}, p2.Player.Input.Latest().Move)
}

func TestNonFiniteIntentKeepsPositionFinite(t *testing.T) {
	g, _ := newGame(t, config.Default())
	g.Connect(2)
	p2, _ := g.Coordinator().Player(2)
	start := p2.Position

	require.True(t, g.ApplyIntent(2, "2", input.Intent{
		Move: models.Vec2{X: math.NaN(), Y: math.Inf(1)},
		Aim:  models.Vec2{X: math.Inf(-1)},
	}))
	steps(g, 2)

	assert.Equal(t, start, p2.Position)
	assert.False(t, math.IsNaN(p2.Rotation))
	_, err := json.Marshal(p2.State())
	require.NoError(t, err)
}

func TestSimulatingUnassignedEntityPanics(t *testing.T) {
	cfg := offlineConfig()
	g, _ := newGame(t, cfg)
	g.Step(dt)

	tmpl := entity.TemplatesFromConfig(cfg).Enemy
	require.NoError(t, g.World().Add(tmpl.New("Enemy_rogue", models.ServerID, models.Vec2{X: 10, Y: 10})))
	assert.Panics(t, func() { g.Step(dt) })
}

func TestSnapshotsAreImmutable(t *testing.T) {
	g, _ := newGame(t, offlineConfig())
	first := g.Step(dt)
	firstEnemies := append([]entity.State(nil), first.Entities...)
	steps(g, 10)
	assert.Equal(t, firstEnemies, first.Entities)
	assert.NotSame(t, first, g.Snapshot())
	assert.Equal(t, uint64(11), g.Snapshot().Tick)
}

func TestBulletKillCreditsShooter(t *testing.T) {
	g, _ := newGame(t, offlineConfig())
	g.Step(dt)
	host, _ := g.Coordinator().Player(models.ServerID)
	enemy := g.World().Entities(models.KindEnemy)[0]
	enemy.Position = host.Position.Add(models.Vec2{X: 60})

	g.SetLocalIntent(input.Intent{Aim: models.Vec2{X: 1}})
	g.Fire(models.ServerID, models.WeaponPistol)
	snap := steps(g, 10)

	assert.Equal(t, 1, snap.Kills[models.ServerID])
	_, ok := snap.Entity(enemy.Name)
	assert.False(t, ok)
	assert.Equal(t, 2, g.Waves().Live())
}
