package spawn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zombiebox/internal/core/authority"
	"github.com/zeusync/zombiebox/internal/core/combat"
	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/input"
	"github.com/zeusync/zombiebox/internal/core/level"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/session"
	"github.com/zeusync/zombiebox/internal/core/wave"
	"github.com/zeusync/zombiebox/internal/core/world"
)

type starter struct {
	machine *session.Machine
	starts  int
}

func (s *starter) StartSession() {
	s.starts++
	s.machine.SetState(session.Playing)
}

func (s *starter) Playing() bool { return s.machine.State() == session.Playing }
func (s *starter) EndSession()   { s.machine.SetState(session.GameOver) }

type recordingReplicator struct {
	spawned   []models.EntityName
	despawned []models.EntityName
}

func (r *recordingReplicator) Spawned(e *entity.Entity, _ []authority.Assignment) {
	r.spawned = append(r.spawned, e.Name)
}

func (r *recordingReplicator) Despawned(name models.EntityName) {
	r.despawned = append(r.despawned, name)
}

type fixture struct {
	cfg      config.Config
	bus      bus.EventBus
	world    *world.World
	registry *authority.Registry
	machine  *session.Machine
	starter  *starter
	waves    *wave.Engine
	combat   *combat.Resolver
	repl     *recordingReplicator
	coord    *Coordinator
	level    *level.Level
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	cfg := config.Default()
	f := &fixture{cfg: cfg, bus: bus.New(), repl: &recordingReplicator{}}
	f.world = world.New(models.Rect{Width: cfg.Arena.Width, Height: cfg.Arena.Height})
	f.registry = authority.NewRegistry(models.ServerID, log.NewNop())
	f.machine = session.NewMachine(true, session.ParticipantsFunc(func() int { return f.coord.RemoteCount() }), f.bus, log.NewNop())
	f.starter = &starter{machine: f.machine}
	f.waves = wave.New(cfg.Wave.BaseCount, cfg.Wave.Cooldown, rand.New(rand.NewSource(1)), f.bus, log.NewNop())
	f.combat = combat.New(true, f.world, f.waves, f.starter, cfg.Enemy.ContactDamage, f.bus, log.NewNop())
	if opts.FireRate == 0 {
		opts.FireRate = cfg.Player.FireRate
	}
	f.coord = New(Deps{
		World:      f.world,
		Registry:   f.registry,
		Machine:    f.machine,
		Starter:    f.starter,
		Waves:      f.waves,
		Combat:     f.combat,
		Templates:  entity.TemplatesFromConfig(cfg),
		Replicator: f.repl,
		Events:     f.bus,
		Logger:     log.NewNop(),
	}, opts)
	l, err := level.NewStaticLoader(cfg).Load(t.Context())
	require.NoError(t, err)
	f.level = l
	return f
}

func TestLocalSessionStartsOnFirstSpawn(t *testing.T) {
	f := newFixture(t, Options{})
	f.coord.OnWorldReady(f.level)

	host, ok := f.coord.Player(models.ServerID)
	require.True(t, ok)
	assert.Equal(t, models.EntityName("1"), host.Name)
	assert.Equal(t, models.ServerID, f.registry.Require(authority.Key{Entity: "1", Facet: models.FacetPhysics}))
	assert.Equal(t, models.ServerID, f.registry.Require(authority.Key{Entity: "1", Facet: models.FacetIntent}))
	assert.Equal(t, 1, f.starter.starts)
	assert.Equal(t, session.Playing, f.machine.State())
	assert.Equal(t, 1, f.combat.PlayersAlive())
}

func TestNetworkedSessionWaitsForParticipants(t *testing.T) {
	f := newFixture(t, Options{Networked: true, MinParticipants: 2})
	var lobby []session.Lobby
	_, _ = f.bus.Subscribe(session.TopicLobby, func(e bus.Event) error {
		lobby = append(lobby, e.Data().(session.Lobby))
		return nil
	})

	f.coord.OnConnect(2)
	_, ok := f.coord.Player(2)
	assert.False(t, ok, "spawn deferred until world ready")

	f.coord.OnWorldReady(f.level)
	_, ok = f.coord.Player(2)
	assert.True(t, ok)
	assert.Equal(t, session.WaitingToStart, f.machine.State())

	f.coord.OnConnect(3)
	assert.Equal(t, session.Playing, f.machine.State())
	assert.Equal(t, 1, f.starter.starts)

	f.coord.OnConnect(4)
	assert.Equal(t, 1, f.starter.starts)
	assert.Equal(t, []session.Lobby{{Current: 1, Required: 2}, {Current: 1, Required: 2}, {Current: 2, Required: 2}}, lobby)

	assert.Equal(t, models.ParticipantID(3), f.registry.Require(authority.Key{Entity: "3", Facet: models.FacetIntent}))
	assert.Equal(t, 4, f.combat.PlayersAlive())
}

func TestDedicatedHostHasNoPlayer(t *testing.T) {
	f := newFixture(t, Options{Networked: true, Dedicated: true, MinParticipants: 1})
	f.coord.OnWorldReady(f.level)
	_, ok := f.coord.Player(models.ServerID)
	assert.False(t, ok)
	assert.Equal(t, session.WaitingToStart, f.machine.State())

	f.coord.OnConnect(2)
	assert.Equal(t, session.Playing, f.machine.State())
}

func TestDisconnectRemovesOnlyOwnedEntities(t *testing.T) {
	f := newFixture(t, Options{Networked: true, MinParticipants: 1})
	f.coord.OnWorldReady(f.level)
	f.coord.OnConnect(2)
	f.coord.OnConnect(3)

	p2, _ := f.coord.Player(2)
	p3, _ := f.coord.Player(3)
	b2, err := f.coord.SpawnBullet(p2, models.Vec2{X: 1})
	require.NoError(t, err)
	b3, err := f.coord.SpawnBullet(p3, models.Vec2{X: 1})
	require.NoError(t, err)
	enemy, err := f.coord.SpawnEnemy(entity.TemplatesFromConfig(f.cfg).Enemy, models.Vec2{})
	require.NoError(t, err)
	p2.Player.Fire = append(p2.Player.Fire, models.WeaponPistol)
	alive := f.combat.PlayersAlive()

	f.coord.OnDisconnect(2)

	_, ok := f.world.Get("2")
	assert.False(t, ok)
	_, ok = f.world.Get(b2.Name)
	assert.False(t, ok, "in-flight bullets of the participant are destroyed")
	for _, name := range []models.EntityName{"1", "3", b3.Name, enemy} {
		_, ok := f.world.Get(name)
		assert.True(t, ok, string(name))
	}
	_, err = f.registry.Writer(authority.Key{Entity: "2", Facet: models.FacetIntent})
	assert.ErrorIs(t, err, authority.ErrUnassigned)
	assert.Contains(t, f.repl.despawned, models.EntityName("2"))
	assert.Contains(t, f.repl.despawned, b2.Name)
	assert.Equal(t, alive-1, f.combat.PlayersAlive())
	assert.Equal(t, 1, f.coord.RemoteCount())

	f.coord.Fire(2, models.WeaponPistol)
	f.coord.OnDisconnect(2)
	assert.Equal(t, alive-1, f.combat.PlayersAlive())
}

func TestLastDisconnectEndsDedicatedSession(t *testing.T) {
	f := newFixture(t, Options{Networked: true, Dedicated: true, MinParticipants: 1})
	f.coord.OnWorldReady(f.level)
	f.coord.OnConnect(2)
	require.Equal(t, session.Playing, f.machine.State())

	f.coord.OnDisconnect(2)
	assert.Equal(t, session.GameOver, f.machine.State())
}

func TestFireValidation(t *testing.T) {
	f := newFixture(t, Options{})
	f.coord.OnWorldReady(f.level)
	host, _ := f.coord.Player(models.ServerID)
	host.Player.Input.Set(input.Intent{Aim: models.Vec2{Y: 1}})
	host.Player.Input.Advance()

	f.coord.Fire(models.ServerID, models.WeaponMachineGun)
	assert.Zero(t, f.coord.ProcessFire(host), "wrong slot dropped")

	f.coord.Fire(models.ServerID, models.WeaponPistol)
	assert.Equal(t, 1, f.coord.ProcessFire(host))
	bullets := f.world.Entities(models.KindBullet)
	require.Len(t, bullets, 1)
	assert.InDelta(t, 600, bullets[0].Velocity.Y, 1e-9)
	assert.Equal(t, models.ServerID, f.registry.Require(authority.Key{Entity: bullets[0].Name, Facet: models.FacetPhysics}))

	host.Player.Weapon = models.WeaponMachineGun
	f.coord.Fire(models.ServerID, models.WeaponMachineGun)
	f.coord.Fire(models.ServerID, models.WeaponMachineGun)
	assert.Equal(t, 1, f.coord.ProcessFire(host), "cooldown blocks the second shot")
	assert.InDelta(t, 0.2, host.Player.Cooldown, 1e-9)

	f.coord.Fire(9, models.WeaponPistol)
	assert.Len(t, f.world.Entities(models.KindBullet), 2)
}

func TestSameTickBulletsGetDistinctNames(t *testing.T) {
	f := newFixture(t, Options{})
	f.coord.OnWorldReady(f.level)
	host, _ := f.coord.Player(models.ServerID)
	f.coord.SetTick(10)

	a, err := f.coord.SpawnBullet(host, models.Vec2{X: 1})
	require.NoError(t, err)
	b, err := f.coord.SpawnBullet(host, models.Vec2{X: 1})
	require.NoError(t, err)
	assert.Equal(t, models.EntityName("Bullet_1_10_0"), a.Name)
	assert.Equal(t, models.EntityName("Bullet_1_10_1"), b.Name)
}

func TestWavesConfiguredOnWorldReady(t *testing.T) {
	f := newFixture(t, Options{})
	f.coord.OnWorldReady(f.level)
	f.waves.Start()
	assert.Equal(t, 3, f.waves.Live())
	assert.Len(t, f.world.Entities(models.KindEnemy), 3)
	assert.Len(t, f.repl.spawned, 4)
}

func TestSpawnEnemyBeforeWorldReady(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.coord.SpawnEnemy(entity.TemplatesFromConfig(f.cfg).Enemy, models.Vec2{})
	assert.ErrorIs(t, err, ErrWorldNotReady)
	assert.Zero(t, f.world.Len())
}

func TestConnectedAndPlayersFollowParticipants(t *testing.T) {
	f := newFixture(t, Options{Networked: true, MinParticipants: 1})
	f.coord.OnWorldReady(f.level)
	assert.True(t, f.coord.Connected(models.ServerID))
	assert.False(t, f.coord.Connected(2))

	f.coord.OnConnect(2)
	assert.True(t, f.coord.Connected(2))
	assert.Equal(t, map[models.ParticipantID]models.EntityName{1: "1", 2: "2"}, f.coord.Players())

	f.coord.OnDisconnect(2)
	assert.False(t, f.coord.Connected(2))
	assert.Equal(t, map[models.ParticipantID]models.EntityName{1: "1"}, f.coord.Players())
}

func TestPistolFiresOncePerTick(t *testing.T) {
	f := newFixture(t, Options{})
	f.coord.OnWorldReady(f.level)
	host, _ := f.coord.Player(models.ServerID)
	host.Player.Input.Set(input.Intent{Aim: models.Vec2{X: 1}})
	host.Player.Input.Advance()

	for i := 0; i < 10; i++ {
		f.coord.Fire(models.ServerID, models.WeaponPistol)
	}
	assert.Len(t, host.Player.Fire, maxPendingFire)
	assert.Equal(t, 1, f.coord.ProcessFire(host))
	assert.Len(t, f.world.Entities(models.KindBullet), 1)
	assert.Empty(t, host.Player.Fire)

	f.coord.Fire(models.ServerID, models.WeaponPistol)
	assert.Equal(t, 1, f.coord.ProcessFire(host), "next tick fires again")
}
