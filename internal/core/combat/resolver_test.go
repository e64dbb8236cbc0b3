package combat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/world"
)

type fakeWaves struct{ died []models.EntityName }

func (f *fakeWaves) OnEnemyDied(name models.EntityName) bool {
	f.died = append(f.died, name)
	return true
}

type fakeDriver struct {
	playing bool
	ended   int
}

func (f *fakeDriver) Playing() bool { return f.playing }
func (f *fakeDriver) EndSession()   { f.ended++; f.playing = false }

type fixture struct {
	world    *world.World
	waves    *fakeWaves
	driver   *fakeDriver
	resolver *Resolver
	tpl      entity.Templates
}

func newFixture(t *testing.T, b bus.EventBus) *fixture {
	t.Helper()
	cfg := config.Default()
	f := &fixture{
		world:  world.New(models.Rect{Width: 1000, Height: 1000}),
		waves:  &fakeWaves{},
		driver: &fakeDriver{playing: true},
		tpl:    entity.TemplatesFromConfig(cfg),
	}
	if b == nil {
		b = bus.New()
	}
	f.resolver = New(true, f.world, f.waves, f.driver, cfg.Enemy.ContactDamage, b, log.NewNop())
	return f
}

func (f *fixture) player(t *testing.T, id models.ParticipantID, at models.Vec2) *entity.Entity {
	e := f.tpl.Player.New(entity.PlayerName(id), id, at)
	require.NoError(t, f.world.Add(e))
	f.resolver.PlayerSpawned()
	return e
}

func (f *fixture) enemy(t *testing.T, name string, at models.Vec2) *entity.Entity {
	e := f.tpl.Enemy.New(models.EntityName(name), models.ServerID, at)
	require.NoError(t, f.world.Add(e))
	return e
}

func (f *fixture) bullet(t *testing.T, name string, owner models.ParticipantID, at models.Vec2) *entity.Entity {
	e := f.tpl.Bullet.New(models.EntityName(name), owner, at)
	require.NoError(t, f.world.Add(e))
	return e
}

func TestDeathHappensExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	p := f.player(t, 2, models.Vec2{})

	events := f.resolver.ApplyDamage(p, 5, Source{})
	require.Len(t, events, 2)
	assert.Equal(t, Killed, events[1].Kind)
	assert.Equal(t, 0, p.Health, "clamped at zero")

	assert.Empty(t, f.resolver.ApplyDamage(p, 1, Source{}))
	assert.Equal(t, 0, f.resolver.PlayersAlive())
	assert.Equal(t, 1, f.driver.ended)
}

func TestKillAttributedToBulletSource(t *testing.T) {
	b := bus.New()
	var kills []Kills
	_, _ = b.Subscribe(TopicKills, func(e bus.Event) error {
		kills = append(kills, e.Data().(Kills))
		return nil
	})
	f := newFixture(t, b)
	shooter := f.player(t, 2, models.Vec2{X: 500})
	bystander := f.player(t, 3, models.Vec2{X: 101})
	enemy := f.enemy(t, "Enemy_a", models.Vec2{X: 100})
	bullet := f.bullet(t, "Bullet_2_1_0", 2, models.Vec2{X: 100})

	f.resolver.Resolve(f.world.Contacts.Detect([]*entity.Entity{enemy, bullet}))

	assert.True(t, enemy.Dead)
	assert.Equal(t, 1, f.resolver.Kills(2))
	assert.Equal(t, 0, f.resolver.Kills(3))
	assert.Equal(t, 1, shooter.Player.Kills)
	assert.Equal(t, 0, bystander.Player.Kills)
	assert.Equal(t, []Kills{{Player: 2, Kills: 1}}, kills)
	assert.Equal(t, []models.EntityName{"Enemy_a"}, f.waves.died)

	f.world.Flush()
	_, ok := f.world.Get("Enemy_a")
	assert.False(t, ok)
	_, ok = f.world.Get("Bullet_2_1_0")
	assert.False(t, ok)
}

func TestBulletConsumedByFirstEnemy(t *testing.T) {
	f := newFixture(t, nil)
	e1 := f.enemy(t, "Enemy_a", models.Vec2{X: 100})
	e2 := f.enemy(t, "Enemy_b", models.Vec2{X: 101})
	b := f.bullet(t, "Bullet_2_1_0", 2, models.Vec2{X: 100})

	f.resolver.Resolve(f.world.Contacts.Detect([]*entity.Entity{e1, e2, b}))

	assert.True(t, b.Bullet.Consumed)
	assert.True(t, e1.Dead)
	assert.False(t, e2.Dead)
	assert.Equal(t, 1, f.resolver.Kills(2))
}

func TestMeleeContactSelfDestructsWithoutCredit(t *testing.T) {
	f := newFixture(t, nil)
	p := f.player(t, 2, models.Vec2{X: 10})
	e := f.enemy(t, "Enemy_a", models.Vec2{X: 12})

	events := f.resolver.Resolve(f.world.Contacts.Detect(f.world.Entities(0)))
	assert.Equal(t, 2, p.Health)
	assert.True(t, e.Dead)
	assert.Equal(t, []models.EntityName{"Enemy_a"}, f.waves.died)
	assert.Empty(t, f.resolver.KillTable())

	var killed int
	for _, ev := range events {
		if ev.Kind == Killed {
			killed++
			assert.Equal(t, models.KindEnemy, ev.TargetKind)
		}
	}
	assert.Equal(t, 1, killed)
}

func TestLastPlayerDeathEndsSessionOnce(t *testing.T) {
	f := newFixture(t, nil)
	p2 := f.player(t, 2, models.Vec2{})
	p3 := f.player(t, 3, models.Vec2{})

	f.resolver.ApplyDamage(p2, 3, Source{})
	assert.Equal(t, 0, f.driver.ended)
	assert.Equal(t, 1, f.resolver.PlayersAlive())

	f.resolver.ApplyDamage(p3, 3, Source{})
	f.resolver.PlayerLost()
	assert.Equal(t, 1, f.driver.ended)
	assert.Equal(t, 0, f.resolver.PlayersAlive())
}

func TestDisconnectOfLastPlayerEndsSession(t *testing.T) {
	f := newFixture(t, nil)
	f.player(t, 2, models.Vec2{})
	f.resolver.PlayerLost()
	assert.Equal(t, 1, f.driver.ended)
}

func TestNoEndOutsidePlaying(t *testing.T) {
	f := newFixture(t, nil)
	f.driver.playing = false
	f.player(t, 2, models.Vec2{})
	f.resolver.PlayerLost()
	assert.Equal(t, 0, f.driver.ended)
}

func TestAgeBulletsExpires(t *testing.T) {
	f := newFixture(t, nil)
	b := f.bullet(t, "Bullet_2_1_0", 2, models.Vec2{})
	f.resolver.AgeBullets(1.5)
	assert.False(t, b.Dead)
	f.resolver.AgeBullets(0.6)
	assert.True(t, b.Dead)
	f.world.Flush()
	assert.Zero(t, f.world.Len())
}

func TestClientResolverIsInert(t *testing.T) {
	w := world.New(models.Rect{})
	r := New(false, w, nil, nil, 1, nil, log.NewNop())
	e := &entity.Entity{Name: "Enemy_a", Kind: models.KindEnemy, Health: 1}
	assert.Nil(t, r.ApplyDamage(e, 1, Source{}))
	assert.Equal(t, 1, e.Health)
}

func TestHealthEventsPublished(t *testing.T) {
	b := bus.New()
	var got []Health
	_, _ = b.Subscribe(TopicHealth, func(e bus.Event) error {
		got = append(got, e.Data().(Health))
		return nil
	})
	f := newFixture(t, b)
	p := f.player(t, 2, models.Vec2{})
	f.resolver.ApplyDamage(p, 1, Source{})
	assert.Equal(t, []Health{{Entity: "2", Health: 2, MaxHealth: 3}}, got)
}
