package game

import (
	"math/rand"
	"sync/atomic"
	"time"

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
	"github.com/zeusync/zombiebox/internal/core/spawn"
	"github.com/zeusync/zombiebox/internal/core/wave"
	"github.com/zeusync/zombiebox/internal/core/world"
)

// Options tune a Game beyond its configuration.
type Options struct {
	// Rand drives spawn point selection. A time-seeded source is used when nil.
	Rand *rand.Rand
	// Replicator receives spawn and despawn notifications.
	Replicator spawn.Replicator
	Mover      world.Mover
	Planner    world.PathPlanner
	Contacts   world.ContactDetector
}

// Game is the authoritative simulation of one session. Every method except Snapshot
// must be called from the goroutine that runs Step.
type Game struct {
	cfg      config.Config
	world    *world.World
	registry *authority.Registry
	machine  *session.Machine
	waves    *wave.Engine
	combat   *combat.Resolver
	spawn    *spawn.Coordinator

	tick     uint64
	snapshot atomic.Pointer[Snapshot]

	events bus.EventBus
	logger log.Log
}

// New wires the session components of a server.
func New(cfg config.Config, opts Options, events bus.EventBus, logger log.Log) *Game {
	logger = log.OrNop(logger)
	g := &Game{
		cfg:    cfg,
		world:  world.New(models.Rect{Width: cfg.Arena.Width, Height: cfg.Arena.Height}),
		events: events,
		logger: logger.With(log.String("component", "game")),
	}
	if opts.Mover != nil {
		g.world.Mover = opts.Mover
	}
	if opts.Planner != nil {
		g.world.Planner = opts.Planner
	}
	if opts.Contacts != nil {
		g.world.Contacts = opts.Contacts
	}

	g.registry = authority.NewRegistry(models.ServerID, logger)
	g.machine = session.NewMachine(true, session.ParticipantsFunc(g.remoteCount), events, logger)
	g.waves = wave.New(cfg.Wave.BaseCount, cfg.Wave.Cooldown, opts.Rand, events, logger)
	g.combat = combat.New(true, g.world, g.waves, g, cfg.Enemy.ContactDamage, events, logger)
	g.spawn = spawn.New(spawn.Deps{
		World:      g.world,
		Registry:   g.registry,
		Machine:    g.machine,
		Starter:    g,
		Waves:      g.waves,
		Combat:     g.combat,
		Templates:  entity.TemplatesFromConfig(cfg),
		Replicator: opts.Replicator,
		Events:     events,
		Logger:     logger,
	}, spawn.Options{
		Networked:       cfg.Networked(),
		Dedicated:       cfg.Session.Dedicated,
		MinParticipants: cfg.Session.MinParticipants,
		FireRate:        cfg.Player.FireRate,
	})

	g.snapshot.Store(g.buildSnapshot())
	return g
}

func (g *Game) World() *world.World             { return g.world }
func (g *Game) Registry() *authority.Registry   { return g.registry }
func (g *Game) Machine() *session.Machine       { return g.machine }
func (g *Game) Waves() *wave.Engine             { return g.waves }
func (g *Game) Combat() *combat.Resolver        { return g.combat }
func (g *Game) Coordinator() *spawn.Coordinator { return g.spawn }
func (g *Game) Tick() uint64                    { return g.tick }

// OnWorldReady is the world-loading collaborator's notification.
func (g *Game) OnWorldReady(l *level.Level) {
	g.world.SetBounds(l.Bounds)
	g.spawn.OnWorldReady(l)
}

// Connect registers a remote participant.
func (g *Game) Connect(p models.ParticipantID) { g.spawn.OnConnect(p) }

// Disconnect removes a remote participant and everything it owns.
func (g *Game) Disconnect(p models.ParticipantID) { g.spawn.OnDisconnect(p) }

// ApplyIntent stores an intent received from participant from. It is dropped unless
// from writes the intent facet of the named player.
func (g *Game) ApplyIntent(from models.ParticipantID, name models.EntityName, intent input.Intent) bool {
	if !g.registry.Accept(authority.Key{Entity: name, Facet: models.FacetIntent}, from) {
		return false
	}
	e, ok := g.world.Get(name)
	if !ok || e.Player == nil {
		return false
	}
	e.Player.Input.Set(intent)
	return true
}

// SetLocalIntent stores the host player's own intent.
func (g *Game) SetLocalIntent(intent input.Intent) bool {
	name := entity.PlayerName(models.ServerID)
	if !g.registry.IsLocalWriter(authority.Key{Entity: name, Facet: models.FacetIntent}) {
		return false
	}
	e, ok := g.world.Get(name)
	if !ok || e.Player == nil {
		return false
	}
	e.Player.Input.Set(intent)
	return true
}

// Fire queues a fire request of participant p.
func (g *Game) Fire(p models.ParticipantID, slot models.WeaponSlot) {
	g.spawn.Fire(p, slot)
}

// RequestState asks for a session transition, e.g. pause from the host UI.
func (g *Game) RequestState(to session.State) session.Transition {
	t := g.machine.SetState(to)
	g.deferEffect(t)
	return t
}

// StartSession moves the session to Playing and starts the first wave.
func (g *Game) StartSession() {
	t := g.machine.SetState(session.Playing)
	if !t.Changed() {
		return
	}
	g.deferEffect(t)
	g.waves.Start()
}

// EndSession moves the session to GameOver and halts wave spawning.
func (g *Game) EndSession() {
	t := g.machine.SetState(session.GameOver)
	if !t.Changed() {
		return
	}
	g.deferEffect(t)
	g.waves.Halt()
}

// Playing reports whether the session is in Playing.
func (g *Game) Playing() bool {
	return g.machine.State() == session.Playing
}

// Step advances the simulation by dt. All authoritative mutation happens here or in the
// inbox handlers that run between steps on the same goroutine.
func (g *Game) Step(dt time.Duration) *Snapshot {
	g.tick++
	g.spawn.SetTick(g.tick)
	secs := dt.Seconds()

	if g.world.Processing() {
		g.stepPlayers(secs)
		g.stepEnemies(secs)
		g.stepBullets(secs)
		g.combat.Resolve(g.world.Contacts.Detect(g.world.Entities(0)))
		g.combat.AgeBullets(secs)
		g.waves.Tick(dt)
	} else {
		g.spawn.DiscardRequests()
	}

	g.world.Flush()
	snap := g.buildSnapshot()
	g.snapshot.Store(snap)
	return snap
}

// Snapshot returns the latest immutable snapshot. Safe for concurrent use.
func (g *Game) Snapshot() *Snapshot {
	return g.snapshot.Load()
}

func (g *Game) stepPlayers(dt float64) {
	for _, p := range g.world.Entities(models.KindPlayer) {
		if p.Dead || p.Player == nil {
			continue
		}
		g.requirePhysics(p)
		ps := p.Player
		ps.Input.Advance()
		ps.Cooldown -= dt
		if ps.Cooldown < 0 {
			ps.Cooldown = 0
		}

		if ps.Input.Pressed(input.ActionSwitchWeapon) {
			ps.Weapon = ps.Weapon.Next()
			g.logger.Debug("Weapon switched",
				log.Entity(string(p.Name)),
				log.String("weapon", ps.Weapon.String()))
		}

		intent := ps.Input.Current()
		g.world.Mover.Move(p, intent.Move, dt)
		if !intent.Aim.IsZero() {
			p.Rotation = intent.Aim.Angle()
		}

		if ps.Weapon == models.WeaponMachineGun && ps.Input.Held(input.ActionShoot) {
			g.spawn.Shoot(p)
		}
		g.spawn.ProcessFire(p)
	}
}

func (g *Game) stepEnemies(dt float64) {
	players := g.world.Entities(models.KindPlayer)
	for _, e := range g.world.Entities(models.KindEnemy) {
		if e.Dead {
			continue
		}
		g.requirePhysics(e)
		target := nearestAlive(e.Position, players)
		if target == nil {
			e.Velocity = models.Vec2{}
			continue
		}
		waypoint := g.world.Planner.NextWaypoint(e.Position, target.Position)
		g.world.Mover.Move(e, waypoint.Sub(e.Position), dt)
	}
}

func (g *Game) stepBullets(dt float64) {
	for _, b := range g.world.Entities(models.KindBullet) {
		if b.Dead {
			continue
		}
		g.requirePhysics(b)
		g.world.Mover.Move(b, b.Velocity, dt)
		if !g.world.Bounds.Contains(b.Position) {
			b.Dead = true
			g.world.Destroy(b.Name)
		}
	}
}

// requirePhysics panics when e is about to be simulated without a physics writer.
func (g *Game) requirePhysics(e *entity.Entity) {
	g.registry.Require(authority.Key{Entity: e.Name, Facet: models.FacetPhysics})
}

func (g *Game) deferEffect(t session.Transition) {
	if !t.Changed() {
		return
	}
	g.world.Defer(func() { t.Effect.Apply(g.world) })
}

func (g *Game) remoteCount() int {
	if g.spawn == nil {
		return 0
	}
	return g.spawn.RemoteCount()
}

func nearestAlive(from models.Vec2, players []*entity.Entity) *entity.Entity {
	var best *entity.Entity
	bestDist := 0.0
	for _, p := range players {
		if p.Dead {
			continue
		}
		d := from.Distance(p.Position)
		if best == nil || d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}
