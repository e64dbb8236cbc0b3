package spawn

import (
	"errors"
	"math"
	"sort"

	"github.com/zeusync/zombiebox/internal/core/authority"
	"github.com/zeusync/zombiebox/internal/core/combat"
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/level"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/session"
	"github.com/zeusync/zombiebox/internal/core/wave"
	"github.com/zeusync/zombiebox/internal/core/world"
)

const (
	TopicSpawned   = "entity.spawned"
	TopicDespawned = "entity.despawned"
)

// maxPendingFire bounds the fire requests a player can queue between two ticks.
const maxPendingFire = 4

var (
	ErrWorldNotReady = errors.New("spawn: world not loaded")
	ErrNoTemplate    = errors.New("spawn: template not set")
)

// Lifecycle is the payload of TopicSpawned and TopicDespawned.
type Lifecycle struct {
	Name  models.EntityName
	Kind  models.Kind
	Owner models.ParticipantID
}

// Replicator forwards lifecycle changes to remote participants.
type Replicator interface {
	Spawned(e *entity.Entity, assignments []authority.Assignment)
	Despawned(name models.EntityName)
}

// Starter moves the session from waiting to playing.
type Starter interface {
	StartSession()
}

// Options are the session rules the coordinator enforces.
type Options struct {
	Networked       bool
	Dedicated       bool
	MinParticipants int
	FireRate        float64
}

// Coordinator maps participants to player entities and owns entity creation and
// destruction on the server.
type Coordinator struct {
	world      *world.World
	registry   *authority.Registry
	machine    *session.Machine
	starter    Starter
	waves      *wave.Engine
	combat     *combat.Resolver
	templates  entity.Templates
	namer      *entity.Namer
	replicator Replicator
	opts       Options

	level   *level.Level
	players map[models.ParticipantID]models.EntityName
	remotes map[models.ParticipantID]struct{}

	events bus.EventBus
	logger log.Log
}

// Deps groups the collaborators of a Coordinator.
type Deps struct {
	World      *world.World
	Registry   *authority.Registry
	Machine    *session.Machine
	Starter    Starter
	Waves      *wave.Engine
	Combat     *combat.Resolver
	Templates  entity.Templates
	Namer      *entity.Namer
	Replicator Replicator
	Events     bus.EventBus
	Logger     log.Log
}

func New(deps Deps, opts Options) *Coordinator {
	c := &Coordinator{
		world:      deps.World,
		registry:   deps.Registry,
		machine:    deps.Machine,
		starter:    deps.Starter,
		waves:      deps.Waves,
		combat:     deps.Combat,
		templates:  deps.Templates,
		namer:      deps.Namer,
		replicator: deps.Replicator,
		opts:       opts,
		players:    make(map[models.ParticipantID]models.EntityName),
		remotes:    make(map[models.ParticipantID]struct{}),
		events:     deps.Events,
		logger:     log.OrNop(deps.Logger).With(log.String("component", "spawn")),
	}
	if c.namer == nil {
		c.namer = entity.NewNamer()
	}
	if c.replicator == nil {
		c.replicator = NopReplicator{}
	}
	c.world.OnDespawn(c.despawned)
	return c
}

// OnWorldReady registers the spawn containers, spawns the host and every participant
// that connected while the world was loading, and configures the wave engine.
func (c *Coordinator) OnWorldReady(l *level.Level) {
	c.level = l
	c.waves.Configure(l.EnemySpawns, c.templates.Enemy, c)

	if !c.opts.Dedicated {
		c.spawnPlayer(models.ServerID)
	}
	for _, p := range c.remoteIDs() {
		c.spawnPlayer(p)
	}
	c.evaluateStart()
}

// OnConnect registers a remote participant. Its player spawns now if the world is ready,
// otherwise on world ready.
func (c *Coordinator) OnConnect(p models.ParticipantID) {
	if p.IsServer() {
		return
	}
	c.remotes[p] = struct{}{}
	c.logger.Info("Participant connected", log.Participant(int64(p)))
	if c.level != nil && c.machine.State() != session.GameOver {
		c.spawnPlayer(p)
	}
	c.evaluateStart()
}

// OnDisconnect revokes the participant's authority and removes every entity it owns,
// including bullets in flight. It must run outside the simulation step.
func (c *Coordinator) OnDisconnect(p models.ParticipantID) {
	if _, ok := c.remotes[p]; !ok {
		return
	}
	delete(c.remotes, p)
	revoked := c.registry.RevokeParticipant(p)
	c.logger.Info("Participant disconnected",
		log.Participant(int64(p)),
		log.Int("revoked", len(revoked)))

	for _, e := range c.world.OwnedBy(p) {
		if e.IsPlayer() && !e.Dead {
			e.Dead = true
			c.combat.PlayerLost()
		}
		_, _ = c.world.Remove(e.Name)
	}
	delete(c.players, p)
	c.evaluateStart()
}

// RemoteCount returns the number of connected remote participants.
func (c *Coordinator) RemoteCount() int { return len(c.remotes) }

// Connected reports whether p is a connected remote participant or the host.
func (c *Coordinator) Connected(p models.ParticipantID) bool {
	if p.IsServer() {
		return true
	}
	_, ok := c.remotes[p]
	return ok
}

// Player returns the live or dead player entity of p.
func (c *Coordinator) Player(p models.ParticipantID) (*entity.Entity, bool) {
	name, ok := c.players[p]
	if !ok {
		return nil, false
	}
	return c.world.Get(name)
}

// Players returns the participant to player-name mapping.
func (c *Coordinator) Players() map[models.ParticipantID]models.EntityName {
	out := make(map[models.ParticipantID]models.EntityName, len(c.players))
	for p, n := range c.players {
		out[p] = n
	}
	return out
}

// SpawnEnemy creates a server-authored enemy at a spawn point.
func (c *Coordinator) SpawnEnemy(tmpl *entity.Template, at models.Vec2) (models.EntityName, error) {
	if c.level == nil {
		return "", ErrWorldNotReady
	}
	if tmpl == nil {
		return "", ErrNoTemplate
	}
	e := tmpl.New(c.namer.Enemy(), models.ServerID, at)
	if err := c.add(e); err != nil {
		return "", err
	}
	return e.Name, nil
}

// SpawnBullet creates a server-authored bullet fired by shooter toward direction.
func (c *Coordinator) SpawnBullet(shooter *entity.Entity, direction models.Vec2) (*entity.Entity, error) {
	if c.templates.Bullet == nil {
		return nil, ErrNoTemplate
	}
	dir := direction.Normalized()
	if dir.IsZero() {
		dir = models.Vec2{X: 1}
	}
	at := shooter.Position.Add(dir.Scale(shooter.Radius))
	b := c.templates.Bullet.New(c.namer.Bullet(shooter.Owner), shooter.Owner, at)
	b.Speed = c.templates.Bullet.Speed
	b.Velocity = dir.Scale(b.Speed)
	b.Rotation = dir.Angle()
	if err := c.add(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Fire queues a round-trip fire request. It is validated on the next tick.
func (c *Coordinator) Fire(requester models.ParticipantID, slot models.WeaponSlot) {
	player, ok := c.Player(requester)
	if !ok || player.Dead || player.Player == nil {
		c.logger.Debug("Dropped fire request", log.Participant(int64(requester)))
		return
	}
	if len(player.Player.Fire) >= maxPendingFire {
		c.logger.Debug("Dropped fire request over queue limit", log.Participant(int64(requester)))
		return
	}
	player.Player.Fire = append(player.Player.Fire, slot)
}

// ProcessFire validates and executes the queued fire requests of player. A request is
// honoured only for the current weapon and only once the weapon cooldown has elapsed.
// At most one shot is fired per tick; the rest of the queue is discarded.
func (c *Coordinator) ProcessFire(player *entity.Entity) int {
	if player.Player == nil {
		return 0
	}
	queue := player.Player.Fire
	player.Player.Fire = nil

	for _, slot := range queue {
		if slot != player.Player.Weapon {
			c.logger.Debug("Dropped fire request for inactive weapon",
				log.Participant(int64(player.Owner)),
				log.String("slot", slot.String()))
			continue
		}
		if c.Shoot(player) {
			return 1
		}
	}
	return 0
}

// Shoot fires the player's current weapon toward its aim if the cooldown allows it.
func (c *Coordinator) Shoot(player *entity.Entity) bool {
	if player.Dead || player.Player == nil || player.Player.Cooldown > 0 {
		return false
	}
	aim := player.Player.Input.Current().Aim
	if aim.IsZero() {
		aim = models.Vec2{X: math.Cos(player.Rotation), Y: math.Sin(player.Rotation)}
	}
	if _, err := c.SpawnBullet(player, aim); err != nil {
		c.logger.Warn("Bullet spawn failed", log.Error(err))
		return false
	}
	player.Player.Cooldown = c.cooldown(player.Player.Weapon)
	return true
}

// DiscardRequests drops every queued fire request. Used while the world is frozen.
func (c *Coordinator) DiscardRequests() {
	for _, name := range c.players {
		if e, ok := c.world.Get(name); ok && e.Player != nil {
			e.Player.Fire = nil
		}
	}
}

// SetTick forwards the simulation tick to bullet naming.
func (c *Coordinator) SetTick(tick uint64) { c.namer.SetTick(tick) }

func (c *Coordinator) cooldown(slot models.WeaponSlot) float64 {
	if slot == models.WeaponMachineGun && c.opts.FireRate > 0 {
		return 1 / c.opts.FireRate
	}
	return 0
}

func (c *Coordinator) spawnPlayer(p models.ParticipantID) {
	if _, ok := c.players[p]; ok {
		return
	}
	if c.templates.Player == nil {
		c.logger.Error("Player template not set", log.Participant(int64(p)))
		return
	}
	e := c.templates.Player.New(entity.PlayerName(p), p, c.level.PlayerSpawn(p))
	if err := c.add(e); err != nil {
		c.logger.Error("Player spawn failed", log.Participant(int64(p)), log.Error(err))
		return
	}
	c.players[p] = e.Name
	c.combat.PlayerSpawned()
}

func (c *Coordinator) add(e *entity.Entity) error {
	if err := c.world.Add(e); err != nil {
		return err
	}
	assignments, err := c.registry.AssignPolicy(c.registry.Local(), e.Name, e.Kind, e.Owner)
	if err != nil {
		_, _ = c.world.Remove(e.Name)
		return err
	}
	c.replicator.Spawned(e, assignments)
	c.publish(TopicSpawned, Lifecycle{Name: e.Name, Kind: e.Kind, Owner: e.Owner})
	return nil
}

func (c *Coordinator) despawned(e *entity.Entity) {
	c.registry.Revoke(e.Name)
	if e.IsPlayer() && c.players[e.Owner] == e.Name {
		delete(c.players, e.Owner)
	}
	c.replicator.Despawned(e.Name)
	c.publish(TopicDespawned, Lifecycle{Name: e.Name, Kind: e.Kind, Owner: e.Owner})
}

// evaluateStart starts a waiting session once its start condition holds: the first
// spawn for a local session, enough connected remote participants for a networked one.
func (c *Coordinator) evaluateStart() {
	if c.machine.State() != session.WaitingToStart {
		return
	}
	if !c.opts.Networked {
		if c.level != nil && len(c.players) > 0 {
			c.starter.StartSession()
		}
		return
	}

	current, required := len(c.remotes), c.opts.MinParticipants
	c.machine.PublishLobby(current, required)
	c.logger.Info("Waiting for players",
		log.Int("current", current),
		log.Int("required", required))
	if c.level != nil && current >= required {
		c.starter.StartSession()
	}
}

func (c *Coordinator) remoteIDs() []models.ParticipantID {
	ids := make([]models.ParticipantID, 0, len(c.remotes))
	for p := range c.remotes {
		ids = append(ids, p)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Coordinator) publish(topic string, data any) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(bus.NewEvent(topic, "spawn", data)); err != nil {
		c.logger.Warn("Lifecycle observer failed", log.String("topic", topic), log.Error(err))
	}
}

// NopReplicator is used when nobody needs lifecycle replication, e.g. offline sessions.
type NopReplicator struct{}

func (NopReplicator) Spawned(*entity.Entity, []authority.Assignment) {}
func (NopReplicator) Despawned(models.EntityName)                    {}
