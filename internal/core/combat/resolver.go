package combat

import (
	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
	"github.com/zeusync/zombiebox/internal/core/world"
)

const (
	TopicHealth = "entity.health"
	TopicKills  = "player.kills"
)

// EventKind distinguishes combat events.
type EventKind uint8

const (
	Damaged EventKind = iota + 1
	Killed
)

func (k EventKind) String() string {
	switch k {
	case Damaged:
		return "damaged"
	case Killed:
		return "killed"
	default:
		return "unknown"
	}
}

// Source identifies what caused damage. Player is the participant credited with a kill,
// zero when nobody is.
type Source struct {
	Entity models.EntityName
	Player models.ParticipantID
}

// Event is raised once per causative action. It is never persisted.
type Event struct {
	Kind       EventKind
	Target     models.EntityName
	TargetKind models.Kind
	Amount     int
	Health     int
	Source     Source
}

// Health is the payload of TopicHealth.
type Health struct {
	Entity    models.EntityName `json:"entity"`
	Health    int               `json:"health"`
	MaxHealth int               `json:"max_health"`
}

// Kills is the payload of TopicKills.
type Kills struct {
	Player models.ParticipantID `json:"player"`
	Kills  int                  `json:"kills"`
}

// WaveTracker is told about every enemy death.
type WaveTracker interface {
	OnEnemyDied(name models.EntityName) bool
}

// SessionDriver ends the session when no player is left alive.
type SessionDriver interface {
	Playing() bool
	EndSession()
}

// Resolver applies damage on the server and turns deaths into wave progress, kill
// tallies and the end-of-session decision.
type Resolver struct {
	server        bool
	world         *world.World
	waves         WaveTracker
	driver        SessionDriver
	contactDamage int

	playersAlive int
	ended        bool
	kills        map[models.ParticipantID]int

	events bus.EventBus
	logger log.Log
}

func New(server bool, w *world.World, waves WaveTracker, driver SessionDriver, contactDamage int, events bus.EventBus, logger log.Log) *Resolver {
	return &Resolver{
		server:        server,
		world:         w,
		waves:         waves,
		driver:        driver,
		contactDamage: contactDamage,
		kills:         make(map[models.ParticipantID]int),
		events:        events,
		logger:        log.OrNop(logger).With(log.String("component", "combat")),
	}
}

// ApplyDamage removes amount health from target, clamped at zero. A dead target is left
// untouched and yields no events. Off the server it does nothing.
func (r *Resolver) ApplyDamage(target *entity.Entity, amount int, src Source) []Event {
	if !r.server || target == nil || target.Dead || amount <= 0 {
		return nil
	}

	target.Health -= amount
	if target.Health < 0 {
		target.Health = 0
	}
	out := []Event{{
		Kind:       Damaged,
		Target:     target.Name,
		TargetKind: target.Kind,
		Amount:     amount,
		Health:     target.Health,
		Source:     src,
	}}
	r.publish(TopicHealth, Health{Entity: target.Name, Health: target.Health, MaxHealth: target.MaxHealth})

	if target.Health > 0 {
		return out
	}
	target.Dead = true
	out = append(out, Event{Kind: Killed, Target: target.Name, TargetKind: target.Kind, Source: src})

	switch target.Kind {
	case models.KindEnemy:
		r.enemyDied(target, src)
	case models.KindPlayer:
		r.logger.Info("Player died", log.Entity(string(target.Name)))
		r.playerGone()
	}
	return out
}

// Resolve turns contacts into damage. A bullet is consumed by the first enemy it
// touches; an enemy touching a player deals contact damage and destroys itself.
func (r *Resolver) Resolve(contacts []world.Contact) []Event {
	if !r.server {
		return nil
	}
	var out []Event
	for _, c := range contacts {
		a, b := c.A, c.B
		if a.Kind > b.Kind {
			a, b = b, a
		}
		switch {
		case a.IsEnemy() && b.IsBullet():
			out = append(out, r.bulletHit(b, a)...)
		case a.IsPlayer() && b.IsEnemy():
			out = append(out, r.melee(b, a)...)
		}
	}
	return out
}

// AgeBullets advances bullet lifetimes by dt seconds and destroys expired ones.
func (r *Resolver) AgeBullets(dt float64) {
	for _, b := range r.world.Entities(models.KindBullet) {
		if b.Dead || b.Bullet == nil {
			continue
		}
		b.Bullet.Remaining -= dt
		if b.Bullet.Remaining <= 0 {
			r.consume(b)
		}
	}
}

// PlayerSpawned counts a newly spawned live player.
func (r *Resolver) PlayerSpawned() {
	r.playersAlive++
}

// PlayerLost removes a live player that left without dying, e.g. on disconnect.
func (r *Resolver) PlayerLost() {
	r.playerGone()
}

func (r *Resolver) PlayersAlive() int { return r.playersAlive }

// Kills returns the kill tally of p.
func (r *Resolver) Kills(p models.ParticipantID) int { return r.kills[p] }

// KillTable returns a copy of every tally.
func (r *Resolver) KillTable() map[models.ParticipantID]int {
	out := make(map[models.ParticipantID]int, len(r.kills))
	for p, n := range r.kills {
		out[p] = n
	}
	return out
}

func (r *Resolver) bulletHit(bullet, enemy *entity.Entity) []Event {
	if bullet.Dead || enemy.Dead || bullet.Bullet == nil || bullet.Bullet.Consumed {
		return nil
	}
	r.consume(bullet)
	return r.ApplyDamage(enemy, bullet.Bullet.Damage, Source{Entity: bullet.Name, Player: bullet.Bullet.Source})
}

func (r *Resolver) melee(enemy, player *entity.Entity) []Event {
	if enemy.Dead || player.Dead {
		return nil
	}
	out := r.ApplyDamage(player, r.contactDamage, Source{Entity: enemy.Name})
	out = append(out, r.ApplyDamage(enemy, enemy.Health, Source{Entity: enemy.Name})...)
	return out
}

func (r *Resolver) consume(bullet *entity.Entity) {
	bullet.Bullet.Consumed = true
	bullet.Dead = true
	r.world.Destroy(bullet.Name)
}

func (r *Resolver) enemyDied(enemy *entity.Entity, src Source) {
	r.world.Destroy(enemy.Name)
	if r.waves != nil {
		r.waves.OnEnemyDied(enemy.Name)
	}
	if src.Player == 0 {
		return
	}
	r.kills[src.Player]++
	if p, ok := r.world.Get(entity.PlayerName(src.Player)); ok && p.Player != nil {
		p.Player.Kills = r.kills[src.Player]
	}
	r.publish(TopicKills, Kills{Player: src.Player, Kills: r.kills[src.Player]})
}

func (r *Resolver) playerGone() {
	if r.playersAlive > 0 {
		r.playersAlive--
	}
	if r.playersAlive > 0 || r.ended || r.driver == nil || !r.driver.Playing() {
		return
	}
	r.ended = true
	r.logger.Info("No players left alive")
	r.driver.EndSession()
}

func (r *Resolver) publish(topic string, data any) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(bus.NewEvent(topic, "combat", data)); err != nil {
		r.logger.Warn("Combat observer failed", log.String("topic", topic), log.Error(err))
	}
}
