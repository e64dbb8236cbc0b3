package wave

import (
	"errors"
	"math/rand"
	"time"

	"github.com/zeusync/zombiebox/internal/core/entity"
	"github.com/zeusync/zombiebox/internal/core/events/bus"
	"github.com/zeusync/zombiebox/internal/core/models"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
)

const (
	TopicChanged = "wave.changed"
	TopicPhase   = "wave.phase"
)

var (
	ErrNoSpawnPoints = errors.New("wave: no enemy spawn points")
	ErrNoTemplate    = errors.New("wave: enemy template not set")
)

// Phase is the pacing state of the engine.
type Phase uint8

const (
	Idle Phase = iota
	Spawning
	Resting
	Halted
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Spawning:
		return "spawning"
	case Resting:
		return "resting"
	case Halted:
		return "halted"
	default:
		return "unknown"
	}
}

// Spawner creates one enemy from tmpl at a spawn point.
type Spawner interface {
	SpawnEnemy(tmpl *entity.Template, at models.Vec2) (models.EntityName, error)
}

// Changed is the payload of TopicChanged.
type Changed struct {
	Wave int
	Live int
}

// PhaseChanged is the payload of TopicPhase.
type PhaseChanged struct {
	Wave  int
	Phase Phase
}

// Status is a copy of the engine counters.
type Status struct {
	Wave  int           `json:"wave"`
	Live  int           `json:"live"`
	Phase Phase         `json:"phase"`
	Rest  time.Duration `json:"rest"`
}

// Engine paces enemy waves: wave N spawns base*N enemies, and the next wave starts a
// cooldown after the last tracked enemy of the current one dies.
type Engine struct {
	base     int
	cooldown time.Duration
	rng      *rand.Rand

	spawner  Spawner
	points   []models.Vec2
	template *entity.Template

	wave     int
	phase    Phase
	rest     time.Duration
	live     map[models.EntityName]struct{}
	reported bool

	events bus.EventBus
	logger log.Log
}

// New creates an idle engine. rng drives spawn point selection.
func New(base int, cooldown time.Duration, rng *rand.Rand, events bus.EventBus, logger log.Log) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		base:     base,
		cooldown: cooldown,
		rng:      rng,
		live:     make(map[models.EntityName]struct{}),
		events:   events,
		logger:   log.OrNop(logger).With(log.String("component", "wave")),
	}
}

// Configure sets the spawn points, enemy template and spawner. It is called when the
// world is ready.
func (e *Engine) Configure(points []models.Vec2, tmpl *entity.Template, spawner Spawner) {
	e.points = append([]models.Vec2(nil), points...)
	e.template = tmpl
	e.spawner = spawner
	e.reported = false
}

// Start begins wave 1 from Idle, or resumes after Halt. A resumed engine whose current
// wave is already cleared rests for a full cooldown.
func (e *Engine) Start() {
	switch e.phase {
	case Idle:
		e.wave = 1
		e.enterSpawning()
	case Halted:
		if len(e.live) > 0 {
			e.setPhase(Spawning)
		} else {
			e.enterResting()
		}
	}
}

// Halt cancels a pending cooldown and stops spawning. Enemies already in the world are
// unaffected.
func (e *Engine) Halt() {
	if e.phase == Halted {
		return
	}
	e.rest = 0
	e.setPhase(Halted)
}

// Tick advances the cooldown by dt of simulated time.
func (e *Engine) Tick(dt time.Duration) {
	if e.phase != Resting {
		return
	}
	e.rest -= dt
	if e.rest > 0 {
		return
	}
	e.rest = 0
	e.wave++
	e.enterSpawning()
}

// OnEnemyDied records the death of a tracked enemy. Unknown names and repeated deaths are
// ignored. It reports whether the name was tracked.
func (e *Engine) OnEnemyDied(name models.EntityName) bool {
	if _, ok := e.live[name]; !ok {
		return false
	}
	delete(e.live, name)
	e.publish(TopicChanged, Changed{Wave: e.wave, Live: len(e.live)})
	if len(e.live) == 0 && e.phase == Spawning {
		e.enterResting()
	}
	return true
}

func (e *Engine) Status() Status {
	return Status{Wave: e.wave, Live: len(e.live), Phase: e.phase, Rest: e.rest}
}

func (e *Engine) Wave() int { return e.wave }

func (e *Engine) Live() int { return len(e.live) }

func (e *Engine) Phase() Phase { return e.phase }

func (e *Engine) enterSpawning() {
	if err := e.ready(); err != nil {
		if !e.reported {
			e.reported = true
			e.logger.Error("Wave spawning disabled", log.Error(err))
		}
		e.setPhase(Halted)
		return
	}

	e.setPhase(Spawning)
	batch := e.base * e.wave
	for i := 0; i < batch; i++ {
		at := e.points[e.rng.Intn(len(e.points))]
		name, err := e.spawner.SpawnEnemy(e.template, at)
		if err != nil {
			e.logger.Warn("Enemy spawn failed", log.Int("wave", e.wave), log.Error(err))
			continue
		}
		e.live[name] = struct{}{}
	}

	e.logger.Info("Wave started", log.Int("wave", e.wave), log.Int("enemies", len(e.live)))
	e.publish(TopicChanged, Changed{Wave: e.wave, Live: len(e.live)})
	if len(e.live) == 0 {
		e.enterResting()
	}
}

func (e *Engine) enterResting() {
	e.rest = e.cooldown
	e.setPhase(Resting)
}

func (e *Engine) ready() error {
	switch {
	case len(e.points) == 0:
		return ErrNoSpawnPoints
	case e.template == nil || e.spawner == nil:
		return ErrNoTemplate
	}
	return nil
}

func (e *Engine) setPhase(p Phase) {
	if e.phase == p {
		return
	}
	e.phase = p
	e.publish(TopicPhase, PhaseChanged{Wave: e.wave, Phase: p})
}

func (e *Engine) publish(topic string, data any) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(bus.NewEvent(topic, "wave", data)); err != nil {
		e.logger.Warn("Wave observer failed", log.String("topic", topic), log.Error(err))
	}
}
