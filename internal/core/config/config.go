package config

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/zombiebox/internal/core/models"
)

// Transport names accepted by ServerConfig.Transport.
const (
	TransportOffline   = "offline"
	TransportWebSocket = "websocket"
	TransportQUIC      = "quic"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every scalar knob the session core consumes. None of the core's
// algorithms branch on the exact values.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Player  PlayerConfig  `yaml:"player"`
	Enemy   EnemyConfig   `yaml:"enemy"`
	Bullet  BulletConfig  `yaml:"bullet"`
	Wave    WaveConfig    `yaml:"wave"`
	Arena   ArenaConfig   `yaml:"arena"`
	Client  ClientConfig  `yaml:"client"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type ServerConfig struct {
	Transport       string `yaml:"transport"`
	ListenAddr      string `yaml:"listen_addr"`
	HTTPAddr        string `yaml:"http_addr"`
	MaxParticipants int    `yaml:"max_participants"`
	TickRate        int    `yaml:"tick_rate"`
	// SnapshotEvery broadcasts entity transforms every N simulation ticks.
	SnapshotEvery int    `yaml:"snapshot_every"`
	Advertise     bool   `yaml:"advertise"`
	CertFile      string `yaml:"cert_file"`
	KeyFile       string `yaml:"key_file"`
}

type SessionConfig struct {
	// MinParticipants is the number of connected remote participants a networked
	// session waits for before it starts.
	MinParticipants int `yaml:"min_participants"`
	// Dedicated hosts do not spawn a player for participant 1.
	Dedicated bool `yaml:"dedicated"`
}

type PlayerConfig struct {
	Speed    float64 `yaml:"speed"`
	Health   int     `yaml:"health"`
	FireRate float64 `yaml:"fire_rate"`
	Radius   float64 `yaml:"radius"`
}

type EnemyConfig struct {
	Speed         float64 `yaml:"speed"`
	Health        int     `yaml:"health"`
	ContactDamage int     `yaml:"contact_damage"`
	Radius        float64 `yaml:"radius"`
}

type BulletConfig struct {
	Speed    float64       `yaml:"speed"`
	Damage   int           `yaml:"damage"`
	Lifetime time.Duration `yaml:"lifetime"`
	Radius   float64       `yaml:"radius"`
}

type WaveConfig struct {
	BaseCount int           `yaml:"base_count"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

type ArenaConfig struct {
	Width        float64       `yaml:"width"`
	Height       float64       `yaml:"height"`
	PlayerSpawns []models.Vec2 `yaml:"player_spawns"`
	EnemySpawns  []models.Vec2 `yaml:"enemy_spawns"`
}

type ClientConfig struct {
	DialAttempts int `yaml:"dial_attempts"`
	IntentRate   int `yaml:"intent_rate"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Transport:       TransportWebSocket,
			ListenAddr:      ":7777",
			HTTPAddr:        ":8080",
			MaxParticipants: 4,
			TickRate:        60,
			SnapshotEvery:   2,
		},
		Session: SessionConfig{MinParticipants: 1},
		Player:  PlayerConfig{Speed: 300, Health: 3, FireRate: 5, Radius: 16},
		Enemy:   EnemyConfig{Speed: 150, Health: 1, ContactDamage: 1, Radius: 16},
		Bullet:  BulletConfig{Speed: 600, Damage: 1, Lifetime: 2 * time.Second, Radius: 4},
		Wave:    WaveConfig{BaseCount: 3, Cooldown: 5 * time.Second},
		Arena: ArenaConfig{
			Width:  1280,
			Height: 720,
			PlayerSpawns: []models.Vec2{
				{X: 600, Y: 340}, {X: 680, Y: 340}, {X: 600, Y: 380}, {X: 680, Y: 380},
			},
			EnemySpawns: []models.Vec2{
				{X: 40, Y: 40}, {X: 640, Y: 40}, {X: 1240, Y: 40},
				{X: 40, Y: 680}, {X: 640, Y: 680}, {X: 1240, Y: 680},
			},
		},
		Client: ClientConfig{DialAttempts: 5, IntentRate: 30},
	}
}

// Load reads a YAML file and overlays it on Default.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "open config %s", path)
	}
	defer f.Close()
	return LoadReader(f)
}

// LoadReader decodes YAML from r over Default and validates the result.
func LoadReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TickDuration is the fixed simulation step.
func (c Config) TickDuration() time.Duration {
	return time.Second / time.Duration(c.Server.TickRate)
}

// Networked reports whether the configured transport accepts remote participants.
func (c Config) Networked() bool {
	return c.Server.Transport != TransportOffline
}

// Validate rejects values the core cannot run with.
func (c Config) Validate() error {
	switch c.Server.Transport {
	case TransportOffline, TransportWebSocket, TransportQUIC:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown transport %q", c.Server.Transport)
	}
	if c.Server.TickRate <= 0 {
		return errors.Wrap(ErrInvalidConfig, "server.tick_rate must be positive")
	}
	if c.Server.SnapshotEvery <= 0 {
		return errors.Wrap(ErrInvalidConfig, "server.snapshot_every must be positive")
	}
	if c.Server.MaxParticipants < 1 {
		return errors.Wrap(ErrInvalidConfig, "server.max_participants must be at least 1")
	}
	if c.Session.MinParticipants < 0 || c.Session.MinParticipants > c.Server.MaxParticipants {
		return errors.Wrap(ErrInvalidConfig, "session.min_participants out of range")
	}
	if c.Player.Health <= 0 || c.Enemy.Health <= 0 {
		return errors.Wrap(ErrInvalidConfig, "health must be positive")
	}
	if c.Player.FireRate <= 0 {
		return errors.Wrap(ErrInvalidConfig, "player.fire_rate must be positive")
	}
	if c.Wave.BaseCount < 1 {
		return errors.Wrap(ErrInvalidConfig, "wave.base_count must be at least 1")
	}
	if c.Wave.Cooldown < 0 || c.Bullet.Lifetime <= 0 {
		return errors.Wrap(ErrInvalidConfig, "durations out of range")
	}
	if c.Arena.Width <= 0 || c.Arena.Height <= 0 {
		return errors.Wrap(ErrInvalidConfig, "arena size must be positive")
	}
	return nil
}
