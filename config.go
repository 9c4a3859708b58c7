package companion

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/cyberFlowTech/zapry-companion-go/behavior"
	"github.com/cyberFlowTech/zapry-companion-go/store"
)

// ──────────────────────────────────────────────
// Config
// ──────────────────────────────────────────────

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "COMPANION_"

// Config holds every tunable of the engine. Start from DefaultConfig.
//
// Recall settings are used as given: a zero cap turns recall off, zero
// damping never damps, and a zero RecallQuietFor lets idle and poll triggers
// interrupt at once. Zero idle, poll and cooldown values fall back to the
// defaults.
type Config struct {
	Timezone string  `env:"TIMEZONE" envDefault:"UTC"`
	Alpha    float64 `env:"SMOOTHING_ALPHA" envDefault:"0.3"`

	QuestionCooldown int `env:"QUESTION_COOLDOWN" envDefault:"5"`
	// Cooldowns overrides per-kind cooldown turns, e.g. "comfort:4,small_talk:9".
	Cooldowns map[string]int `env:"COOLDOWNS"`

	RecallSessionCap   int           `env:"RECALL_SESSION_CAP" envDefault:"2"`
	RecallDayCap       int           `env:"RECALL_DAY_CAP" envDefault:"5"`
	RecallQuietFor     time.Duration `env:"RECALL_MIN_SINCE_ACTIVITY" envDefault:"20s"`
	RecallDamping      float64       `env:"RECALL_DAMPING" envDefault:"0.5"`
	RecallFetchEvery   time.Duration `env:"RECALL_FETCH_EVERY" envDefault:"10s"`
	RecallFetchBurst   int           `env:"RECALL_FETCH_BURST" envDefault:"2"`
	ClosedStreakRecall int           `env:"CLOSED_STREAK_TRIGGER" envDefault:"3"`

	IdleMin      time.Duration `env:"IDLE_MIN" envDefault:"25s"`
	IdleMax      time.Duration `env:"IDLE_MAX" envDefault:"40s"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5m"`
	BootRecall   bool          `env:"BOOT_RECALL" envDefault:"true"`

	TurnMilestones []int `env:"TURN_MILESTONES" envDefault:"10,50,100,250,500,1000"`
	StreakDays     []int `env:"STREAK_DAYS" envDefault:"3,7,14,30,100"`

	MemoryEnabled bool   `env:"MEMORY_ENABLED" envDefault:"true"`
	PoolsFile     string `env:"POOLS_FILE"`
	ProfileFile   string `env:"PROFILE_FILE"`

	Store StoreConfig `envPrefix:"STORE_"`
	Log   LogConfig   `envPrefix:"LOG_"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend   string `env:"BACKEND" envDefault:"memory"` // memory | file | redis
	Namespace string `env:"NAMESPACE" envDefault:"default"`
	Dir       string `env:"DIR" envDefault:"data"`
	RedisURL  string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Prefix    string `env:"REDIS_PREFIX" envDefault:"companion"`
}

func (c StoreConfig) open() store.Config {
	return store.Config{
		Backend:   c.Backend,
		Namespace: c.Namespace,
		Dir:       c.Dir,
		RedisURL:  c.RedisURL,
		Prefix:    c.Prefix,
	}
}

// DefaultConfig returns the defaults LoadConfig would produce from an empty
// environment.
func DefaultConfig() Config {
	var cfg Config
	// Parsing an empty environment only applies envDefault tags.
	_ = env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: map[string]string{}})
	return cfg
}

// LoadConfig reads configuration from the environment. Listed .env files are
// loaded first when they exist; variables already set win over them.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the engine cannot run with.
func (c Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("smoothing alpha %v out of range [0,1]", c.Alpha)
	}
	if c.RecallDamping < 0 || c.RecallDamping > 1 {
		return fmt.Errorf("recall damping %v out of range [0,1]", c.RecallDamping)
	}
	if c.RecallSessionCap < 0 || c.RecallDayCap < 0 {
		return fmt.Errorf("recall caps must not be negative (session %d, day %d)", c.RecallSessionCap, c.RecallDayCap)
	}
	if c.RecallQuietFor < 0 || c.RecallFetchEvery < 0 || c.RecallFetchBurst < 0 {
		return errors.New("recall quiet time, fetch interval and fetch burst must not be negative")
	}
	if c.IdleMax < c.IdleMin {
		return fmt.Errorf("idle window max %s below min %s", c.IdleMax, c.IdleMin)
	}
	for name := range c.Cooldowns {
		if _, ok := behavior.DefaultCooldowns[behavior.Kind(name)]; !ok {
			return fmt.Errorf("cooldown for unknown behavior %q", name)
		}
	}
	return nil
}

// Location resolves Timezone. Empty means UTC.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) cooldowns() map[behavior.Kind]int {
	out := make(map[behavior.Kind]int, len(behavior.DefaultCooldowns))
	for k, v := range behavior.DefaultCooldowns {
		out[k] = v
	}
	for k, v := range c.Cooldowns {
		out[behavior.Kind(k)] = v
	}
	return out
}

func (c Config) recall() behavior.RecallConfig {
	return behavior.RecallConfig{
		SessionCap:       c.RecallSessionCap,
		DayCap:           c.RecallDayCap,
		MinSinceActivity: c.RecallQuietFor,
		Damping:          c.RecallDamping,
		FetchEvery:       c.RecallFetchEvery,
		FetchBurst:       c.RecallFetchBurst,
	}
}

func (c Config) scheduler() behavior.SchedulerConfig {
	sc := behavior.DefaultSchedulerConfig()
	if c.IdleMin > 0 {
		sc.IdleMin = c.IdleMin
	}
	if c.IdleMax > 0 {
		sc.IdleMax = c.IdleMax
	}
	if c.PollInterval > 0 {
		sc.PollInterval = c.PollInterval
	}
	sc.Boot = c.BootRecall
	return sc
}
