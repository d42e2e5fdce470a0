// Package config loads the adaptive core's tunables from YAML: a
// typed struct tree unmarshaled with gopkg.in/yaml.v3, then validated
// before use. Rating bounds, K-factor tiers, and per-mode win-rate
// targets are deliberately NOT configurable — they are fixed constants
// in internal/core, internal/rating, and internal/difficulty, and
// exposing them here would invite deployments that break the rating
// math's invariants.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the set of deployment tunables the CLI wires into
// the selector, gate evaluator, progression engine, cache, storage,
// and observability server.
type EngineConfig struct {
	Selection SelectionConfig `yaml:"selection"`
	Gates     GatesConfig     `yaml:"gates"`
	Levels    []LevelConfig   `yaml:"levels"`
	// LevelGates maps a level number to the gate IDs that must all be
	// passed before a learner may advance into that level. Empty by
	// default, so XP alone drives advancement.
	LevelGates map[int][]string `yaml:"level_gates"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
}

// SelectionConfig holds the per-mode distribution plan ratios, keyed
// by mode then by selection reason, plus the top-pool pick tunables.
type SelectionConfig struct {
	PlanRatios            map[string]map[string]float64 `yaml:"plan_ratios"`
	TopPoolMultiplier     int                           `yaml:"top_pool_multiplier"`
	RandomWindow          int                           `yaml:"random_window"`
	MaxSameAtomPerSession int                           `yaml:"max_same_atom_per_session"`
}

// GatesConfig holds the default mastery gate thresholds.
type GatesConfig struct {
	MasteryAccuracyThreshold float64 `yaml:"mastery_accuracy_threshold"`
	MasteryMinAttempts       int     `yaml:"mastery_min_attempts"`
	MasteryMinStreak         int     `yaml:"mastery_min_streak"`
	DefaultXPReward          int     `yaml:"default_xp_reward"`
}

// LevelConfig mirrors one entry of internal/progression.Levels.
type LevelConfig struct {
	Number int    `yaml:"number"`
	Name   string `yaml:"name"`
	MinXP  int    `yaml:"min_xp"`
}

// ServerConfig mirrors internal/obshttp.Config.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds the Postgres DSN and pool settings. An empty
// DSN runs the CLI against the in-memory repositories.
type DatabaseConfig struct {
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// RedisConfig holds the cache connection settings. An empty Addr
// leaves caching purely in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Load reads and validates an EngineConfig from path.
func Load(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read engine config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse engine config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field invariants before the config is used.
func (c *EngineConfig) Validate() error {
	if c.Selection.MaxSameAtomPerSession <= 0 {
		return fmt.Errorf("selection.max_same_atom_per_session must be positive, got %d", c.Selection.MaxSameAtomPerSession)
	}
	if c.Gates.MasteryAccuracyThreshold <= 0 || c.Gates.MasteryAccuracyThreshold > 1 {
		return fmt.Errorf("gates.mastery_accuracy_threshold must be in (0,1], got %f", c.Gates.MasteryAccuracyThreshold)
	}
	for i := 1; i < len(c.Levels); i++ {
		if c.Levels[i].MinXP <= c.Levels[i-1].MinXP {
			return fmt.Errorf("levels must have strictly increasing min_xp, level %d violates this", c.Levels[i].Number)
		}
	}
	for level := range c.LevelGates {
		if level < 1 || level > len(c.Levels) {
			return fmt.Errorf("level_gates names level %d outside the level table", level)
		}
	}
	return nil
}

// Default returns the built-in engine configuration, used both as the
// Load baseline (so a YAML file only needs to override what differs)
// and directly by the CLI demo.
func Default() *EngineConfig {
	return &EngineConfig{
		Selection: SelectionConfig{
			PlanRatios: map[string]map[string]float64{
				"build":      {"near_rating": 0.60, "stretch": 0.20, "weakness": 0.15, "exploration": 0.05},
				"prove":      {"near_rating": 0.60, "stretch": 0.20, "weakness": 0.15, "exploration": 0.05},
				"review":     {"near_rating": 0.70, "weakness": 0.20, "exploration": 0.10},
				"diagnostic": {"near_rating": 0.40, "stretch": 0.30, "weakness": 0.20, "exploration": 0.10},
			},
			TopPoolMultiplier:     3,
			RandomWindow:          5,
			MaxSameAtomPerSession: 3,
		},
		Gates: GatesConfig{
			MasteryAccuracyThreshold: 0.80,
			MasteryMinAttempts:       5,
			MasteryMinStreak:         3,
			DefaultXPReward:          100,
		},
		Levels: []LevelConfig{
			{1, "Orientation", 0},
			{2, "Foundations", 500},
			{3, "Recognition", 1500},
			{4, "Easy Mastery", 3000},
			{5, "Medium Control", 5000},
			{6, "Strategy & Abandonment", 8000},
			{7, "Hard Exposure", 12000},
			{8, "Consistency", 17000},
			{9, "Elite Execution", 23000},
			{10, "Test-Day Operator", 30000},
		},
		LevelGates: map[int][]string{},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			QueryTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			DB: 0,
		},
	}
}
