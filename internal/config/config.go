// Package config loads the modeld daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/modelsync/internal/core/observability/log"
)

// Config holds all daemon settings.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Feed      FeedConfig      `yaml:"feed"`
	Models    ModelsConfig    `yaml:"models"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Workers      int           `yaml:"workers"`
}

type TrackerConfig struct {
	// DamageTintColor is a hex RGB color such as "FF8080".
	DamageTintColor string `yaml:"damage_tint_color"`
	DamageTintTicks int64  `yaml:"damage_tint_ticks"`
	// SweepPeriod is in ticks. Zero disables sweeping.
	SweepPeriod int64 `yaml:"sweep_period"`
	Shards      int   `yaml:"shards"`
}

// FeedConfig controls the websocket render-state feed.
type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
	// Period is the broadcast interval in ticks.
	Period int64 `yaml:"period"`
}

type ModelsConfig struct {
	Catalog string `yaml:"catalog"` // Path to the model catalog YAML
	// Watch reloads the catalog when the file changes.
	Watch bool `yaml:"watch"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogFile    string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns a Config with the daemon defaults.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			TickInterval: 50 * time.Millisecond,
			Workers:      4,
		},
		Tracker: TrackerConfig{
			DamageTintColor: "FF8080",
			DamageTintTicks: 10,
			SweepPeriod:     20,
			Shards:          32,
		},
		Feed: FeedConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8765",
			Path:    "/feed",
			Period:  2,
		},
		Models: ModelsConfig{
			Catalog: "configs/models.yaml",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Scheduler.TickInterval <= 0 {
		errs = append(errs, errors.New("scheduler.tick_interval must be positive"))
	}
	if c.Scheduler.Workers <= 0 {
		errs = append(errs, errors.New("scheduler.workers must be positive"))
	}
	if _, err := c.DamageTintColor(); err != nil {
		errs = append(errs, err)
	}
	if c.Tracker.DamageTintTicks <= 0 {
		errs = append(errs, errors.New("tracker.damage_tint_ticks must be positive"))
	}
	if c.Tracker.SweepPeriod < 0 {
		errs = append(errs, errors.New("tracker.sweep_period must not be negative"))
	}
	if c.Feed.Enabled && c.Feed.Addr == "" {
		errs = append(errs, errors.New("feed.addr is required when the feed is enabled"))
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DamageTintColor parses Tracker.DamageTintColor.
func (c *Config) DamageTintColor() (uint32, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(c.Tracker.DamageTintColor), "#"), "0x")
	v, err := strconv.ParseUint(raw, 16, 32)
	if err != nil || v > 0xFFFFFF {
		return 0, fmt.Errorf("tracker.damage_tint_color: bad color %q", c.Tracker.DamageTintColor)
	}
	return uint32(v), nil
}

// LogOptions converts the logging section.
func (c *Config) LogOptions() (log.Options, error) {
	level, err := log.ParseLevel(c.Logging.Level)
	if err != nil {
		return log.Options{}, err
	}
	return log.Options{
		Level:      level,
		FilePath:   c.Logging.LogFile,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
	}, nil
}
