// Package config loads the YAML config file, applies environment overrides
// for secrets, and watches the file for hot reloads.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Limits   LimitsConfig   `yaml:"limits"`
	Notify   NotifyConfig   `yaml:"notify"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type TelegramConfig struct {
	// Token may be left empty in the file and supplied via BOT_TOKEN.
	Token       string `yaml:"token"`
	PollTimeout string `yaml:"poll_timeout"`
}

type IngestConfig struct {
	Addr string `yaml:"addr"`
	// Secret may be left empty in the file and supplied via SECRET_KEY.
	Secret string `yaml:"secret"`
}

type FeedsConfig struct {
	Path string `yaml:"path"`
	Max  int    `yaml:"max"`
}

type LimitsConfig struct {
	// CommandCooldown is a Go duration string (e.g. "2s").
	CommandCooldown string `yaml:"command_cooldown"`
}

type NotifyConfig struct {
	Workers    int `yaml:"workers"`
	QueueSize  int `yaml:"queue_size"`
	RatePerSec int `yaml:"rate_per_sec"`
}

// DedupConfig controls the optional eviction of the seen-uid set.
// Window "0s" (the default) means seen uids are kept for the process lifetime.
type DedupConfig struct {
	Window string `yaml:"window"`
	Sweep  string `yaml:"sweep"` // cron spec, used only when window > 0
}

type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Console bool        `yaml:"console"`
	File    FileLogging `yaml:"file"`
}

type FileLogging struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// envOverrides are secrets conventionally supplied via the environment.
type envOverrides struct {
	BotToken  string `envconfig:"BOT_TOKEN"`
	SecretKey string `envconfig:"SECRET_KEY"`
}

// Parse decodes the file strictly (unknown fields rejected) and merges
// environment overrides. It does not apply defaults; see WithDefaults.
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := parseBytes(b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, err
	}
	if env.BotToken != "" {
		cfg.Telegram.Token = env.BotToken
	}
	if env.SecretKey != "" {
		cfg.Ingest.Secret = env.SecretKey
	}
	return cfg, nil
}

func parseBytes(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WithDefaults fills unset fields in place and returns the config.
func (c *Config) WithDefaults() *Config {
	if c.Telegram.PollTimeout == "" {
		c.Telegram.PollTimeout = "10s"
	}
	if c.Ingest.Addr == "" {
		c.Ingest.Addr = ":3000"
	}
	if c.Feeds.Path == "" {
		c.Feeds.Path = "./sniper.db"
	}
	if c.Feeds.Max == 0 {
		c.Feeds.Max = 20
	}
	if c.Limits.CommandCooldown == "" {
		c.Limits.CommandCooldown = "2s"
	}
	if c.Dedup.Window == "" {
		c.Dedup.Window = "0s"
	}
	if c.Dedup.Sweep == "" {
		c.Dedup.Sweep = "*/10 * * * *"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
		c.Logging.Console = true
	}
	return c
}

// Validate rejects configs that cannot be applied.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or set BOT_TOKEN)")
	}
	if strings.TrimSpace(c.Ingest.Secret) == "" {
		return fmt.Errorf("ingest.secret is required (or set SECRET_KEY)")
	}
	if c.Feeds.Max < 0 {
		return fmt.Errorf("feeds.max must be >= 0")
	}
	if c.Notify.Workers < 0 || c.Notify.QueueSize < 0 || c.Notify.RatePerSec < 0 {
		return fmt.Errorf("notify values must be >= 0")
	}
	for _, f := range []struct{ key, val string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"limits.command_cooldown", c.Limits.CommandCooldown},
		{"dedup.window", c.Dedup.Window},
	} {
		if _, err := ParseDurationField(f.key, f.val); err != nil {
			return err
		}
	}
	return nil
}

// ParseDurationField parses an optional Go duration string; empty means 0.
func ParseDurationField(key, val string) (time.Duration, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, val, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", key)
	}
	return d, nil
}
