// Package config loads grove configuration from defaults, an optional YAML
// file, GROVE_ environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/grove/internal/fsrs"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: GROVE_SERVER__PORT sets server.port.
const EnvPrefix = "GROVE_"

// Config holds all grove configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Health    HealthConfig    `koanf:"health"`
	Log       LogConfig       `koanf:"log"`
	Import    ImportConfig    `koanf:"import"`
}

type ServerConfig struct {
	Bind string `koanf:"bind" validate:"required"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`
}

type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type SchedulerConfig struct {
	DesiredRetention float64         `koanf:"desired_retention" validate:"gt=0,lt=1"`
	MaximumInterval  int             `koanf:"maximum_interval" validate:"min=1"`
	EnableFuzz       bool            `koanf:"enable_fuzz"`
	Parameters       []float64       `koanf:"parameters" validate:"omitempty,len=21"` // empty → FSRS-6 defaults
	LearningSteps    []time.Duration `koanf:"learning_steps" validate:"omitempty,len=3,dive,gte=0"`
	RelearningStep   time.Duration   `koanf:"relearning_step" validate:"gte=0"`
}

type HealthConfig struct {
	// DefaultTimezone applies to accounts without a timezone of their own.
	DefaultTimezone string `koanf:"default_timezone" validate:"omitempty,timezone"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type ImportConfig struct {
	// ReposDir is where git sources are cloned.
	ReposDir    string `koanf:"repos_dir" validate:"required"`
	// SourcesRoot bounds the local directories the HTTP API may import.
	// Empty means the API accepts git URLs only.
	SourcesRoot string `koanf:"sources_root"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "grove.db",
		},
		Scheduler: SchedulerConfig{
			DesiredRetention: 0.9,
			MaximumInterval:  36500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Import: ImportConfig{
			ReposDir: "repos",
		},
	}
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"db":                "database.path",
	"bind":              "server.bind",
	"port":              "server.port",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"timezone":          "health.default_timezone",
	"repos-dir":         "import.repos_dir",
	"sources-root":      "import.sources_root",
	"desired-retention": "scheduler.desired_retention",
	"fuzz":              "scheduler.enable_fuzz",
}

// Load builds the configuration. path may be empty to skip the file; flags
// may be nil. Only flags the user actually set override earlier sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if flags != nil {
		err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, f.Value.String()
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	cfg := Default()
	err = k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and formats.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// FSRS converts the scheduler section into a scheduler configuration.
func (c SchedulerConfig) FSRS() fsrs.Config {
	cfg := fsrs.Config{
		DesiredRetention: c.DesiredRetention,
		MaximumInterval:  c.MaximumInterval,
		RelearningStep:   c.RelearningStep,
		EnableFuzz:       c.EnableFuzz,
	}
	copy(cfg.Parameters[:], c.Parameters)
	copy(cfg.LearningSteps[:], c.LearningSteps)
	return cfg
}
