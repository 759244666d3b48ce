package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/annoq/annoq/pipeline"
)

// Backends for the task and annotation stores.
const (
	StoreMemory   = "memory"
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
)

// Backends for the event bus.
const (
	BusMemory = "memory"
	BusNATS   = "nats"
)

// DefaultStages is the stage list used when the config names none.
var DefaultStages = pipeline.Stages{"annotate", "adjudicate"}

// Duration wraps time.Duration for TOML decoding ("30s", "1m").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen          string   `toml:"listen"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is one of memory, bolt, postgres.
	Backend string `toml:"backend"`

	// Path is the database file for the bolt backend.
	Path string `toml:"path"`

	// DSN is the connection string for the postgres backend.
	DSN string `toml:"dsn"`
}

// BusConfig selects and configures the event bus.
type BusConfig struct {
	// Backend is one of memory, nats.
	Backend string `toml:"backend"`

	// URL is the NATS server URL.
	URL string `toml:"url"`

	// Name identifies this connection to the NATS server.
	Name string `toml:"name"`
}

// StagesConfig holds pipeline stage lists. Batches keys are batch IDs;
// any batch not listed uses Default.
type StagesConfig struct {
	Default []string            `toml:"default"`
	Batches map[string][]string `toml:"batches"`
}

// RolesConfig points at the actor roster file.
type RolesConfig struct {
	File string `toml:"file"`
}

// RateLimitConfig bounds claim polling per actor. Zero disables.
type RateLimitConfig struct {
	ClaimCapacity int      `toml:"claim_capacity"`
	ClaimWindow   Duration `toml:"claim_window"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Config is the daemon configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Store     StoreConfig     `toml:"store"`
	Bus       BusConfig       `toml:"bus"`
	Stages    StagesConfig    `toml:"stages"`
	Roles     RolesConfig     `toml:"roles"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Logging   LoggingConfig   `toml:"logging"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     Duration{10 * time.Second},
			WriteTimeout:    Duration{10 * time.Second},
			ShutdownTimeout: Duration{15 * time.Second},
		},
		Store: StoreConfig{
			Backend: StoreMemory,
		},
		Bus: BusConfig{
			Backend: BusMemory,
			Name:    "annoqd",
		},
		RateLimit: RateLimitConfig{
			ClaimCapacity: 30,
			ClaimWindow:   Duration{time.Minute},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SearchPaths returns the locations Load checks, in order.
func SearchPaths() []string {
	paths := []string{"annoq.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "annoq", "annoq.toml"))
	}
	return paths
}

// Load reads configuration from the given path, or from the first file
// in SearchPaths when path is empty. A missing file is not an error:
// defaults apply.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	for _, candidate := range SearchPaths() {
		if _, err := os.Stat(candidate); err == nil {
			return LoadFile(candidate)
		}
	}
	return Default(), nil
}

// LoadFile reads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(string(content))
}

// Parse parses TOML configuration. Unset fields take defaults.
func Parse(content string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreBolt:
		if c.Store.Path == "" {
			return fmt.Errorf("store backend %q requires path", StoreBolt)
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store backend %q requires dsn", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Bus.Backend {
	case BusMemory:
	case BusNATS:
		if c.Bus.URL == "" {
			return fmt.Errorf("bus backend %q requires url", BusNATS)
		}
	default:
		return fmt.Errorf("unknown bus backend %q", c.Bus.Backend)
	}

	if len(c.Stages.Default) > 0 {
		if err := c.stages(c.Stages.Default).Validate(); err != nil {
			return fmt.Errorf("invalid default stages: %w", err)
		}
	}
	for batchID, stages := range c.Stages.Batches {
		if err := c.stages(stages).Validate(); err != nil {
			return fmt.Errorf("invalid stages for batch %q: %w", batchID, err)
		}
	}

	if c.RateLimit.ClaimCapacity < 0 {
		return fmt.Errorf("ratelimit claim_capacity must not be negative")
	}
	return nil
}

// StageResolver returns the stage list for a batch: the batch override
// if present, else the configured default, else DefaultStages.
func (c *Config) StageResolver() func(batchID string) pipeline.Stages {
	return func(batchID string) pipeline.Stages {
		if stages, ok := c.Stages.Batches[batchID]; ok {
			return c.stages(stages)
		}
		if len(c.Stages.Default) > 0 {
			return c.stages(c.Stages.Default)
		}
		return DefaultStages
	}
}

func (c *Config) stages(names []string) pipeline.Stages {
	stages := make(pipeline.Stages, len(names))
	for i, name := range names {
		stages[i] = pipeline.Stage(name)
	}
	return stages
}
