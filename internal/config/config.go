// Package config loads the voyaged configuration: YAML file first,
// environment variables on top, defaults underneath.
//
// Environment variables use underscore separators and are uppercased with a
// VOYAGED_ prefix:
//
//	VOYAGED_SERVER_PORT          -> server.port
//	VOYAGED_AGENT_API_KEY        -> agent.api_key
//	VOYAGED_TELEMETRY_ENDPOINT   -> telemetry.endpoint
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/voyaged/internal/agent"
	"github.com/fyrsmithlabs/voyaged/internal/booking"
	"github.com/fyrsmithlabs/voyaged/internal/execution"
	"github.com/fyrsmithlabs/voyaged/internal/logging"
	"github.com/fyrsmithlabs/voyaged/internal/memory"
	"github.com/fyrsmithlabs/voyaged/internal/negotiation"
	"github.com/fyrsmithlabs/voyaged/internal/store"
	"github.com/fyrsmithlabs/voyaged/internal/telemetry"
)

const envPrefix = "VOYAGED_"

// maxConfigFileSize bounds the YAML file to keep a bad path from exhausting
// memory.
const maxConfigFileSize = 1 << 20

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ServerConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8880
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Config is the complete voyaged configuration.
type Config struct {
	Server    ServerConfig                `koanf:"server"`
	Logging   logging.Config              `koanf:"logging"`
	Telemetry telemetry.Config            `koanf:"telemetry"`
	Agent     agent.Config                `koanf:"agent"`
	Search    agent.SearchConfig          `koanf:"search"`
	Memory    memory.Config               `koanf:"memory"`
	Scheduler negotiation.SchedulerConfig `koanf:"scheduler"`
	Synthesis negotiation.SynthesisConfig `koanf:"synthesis"`
	Session   negotiation.SessionConfig   `koanf:"session"`
	Execution execution.Config            `koanf:"execution"`
	Booking   booking.Config              `koanf:"booking"`
	Store     store.Config                `koanf:"store"`
}

// ApplyDefaults fills every section's defaults.
func (c *Config) ApplyDefaults() {
	c.Server.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	c.Search.ApplyDefaults()
	c.Memory.ApplyDefaults()
	c.Scheduler.ApplyDefaults()
	c.Synthesis.ApplyDefaults()
	c.Session.ApplyDefaults()
	c.Execution.ApplyDefaults()
	c.Booking.ApplyDefaults()
	c.Store.ApplyDefaults()
}

// Validate checks cross-section constraints. The agent section is validated
// separately because a key is only required when sessions actually run
// against a live model.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}

// Load reads configuration from the given YAML file (optional) and the
// environment, then applies defaults and validates.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		info, err := os.Stat(configPath)
		switch {
		case os.IsNotExist(err):
			// Missing file is fine; env and defaults carry the day.
		case err != nil:
			return nil, fmt.Errorf("stat config file: %w", err)
		default:
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
			}
			content, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envTransform maps VOYAGED_SECTION_FIELD_NAME to section.field_name. The
// first underscore separates the section; the rest stay joined because field
// names themselves contain underscores.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}
