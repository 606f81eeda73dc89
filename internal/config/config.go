// Package config loads the daemon's configuration from a YAML file
// and layers environment-variable overrides on top, matching the
// teacher's internal/config/config.go in shape (Default/Load, a
// struct of struct fields tagged with yaml names) generalized from
// queue/storage/cluster fields to the settings daemon's own.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's full configuration.
type Config struct {
	Bus     BusConfig     `yaml:"bus"`
	Peer    PeerConfig    `yaml:"peer"`
	Storage StorageConfig `yaml:"storage"`
	Schema  SchemaConfig  `yaml:"schema"`
	Timers  TimersConfig  `yaml:"timers"`
	Admin   AdminConfig   `yaml:"admin"`
	Logging LoggingConfig `yaml:"logging"`
}

// BusConfig identifies this daemon on the shared message bus.
type BusConfig struct {
	Peer    string `yaml:"peer"`
	Service string `yaml:"service"`
}

// PeerConfig configures the direct peer-replication listener.
type PeerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StorageConfig configures where settings are persisted.
type StorageConfig struct {
	SettingsPath string `yaml:"settings_path"`
}

// SchemaConfig configures where setting definitions are loaded from.
type SchemaConfig struct {
	SearchPath string `yaml:"search_path"`
}

// TimersConfig configures the coalescing save/gossip timers.
type TimersConfig struct {
	SaveTimeout   time.Duration `yaml:"save_timeout"`
	GossipTimeout time.Duration `yaml:"gossip_timeout"`
}

// AdminConfig configures the admin HTTP API.
type AdminConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig configures zerolog's output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Default returns the daemon's default configuration.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Peer:    "fluid-settings",
			Service: "",
		},
		Peer: PeerConfig{
			ListenAddr: ":4042",
		},
		Storage: StorageConfig{
			SettingsPath: "./fluid-settings.conf",
		},
		Schema: SchemaConfig{
			// Empty by default: a daemon with no search_path configured
			// runs schema-less (every name accepted, nothing validated)
			// rather than binding a dormant, zero-definition registry
			// that would reject every unknown name instead.
			SearchPath: "",
		},
		Timers: TimersConfig{
			SaveTimeout:   5 * time.Second,
			GossipTimeout: 30 * time.Second,
		},
		Admin: AdminConfig{
			ListenAddr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads cfg from a YAML file at path, starting from Default and
// overlaying whatever the file sets, then applies environment
// overrides on top of the result. A missing file is not an error:
// defaults (plus any environment overrides) are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// use defaults
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("config: environment override: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads config from path, falling back to Default (with
// environment overrides still applied) if loading fails.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v, using defaults\n", err)
		cfg = Default()
		_ = applyEnvOverrides(cfg)
	}
	return cfg
}
