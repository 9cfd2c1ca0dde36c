// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads and validates the relay's YAML configuration:
// identity, trusted peers, period and TTL parameters, archive backend
// selection, and the logging/metrics/health surfaces.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	Environment string         `yaml:"environment" json:"environment"`
	Relay       *RelayConfig   `yaml:"relay" json:"relay"`
	Peers       []PeerConfig   `yaml:"peers" json:"peers"`
	Poem        *PoemConfig    `yaml:"poem" json:"poem"`
	Archive     *ArchiveConfig `yaml:"archive" json:"archive"`
	Logging     *LoggingConfig `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig  `yaml:"health" json:"health"`
}

// RelayConfig is this relay's identity and exchange parameters.
type RelayConfig struct {
	// Name is the display author attached to contributed lines.
	Name string `yaml:"name" json:"name"`

	// SecretKey is the base64 Ed25519 private key. Usually supplied via
	// ${RELAY_SECRET_KEY} substitution rather than written in the file.
	SecretKey string `yaml:"secret_key" json:"secret_key"`

	// ListenAddr is the exchange endpoint address (default ":7070").
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Period is the exchange interval; production runs hourly, fast
	// deployments use seconds.
	Period time.Duration `yaml:"period" json:"period"`

	// SendOnMinute restricts origination to ticks on this wall-clock
	// minute. Left unset, it defaults to minute 0.
	SendOnMinute *int `yaml:"send_on_minute" json:"send_on_minute"`

	InitialTTL       uint8 `yaml:"initial_ttl" json:"initial_ttl"`
	MaxForwardingTTL uint8 `yaml:"max_forwarding_ttl" json:"max_forwarding_ttl"`
}

// PeerConfig is one trusted peer.
type PeerConfig struct {
	PublicKey string `yaml:"public_key" json:"public_key"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Nickname  string `yaml:"nickname,omitempty" json:"nickname,omitempty"`
}

// PoemConfig selects the line source.
type PoemConfig struct {
	// Mode is one of loop, once, none.
	Mode  string   `yaml:"mode" json:"mode"`
	Lines []string `yaml:"lines" json:"lines"`
}

// ArchiveConfig selects and configures the archive backend.
type ArchiveConfig struct {
	// Backend is one of memory, postgres.
	Backend  string          `yaml:"backend" json:"backend"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty" json:"postgres,omitempty"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check configuration
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// LoadFromFile loads configuration from a file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	// Try to parse as YAML first
	if err := yaml.Unmarshal(data, cfg); err != nil {
		// Try JSON if YAML fails
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setDefaults sets default values for configuration
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Relay == nil {
		cfg.Relay = &RelayConfig{}
	}
	if cfg.Relay.ListenAddr == "" {
		cfg.Relay.ListenAddr = ":7070"
	}
	if cfg.Relay.Period == 0 {
		cfg.Relay.Period = time.Hour
	}
	if cfg.Relay.SendOnMinute == nil {
		zero := 0
		cfg.Relay.SendOnMinute = &zero
	}
	if cfg.Relay.InitialTTL == 0 {
		cfg.Relay.InitialTTL = 8
	}
	if cfg.Relay.MaxForwardingTTL == 0 {
		cfg.Relay.MaxForwardingTTL = 8
	}

	if cfg.Poem == nil {
		cfg.Poem = &PoemConfig{Mode: "none"}
	}
	if cfg.Poem.Mode == "" {
		cfg.Poem.Mode = "loop"
	}

	if cfg.Archive == nil {
		cfg.Archive = &ArchiveConfig{Backend: "memory"}
	}
	if cfg.Archive.Backend == "" {
		cfg.Archive.Backend = "memory"
	}
	if cfg.Archive.Postgres != nil {
		if cfg.Archive.Postgres.Port == 0 {
			cfg.Archive.Postgres.Port = 5432
		}
		if cfg.Archive.Postgres.SSLMode == "" {
			cfg.Archive.Postgres.SSLMode = "disable"
		}
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{Enabled: true}
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Health == nil {
		cfg.Health = &HealthConfig{Enabled: true}
	}
	if cfg.Health.Addr == "" {
		cfg.Health.Addr = ":8080"
	}
}

// ValidationError describes one problem found in a configuration.
type ValidationError struct {
	Field   string
	Message string
	Level   string // error or warning
}

// ValidateConfiguration checks a configuration for problems. Entries at
// level "error" make the config unusable; "warning" entries are advisory.
func ValidateConfiguration(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Relay == nil || cfg.Relay.SecretKey == "" {
		errs = append(errs, ValidationError{
			Field:   "relay.secret_key",
			Message: "secret key is required (set RELAY_SECRET_KEY or relay.secret_key)",
			Level:   "error",
		})
	}

	if cfg.Relay != nil {
		if cfg.Relay.Period < time.Second {
			errs = append(errs, ValidationError{
				Field:   "relay.period",
				Message: "period must be at least one second",
				Level:   "error",
			})
		}
		if m := cfg.Relay.SendOnMinute; m != nil && (*m < 0 || *m > 59) {
			errs = append(errs, ValidationError{
				Field:   "relay.send_on_minute",
				Message: "send_on_minute must be in 0..59",
				Level:   "error",
			})
		}
	}

	for i, peer := range cfg.Peers {
		if peer.PublicKey == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("peers[%d].public_key", i),
				Message: "peer public key is required",
				Level:   "error",
			})
		}
	}
	if len(cfg.Peers) == 0 {
		errs = append(errs, ValidationError{
			Field:   "peers",
			Message: "no trusted peers configured; the relay will neither send nor accept",
			Level:   "warning",
		})
	}

	if cfg.Poem != nil {
		switch cfg.Poem.Mode {
		case "loop", "once", "none":
		default:
			errs = append(errs, ValidationError{
				Field:   "poem.mode",
				Message: "mode must be one of loop, once, none",
				Level:   "error",
			})
		}
		if cfg.Poem.Mode != "none" && len(cfg.Poem.Lines) == 0 {
			errs = append(errs, ValidationError{
				Field:   "poem.lines",
				Message: "poem has no lines; the relay will never originate",
				Level:   "warning",
			})
		}
	}

	if cfg.Archive != nil {
		switch cfg.Archive.Backend {
		case "memory":
		case "postgres":
			if cfg.Archive.Postgres == nil {
				errs = append(errs, ValidationError{
					Field:   "archive.postgres",
					Message: "postgres backend selected but no connection settings given",
					Level:   "error",
				})
			}
		default:
			errs = append(errs, ValidationError{
				Field:   "archive.backend",
				Message: "backend must be one of memory, postgres",
				Level:   "error",
			})
		}
	}

	return errs
}
