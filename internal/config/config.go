// Package config handles NornicGraph configuration via YAML files and
// environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Environment variables (NORNICGRAPH_*)
//  2. Config file (config.yaml)
//  3. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
// Environment Variables (all use NORNICGRAPH_ prefix):
//
// Database:
//   - NORNICGRAPH_DATA_DIR="./data"
//   - NORNICGRAPH_SHARDING_THRESHOLD=10000
//
// ID allocation:
//   - NORNICGRAPH_ID_RENEW_TIMEOUT="30s"
//   - NORNICGRAPH_ID_RENEW_BUFFER_PERCENTAGE=0.1
//   - NORNICGRAPH_ID_UPPER_BOUND=9223372036854775807
//
// Logging:
//   - NORNICGRAPH_LOG_LEVEL="INFO"
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all NornicGraph configuration.
type Config struct {
	Database DatabaseConfig
	ID       IDConfig
	Logging  LoggingConfig
}

// DatabaseConfig controls the keyspace store.
type DatabaseConfig struct {
	// DataDir is where the vertex store persists its data.
	DataDir string

	// ShardingThreshold is the per-type instance count at which a new
	// current-shard is auto-opened.
	ShardingThreshold int
}

// IDConfig controls the ID Block Pool (see internal/idpool).
type IDConfig struct {
	// RenewTimeout bounds how long next_id waits for a background
	// block fetch before raising PoolTimeout.
	RenewTimeout time.Duration

	// RenewBufferPercentage is the fraction of a block, measured from
	// its end, at which background prefetch of the next block starts.
	// Must be in (0.0, 1.0].
	RenewBufferPercentage float64

	// UpperBound is the exclusive maximum ID per (partition, namespace).
	UpperBound uint64
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataDir:           "./data",
			ShardingThreshold: 10000,
		},
		ID: IDConfig{
			RenewTimeout:          30 * time.Second,
			RenewBufferPercentage: 0.1,
			UpperBound:            1<<63 - 1,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// LoadFromEnv builds a Config starting from defaults and overlaying
// any NORNICGRAPH_* environment variables that are set.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	applyEnvVars(cfg)
	return cfg
}

// LoadFromFile loads a YAML config file and overlays environment
// variables on top. An empty path is equivalent to LoadFromEnv.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				applyEnvVars(cfg)
				return cfg, cfg.Validate()
			}
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvVars(cfg)
	return cfg, cfg.Validate()
}

// FindConfigFile looks for config.yaml in the current directory.
func FindConfigFile() string {
	for _, candidate := range []string{"config.yaml", "config.yml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Validate checks invariants the ID pool and schema validator rely on.
func (c *Config) Validate() error {
	if c.ID.RenewBufferPercentage <= 0.0 || c.ID.RenewBufferPercentage > 1.0 {
		return fmt.Errorf("id.renew_buffer_percentage must be in (0.0,1.0], got %v", c.ID.RenewBufferPercentage)
	}
	if c.ID.RenewTimeout <= 0 {
		return fmt.Errorf("id.renew_timeout must be positive, got %v", c.ID.RenewTimeout)
	}
	if c.ID.UpperBound == 0 {
		return fmt.Errorf("id.upper_bound must be positive")
	}
	if c.Database.ShardingThreshold <= 0 {
		return fmt.Errorf("sharding_threshold must be positive, got %d", c.Database.ShardingThreshold)
	}
	return nil
}

func applyEnvVars(c *Config) {
	c.Database.DataDir = getEnv("NORNICGRAPH_DATA_DIR", c.Database.DataDir)
	c.Database.ShardingThreshold = getEnvInt("NORNICGRAPH_SHARDING_THRESHOLD", c.Database.ShardingThreshold)

	c.ID.RenewTimeout = getEnvDuration("NORNICGRAPH_ID_RENEW_TIMEOUT", c.ID.RenewTimeout)
	c.ID.RenewBufferPercentage = getEnvFloat("NORNICGRAPH_ID_RENEW_BUFFER_PERCENTAGE", c.ID.RenewBufferPercentage)
	c.ID.UpperBound = getEnvUint64("NORNICGRAPH_ID_UPPER_BOUND", c.ID.UpperBound)

	c.Logging.Level = getEnv("NORNICGRAPH_LOG_LEVEL", c.Logging.Level)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvUint64(key string, defaultVal uint64) uint64 {
	if val := os.Getenv(key); val != "" {
		if u, err := strconv.ParseUint(val, 10, 64); err == nil {
			return u
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

// String renders the config for diagnostics, redacting nothing since
// this module has no secrets.
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Database{DataDir:%s ShardingThreshold:%d} ", c.Database.DataDir, c.Database.ShardingThreshold)
	fmt.Fprintf(&sb, "ID{RenewTimeout:%s RenewBufferPercentage:%v UpperBound:%d} ", c.ID.RenewTimeout, c.ID.RenewBufferPercentage, c.ID.UpperBound)
	fmt.Fprintf(&sb, "Logging{Level:%s}", c.Logging.Level)
	return sb.String()
}
