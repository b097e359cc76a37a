package config

import (
	"fmt"
	"time"
)

// Config is the full phased configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Storage       StorageConfig       `koanf:"storage"`
	Verification  VerificationConfig  `koanf:"verification"`
	Effectiveness EffectivenessConfig `koanf:"effectiveness"`
}

// ServerConfig controls the MCP server and the observability sidecar.
type ServerConfig struct {
	// HTTPAddr is the listen address for health and metrics endpoints.
	// Empty disables the HTTP sidecar; the MCP server always runs on
	// stdio.
	HTTPAddr string `koanf:"http_addr"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// StorageConfig selects session persistence.
type StorageConfig struct {
	// Provider is memory or snapshot.
	Provider string `koanf:"provider"`

	// SnapshotDir holds per-session JSON files for the snapshot provider.
	SnapshotDir string `koanf:"snapshot_dir"`
}

// VerificationConfig holds the verifier thresholds.
type VerificationConfig struct {
	CompletionThreshold int     `koanf:"completion_threshold"`
	EffectivenessFloor  float64 `koanf:"effectiveness_floor"`
}

// EffectivenessConfig bounds the reasoning score and sizes its steps.
type EffectivenessConfig struct {
	Min         float64 `koanf:"min"`
	Max         float64 `koanf:"max"`
	Initial     float64 `koanf:"initial"`
	SimpleStep  float64 `koanf:"simple_step"`
	ComplexStep float64 `koanf:"complex_step"`
}

// Validate checks cross-field consistency after defaults are applied.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console (got %q)", c.Logging.Format)
	}

	switch c.Storage.Provider {
	case "memory":
	case "snapshot":
		if c.Storage.SnapshotDir == "" {
			return fmt.Errorf("storage.snapshot_dir is required for the snapshot provider")
		}
	default:
		return fmt.Errorf("storage.provider must be memory or snapshot (got %q)", c.Storage.Provider)
	}

	if c.Verification.CompletionThreshold < 0 || c.Verification.CompletionThreshold > 100 {
		return fmt.Errorf("verification.completion_threshold must be in [0,100] (got %d)", c.Verification.CompletionThreshold)
	}
	if c.Verification.EffectivenessFloor < 0 || c.Verification.EffectivenessFloor > 1 {
		return fmt.Errorf("verification.effectiveness_floor must be in [0,1] (got %g)", c.Verification.EffectivenessFloor)
	}

	e := c.Effectiveness
	if e.Min >= e.Max {
		return fmt.Errorf("effectiveness.min must be below effectiveness.max (got %g >= %g)", e.Min, e.Max)
	}
	if e.Initial < e.Min || e.Initial > e.Max {
		return fmt.Errorf("effectiveness.initial %g outside [%g, %g]", e.Initial, e.Min, e.Max)
	}
	if e.SimpleStep <= 0 || e.ComplexStep <= 0 {
		return fmt.Errorf("effectiveness steps must be positive")
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	return nil
}
