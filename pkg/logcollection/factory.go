package logcollection

import (
	"fmt"
	"io"

	"github.com/core-tools/hsu-entrypoint/pkg/logging"
)

// LoggerConfig defines configuration for creating a structured logger
type LoggerConfig struct {
	Backend string    `yaml:"backend"` // "zap", "plain"
	Level   LogLevel  `yaml:"level"`
	Format  string    `yaml:"format"` // "json", "console"; zap only
	Output  string    `yaml:"output"` // "stdout", "stderr"
	Color   bool      `yaml:"color"`
	Writer  io.Writer `yaml:"-"`
}

// DefaultLoggerConfig returns a sensible default logger configuration
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Backend: "zap",
		Level:   InfoLevel,
		Format:  "json",
		Output:  "stdout",
	}
}

// NewStructuredLogger creates a new structured logger with the specified backend
func NewStructuredLogger(backendType string, level LogLevel) (StructuredLogger, error) {
	cfg := DefaultLoggerConfig()
	cfg.Backend = backendType
	cfg.Level = level
	return NewStructuredLoggerWithConfig(cfg)
}

// NewStructuredLoggerWithConfig creates a new structured logger with detailed configuration
func NewStructuredLoggerWithConfig(cfg LoggerConfig) (StructuredLogger, error) {
	switch cfg.Backend {
	case "zap", "":
		zapConfig := DefaultZapConfig()
		zapConfig.Level = cfg.Level.String()
		if cfg.Format != "" {
			zapConfig.Format = cfg.Format
		}
		if cfg.Output != "" {
			zapConfig.Output = cfg.Output
		}
		zapConfig.Writer = cfg.Writer
		zapConfig.Color = cfg.Color
		return NewZapAdapter(zapConfig)
	case "plain":
		return NewPlainAdapter(cfg.Level), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Backend)
	}
}

// LogFuncs bridges a structured logger into the prefix logger used by the
// sequencer packages.
func LogFuncs(logger StructuredLogger) logging.LogFuncs {
	return logging.LogFuncs{
		Debugf: logger.Debugf,
		Infof:  logger.Infof,
		Warnf:  logger.Warnf,
		Errorf: logger.Errorf,
	}
}
