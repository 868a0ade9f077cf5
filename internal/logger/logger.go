// Package logger builds the zap logger used by the CLI and library
// components.
//
// Library packages never construct loggers themselves; they accept a
// *zap.Logger through options and default to zap.NewNop().
//
//	log, err := logger.New(&logger.Config{Level: "info", Format: "console"})
//	sess := session.New(backend, session.WithLogger(log))
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger settings.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" default:"info"`
	// Format is console or json.
	Format string `mapstructure:"format" default:"console"`
}

// New creates a zap logger writing to stderr.
func New(cfg *Config) (*zap.Logger, error) {
	var config zap.Config
	if cfg.Level == "debug" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}

	switch cfg.Format {
	case "console":
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.DisableStacktrace = true
	case "json", "":
		config.Encoding = "json"
	default:
		return nil, fmt.Errorf("log format: unknown format %q", cfg.Format)
	}

	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.MessageKey = "message"
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	return config.Build()
}
