package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"messagehub/internal/config"
)

// RotatingFile opens a size-rotated log file described by cfg.
func RotatingFile(cfg config.LogFile) (*lumberjack.Logger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("log file path required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}, nil
}

// FromConfig converts the logging section of the app config.
func FromConfig(cfg config.LoggingConfig) Config {
	return Config{
		Service:   cfg.Service,
		Env:       Env(cfg.Env),
		Backend:   Backend(cfg.Backend),
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}
}
