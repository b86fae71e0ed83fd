// Package cli holds the start-up sequence shared by the command-line tools:
// load the configuration, apply flag overrides, validate, start logging.
package cli

import (
	"fmt"
	"strconv"

	"github.com/Faultbox/midgard-nav/internal/config"
	"github.com/Faultbox/midgard-nav/internal/logger"
)

// Setup loads and validates the configuration with o applied on top and
// initializes the global logger from it.
func Setup(o *config.Overrides) (*config.Config, error) {
	cfg, err := config.ApplyOverrides(o)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.InitWithOptions(LoggerOptions(cfg.Logging)); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logger.Sugar.Debugf("config: %+v", cfg)
	return cfg, nil
}

// LoggerOptions converts the logging section of the configuration.
func LoggerOptions(l config.LoggingConfig) logger.Options {
	opts := logger.Options{
		Level:   l.Level,
		Format:  l.Format,
		Console: true,
	}
	if l.LogFile != "" {
		opts.File = logger.DefaultFileConfig(l.LogFile)
		if l.MaxSizeMB > 0 {
			opts.File.MaxSizeMB = l.MaxSizeMB
		}
		if l.MaxBackups > 0 {
			opts.File.MaxBackups = l.MaxBackups
		}
		if l.MaxAgeDays > 0 {
			opts.File.MaxAgeDays = l.MaxAgeDays
		}
	}
	return opts
}

// ParseFloats parses positional float arguments.
func ParseFloats(args []string) ([]float32, error) {
	out := make([]float32, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}
