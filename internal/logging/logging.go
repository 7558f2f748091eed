// Package logging builds the zap logger shared by the enrichment pipeline.
package logging

import (
	"fmt"
	"strings"

	"github.com/sarathavasarala/markly/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger from the log section of the config. When file is
// non-empty it overrides cfg.File as the only sink.
func New(cfg config.LogConfig, file string) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if strings.EqualFold(cfg.Format, "json") {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zapCfg.DisableStacktrace = true
	zapCfg.Sampling = nil

	sink := cfg.File
	if file != "" {
		sink = file
	}
	if sink != "" {
		zapCfg.OutputPaths = []string{sink}
		zapCfg.ErrorOutputPaths = []string{sink}
	} else {
		zapCfg.OutputPaths = []string{"stderr"}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return logger, nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
