package logger

import (
	"fmt"

	"github.com/straye-as/blob-processor/internal/config"
	"github.com/straye-as/blob-processor/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a new structured logger
func NewLogger(cfg *config.LoggingConfig, appCfg *config.AppConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" || appCfg.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapCfg.InitialFields = map[string]interface{}{
		"app":         appCfg.Name,
		"environment": appCfg.Environment,
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return logger, nil
}

// WithRequest adds request context to logger
func WithRequest(logger *zap.Logger, method, path, requestID string) *zap.Logger {
	return logger.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)
}

// WithEvent adds the identity of an inbound notification to logger
func WithEvent(logger *zap.Logger, n domain.Notification) *zap.Logger {
	return logger.With(
		zap.String("event_id", n.ID),
		zap.String("event_type", n.EventType),
	)
}

// WithLocation adds a resolved blob location to logger
func WithLocation(logger *zap.Logger, loc domain.Location) *zap.Logger {
	return logger.With(
		zap.String("container", loc.Container),
		zap.String("blob", loc.BlobPath),
	)
}
