package utils

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger создает структурированный логгер zap с заданным уровнем
func NewLogger(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("неверный уровень логирования %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// LogOperation логирует операцию с длительностью и учитывает ее в метриках
func LogOperation(logger *zap.Logger, operation string, startTime time.Time, err error) {
	duration := time.Since(startTime)
	GetMetrics().RecordLedgerOperation(operation, err)

	if err != nil {
		logger.Warn("operation failed",
			zap.String("operation", operation),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}
	logger.Info("operation completed",
		zap.String("operation", operation),
		zap.Duration("duration", duration),
	)
}
