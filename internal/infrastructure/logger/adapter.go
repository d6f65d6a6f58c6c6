package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"media-agent/internal/application/port/output"
)

var _ output.LoggerPort = (*LoggerAdapter)(nil)

// LoggerAdapter backs the logger port with a zap sugared logger.
type LoggerAdapter struct {
	sugar *zap.SugaredLogger
}

// NewLoggerAdapter builds a production JSON logger at the given level
// ("debug", "info", "warn", "error"; empty means info).
func NewLoggerAdapter(level string) (*LoggerAdapter, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &LoggerAdapter{sugar: z.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *LoggerAdapter {
	return &LoggerAdapter{sugar: zap.NewNop().Sugar()}
}

func (l *LoggerAdapter) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *LoggerAdapter) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *LoggerAdapter) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *LoggerAdapter) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

func (l *LoggerAdapter) WithField(key string, value any) output.LoggerPort {
	return &LoggerAdapter{sugar: l.sugar.With(key, value)}
}

func (l *LoggerAdapter) WithFields(fields map[string]any) output.LoggerPort {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &LoggerAdapter{sugar: l.sugar.With(args...)}
}

func (l *LoggerAdapter) Close() error {
	// Sync on stderr/stdout returns ENOTTY noise on some platforms; callers
	// treat it as best-effort.
	_ = l.sugar.Sync()
	return nil
}
