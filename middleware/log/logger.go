package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Gopher0727/GlobalChat/config"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey contextKey = "trace_id"
)

// Logger wraps zap.Logger with trace and relay-specific helpers.
type Logger struct {
	*zap.Logger
	file *os.File
}

// NewLogger creates a logger from the logging section of the config.
// Unknown levels fall back to info; output "file" appends to cfg.FilePath.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var (
		sink zapcore.WriteSyncer
		file *os.File
	)
	if cfg.Output == "file" {
		var err error
		file, err = os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		sink = zapcore.AddSync(file)
	} else {
		sink = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, parseLogLevel(cfg.Level))
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{Logger: zapLogger, file: file}, nil
}

// NewNop returns a logger that discards everything. Used by tests and as
// the fallback when a component is built without a logger.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// NewDevelopmentLogger creates a console logger at debug level.
func NewDevelopmentLogger() (*Logger, error) {
	zapLogger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: zapLogger}, nil
}

// WithTraceID returns a child logger tagged with the trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("trace_id", traceID))}
}

// WithContext returns a child logger carrying the context's trace ID, or l
// itself when the context has none.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if traceID := GetTraceID(ctx); traceID != "" {
		return l.WithTraceID(traceID)
	}
	return l
}

// WithFields returns a child logger with the given fields.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// ForEvent scopes a logger to one inbound message. An empty guild ID means
// the message arrived outside any guild.
func (l *Logger) ForEvent(ctx context.Context, guildID, channelID, authorID string) *Logger {
	fields := []zap.Field{
		zap.String("channel_id", channelID),
		zap.String("author_id", authorID),
	}
	if guildID != "" {
		fields = append(fields, zap.String("guild_id", guildID))
	}
	return l.WithContext(ctx).WithFields(fields...)
}

func (l *Logger) DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Debug(msg, fields...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Info(msg, fields...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Warn(msg, fields...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Error(msg, fields...)
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Close flushes buffered entries and releases the log file, if any.
func (l *Logger) Close() error {
	if err := l.Sync(); err != nil && l.file != nil {
		return err
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
