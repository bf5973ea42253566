package logcollection

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ===== ZAP BACKEND ADAPTER =====

// ZapAdapter provides a Zap backend implementation that hides zap types from users
type ZapAdapter struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

// NewZapAdapter creates a new Zap backend adapter
func NewZapAdapter(config ZapConfig) (*ZapAdapter, error) {
	zapLogger, err := createZapLogger(config)
	if err != nil {
		return nil, err
	}

	return &ZapAdapter{
		logger: zapLogger,
		sugar:  zapLogger.Sugar(),
	}, nil
}

// ===== STRUCTURED LOGGER IMPLEMENTATION =====

func (z *ZapAdapter) Debugf(format string, args ...interface{}) {
	z.sugar.Debugf(format, args...)
}

func (z *ZapAdapter) Infof(format string, args ...interface{}) {
	z.sugar.Infof(format, args...)
}

func (z *ZapAdapter) Warnf(format string, args ...interface{}) {
	z.sugar.Warnf(format, args...)
}

func (z *ZapAdapter) Errorf(format string, args ...interface{}) {
	z.sugar.Errorf(format, args...)
}

// LogWithContext implements structured logging with context
func (z *ZapAdapter) LogWithContext(ctx context.Context, level LogLevel, msg string, fields ...LogField) {
	zapFields := z.convertFields(fields)

	if stage, ok := StageFromContext(ctx); ok {
		zapFields = append(zapFields, zap.String("stage", stage))
	}

	z.logAtLevel(level, msg, zapFields...)
}

// LogWithFields implements structured logging
func (z *ZapAdapter) LogWithFields(level LogLevel, msg string, fields ...LogField) {
	z.logAtLevel(level, msg, z.convertFields(fields)...)
}

// WithFields creates a new logger with additional fields
func (z *ZapAdapter) WithFields(fields ...LogField) StructuredLogger {
	newLogger := z.logger.With(z.convertFields(fields)...)

	return &ZapAdapter{
		logger: newLogger,
		sugar:  newLogger.Sugar(),
	}
}

// WithError creates a new logger with an error field
func (z *ZapAdapter) WithError(err error) StructuredLogger {
	return z.WithFields(Error(err))
}

// WithStage creates a new logger with a stage field
func (z *ZapAdapter) WithStage(stage string) StructuredLogger {
	return z.WithFields(Stage(stage))
}

// Sync flushes any buffered log entries
func (z *ZapAdapter) Sync() error {
	return z.logger.Sync()
}

// ===== INTERNAL CONVERSION METHODS =====

func (z *ZapAdapter) convertFields(fields []LogField) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, field := range fields {
		zapFields[i] = convertSingleField(field)
	}
	return zapFields
}

func convertSingleField(field LogField) zap.Field {
	switch field.Type {
	case StringField:
		if v, ok := field.Value.(string); ok {
			return zap.String(field.Key, v)
		}
	case IntField:
		if v, ok := field.Value.(int); ok {
			return zap.Int(field.Key, v)
		}
	case BoolField:
		if v, ok := field.Value.(bool); ok {
			return zap.Bool(field.Key, v)
		}
	case DurationField:
		if v, ok := field.Value.(time.Duration); ok {
			return zap.Duration(field.Key, v)
		}
	case ErrorField:
		if err, ok := field.Value.(error); ok {
			return zap.NamedError(field.Key, err)
		}
		return zap.String(field.Key, "invalid error field")
	}
	return zap.Any(field.Key, field.Value)
}

func (z *ZapAdapter) logAtLevel(level LogLevel, msg string, fields ...zap.Field) {
	switch level {
	case DebugLevel:
		z.logger.Debug(msg, fields...)
	case InfoLevel:
		z.logger.Info(msg, fields...)
	case WarnLevel:
		z.logger.Warn(msg, fields...)
	case ErrorLevel:
		z.logger.Error(msg, fields...)
	default:
		z.logger.Info(msg, fields...)
	}
}

// ===== ZAP CONFIGURATION =====

// ZapConfig defines Zap-specific configuration
type ZapConfig struct {
	Level      string    // "debug", "info", "warn", "error"
	Format     string    // "json", "console"
	Output     string    // "stdout", "stderr"
	Writer     io.Writer // overrides Output when set
	Color      bool      // colored level names, console format only
	Caller     bool
	Stacktrace bool
}

func createZapLogger(config ZapConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if config.Color {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default: // "json" or anything else
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var writer io.Writer
	switch {
	case config.Writer != nil:
		writer = config.Writer
	case config.Output == "stderr":
		writer = os.Stderr
	default:
		writer = os.Stdout
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(writer)), level)

	opts := []zap.Option{}
	if config.Caller {
		opts = append(opts, zap.AddCaller())
	}
	if config.Stacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return zap.New(core, opts...), nil
}

// DefaultZapConfig returns the configuration used for container log drivers:
// JSON on stdout, no caller noise.
func DefaultZapConfig() ZapConfig {
	return ZapConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}
