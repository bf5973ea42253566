package logcollection

import (
	"context"
	"fmt"

	sprintfLogging "github.com/core-tools/hsu-core/pkg/logging/sprintf"
)

// SprintfLogger is the printf-style sink the plain backend writes to.
type SprintfLogger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// PlainAdapter renders structured fields as key=value suffixes on top of a
// printf-style logger. It is used when the log driver wants plain text.
type PlainAdapter struct {
	sink   SprintfLogger
	level  LogLevel
	fields []LogField
}

// NewPlainAdapter uses the hsu-core std sprintf logger as its sink.
func NewPlainAdapter(level LogLevel) *PlainAdapter {
	return NewPlainAdapterWithSink(sprintfLogging.NewStdSprintfLogger(), level)
}

// NewPlainAdapterWithSink is NewPlainAdapter with an explicit sink.
func NewPlainAdapterWithSink(sink SprintfLogger, level LogLevel) *PlainAdapter {
	return &PlainAdapter{sink: sink, level: level}
}

// NewNopLogger returns a logger that drops everything.
func NewNopLogger() StructuredLogger {
	return &PlainAdapter{level: ErrorLevel + 1}
}

func (p *PlainAdapter) enabled(level LogLevel) bool {
	return level >= p.level
}

func (p *PlainAdapter) Debugf(format string, args ...interface{}) {
	p.emit(DebugLevel, fmt.Sprintf(format, args...), nil)
}

func (p *PlainAdapter) Infof(format string, args ...interface{}) {
	p.emit(InfoLevel, fmt.Sprintf(format, args...), nil)
}

func (p *PlainAdapter) Warnf(format string, args ...interface{}) {
	p.emit(WarnLevel, fmt.Sprintf(format, args...), nil)
}

func (p *PlainAdapter) Errorf(format string, args ...interface{}) {
	p.emit(ErrorLevel, fmt.Sprintf(format, args...), nil)
}

func (p *PlainAdapter) LogWithContext(ctx context.Context, level LogLevel, msg string, fields ...LogField) {
	if stage, ok := StageFromContext(ctx); ok {
		fields = append(fields, Stage(stage))
	}
	p.emit(level, msg, fields)
}

func (p *PlainAdapter) LogWithFields(level LogLevel, msg string, fields ...LogField) {
	p.emit(level, msg, fields)
}

func (p *PlainAdapter) WithFields(fields ...LogField) StructuredLogger {
	merged := make([]LogField, 0, len(p.fields)+len(fields))
	merged = append(merged, p.fields...)
	merged = append(merged, fields...)
	return &PlainAdapter{sink: p.sink, level: p.level, fields: merged}
}

func (p *PlainAdapter) WithError(err error) StructuredLogger {
	return p.WithFields(Error(err))
}

func (p *PlainAdapter) WithStage(stage string) StructuredLogger {
	return p.WithFields(Stage(stage))
}

func (p *PlainAdapter) Sync() error {
	return nil
}

func (p *PlainAdapter) emit(level LogLevel, msg string, fields []LogField) {
	if !p.enabled(level) {
		return
	}
	all := fields
	if len(p.fields) > 0 {
		all = append(append([]LogField{}, p.fields...), fields...)
	}
	if suffix := formatFields(all); suffix != "" {
		msg = msg + " " + suffix
	}
	switch level {
	case DebugLevel:
		p.sink.Debugf("%s", msg)
	case WarnLevel:
		p.sink.Warnf("%s", msg)
	case ErrorLevel:
		p.sink.Errorf("%s", msg)
	default:
		p.sink.Infof("%s", msg)
	}
}
