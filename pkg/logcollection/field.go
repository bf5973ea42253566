package logcollection

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ===== FIELD TYPES (COMPLETE BACKEND HIDING) =====

// LogField represents a structured log field - completely independent of any backend
type LogField struct {
	Key   string
	Value interface{}
	Type  FieldType
}

// FieldType identifies how the field should be processed
type FieldType int

const (
	StringField FieldType = iota
	IntField
	BoolField
	DurationField
	ErrorField
	ObjectField
)

// String returns a string representation of the field type
func (ft FieldType) String() string {
	switch ft {
	case StringField:
		return "string"
	case IntField:
		return "int"
	case BoolField:
		return "bool"
	case DurationField:
		return "duration"
	case ErrorField:
		return "error"
	case ObjectField:
		return "object"
	default:
		return "unknown"
	}
}

// ===== FIELD CONSTRUCTORS =====

// String creates a string field
func String(key, value string) LogField {
	return LogField{Key: key, Value: value, Type: StringField}
}

// Int creates an integer field
func Int(key string, value int) LogField {
	return LogField{Key: key, Value: value, Type: IntField}
}

// Bool creates a boolean field
func Bool(key string, value bool) LogField {
	return LogField{Key: key, Value: value, Type: BoolField}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) LogField {
	return LogField{Key: key, Value: value, Type: DurationField}
}

// Error creates an error field
func Error(err error) LogField {
	return LogField{Key: "error", Value: err, Type: ErrorField}
}

// Object creates an object field
func Object(key string, value interface{}) LogField {
	return LogField{Key: key, Value: value, Type: ObjectField}
}

// ===== DOMAIN FIELDS =====

// Stage tags the sequencer stage (validate, probe, reconcile, launch)
func Stage(stage string) LogField {
	return String("stage", stage)
}

// Profile tags the entrypoint profile name
func Profile(profile string) LogField {
	return String("profile", profile)
}

// Dependency tags the probed dependency
func Dependency(name string) LogField {
	return String("dependency", name)
}

// Path tags a reconciled filesystem path
func Path(path string) LogField {
	return String("path", path)
}

// Attempt tags the probe attempt number
func Attempt(attempt int) LogField {
	return Int("attempt", attempt)
}

// String formats the field as key=value for plain backends.
func (f LogField) String() string {
	switch f.Type {
	case ErrorField:
		if err, ok := f.Value.(error); ok && err != nil {
			return fmt.Sprintf("%s=%q", f.Key, err.Error())
		}
		return f.Key + "=<nil>"
	case StringField:
		return fmt.Sprintf("%s=%q", f.Key, f.Value)
	default:
		return fmt.Sprintf("%s=%v", f.Key, f.Value)
	}
}

// FormatFields renders fields as sorted key=value pairs, for sinks that
// only take a message.
func FormatFields(fields ...LogField) string {
	return formatFields(fields)
}

// formatFields renders fields sorted by key, space separated.
func formatFields(fields []LogField) string {
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
