package logging

import (
	"fmt"
	"strings"
)

// Severity tags a console line. It is the only input, besides the message,
// that Format needs.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityNotice
	SeverityWarn
	SeverityError
	SeverityFatal
)

var severityNames = [...]string{"debug", "info", "notice", "warn", "error", "fatal"}

func (s Severity) String() string {
	if s < SeverityDebug || s > SeverityFatal {
		return "unknown"
	}
	return severityNames[s]
}

// ParseSeverity accepts the lowercase names produced by String.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(n, name) {
			return Severity(i), nil
		}
	}
	return SeverityInfo, fmt.Errorf("invalid severity: %s", name)
}

// LogLevel maps a severity onto the four levels understood by Logger.
func (s Severity) LogLevel() int {
	switch s {
	case SeverityDebug:
		return LogLevelDebug
	case SeverityInfo, SeverityNotice:
		return LogLevelInfo
	case SeverityWarn:
		return LogLevelWarn
	default:
		return LogLevelError
	}
}

const (
	ansiReset   = "\033[0m"
	ansiBold    = "\033[1m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiBlue    = "\033[34m"
	ansiMagenta = "\033[35m"
	ansiGray    = "\033[90m"
)

func (s Severity) color() string {
	switch s {
	case SeverityDebug:
		return ansiGray
	case SeverityInfo:
		return ansiBlue
	case SeverityNotice:
		return ansiGreen
	case SeverityWarn:
		return ansiYellow
	case SeverityError:
		return ansiRed
	case SeverityFatal:
		return ansiBold + ansiMagenta
	default:
		return ""
	}
}

// Tag returns the fixed-width bracketed tag for the severity, e.g. "[WARN ]".
func (s Severity) Tag() string {
	return fmt.Sprintf("[%-5s]", strings.ToUpper(s.String()))
}

// Format renders one console line. It keeps no state, so concurrent callers
// and tests can use it freely.
func Format(severity Severity, message string, color bool) string {
	tag := severity.Tag()
	if color && severity.color() != "" {
		tag = severity.color() + tag + ansiReset
	}
	return tag + " " + message
}
