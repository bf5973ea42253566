package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordedLine struct {
	level int
	text  string
}

func recordingFuncs(lines *[]recordedLine) LogFuncs {
	record := func(level int) LogFunc {
		return func(format string, args ...interface{}) {
			*lines = append(*lines, recordedLine{level: level, text: fmt.Sprintf(format, args...)})
		}
	}
	return LogFuncs{
		Debugf: record(LogLevelDebug),
		Infof:  record(LogLevelInfo),
		Warnf:  record(LogLevelWarn),
		Errorf: record(LogLevelError),
	}
}

func TestLogger_Prefix(t *testing.T) {
	var lines []recordedLine
	logger := NewLogger("module: nginx-entrypoint , ", recordingFuncs(&lines))

	logger.Infof("probing %s", "wordpress:9000")
	logger.Warnf("optional step failed")

	assert.Equal(t, []recordedLine{
		{level: LogLevelInfo, text: "module: nginx-entrypoint , probing wordpress:9000"},
		{level: LogLevelWarn, text: "module: nginx-entrypoint , optional step failed"},
	}, lines)
}

func TestLogger_LogLevelfOverride(t *testing.T) {
	var levels []int
	logger := NewLogger("", LogFuncs{
		LogLevelf: func(level int, format string, args ...interface{}) {
			levels = append(levels, level)
		},
	})

	logger.Debugf("a")
	logger.Errorf("b")
	logger.LogLevelf(SeverityWarn.LogLevel(), "c")

	assert.Equal(t, []int{LogLevelDebug, LogLevelError, LogLevelWarn}, levels)
}

func TestLogger_MissingFuncsAreSkipped(t *testing.T) {
	logger := NewLogger("", LogFuncs{})
	assert.NotPanics(t, func() {
		logger.Infof("nothing wired")
	})
}
