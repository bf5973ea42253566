package readiness

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePIDFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service.pid")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessCheck_Running(t *testing.T) {
	path := writePIDFile(t, strconv.Itoa(os.Getpid())+"\n")

	check := &ProcessCheck{PIDFile: path}
	assert.Equal(t, "pidfile:"+path, check.Name())
	assert.NoError(t, check.Check(context.Background()))
}

func TestProcessCheck_Failures(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		message string
	}{
		{
			name:    "missing_file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.pid") },
			message: "failed to read PID file",
		},
		{
			name:    "garbage",
			path:    func(t *testing.T) string { return writePIDFile(t, "nginx") },
			message: "invalid PID",
		},
		{
			name:    "negative",
			path:    func(t *testing.T) string { return writePIDFile(t, "-4") },
			message: "invalid PID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&ProcessCheck{PIDFile: tt.path(t)}).Check(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestIsProcessRunning(t *testing.T) {
	running, err := IsProcessRunning(os.Getpid())
	require.NoError(t, err)
	assert.True(t, running)

	_, err = IsProcessRunning(0)
	assert.Error(t, err)
}

func TestNewCheck_Process(t *testing.T) {
	check, err := NewCheck(CheckConfig{Type: CheckTypeProcess, Process: ProcessCheckConfig{PIDFile: "/run/nginx.pid"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "pidfile:/run/nginx.pid", check.Name())

	_, err = NewCheck(CheckConfig{Type: CheckTypeProcess}, nil)
	assert.Error(t, err)
}
