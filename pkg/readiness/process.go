package readiness

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ProcessCheck is ready when PIDFile names a live process.
type ProcessCheck struct {
	PIDFile string
}

func (c *ProcessCheck) Name() string {
	return "pidfile:" + c.PIDFile
}

func (c *ProcessCheck) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pid, err := ReadPIDFile(c.PIDFile)
	if err != nil {
		return err
	}
	running, err := IsProcessRunning(pid)
	if err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	if !running {
		return fmt.Errorf("process %d from %s is not running", pid, c.PIDFile)
	}
	return nil
}

// ReadPIDFile parses the decimal PID stored in path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s: %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// IsProcessRunning probes pid with signal 0. EPERM means the process exists
// but belongs to another user.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}
	switch err := unix.Kill(pid, 0); err {
	case nil, unix.EPERM:
		return true, nil
	case unix.ESRCH:
		return false, nil
	default:
		return false, err
	}
}
