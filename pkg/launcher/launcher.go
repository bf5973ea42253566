package launcher

import (
	"os/exec"
	"strings"

	"github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/logging"

	"golang.org/x/sys/unix"
)

// ExecFunc replaces the current process image. On success it does not
// return.
type ExecFunc func(argv0 string, argv []string, envv []string) error

type Options struct {
	Exec     ExecFunc
	LookPath func(file string) (string, error)
}

// Launcher hands the process over to the target service. The service
// inherits the PID, so it receives orchestrator signals directly and no
// supervising process remains in the container.
type Launcher struct {
	exec     ExecFunc
	lookPath func(string) (string, error)
	logger   logging.Logger
}

func NewLauncher(options Options, logger logging.Logger) *Launcher {
	if options.Exec == nil {
		options.Exec = unix.Exec
	}
	if options.LookPath == nil {
		options.LookPath = exec.LookPath
	}
	return &Launcher{
		exec:     options.Exec,
		lookPath: options.LookPath,
		logger:   logger,
	}
}

// Command returns the argv Launch would execute. An empty target means
// args[0] is the program itself.
func Command(target string, args []string) ([]string, error) {
	if target == "" {
		if len(args) == 0 || args[0] == "" {
			return nil, errors.NewLaunchError("no launch target and no command arguments", nil)
		}
		return append([]string(nil), args...), nil
	}
	argv := make([]string, 0, len(args)+1)
	argv = append(argv, target)
	return append(argv, args...), nil
}

// Launch execs target with args appended unchanged. It only returns on
// failure.
func (l *Launcher) Launch(target string, args []string, env []string) error {
	argv, err := Command(target, args)
	if err != nil {
		return err
	}

	path := argv[0]
	if !strings.Contains(path, "/") {
		resolved, err := l.lookPath(path)
		if err != nil {
			return errors.NewLaunchError("launch target not found: "+path, err).WithContext("target", path)
		}
		path = resolved
	}

	l.logger.Infof("Handing over to target, path: %s, args: %q", path, argv[1:])

	if err := l.exec(path, argv, env); err != nil {
		return errors.NewLaunchError("exec failed: "+path, err).WithContext("target", path)
	}
	// Only fake exec functions get here.
	return nil
}
