package launcher

import (
	"errors"
	"testing"

	domainErrors "github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	argv0 string
	argv  []string
	env   []string
}

type recordingExec struct {
	calls []execCall
	err   error
}

func (r *recordingExec) exec(argv0 string, argv []string, envv []string) error {
	r.calls = append(r.calls, execCall{argv0: argv0, argv: argv, env: envv})
	return r.err
}

func lookPathIn(dir string) func(string) (string, error) {
	return func(file string) (string, error) {
		if file == "missing" {
			return "", errors.New("executable file not found in $PATH")
		}
		return dir + "/" + file, nil
	}
}

func TestLaunch_PassesArgumentsVerbatim(t *testing.T) {
	tests := []struct {
		name          string
		target        string
		args          []string
		expectedArgv0 string
		expectedArgv  []string
	}{
		{
			name:          "target_with_command",
			target:        "docker-entrypoint.sh",
			args:          []string{"php-fpm", "-F", "--", "with space", ""},
			expectedArgv0: "/usr/local/bin/docker-entrypoint.sh",
			expectedArgv:  []string{"docker-entrypoint.sh", "php-fpm", "-F", "--", "with space", ""},
		},
		{
			name:          "absolute_target",
			target:        "/usr/sbin/nginx",
			args:          []string{"-g", "daemon off;"},
			expectedArgv0: "/usr/sbin/nginx",
			expectedArgv:  []string{"/usr/sbin/nginx", "-g", "daemon off;"},
		},
		{
			name:          "no_target_uses_first_argument",
			args:          []string{"mariadbd", "--user=mysql"},
			expectedArgv0: "/usr/local/bin/mariadbd",
			expectedArgv:  []string{"mariadbd", "--user=mysql"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &recordingExec{}
			l := NewLauncher(Options{Exec: recorder.exec, LookPath: lookPathIn("/usr/local/bin")}, logging.NewNopLogger())
			original := append([]string(nil), tt.args...)

			require.NoError(t, l.Launch(tt.target, tt.args, []string{"A=1"}))
			require.Len(t, recorder.calls, 1)
			assert.Equal(t, tt.expectedArgv0, recorder.calls[0].argv0)
			assert.Equal(t, tt.expectedArgv, recorder.calls[0].argv)
			assert.Equal(t, []string{"A=1"}, recorder.calls[0].env)
			assert.Equal(t, original, tt.args)
		})
	}
}

func TestLaunch_Failures(t *testing.T) {
	t.Run("no_target", func(t *testing.T) {
		recorder := &recordingExec{}
		l := NewLauncher(Options{Exec: recorder.exec, LookPath: lookPathIn("/bin")}, logging.NewNopLogger())

		err := l.Launch("", nil, nil)
		require.Error(t, err)
		assert.True(t, domainErrors.IsLaunchError(err))
		assert.Empty(t, recorder.calls)
	})

	t.Run("target_not_found", func(t *testing.T) {
		recorder := &recordingExec{}
		l := NewLauncher(Options{Exec: recorder.exec, LookPath: lookPathIn("/bin")}, logging.NewNopLogger())

		err := l.Launch("missing", []string{"x"}, nil)
		require.Error(t, err)
		assert.True(t, domainErrors.IsLaunchError(err))
		assert.Empty(t, recorder.calls)
	})

	t.Run("exec_error", func(t *testing.T) {
		recorder := &recordingExec{err: errors.New("permission denied")}
		l := NewLauncher(Options{Exec: recorder.exec, LookPath: lookPathIn("/bin")}, logging.NewNopLogger())

		err := l.Launch("/docker-entrypoint.sh", nil, nil)
		require.Error(t, err)
		assert.True(t, domainErrors.IsLaunchError(err))
		assert.Contains(t, err.Error(), "permission denied")
	})
}
