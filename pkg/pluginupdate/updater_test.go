package pluginupdate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	domainErrors "github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/logging"
	"github.com/core-tools/hsu-entrypoint/pkg/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pluginMain = "<?php\r\n/**\r\n * Plugin Name: Cache Purge\r\n * Version: 1.3.0\r\n */\r\n"

type fakeRemote struct {
	branches []Branch
	listErr  error
	cloneErr error
	cloned   []string
	dirs     []string
}

func (f *fakeRemote) ListBranches(ctx context.Context, url string) ([]Branch, error) {
	return f.branches, f.listErr
}

func (f *fakeRemote) Clone(ctx context.Context, url, branch, dir string) error {
	f.cloned = append(f.cloned, branch)
	f.dirs = append(f.dirs, dir)
	if f.cloneErr != nil {
		return f.cloneErr
	}
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/"+branch), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "logo.png"), []byte("\x89PNG\r\n\x00"), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "cache-purge.php"), []byte(pluginMain), 0o644)
}

type recordingReconciler struct {
	paths []string
}

func (r *recordingReconciler) EnsureOwnership(ctx context.Context, path string, uid, gid int) (reconcile.Outcome, error) {
	r.paths = append(r.paths, path)
	return reconcile.Reconciled, nil
}

func newTestUpdater(t *testing.T, remote Remote, reconciler OwnershipReconciler) (*Updater, Config) {
	config := Config{
		Repository: "https://git.example.com/cache-purge.git",
		Directory:  filepath.Join(t.TempDir(), "plugins", "cache-purge"),
		MainFile:   "cache-purge.php",
		UID:        82,
		GID:        82,
	}
	return NewUpdater(config, remote, reconciler, logging.NewNopLogger()), config
}

func TestUpdater_InstallsWhenMissing(t *testing.T) {
	remote := &fakeRemote{branches: []Branch{
		{Name: "v1.2.0", Commit: "1111111aaaa"},
		{Name: "v1.3.0", Commit: "def5678beef"},
	}}
	reconciler := &recordingReconciler{}
	updater, config := newTestUpdater(t, remote, reconciler)

	updated, err := updater.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, []string{"v1.3.0"}, remote.cloned)
	assert.Equal(t, []string{config.Directory}, reconciler.paths)

	header, err := ReadHeader(filepath.Join(config.Directory, config.MainFile))
	require.NoError(t, err)
	assert.Equal(t, Header{Version: "1.3.0", Commit: "def5678"}, header)

	content, err := os.ReadFile(filepath.Join(config.Directory, config.MainFile))
	require.NoError(t, err)
	assert.NotContains(t, string(content), "\r\n")

	binary, err := os.ReadFile(filepath.Join(config.Directory, "logo.png"))
	require.NoError(t, err)
	assert.Contains(t, string(binary), "\r\n", "binary files keep their bytes")

	assert.NoDirExists(t, filepath.Join(config.Directory, ".git"))

	entries, err := os.ReadDir(filepath.Dir(config.Directory))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging directory is removed")
}

func TestUpdater_StagesOutsidePluginsDirectory(t *testing.T) {
	remote := &fakeRemote{branches: []Branch{{Name: "v1.3.0", Commit: "def5678beef"}}}
	updater, config := newTestUpdater(t, remote, nil)
	plugins := filepath.Dir(config.Directory)
	root := filepath.Dir(plugins)

	_, err := updater.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, remote.dirs, 1)
	assert.False(t, strings.HasPrefix(remote.dirs[0], plugins+string(filepath.Separator)),
		"clone target %s is inside %s", remote.dirs[0], plugins)
	assert.True(t, strings.HasPrefix(remote.dirs[0], root+string(filepath.Separator)))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "plugins", entries[0].Name())
}

func TestUpdater_UpToDateDoesNothing(t *testing.T) {
	remote := &fakeRemote{branches: []Branch{{Name: "v1.3.0", Commit: "def5678beef"}}}
	reconciler := &recordingReconciler{}
	updater, config := newTestUpdater(t, remote, reconciler)

	require.NoError(t, os.MkdirAll(config.Directory, 0o755))
	installed := "<?php\n/**\n * Version: 1.3.0\n * Commit: def5678\n */\n"
	require.NoError(t, os.WriteFile(filepath.Join(config.Directory, config.MainFile), []byte(installed), 0o644))

	updated, err := updater.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Empty(t, remote.cloned)
	assert.Empty(t, reconciler.paths)
}

func TestUpdater_ReplacesOutdatedPlugin(t *testing.T) {
	remote := &fakeRemote{branches: []Branch{{Name: "v1.3.0", Commit: "def5678beef"}}}
	updater, config := newTestUpdater(t, remote, nil)

	require.NoError(t, os.MkdirAll(config.Directory, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(config.Directory, config.MainFile),
		[]byte("<?php\n/*\n * Version: 1.2.0\n * Commit: abc1234\n */\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(config.Directory, "stale.php"), []byte("<?php"), 0o644))

	updated, err := updater.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NoFileExists(t, filepath.Join(config.Directory, "stale.php"))
}

func TestUpdater_Failures(t *testing.T) {
	t.Run("list_fails", func(t *testing.T) {
		updater, _ := newTestUpdater(t, &fakeRemote{listErr: errors.New("connection refused")}, nil)

		_, err := updater.Run(context.Background())
		require.Error(t, err)
		assert.True(t, domainErrors.IsNetworkError(err))
	})

	t.Run("no_version_branches", func(t *testing.T) {
		updater, _ := newTestUpdater(t, &fakeRemote{branches: []Branch{{Name: "main", Commit: "x"}}}, nil)

		_, err := updater.Run(context.Background())
		require.Error(t, err)
		assert.True(t, domainErrors.IsNotFoundError(err))
	})

	t.Run("clone_fails_keeps_installed", func(t *testing.T) {
		remote := &fakeRemote{branches: []Branch{{Name: "v2.0.0", Commit: "abc"}}, cloneErr: errors.New("timeout")}
		updater, config := newTestUpdater(t, remote, nil)
		require.NoError(t, os.MkdirAll(config.Directory, 0o755))
		main := filepath.Join(config.Directory, config.MainFile)
		require.NoError(t, os.WriteFile(main, []byte(" * Version: 1.0.0\n"), 0o644))

		_, err := updater.Run(context.Background())
		require.Error(t, err)
		assert.FileExists(t, main)
	})

	t.Run("invalid_config", func(t *testing.T) {
		updater := NewUpdater(Config{Repository: "x", Directory: "relative", MainFile: "a.php"}, &fakeRemote{}, nil, logging.NewNopLogger())
		_, err := updater.Run(context.Background())
		assert.True(t, domainErrors.IsValidationError(err))
	})
}
