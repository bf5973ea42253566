package pluginupdate

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/logging"
	"github.com/core-tools/hsu-entrypoint/pkg/reconcile"
)

// Config describes one self-updating plugin.
type Config struct {
	Repository string `yaml:"repository"`
	// Directory is the installed plugin directory, e.g.
	// /var/www/html/wp-content/plugins/cache-purge.
	Directory string `yaml:"directory"`
	// MainFile holds the plugin header, relative to Directory.
	MainFile string        `yaml:"main_file"`
	UID      int           `yaml:"uid"`
	GID      int           `yaml:"gid"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// ValidateConfig validates plugin update configuration
func ValidateConfig(config Config) error {
	if config.Repository == "" {
		return errors.NewValidationError("plugin repository is required", nil)
	}
	if !filepath.IsAbs(config.Directory) {
		return errors.NewValidationError("plugin directory must be absolute: "+config.Directory, nil)
	}
	if config.MainFile == "" || filepath.IsAbs(config.MainFile) {
		return errors.NewValidationError("plugin main file must be a relative path", nil)
	}
	if config.UID < 0 || config.GID < 0 {
		return errors.NewValidationError("plugin owner ids cannot be negative", nil)
	}
	return nil
}

// OwnershipReconciler is the part of reconcile.Reconciler the updater needs.
type OwnershipReconciler interface {
	EnsureOwnership(ctx context.Context, path string, uid, gid int) (reconcile.Outcome, error)
}

// Decision is the outcome of comparing the installed plugin with the remote.
type Decision struct {
	Installed Header
	Latest    Branch
	Needed    bool
}

// shortCommitLength is how many hex digits the header records.
const shortCommitLength = 7

// Updater checks a plugin against its remote and replaces it in place.
type Updater struct {
	config     Config
	remote     Remote
	reconciler OwnershipReconciler
	logger     logging.Logger
}

func NewUpdater(config Config, remote Remote, reconciler OwnershipReconciler, logger logging.Logger) *Updater {
	if remote == nil {
		remote = NewGitRemote()
	}
	return &Updater{
		config:     config,
		remote:     remote,
		reconciler: reconciler,
		logger:     logger,
	}
}

func (u *Updater) mainFilePath() string {
	return filepath.Join(u.config.Directory, u.config.MainFile)
}

// Check compares the installed header with the newest version branch.
// A plugin that is not installed yet always needs an update.
func (u *Updater) Check(ctx context.Context) (Decision, error) {
	installed, err := ReadHeader(u.mainFilePath())
	if err != nil && !os.IsNotExist(err) {
		return Decision{}, errors.NewIOError("failed to read plugin header", err).WithContext("path", u.mainFilePath())
	}

	branches, err := u.remote.ListBranches(ctx, u.config.Repository)
	if err != nil {
		return Decision{}, errors.NewNetworkError("failed to list plugin branches", err).
			WithContext("repository", u.config.Repository)
	}
	latest, ok := LatestBranch(branches)
	if !ok {
		return Decision{}, errors.NewNotFoundError("no version branches in "+u.config.Repository, nil)
	}

	decision := Decision{
		Installed: installed,
		Latest:    latest,
		Needed:    NeedsUpdate(installed.Version, installed.Commit, latest.Version(), latest.Commit),
	}
	u.logger.Infof("Plugin update check, installed: %s@%s, latest: %s@%s, needed: %t",
		installed.Version, installed.Commit, latest.Version(), shortCommit(latest.Commit), decision.Needed)
	return decision, nil
}

// Run checks and applies an update when needed. It reports whether the
// plugin was replaced.
func (u *Updater) Run(ctx context.Context) (bool, error) {
	if err := ValidateConfig(u.config); err != nil {
		return false, err
	}
	if u.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.config.Timeout)
		defer cancel()
	}

	decision, err := u.Check(ctx)
	if err != nil {
		return false, err
	}
	if !decision.Needed {
		return false, nil
	}
	if err := u.Apply(ctx, decision.Latest); err != nil {
		return false, err
	}
	return true, nil
}

// stagingRoot is where a new plugin version is assembled: one level above
// the directory holding the plugins, so a half-cloned tree is never listed
// as a plugin, yet still on the same filesystem for the final rename.
func (u *Updater) stagingRoot() string {
	return filepath.Dir(filepath.Dir(u.config.Directory))
}

// Apply installs branch: clone into a staging directory, drop the .git
// metadata, normalize line endings, stamp the header, swap directories
// with renames and fix ownership.
func (u *Updater) Apply(ctx context.Context, branch Branch) error {
	parent := filepath.Dir(u.config.Directory)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return errors.NewIOError("failed to create plugin parent directory", err).WithContext("path", parent)
	}

	staging, err := os.MkdirTemp(u.stagingRoot(), ".pluginupdate-*")
	if err != nil {
		return errors.NewIOError("failed to create staging directory", err).WithContext("path", u.stagingRoot())
	}
	defer os.RemoveAll(staging)

	source := filepath.Join(staging, "src")
	if err := u.remote.Clone(ctx, u.config.Repository, branch.Name, source); err != nil {
		return errors.NewNetworkError("failed to fetch plugin", err).WithContext("branch", branch.Name)
	}
	if err := os.RemoveAll(filepath.Join(source, ".git")); err != nil {
		return errors.NewIOError("failed to strip git metadata", err)
	}
	if err := normalizeLineEndings(source); err != nil {
		return errors.NewIOError("failed to normalize line endings", err)
	}

	mainFile := filepath.Join(source, u.config.MainFile)
	content, err := os.ReadFile(mainFile)
	if err != nil {
		return errors.NewIOError("plugin main file missing from "+branch.Name, err).WithContext("path", u.config.MainFile)
	}
	header := Header{Version: branch.Version(), Commit: shortCommit(branch.Commit)}
	if err := os.WriteFile(mainFile, RewriteHeader(content, header), 0o644); err != nil {
		return errors.NewIOError("failed to rewrite plugin header", err)
	}

	if err := swapDirectory(u.config.Directory, source, filepath.Join(staging, "previous")); err != nil {
		return errors.NewIOError("failed to install plugin", err).WithContext("path", u.config.Directory)
	}
	u.logger.Infof("Plugin installed, path: %s, version: %s, commit: %s", u.config.Directory, header.Version, header.Commit)

	if u.reconciler != nil {
		if _, err := u.reconciler.EnsureOwnership(ctx, u.config.Directory, u.config.UID, u.config.GID); err != nil {
			return err
		}
	}
	return nil
}

// swapDirectory moves replacement into place, keeping the current
// directory in backup until the move succeeded.
func swapDirectory(target, replacement, backup string) error {
	hadPrevious := true
	if err := os.Rename(target, backup); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		hadPrevious = false
	}
	if err := os.Rename(replacement, target); err != nil {
		if hadPrevious {
			if rollbackErr := os.Rename(backup, target); rollbackErr != nil {
				return fmt.Errorf("%w (rollback failed: %v)", err, rollbackErr)
			}
		}
		return err
	}
	return nil
}

// normalizeLineEndings rewrites CRLF to LF in every text file under root.
// Files containing a NUL byte are treated as binary and left alone.
func normalizeLineEndings(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if bytes.IndexByte(data, 0) >= 0 || !bytes.Contains(data, []byte("\r\n")) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return os.WriteFile(path, bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")), info.Mode().Perm())
	})
}

func shortCommit(commit string) string {
	if len(commit) > shortCommitLength {
		return commit[:shortCommitLength]
	}
	return commit
}
