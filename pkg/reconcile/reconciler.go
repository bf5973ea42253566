package reconcile

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/logging"
)

// Outcome reports whether a reconcile call changed anything.
type Outcome int

const (
	Unchanged Outcome = iota
	Reconciled
	Created
	AlreadyExists
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Reconciled:
		return "reconciled"
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// OthersMask is the permission bits that must be cleared so that "others"
// have no access at all.
const OthersMask uint32 = 0o007

// Reconciler converges users, ownership and permissions on startup.
// Every Ensure* call inspects first and writes only on divergence, so a
// second call with no external change performs no writes.
type Reconciler struct {
	fs       FileSystem
	accounts AccountManager
	logger   logging.Logger
}

func NewReconciler(filesystem FileSystem, accounts AccountManager, logger logging.Logger) *Reconciler {
	if filesystem == nil {
		filesystem = NewOSFileSystem()
	}
	if accounts == nil {
		accounts = NewSystemAccounts()
	}
	return &Reconciler{
		fs:       filesystem,
		accounts: accounts,
		logger:   logger,
	}
}

// EnsureSystemUser creates the account only when no account with that name
// exists. An existing account is accepted as is, even if its IDs differ
// from uid and gid.
func (r *Reconciler) EnsureSystemUser(ctx context.Context, name string, uid, gid int) (Outcome, error) {
	if name == "" {
		return Unchanged, errors.NewValidationError("user name is required", nil)
	}
	if uid < 0 || gid < 0 {
		return Unchanged, errors.NewValidationError(fmt.Sprintf("invalid ids for user %s: uid %d, gid %d", name, uid, gid), nil)
	}

	exists, err := r.accounts.UserExists(name)
	if err != nil {
		return Unchanged, errors.NewReconciliationError("failed to look up user "+name, err).WithContext("user", name)
	}
	if exists {
		r.logger.Debugf("User already exists, name: %s", name)
		return AlreadyExists, nil
	}

	if err := r.accounts.CreateUser(ctx, name, uid, gid); err != nil {
		return Unchanged, errors.NewReconciliationError("failed to create user "+name, err).
			WithContext("user", name).WithContext("uid", uid).WithContext("gid", gid)
	}
	r.logger.Infof("User created, name: %s, uid: %d, gid: %d", name, uid, gid)
	return Created, nil
}

// EnsureOwnership chowns the whole tree under path when any entry is not
// owned by uid:gid. Symlinks are chowned themselves, never followed.
func (r *Reconciler) EnsureOwnership(ctx context.Context, path string, uid, gid int) (Outcome, error) {
	diverged, err := r.scan(ctx, path, func(entry Entry) bool {
		return entry.UID != uid || entry.GID != gid
	})
	if err != nil {
		return Unchanged, err
	}
	if diverged == "" {
		r.logger.Debugf("Ownership unchanged, path: %s", path)
		return Unchanged, nil
	}

	r.logger.Infof("Ownership diverges, path: %s, first: %s, target: %d:%d", path, diverged, uid, gid)

	err = r.fs.Walk(path, func(entry Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.fs.Lchown(entry.Path, uid, gid)
	})
	if err != nil {
		return Unchanged, r.reconcileError(ctx, "failed to change ownership", path, err)
	}
	return Reconciled, nil
}

// EnsurePermissions clears mask from every non-symlink entry under path
// when any entry carries one of its bits.
func (r *Reconciler) EnsurePermissions(ctx context.Context, path string, mask uint32) (Outcome, error) {
	diverged, err := r.scan(ctx, path, func(entry Entry) bool {
		return !entry.Symlink && entry.Mode&mask != 0
	})
	if err != nil {
		return Unchanged, err
	}
	if diverged == "" {
		r.logger.Debugf("Permissions unchanged, path: %s", path)
		return Unchanged, nil
	}

	r.logger.Infof("Permissions diverge, path: %s, first: %s, clearing: %#o", path, diverged, mask)

	err = r.fs.Walk(path, func(entry Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.Symlink || entry.Mode&mask == 0 {
			return nil
		}
		return r.fs.Chmod(entry.Path, entry.Mode&^mask)
	})
	if err != nil {
		return Unchanged, r.reconcileError(ctx, "failed to change permissions", path, err)
	}
	return Reconciled, nil
}

// scan returns the first path matching diverges, or "".
func (r *Reconciler) scan(ctx context.Context, root string, diverges func(Entry) bool) (string, error) {
	var first string
	err := r.fs.Walk(root, func(entry Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if diverges(entry) {
			first = entry.Path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", r.reconcileError(ctx, "failed to inspect", root, err)
	}
	return first, nil
}

func (r *Reconciler) reconcileError(ctx context.Context, message, path string, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelledError(message+" "+path, err).WithContext("path", path)
	}
	if os.IsPermission(err) {
		return errors.NewReconciliationError(message+" "+path, errors.NewPermissionError("permission denied", err)).
			WithContext("path", path)
	}
	return errors.NewReconciliationError(message+" "+path, err).WithContext("path", path)
}
