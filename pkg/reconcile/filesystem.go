package reconcile

import (
	"io/fs"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Entry is the ownership and mode of one path, as seen by lstat.
type Entry struct {
	Path    string
	UID     int
	GID     int
	Mode    uint32 // permission bits including setuid/setgid/sticky
	Symlink bool
}

// FileSystem is the narrow set of filesystem calls the reconciler needs.
// Walk never follows symlinks.
type FileSystem interface {
	Walk(root string, fn func(entry Entry) error) error
	Lchown(path string, uid, gid int) error
	Chmod(path string, mode uint32) error
}

// OSFileSystem is the real filesystem.
type OSFileSystem struct{}

func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

func (f *OSFileSystem) Walk(root string, fn func(entry Entry) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			return &fs.PathError{Op: "lstat", Path: path, Err: err}
		}
		return fn(Entry{
			Path:    path,
			UID:     int(st.Uid),
			GID:     int(st.Gid),
			Mode:    uint32(st.Mode) & 0o7777,
			Symlink: st.Mode&unix.S_IFMT == unix.S_IFLNK,
		})
	})
}

func (f *OSFileSystem) Lchown(path string, uid, gid int) error {
	if err := unix.Lchown(path, uid, gid); err != nil {
		return &fs.PathError{Op: "lchown", Path: path, Err: err}
	}
	return nil
}

func (f *OSFileSystem) Chmod(path string, mode uint32) error {
	if err := unix.Chmod(path, mode); err != nil {
		return &fs.PathError{Op: "chmod", Path: path, Err: err}
	}
	return nil
}
