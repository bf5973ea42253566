package sequencer

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Mounter mounts the tmpfs used by best-effort cache steps.
type Mounter interface {
	IsMountPoint(path string) (bool, error)
	MountTmpfs(path, data string) error
}

type UnixMounter struct{}

func NewUnixMounter() *UnixMounter {
	return &UnixMounter{}
}

// IsMountPoint compares the device of path with the device of its parent.
func (m *UnixMounter) IsMountPoint(path string) (bool, error) {
	var self, parent unix.Stat_t
	if err := unix.Stat(path, &self); err != nil {
		return false, err
	}
	if err := unix.Stat(filepath.Dir(filepath.Clean(path)), &parent); err != nil {
		return false, err
	}
	return self.Dev != parent.Dev, nil
}

func (m *UnixMounter) MountTmpfs(path, data string) error {
	if err := unix.Mount("tmpfs", path, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, data); err != nil {
		return fmt.Errorf("mount tmpfs on %s: %w", path, err)
	}
	return nil
}

func tmpfsOptions(size string, mode uint32, uid, gid int, owned bool) string {
	data := fmt.Sprintf("mode=%o", mode)
	if size != "" {
		data = "size=" + size + "," + data
	}
	if owned {
		data += fmt.Sprintf(",uid=%d,gid=%d", uid, gid)
	}
	return data
}
