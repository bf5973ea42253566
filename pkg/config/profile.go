package config

import (
	"time"

	"github.com/core-tools/hsu-entrypoint/pkg/environment"
	"github.com/core-tools/hsu-entrypoint/pkg/pluginupdate"
	"github.com/core-tools/hsu-entrypoint/pkg/readiness"
)

// Profile is the full startup plan of one container image.
type Profile struct {
	Name         string                  `yaml:"name"`
	Description  string                  `yaml:"description,omitempty"`
	Variables    []environment.Variable  `yaml:"variables"`
	Dependencies []readiness.CheckConfig `yaml:"dependencies,omitempty"`
	Users        []UserConfig            `yaml:"users,omitempty"`
	Directories  []DirectoryConfig       `yaml:"directories,omitempty"`
	Ownership    []OwnershipConfig       `yaml:"ownership,omitempty"`
	Permissions  []PermissionConfig      `yaml:"permissions,omitempty"`
	BestEffort   []BestEffortStep        `yaml:"best_effort,omitempty"`
	PluginUpdate *PluginUpdateConfig     `yaml:"plugin_update,omitempty"`
	Launch       LaunchConfig            `yaml:"launch"`
	Health       HealthConfig            `yaml:"health,omitempty"`
}

// UserConfig is a system account that must exist before ownership is
// reconciled.
type UserConfig struct {
	Name string `yaml:"name"`
	UID  int    `yaml:"uid"`
	GID  int    `yaml:"gid"`
}

// DirectoryConfig is a directory created, if missing, before ownership and
// permissions are reconciled.
type DirectoryConfig struct {
	Path string `yaml:"path"`
	Mode uint32 `yaml:"mode,omitempty"`
}

// OwnershipConfig sets the owner of a tree, either by account name or by
// numeric IDs.
type OwnershipConfig struct {
	Path string `yaml:"path"`
	User string `yaml:"user,omitempty"`
	UID  *int   `yaml:"uid,omitempty"`
	GID  *int   `yaml:"gid,omitempty"`
}

type PermissionConfig struct {
	Path string `yaml:"path"`
	// Mask lists the bits cleared from every entry. Defaults to 0o007.
	Mask uint32 `yaml:"mask,omitempty"`
}

type BestEffortType string

const (
	BestEffortMountTmpfs BestEffortType = "mount_tmpfs"
	BestEffortEnsureDir  BestEffortType = "ensure_dir"
)

// BestEffortStep is an optional step whose failure is only logged.
type BestEffortStep struct {
	Type BestEffortType `yaml:"type"`
	Path string         `yaml:"path"`
	Size string         `yaml:"size,omitempty"` // mount_tmpfs
	Mode uint32         `yaml:"mode,omitempty"`
	User string         `yaml:"user,omitempty"`
}

type PluginUpdateConfig struct {
	Enabled             bool `yaml:"enabled"`
	pluginupdate.Config `yaml:",inline"`
}

// LaunchConfig names the program that replaces the entrypoint. Trailing
// command line arguments are appended to Target; DefaultArgs are used when
// there are none.
type LaunchConfig struct {
	Target      string   `yaml:"target,omitempty"`
	DefaultArgs []string `yaml:"default_args,omitempty"`
}

// HealthConfig lists one-shot checks run by the healthcheck command.
type HealthConfig struct {
	Checks []readiness.CheckConfig `yaml:"checks,omitempty"`
}

const (
	defaultPermissionMask uint32 = 0o007
	defaultDirectoryMode  uint32 = 0o755
	defaultPluginTimeout         = 2 * time.Minute
	defaultHealthTimeout         = 3 * time.Second
)
