package config

import (
	"fmt"
	"path/filepath"

	"github.com/core-tools/hsu-entrypoint/pkg/environment"
	"github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/pluginupdate"
	"github.com/core-tools/hsu-entrypoint/pkg/readiness"
)

// setProfileDefaults applies default values to a decoded profile
func setProfileDefaults(profile *Profile) {
	for i := range profile.Dependencies {
		dependency := &profile.Dependencies[i]
		dependency.Retry = dependency.Retry.WithDefaults()
	}

	// Health checks run once per invocation; the orchestrator retries.
	for i := range profile.Health.Checks {
		check := &profile.Health.Checks[i]
		check.Retry.MaxAttempts = 1
		if check.Retry.Timeout == 0 {
			check.Retry.Timeout = defaultHealthTimeout
		}
	}

	for i := range profile.Permissions {
		if profile.Permissions[i].Mask == 0 {
			profile.Permissions[i].Mask = defaultPermissionMask
		}
	}

	for i := range profile.Directories {
		if profile.Directories[i].Mode == 0 {
			profile.Directories[i].Mode = defaultDirectoryMode
		}
	}

	for i := range profile.BestEffort {
		if profile.BestEffort[i].Mode == 0 {
			profile.BestEffort[i].Mode = defaultDirectoryMode
		}
	}

	if profile.PluginUpdate != nil && profile.PluginUpdate.Timeout == 0 {
		profile.PluginUpdate.Timeout = defaultPluginTimeout
	}
}

// ValidateProfile validates the entire profile structure
func ValidateProfile(profile *Profile) error {
	if profile == nil {
		return errors.NewValidationError("profile cannot be nil", nil)
	}
	if profile.Name == "" {
		return errors.NewValidationError("profile name is required", nil)
	}

	if err := environment.ValidateDeclarations(profile.Variables); err != nil {
		return errors.NewValidationError("invalid variables", err)
	}

	for i, dependency := range profile.Dependencies {
		if err := readiness.ValidateCheckConfig(dependency); err != nil {
			return indexed("invalid dependency", i, err)
		}
	}

	for i, user := range profile.Users {
		if user.Name == "" {
			return indexed("invalid user", i, errors.NewValidationError("user name is required", nil))
		}
		if user.UID < 0 || user.GID < 0 {
			return indexed("invalid user", i, errors.NewValidationError("user ids cannot be negative", nil))
		}
	}

	for i, directory := range profile.Directories {
		if err := validateAbsolutePath(directory.Path); err != nil {
			return indexed("invalid directory", i, err)
		}
		if directory.Mode > 0o7777 {
			return indexed("invalid directory", i, errors.NewValidationError(fmt.Sprintf("mode %#o out of range", directory.Mode), nil))
		}
	}

	for i, ownership := range profile.Ownership {
		if err := validateOwnership(ownership); err != nil {
			return indexed("invalid ownership", i, err)
		}
	}

	for i, permission := range profile.Permissions {
		if err := validateAbsolutePath(permission.Path); err != nil {
			return indexed("invalid permissions", i, err)
		}
		if permission.Mask > 0o7777 {
			return indexed("invalid permissions", i, errors.NewValidationError(fmt.Sprintf("mask %#o out of range", permission.Mask), nil))
		}
	}

	for i, step := range profile.BestEffort {
		if err := validateBestEffortStep(step); err != nil {
			return indexed("invalid best-effort step", i, err)
		}
	}

	if profile.PluginUpdate != nil && profile.PluginUpdate.Enabled {
		if err := pluginupdate.ValidateConfig(profile.PluginUpdate.Config); err != nil {
			return errors.NewValidationError("invalid plugin update", err)
		}
	}

	if profile.Launch.Target == "" && len(profile.Launch.DefaultArgs) == 0 {
		return errors.NewValidationError("launch needs a target or default arguments", nil)
	}

	for i, check := range profile.Health.Checks {
		if err := readiness.ValidateCheckConfig(check); err != nil {
			return indexed("invalid health check", i, err)
		}
	}

	return nil
}

func validateOwnership(ownership OwnershipConfig) error {
	if err := validateAbsolutePath(ownership.Path); err != nil {
		return err
	}
	if ownership.User != "" {
		if ownership.UID != nil || ownership.GID != nil {
			return errors.NewValidationError("ownership takes either user or uid/gid, not both", nil)
		}
		return nil
	}
	if ownership.UID == nil || ownership.GID == nil {
		return errors.NewValidationError("ownership needs user or both uid and gid", nil)
	}
	if *ownership.UID < 0 || *ownership.GID < 0 {
		return errors.NewValidationError("ownership ids cannot be negative", nil)
	}
	return nil
}

func validateBestEffortStep(step BestEffortStep) error {
	if err := validateAbsolutePath(step.Path); err != nil {
		return err
	}
	switch step.Type {
	case BestEffortMountTmpfs, BestEffortEnsureDir:
	default:
		return errors.NewValidationError("unsupported best-effort step: "+string(step.Type), nil).
			WithContext("supported_types", "mount_tmpfs, ensure_dir")
	}
	if step.Mode > 0o7777 {
		return errors.NewValidationError(fmt.Sprintf("mode %#o out of range", step.Mode), nil)
	}
	return nil
}

func validateAbsolutePath(path string) error {
	if path == "" {
		return errors.NewValidationError("path is required", nil)
	}
	if !filepath.IsAbs(path) {
		return errors.NewValidationError("path must be absolute: "+path, nil)
	}
	return nil
}

func indexed(message string, index int, err error) error {
	return errors.NewValidationError(fmt.Sprintf("%s at index %d", message, index), err).
		WithContext("index", index)
}
