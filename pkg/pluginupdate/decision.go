package pluginupdate

import (
	"strings"

	"golang.org/x/mod/semver"
)

// NeedsUpdate reports whether the installed plugin should be replaced by
// the latest published one. Two independent conditions trigger an update:
// the installed version is behind (or not comparable to) latest, or the
// recorded commit differs from the remote tip.
//
// The conditions are ORed, so commit drift forces an update even when the
// installed version is newer than latest. That matches how deployed
// entrypoints behave and is kept as is.
func NeedsUpdate(installedVersion, installedCommit, latestVersion, latestCommit string) bool {
	return VersionBehind(installedVersion, latestVersion) || !SameCommit(installedCommit, latestCommit)
}

// VersionBehind reports whether installed differs from latest in any way
// other than being newer. Versions that are not semver are compared as
// plain strings.
func VersionBehind(installed, latest string) bool {
	if installed == latest {
		return false
	}
	iv, lv := canonical(installed), canonical(latest)
	if iv == "" || lv == "" {
		return true
	}
	return semver.Compare(iv, lv) < 0
}

// SameCommit compares commit hashes, accepting an abbreviated hash on
// either side. Empty hashes never match.
func SameCommit(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	return strings.HasPrefix(b, a)
}

// canonical returns the "vX.Y.Z" form of version, or "" when it is not a
// semantic version.
func canonical(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return ""
	}
	return semver.Canonical(version)
}
