package pluginupdate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsUpdate(t *testing.T) {
	tests := []struct {
		name             string
		installedVersion string
		installedCommit  string
		latestVersion    string
		latestCommit     string
		expected         bool
	}{
		{name: "identical", installedVersion: "1.2.0", installedCommit: "abc1234", latestVersion: "1.2.0", latestCommit: "abc1234", expected: false},
		{name: "newer_version_and_commit", installedVersion: "1.2.0", installedCommit: "abc1234", latestVersion: "1.3.0", latestCommit: "def5678", expected: true},
		// Installed is newer, but the commit differs and the two
		// conditions are independent.
		{name: "installed_newer_commit_differs", installedVersion: "1.3.0", installedCommit: "zzzzzzz", latestVersion: "1.2.0", latestCommit: "def5678", expected: true},
		{name: "installed_newer_same_commit", installedVersion: "1.3.0", installedCommit: "def5678", latestVersion: "1.2.0", latestCommit: "def5678", expected: false},
		{name: "same_version_commit_drift", installedVersion: "1.2.0", installedCommit: "abc1234", latestVersion: "1.2.0", latestCommit: "fff0000", expected: true},
		{name: "abbreviated_commit_matches_full", installedVersion: "1.2.0", installedCommit: "abc1234", latestVersion: "1.2.0", latestCommit: "abc1234f00dfeedbeef0000000000000000000000", expected: false},
		{name: "not_installed", installedVersion: "", installedCommit: "", latestVersion: "1.0.0", latestCommit: "abc1234", expected: true},
		{name: "missing_recorded_commit", installedVersion: "1.2.0", installedCommit: "", latestVersion: "1.2.0", latestCommit: "abc1234", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NeedsUpdate(tt.installedVersion, tt.installedCommit, tt.latestVersion, tt.latestCommit))
		})
	}
}

func TestVersionBehind(t *testing.T) {
	tests := []struct {
		name      string
		installed string
		latest    string
		expected  bool
	}{
		{name: "equal", installed: "1.2.0", latest: "1.2.0", expected: false},
		{name: "behind", installed: "1.2.0", latest: "1.3.0", expected: true},
		{name: "installed_newer", installed: "1.3.0", latest: "1.2.0", expected: false},
		{name: "numeric_not_lexicographic", installed: "1.9.0", latest: "1.10.0", expected: true},
		{name: "short_form", installed: "1.2", latest: "1.2.0", expected: false},
		{name: "v_prefix", installed: "v1.2.0", latest: "1.2.1", expected: true},
		{name: "not_semver_differs", installed: "nightly", latest: "1.0.0", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, VersionBehind(tt.installed, tt.latest))
		})
	}
}

func TestSameCommit(t *testing.T) {
	assert.True(t, SameCommit("ABC1234", "abc1234"))
	assert.True(t, SameCommit("abc1234ffff", "abc1234"))
	assert.False(t, SameCommit("abc1234", "abc1235"))
	assert.False(t, SameCommit("", ""))
}

func TestLatestBranch(t *testing.T) {
	branches := []Branch{
		{Name: "main", Commit: "m"},
		{Name: "v1.9.0", Commit: "a"},
		{Name: "v1.10.0", Commit: "b"},
		{Name: "v1.2.3", Commit: "c"},
		{Name: "vnext", Commit: "d"},
		{Name: "feature/v2.0.0", Commit: "e"},
	}

	latest, ok := LatestBranch(branches)
	assert.True(t, ok)
	assert.Equal(t, "v1.10.0", latest.Name)
	assert.Equal(t, "1.10.0", latest.Version())

	_, ok = LatestBranch([]Branch{{Name: "main"}, {Name: "develop"}})
	assert.False(t, ok)
}
