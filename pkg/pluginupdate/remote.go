package pluginupdate

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"golang.org/x/mod/semver"
)

// Branch is a remote branch and its tip commit.
type Branch struct {
	Name   string
	Commit string
}

// Version returns the semantic version encoded in a "v<version>" branch
// name, or "" for any other branch.
func (b Branch) Version() string {
	if !strings.HasPrefix(b.Name, "v") {
		return ""
	}
	if canonical(b.Name) == "" {
		return ""
	}
	return strings.TrimPrefix(b.Name, "v")
}

// Remote is the source repository of a plugin.
type Remote interface {
	ListBranches(ctx context.Context, url string) ([]Branch, error)
	Clone(ctx context.Context, url, branch, dir string) error
}

// LatestBranch picks the highest "v<version>" branch.
func LatestBranch(branches []Branch) (Branch, bool) {
	versioned := make([]Branch, 0, len(branches))
	for _, branch := range branches {
		if branch.Version() != "" {
			versioned = append(versioned, branch)
		}
	}
	if len(versioned) == 0 {
		return Branch{}, false
	}
	return slices.MaxFunc(versioned, func(a, b Branch) int {
		return semver.Compare(canonical(a.Name), canonical(b.Name))
	}), true
}

// GitRemote talks to git servers directly, without a git binary.
type GitRemote struct{}

func NewGitRemote() *GitRemote {
	return &GitRemote{}
}

func (g *GitRemote) ListBranches(ctx context.Context, url string) ([]Branch, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list remote refs: %w", err)
	}

	branches := make([]Branch, 0, len(refs))
	for _, ref := range refs {
		if ref.Name().IsBranch() && ref.Type() == plumbing.HashReference {
			branches = append(branches, Branch{Name: ref.Name().Short(), Commit: ref.Hash().String()})
		}
	}
	return branches, nil
}

func (g *GitRemote) Clone(ctx context.Context, url, branch, dir string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           url,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s at %s: %w", url, branch, err)
	}
	return nil
}
