package reconcile

import (
	"context"
	"fmt"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
)

// AccountManager looks up and creates system accounts.
type AccountManager interface {
	UserExists(name string) (bool, error)
	CreateUser(ctx context.Context, name string, uid, gid int) error
}

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// SystemAccounts manages accounts in /etc/passwd and /etc/group through the
// distribution's tools: shadow-utils (groupadd/useradd) when available,
// busybox (addgroup/adduser) otherwise.
type SystemAccounts struct {
	Run      CommandRunner
	LookPath func(file string) (string, error)
}

func NewSystemAccounts() *SystemAccounts {
	return &SystemAccounts{Run: runCommand, LookPath: exec.LookPath}
}

func (a *SystemAccounts) UserExists(name string) (bool, error) {
	_, err := user.Lookup(name)
	if err == nil {
		return true, nil
	}
	if _, ok := err.(user.UnknownUserError); ok {
		return false, nil
	}
	return false, err
}

// CreateUser creates a system user with the given IDs. An existing group
// with gid is reused under its own name; otherwise a group named after the
// user is created first.
func (a *SystemAccounts) CreateUser(ctx context.Context, name string, uid, gid int) error {
	groupName, err := a.ensureGroup(ctx, name, gid)
	if err != nil {
		return err
	}

	var args []string
	tool := "useradd"
	if a.hasShadowUtils() {
		args = []string{"--system", "--no-create-home", "--uid", strconv.Itoa(uid), "--gid", groupName,
			"--shell", "/sbin/nologin", name}
	} else {
		tool = "adduser"
		args = []string{"-S", "-D", "-H", "-u", strconv.Itoa(uid), "-G", groupName, "-s", "/sbin/nologin", name}
	}
	if output, err := a.Run(ctx, tool, args...); err != nil {
		return fmt.Errorf("%s %s failed: %w, output: %s", tool, name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (a *SystemAccounts) ensureGroup(ctx context.Context, name string, gid int) (string, error) {
	if group, err := user.LookupGroupId(strconv.Itoa(gid)); err == nil {
		return group.Name, nil
	}
	if _, err := user.LookupGroup(name); err == nil {
		return "", fmt.Errorf("group %s exists with a different gid than %d", name, gid)
	}

	tool, args := "groupadd", []string{"--system", "--gid", strconv.Itoa(gid), name}
	if !a.hasShadowUtils() {
		tool, args = "addgroup", []string{"-S", "-g", strconv.Itoa(gid), name}
	}
	if output, err := a.Run(ctx, tool, args...); err != nil {
		return "", fmt.Errorf("%s %s failed: %w, output: %s", tool, name, err, strings.TrimSpace(string(output)))
	}
	return name, nil
}

func (a *SystemAccounts) hasShadowUtils() bool {
	_, err := a.LookPath("useradd")
	return err == nil
}
