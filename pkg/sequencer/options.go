package sequencer

import (
	"io"
	"os"
	"os/user"
	"strconv"

	"github.com/core-tools/hsu-entrypoint/pkg/environment"
	"github.com/core-tools/hsu-entrypoint/pkg/launcher"
	"github.com/core-tools/hsu-entrypoint/pkg/logcollection"
	"github.com/core-tools/hsu-entrypoint/pkg/pluginupdate"
	"github.com/core-tools/hsu-entrypoint/pkg/readiness"
	"github.com/core-tools/hsu-entrypoint/pkg/reconcile"
)

// CheckFactory builds a readiness check from its configuration.
type CheckFactory func(config readiness.CheckConfig, dialer readiness.Dialer) (readiness.Check, error)

// UserLookup resolves an account name to its numeric IDs.
type UserLookup func(name string) (uid, gid int, err error)

// Options injects every collaborator that touches the outside world. Zero
// values select the real implementation.
type Options struct {
	// Environment
	Lookup   environment.LookupFunc
	ReadFile func(path string) ([]byte, error)
	// Resolvers defaults to DefaultResolvers; an empty non-nil slice
	// disables secret references.
	Resolvers []SecretResolverFactory

	// Readiness
	Dialer       readiness.Dialer
	Sleep        readiness.Sleeper
	CheckFactory CheckFactory

	// Reconciliation
	FileSystem reconcile.FileSystem
	Accounts   reconcile.AccountManager
	LookupUser UserLookup
	Mounter    Mounter
	MkdirAll   func(path string, mode os.FileMode) error

	// Plugin update
	PluginRemote pluginupdate.Remote

	// Launch
	Exec     launcher.ExecFunc
	LookPath func(file string) (string, error)
	Environ  func() []string

	// Events receives stage events with profile, stage, dependency and
	// path fields. Optional.
	Events logcollection.StructuredLogger

	// DryRun stops after validation and writes the resolved plan to Output.
	DryRun bool
	Output io.Writer
}

// SecretResolverFactory builds a resolver once the raw environment is
// known, e.g. to pick up a service account token.
type SecretResolverFactory func(lookup environment.LookupFunc) environment.SecretResolver

// OnePassword resolves op:// references with the token from
// OP_SERVICE_ACCOUNT_TOKEN.
func OnePassword(lookup environment.LookupFunc) environment.SecretResolver {
	token, _ := lookup(environment.OnePasswordTokenEnv)
	return environment.NewOnePasswordResolver(token)
}

// DefaultResolvers lists the secret reference schemes understood by both
// the entrypoint and the healthcheck.
func DefaultResolvers() []SecretResolverFactory {
	return []SecretResolverFactory{OnePassword}
}

func (o *Options) setDefaults() {
	if o.Lookup == nil {
		o.Lookup = os.LookupEnv
	}
	if o.Resolvers == nil {
		o.Resolvers = DefaultResolvers()
	}
	if o.CheckFactory == nil {
		o.CheckFactory = readiness.NewCheck
	}
	if o.FileSystem == nil {
		o.FileSystem = reconcile.NewOSFileSystem()
	}
	if o.Accounts == nil {
		o.Accounts = reconcile.NewSystemAccounts()
	}
	if o.LookupUser == nil {
		o.LookupUser = lookupSystemUser
	}
	if o.Mounter == nil {
		o.Mounter = NewUnixMounter()
	}
	if o.MkdirAll == nil {
		o.MkdirAll = os.MkdirAll
	}
	if o.Environ == nil {
		o.Environ = os.Environ
	}
	if o.Output == nil {
		o.Output = os.Stdout
	}
}

func lookupSystemUser(name string) (int, int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, err
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, err
	}
	return uid, gid, nil
}
