package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/core-tools/hsu-entrypoint/pkg/environment"
	domainErrors "github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/sequencer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The exec check only passes when DB_PASSWORD reaches it resolved.
const secretProfile = `
name: db
variables:
  - name: DB_PASSWORD
    required: true
    sensitive: true
launch:
  target: /app
health:
  checks:
    - name: password-resolved
      type: exec
      exec:
        command: test
        args: ["${DB_PASSWORD}", "=", "s3cr3t"]
`

type staticResolver map[string]string

func (r staticResolver) Handles(value string) bool {
	return strings.HasPrefix(value, "op://")
}

func (r staticResolver) Resolve(ctx context.Context, reference string) (string, error) {
	secret, ok := r[reference]
	if !ok {
		return "", errors.New("item not found")
	}
	return secret, nil
}

func writeProfile(t *testing.T) flagOptions {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.yaml")
	require.NoError(t, os.WriteFile(path, []byte(secretProfile), 0o644))
	return flagOptions{Config: path, Timeout: 5 * time.Second, NoColor: true}
}

func lookupFrom(env map[string]string) environment.LookupFunc {
	return func(name string) (string, bool) {
		value, ok := env[name]
		return value, ok
	}
}

func TestRun_ResolvesSecretReferences(t *testing.T) {
	opts := writeProfile(t)
	env := map[string]string{"DB_PASSWORD": "op://infra/db/password"}

	tests := []struct {
		name      string
		resolvers []sequencer.SecretResolverFactory
		expected  int
	}{
		{
			name: "resolved_reference_is_healthy",
			resolvers: []sequencer.SecretResolverFactory{func(environment.LookupFunc) environment.SecretResolver {
				return staticResolver{"op://infra/db/password": "s3cr3t"}
			}},
			expected: domainErrors.ExitSuccess,
		},
		{
			name:     "default_resolver_without_token_fails",
			expected: domainErrors.ExitFailure,
		},
		{
			name:      "literal_reference_is_unhealthy",
			resolvers: []sequencer.SecretResolverFactory{},
			expected:  domainErrors.ExitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := run(opts, sequencer.Options{Lookup: lookupFrom(env), Resolvers: tt.resolvers})
			assert.Equal(t, tt.expected, code)
		})
	}
}

func TestRun_PlainValueIsHealthy(t *testing.T) {
	opts := writeProfile(t)

	code := run(opts, sequencer.Options{Lookup: lookupFrom(map[string]string{"DB_PASSWORD": "s3cr3t"})})

	assert.Equal(t, domainErrors.ExitSuccess, code)
}

func TestRun_MissingVariableFails(t *testing.T) {
	opts := writeProfile(t)

	code := run(opts, sequencer.Options{Lookup: lookupFrom(map[string]string{})})

	assert.Equal(t, domainErrors.ExitFailure, code)
}
