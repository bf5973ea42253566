package environment

import (
	"context"
	"strings"
	"sync"

	"github.com/1password/onepassword-sdk-go"

	"github.com/core-tools/hsu-entrypoint/pkg/errors"
)

// SecretResolver turns a secret reference into its value.
type SecretResolver interface {
	Handles(value string) bool
	Resolve(ctx context.Context, reference string) (string, error)
}

const (
	onePasswordScheme   = "op://"
	OnePasswordTokenEnv = "OP_SERVICE_ACCOUNT_TOKEN"
)

// IntegrationName and IntegrationVersion identify this tool to 1Password.
var (
	IntegrationName    = "hsu-entrypoint"
	IntegrationVersion = "v1.0.0"
)

// OnePasswordResolver resolves op://vault/item/field references. The SDK
// client is created on first use, so containers without references never
// talk to 1Password.
type OnePasswordResolver struct {
	token string

	once   sync.Once
	client *onepassword.Client
	err    error
}

func NewOnePasswordResolver(token string) *OnePasswordResolver {
	return &OnePasswordResolver{token: strings.TrimSpace(token)}
}

func (r *OnePasswordResolver) Handles(value string) bool {
	return strings.HasPrefix(value, onePasswordScheme)
}

func (r *OnePasswordResolver) Resolve(ctx context.Context, reference string) (string, error) {
	if r.token == "" {
		return "", errors.NewConfigurationError(
			"secret reference found but "+OnePasswordTokenEnv+" is not set", nil,
		).WithContext("reference", reference)
	}

	r.once.Do(func() {
		r.client, r.err = onepassword.NewClient(ctx,
			onepassword.WithServiceAccountToken(r.token),
			onepassword.WithIntegrationInfo(IntegrationName, IntegrationVersion),
		)
	})
	if r.err != nil {
		return "", errors.NewNetworkError("failed to create 1Password client", r.err)
	}

	secret, err := r.client.Secrets().Resolve(ctx, reference)
	if err != nil {
		return "", errors.NewNetworkError("failed to resolve secret reference", err).WithContext("reference", reference)
	}
	return secret, nil
}
