package readiness

import (
	"time"

	"github.com/core-tools/hsu-entrypoint/pkg/errors"
)

// RetryPolicy bounds the worst-case wait for one dependency to
// MaxAttempts × (Timeout + Interval). The interval is fixed: the container
// orchestrator already restarts with backoff at a higher level.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout,omitempty"` // per attempt
}

// DefaultRetryPolicy matches the entrypoints' historical 30 × 2s loop.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 30,
		Interval:    2 * time.Second,
		Timeout:     5 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultRetryPolicy.
func (p RetryPolicy) WithDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Interval == 0 {
		p.Interval = def.Interval
	}
	if p.Timeout == 0 {
		p.Timeout = def.Timeout
	}
	return p
}

// Budget is the worst-case time spent sleeping between attempts.
func (p RetryPolicy) Budget() time.Duration {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return time.Duration(p.MaxAttempts-1) * p.Interval
}

// ValidateRetryPolicy validates retry policy values
func ValidateRetryPolicy(policy RetryPolicy) error {
	if policy.MaxAttempts < 1 {
		return errors.NewValidationError("max attempts must be at least 1", nil)
	}
	if policy.Interval < 0 {
		return errors.NewValidationError("retry interval cannot be negative", nil)
	}
	if policy.Timeout < 0 {
		return errors.NewValidationError("attempt timeout cannot be negative", nil)
	}
	return nil
}
