package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/logcollection"
	"github.com/core-tools/hsu-entrypoint/pkg/logging"
)

// Check is one readiness test against a dependency. A nil error means ready.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result describes how a wait ended.
type Result struct {
	Ready     bool
	Attempts  int
	LastError error
}

type ProberOptions struct {
	Sleep Sleeper
	// Events receives attempt outcomes with dependency and attempt fields.
	// Without it they go to the prefix logger as plain text.
	Events logcollection.StructuredLogger
}

// Prober waits for dependencies one at a time.
type Prober struct {
	sleep  Sleeper
	events logcollection.StructuredLogger
	logger logging.Logger
}

func NewProber(options ProberOptions, logger logging.Logger) *Prober {
	if options.Sleep == nil {
		options.Sleep = SleepContext
	}
	return &Prober{
		sleep:  options.Sleep,
		events: options.Events,
		logger: logger,
	}
}

func (p *Prober) record(ctx context.Context, level logcollection.LogLevel, msg string, fields ...logcollection.LogField) {
	if p.events != nil {
		p.events.LogWithContext(ctx, level, msg, fields...)
		return
	}
	p.logger.LogLevelf(int(level), "%s, %s", msg, logcollection.FormatFields(fields...))
}

// WaitUntilReady runs check until it succeeds or policy.MaxAttempts checks
// have failed. The check precedes the sleep in each iteration, so a ready
// dependency costs no sleep and the k-th success costs exactly k-1 sleeps.
// No sleep follows the final failed attempt.
func (p *Prober) WaitUntilReady(ctx context.Context, check Check, policy RetryPolicy) (Result, error) {
	if err := ValidateRetryPolicy(policy); err != nil {
		return Result{}, errors.NewValidationError("invalid retry policy", err).WithContext("dependency", check.Name())
	}

	p.logger.Infof("Waiting for dependency, name: %s, max_attempts: %d, interval: %v",
		check.Name(), policy.MaxAttempts, policy.Interval)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt - 1, LastError: lastErr},
				errors.NewCancelledError("wait for dependency cancelled", err).WithContext("dependency", check.Name())
		}

		lastErr = p.attempt(ctx, check, policy.Timeout)
		if lastErr == nil {
			p.record(ctx, logcollection.InfoLevel, "Dependency is ready",
				logcollection.Dependency(check.Name()), logcollection.Attempt(attempt))
			return Result{Ready: true, Attempts: attempt}, nil
		}

		p.record(ctx, logcollection.WarnLevel, "Dependency not ready",
			logcollection.Dependency(check.Name()), logcollection.Attempt(attempt),
			logcollection.Int("max_attempts", policy.MaxAttempts), logcollection.Error(lastErr))

		if attempt == policy.MaxAttempts {
			break
		}

		if err := p.sleep(ctx, policy.Interval); err != nil {
			return Result{Attempts: attempt, LastError: lastErr},
				errors.NewCancelledError("wait for dependency cancelled", err).WithContext("dependency", check.Name())
		}
	}

	p.record(ctx, logcollection.ErrorLevel, "Dependency timed out",
		logcollection.Dependency(check.Name()), logcollection.Attempt(policy.MaxAttempts))

	return Result{Attempts: policy.MaxAttempts, LastError: lastErr},
		errors.NewDependencyTimeoutError(
			fmt.Sprintf("%s not ready after %d attempts", check.Name(), policy.MaxAttempts),
			lastErr,
		).WithContext("dependency", check.Name()).WithContext("attempts", policy.MaxAttempts)
}

func (p *Prober) attempt(ctx context.Context, check Check, timeout time.Duration) error {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return check.Check(attemptCtx)
}

// Target pairs a check with its own retry policy.
type Target struct {
	Check  Check
	Policy RetryPolicy
}

// WaitAll waits for targets strictly in order, stopping at the first one
// that times out.
func (p *Prober) WaitAll(ctx context.Context, targets []Target) error {
	for _, target := range targets {
		if _, err := p.WaitUntilReady(ctx, target.Check, target.Policy); err != nil {
			return err
		}
	}
	return nil
}
