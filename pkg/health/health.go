package health

import (
	"context"
	"time"

	"github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/logging"
	"github.com/core-tools/hsu-entrypoint/pkg/readiness"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string
	Status   Status
	Message  string
	Duration time.Duration
}

// Report aggregates a health run. The service is healthy only if every
// check passed.
type Report struct {
	Status  Status
	Results []CheckResult
}

func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Checker runs every configured check once, without retries. The container
// orchestrator owns the retry and restart decision.
type Checker struct {
	dialer readiness.Dialer
	logger logging.Logger
	now    func() time.Time
}

func NewChecker(dialer readiness.Dialer, logger logging.Logger) *Checker {
	return &Checker{
		dialer: dialer,
		logger: logger,
		now:    time.Now,
	}
}

// Run executes all checks, in order, even after a failure so the report is
// complete. It returns an error only for an invalid configuration.
func (c *Checker) Run(ctx context.Context, configs []readiness.CheckConfig) (Report, error) {
	if len(configs) == 0 {
		return Report{}, errors.NewValidationError("no health checks configured", nil)
	}

	checks := make([]readiness.Check, 0, len(configs))
	for _, config := range configs {
		check, err := readiness.NewCheck(config, c.dialer)
		if err != nil {
			return Report{}, err
		}
		checks = append(checks, check)
	}

	prober := readiness.NewProber(readiness.ProberOptions{}, logging.NewNopLogger())
	report := Report{Status: StatusHealthy}
	for i, check := range checks {
		policy := configs[i].Retry
		policy.MaxAttempts = 1

		start := c.now()
		result, err := prober.WaitUntilReady(ctx, check, policy)
		checkResult := CheckResult{
			Name:     check.Name(),
			Status:   StatusHealthy,
			Duration: c.now().Sub(start),
		}
		if err != nil || !result.Ready {
			checkResult.Status = StatusUnhealthy
			if result.LastError != nil {
				checkResult.Message = result.LastError.Error()
			} else if err != nil {
				checkResult.Message = err.Error()
			}
			report.Status = StatusUnhealthy
			c.logger.Warnf("Health check failed, name: %s, error: %s", checkResult.Name, checkResult.Message)
		} else {
			c.logger.Debugf("Health check passed, name: %s, duration: %v", checkResult.Name, checkResult.Duration)
		}
		report.Results = append(report.Results, checkResult)
	}
	return report, nil
}
