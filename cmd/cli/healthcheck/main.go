package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-entrypoint/pkg/config"
	"github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/health"
	"github.com/core-tools/hsu-entrypoint/pkg/logcollection"
	"github.com/core-tools/hsu-entrypoint/pkg/logging"
	"github.com/core-tools/hsu-entrypoint/pkg/sequencer"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Profile string        `long:"profile" env:"ENTRYPOINT_PROFILE" description:"built-in profile (wordpress, nginx, mariadb)"`
	Config  string        `long:"config" env:"ENTRYPOINT_CONFIG" description:"profile YAML file, overrides --profile"`
	Timeout time.Duration `long:"timeout" default:"10s" description:"overall deadline for all checks"`
	Verbose bool          `long:"verbose" description:"log every check, not only failures"`
	NoColor bool          `long:"no-color" env:"ENTRYPOINT_NO_COLOR" description:"disable colored output"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-healthcheck , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(errors.ExitFailure)
	}

	os.Exit(run(opts, sequencer.Options{}))
}

// run resolves the profile exactly like the entrypoint does, so secret
// references and *_FILE variables reach the checks as real values.
func run(opts flagOptions, options sequencer.Options) int {
	color := !opts.NoColor

	report := func(severity logging.Severity, format string, args ...interface{}) {
		fmt.Fprintln(os.Stderr, logging.Format(severity, fmt.Sprintf(format, args...), color))
	}

	source, err := config.LoadSource(opts.Config, opts.Profile)
	if err != nil {
		report(logging.SeverityFatal, "%v", err)
		return errors.ExitCode(err)
	}

	level := logcollection.WarnLevel
	if opts.Verbose {
		level = logcollection.DebugLevel
	}
	structuredLogger, err := logcollection.NewStructuredLogger("plain", level)
	if err != nil {
		report(logging.SeverityFatal, "%v", err)
		return errors.ExitFailure
	}
	logger := logging.NewLogger(logPrefix(source.Name), logcollection.LogFuncs(structuredLogger))

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	_, profile, err := sequencer.New(source, options, logger).Resolve(ctx)
	if err != nil {
		report(logging.SeverityFatal, "%v", err)
		return errors.ExitCode(err)
	}

	result, err := health.NewChecker(nil, logger).Run(ctx, profile.Health.Checks)
	if err != nil {
		report(logging.SeverityFatal, "%v", err)
		return errors.ExitCode(err)
	}

	for _, check := range result.Results {
		if check.Status == health.StatusHealthy {
			if opts.Verbose {
				report(logging.SeverityInfo, "%s: healthy (%v)", check.Name, check.Duration.Round(time.Millisecond))
			}
			continue
		}
		report(logging.SeverityError, "%s: %s", check.Name, check.Message)
	}

	if !result.Healthy() {
		return errors.ExitFailure
	}
	return errors.ExitSuccess
}
