package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/core-tools/hsu-entrypoint/pkg/config"
	"github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/logcollection"
	"github.com/core-tools/hsu-entrypoint/pkg/logging"
	"github.com/core-tools/hsu-entrypoint/pkg/sequencer"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Profile      string `long:"profile" env:"ENTRYPOINT_PROFILE" description:"built-in profile (wordpress, nginx, mariadb)"`
	Config       string `long:"config" env:"ENTRYPOINT_CONFIG" description:"profile YAML file, overrides --profile"`
	LogFormat    string `long:"log-format" env:"ENTRYPOINT_LOG_FORMAT" default:"console" choice:"console" choice:"json" description:"log encoding"`
	LogLevel     string `long:"log-level" env:"ENTRYPOINT_LOG_LEVEL" default:"info" description:"debug, info, warn or error"`
	LogBackend   string `long:"log-backend" env:"ENTRYPOINT_LOG_BACKEND" default:"zap" choice:"zap" choice:"plain" description:"logging backend"`
	NoColor      bool   `long:"no-color" env:"ENTRYPOINT_NO_COLOR" description:"disable colored console output"`
	DryRun       bool   `long:"dry-run" description:"validate and print the resolved plan without side effects"`
	ListProfiles bool   `long:"list-profiles" description:"print the built-in profiles and exit"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-entrypoint , ", module)
}

// fatal prints the severity-tagged line the container log driver shows and
// exits with the code mapped from err.
func fatal(color bool, err error) {
	label := "fatal"
	if errorType := errors.TypeOf(err); errorType != "" {
		label = strings.ReplaceAll(string(errorType), "_", " ") + " error"
	}
	fmt.Fprintln(os.Stderr, logging.Format(logging.SeverityFatal, label+": "+err.Error(), color))
	os.Exit(errors.ExitCode(err))
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash|flags.PassAfterNonOption)
	args, err := parser.ParseArgs(argv)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(errors.ExitSuccess)
		}
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(errors.ExitFailure)
	}

	color := !opts.NoColor && opts.LogFormat == "console"

	if opts.ListProfiles {
		for _, name := range config.BuiltinProfiles() {
			fmt.Println(name)
		}
		os.Exit(errors.ExitSuccess)
	}

	level, err := logcollection.ParseLogLevel(opts.LogLevel)
	if err != nil {
		fatal(color, errors.NewConfigurationError("invalid log level", err))
	}

	structuredLogger, err := logcollection.NewStructuredLoggerWithConfig(logcollection.LoggerConfig{
		Backend: opts.LogBackend,
		Level:   level,
		Format:  opts.LogFormat,
		Output:  "stderr",
		Color:   color,
	})
	if err != nil {
		fatal(color, errors.NewConfigurationError("failed to create logger", err))
	}
	defer structuredLogger.Sync()

	source, err := config.LoadSource(opts.Config, opts.Profile)
	if err != nil {
		fatal(color, err)
	}

	logger := logging.NewLogger(logPrefix(source.Name), logcollection.LogFuncs(structuredLogger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seq := sequencer.New(source, sequencer.Options{
		Resolvers: sequencer.DefaultResolvers(),
		Events:    structuredLogger,
		DryRun:    opts.DryRun,
	}, logger)

	if err := seq.Run(ctx, args); err != nil {
		structuredLogger.Sync()
		stop()
		fatal(color, err)
	}
}
