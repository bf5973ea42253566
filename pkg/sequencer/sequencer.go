package sequencer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/core-tools/hsu-entrypoint/pkg/config"
	"github.com/core-tools/hsu-entrypoint/pkg/environment"
	"github.com/core-tools/hsu-entrypoint/pkg/errors"
	"github.com/core-tools/hsu-entrypoint/pkg/launcher"
	"github.com/core-tools/hsu-entrypoint/pkg/logcollection"
	"github.com/core-tools/hsu-entrypoint/pkg/logging"
	"github.com/core-tools/hsu-entrypoint/pkg/pluginupdate"
	"github.com/core-tools/hsu-entrypoint/pkg/readiness"
	"github.com/core-tools/hsu-entrypoint/pkg/reconcile"
)

type Stage string

const (
	StageValidate     Stage = "validate"
	StageProbe        Stage = "probe"
	StagePrepare      Stage = "prepare"
	StagePluginUpdate Stage = "plugin_update"
	StageReconcile    Stage = "reconcile"
	StageBestEffort   Stage = "best_effort"
	StageLaunch       Stage = "launch"
)

// Sequencer runs one profile: validate, wait for dependencies, create
// accounts and directories, update the plugin, reconcile ownership and
// permissions, run best-effort steps and hand over to the target. Stages
// run strictly in that order and the first fatal error stops the run.
// The plugin update precedes reconciliation so that freshly installed
// files end up with the desired owner and mode too.
type Sequencer struct {
	source  *config.Source
	options Options
	events  logcollection.StructuredLogger
	logger  logging.Logger
}

func New(source *config.Source, options Options, logger logging.Logger) *Sequencer {
	options.setDefaults()
	s := &Sequencer{
		source:  source,
		options: options,
		logger:  logger,
	}
	if options.Events != nil {
		s.events = options.Events.WithFields(logcollection.Profile(source.Name))
	}
	return s
}

func (s *Sequencer) stageLogger(stage Stage) logging.Logger {
	return logging.WithPrefix(s.logger, fmt.Sprintf("stage: %s, ", stage))
}

// record emits a stage event, structured when Options.Events is set and as
// a plain line on the stage logger otherwise.
func (s *Sequencer) record(stage Stage, level logcollection.LogLevel, msg string, fields ...logcollection.LogField) {
	if s.events != nil {
		s.events.WithStage(string(stage)).LogWithFields(level, msg, fields...)
		return
	}
	s.stageLogger(stage).LogLevelf(int(level), "%s, %s", msg, logcollection.FormatFields(fields...))
}

func (s *Sequencer) fail(stage Stage, started time.Time, err error) error {
	if s.events != nil {
		s.events.WithStage(string(stage)).WithError(err).
			LogWithFields(logcollection.ErrorLevel, "Stage failed", logcollection.Duration("elapsed", time.Since(started)))
	}
	return err
}

func (s *Sequencer) done(stage Stage, started time.Time) {
	s.record(stage, logcollection.DebugLevel, "Stage completed", logcollection.Duration("elapsed", time.Since(started)))
}

// Run executes the profile with the target's original arguments. On
// success it does not return unless the exec function is a fake or the run
// is a dry run.
func (s *Sequencer) Run(ctx context.Context, args []string) error {
	s.logger.Infof("Starting sequence, profile: %s, origin: %s", s.source.Name, s.source.Origin)

	values, profile, err := s.Resolve(ctx)
	if err != nil {
		return err
	}

	if s.options.DryRun {
		return s.printPlan(profile, values, args)
	}

	steps := []struct {
		stage Stage
		run   func(ctx context.Context, profile *config.Profile) error
	}{
		{StageProbe, s.probe},
		{StagePrepare, s.prepare},
		{StagePluginUpdate, s.updatePlugin},
		{StageReconcile, s.reconcile},
		{StageBestEffort, s.bestEffort},
	}
	for _, step := range steps {
		started := time.Now()
		stageCtx := logcollection.ContextWithStage(ctx, string(step.stage))
		if err := step.run(stageCtx, profile); err != nil {
			return s.fail(step.stage, started, err)
		}
		s.done(step.stage, started)
	}

	return s.launch(profile, values, args)
}

// Resolve validates the environment and expands the profile with it. It
// has no side effects beyond reading the environment, *_FILE secrets and
// secret references.
func (s *Sequencer) Resolve(ctx context.Context) (environment.Values, *config.Profile, error) {
	started := time.Now()
	logger := s.stageLogger(StageValidate)

	resolvers := make([]environment.SecretResolver, 0, len(s.options.Resolvers))
	for _, factory := range s.options.Resolvers {
		resolvers = append(resolvers, factory(s.options.Lookup))
	}

	validator := environment.NewValidator(environment.Options{
		Lookup:    s.options.Lookup,
		ReadFile:  s.options.ReadFile,
		Resolvers: resolvers,
	}, logger)

	values, err := validator.Validate(ctx, s.source.Variables)
	if err != nil {
		return nil, nil, s.fail(StageValidate, started, err)
	}

	profile, err := s.source.Resolve(values)
	if err != nil {
		return nil, nil, s.fail(StageValidate, started,
			errors.NewConfigurationError("invalid profile "+s.source.Name, err))
	}

	s.record(StageValidate, logcollection.InfoLevel, "Environment valid", logcollection.Int("variables", len(s.source.Variables)))
	return values, profile, nil
}

func (s *Sequencer) probe(ctx context.Context, profile *config.Profile) error {
	logger := s.stageLogger(StageProbe)
	prober := readiness.NewProber(readiness.ProberOptions{Sleep: s.options.Sleep, Events: s.events}, logger)

	targets := make([]readiness.Target, 0, len(profile.Dependencies))
	for _, dependency := range profile.Dependencies {
		check, err := s.options.CheckFactory(dependency, s.options.Dialer)
		if err != nil {
			return errors.NewConfigurationError("invalid dependency", err)
		}
		targets = append(targets, readiness.Target{Check: check, Policy: dependency.Retry})
	}

	return prober.WaitAll(ctx, targets)
}

func (s *Sequencer) reconciler(logger logging.Logger) *reconcile.Reconciler {
	return reconcile.NewReconciler(s.options.FileSystem, s.options.Accounts, logger)
}

// prepare creates accounts and directories. Both must exist before
// ownership can be reconciled.
func (s *Sequencer) prepare(ctx context.Context, profile *config.Profile) error {
	reconciler := s.reconciler(s.stageLogger(StagePrepare))

	for _, user := range profile.Users {
		outcome, err := reconciler.EnsureSystemUser(ctx, user.Name, user.UID, user.GID)
		if err != nil {
			return err
		}
		s.record(StagePrepare, logcollection.InfoLevel, "System user reconciled",
			logcollection.String("user", user.Name), logcollection.Object("outcome", outcome))
	}

	for _, directory := range profile.Directories {
		if err := ctx.Err(); err != nil {
			return errors.NewCancelledError("preparation cancelled", err)
		}
		if err := s.options.MkdirAll(directory.Path, os.FileMode(directory.Mode)); err != nil {
			return errors.NewReconciliationError("failed to create "+directory.Path, err).
				WithContext("path", directory.Path)
		}
		s.record(StagePrepare, logcollection.InfoLevel, "Directory present", logcollection.Path(directory.Path))
	}
	return nil
}

func (s *Sequencer) reconcile(ctx context.Context, profile *config.Profile) error {
	reconciler := s.reconciler(s.stageLogger(StageReconcile))

	for _, ownership := range profile.Ownership {
		uid, gid, err := s.owner(ownership.User, ownership.UID, ownership.GID)
		if err != nil {
			return errors.NewReconciliationError("cannot resolve owner of "+ownership.Path, err).
				WithContext("path", ownership.Path)
		}
		outcome, err := reconciler.EnsureOwnership(ctx, ownership.Path, uid, gid)
		if err != nil {
			return err
		}
		s.record(StageReconcile, logcollection.InfoLevel, "Ownership reconciled",
			logcollection.Path(ownership.Path), logcollection.Object("outcome", outcome))
	}

	for _, permission := range profile.Permissions {
		outcome, err := reconciler.EnsurePermissions(ctx, permission.Path, permission.Mask)
		if err != nil {
			return err
		}
		s.record(StageReconcile, logcollection.InfoLevel, "Permissions reconciled",
			logcollection.Path(permission.Path), logcollection.Object("outcome", outcome))
	}

	return nil
}

func (s *Sequencer) owner(name string, uid, gid *int) (int, int, error) {
	if name != "" {
		return s.options.LookupUser(name)
	}
	return *uid, *gid, nil
}

// bestEffort never fails the run.
func (s *Sequencer) bestEffort(ctx context.Context, profile *config.Profile) error {
	reconciler := s.reconciler(s.stageLogger(StageBestEffort))

	for _, step := range profile.BestEffort {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.runBestEffortStep(ctx, reconciler, step); err != nil {
			s.record(StageBestEffort, logcollection.WarnLevel, "Optional step failed",
				logcollection.String("type", string(step.Type)), logcollection.Path(step.Path), logcollection.Error(err))
			continue
		}
		s.record(StageBestEffort, logcollection.InfoLevel, "Optional step done",
			logcollection.String("type", string(step.Type)), logcollection.Path(step.Path))
	}
	return nil
}

func (s *Sequencer) runBestEffortStep(ctx context.Context, reconciler *reconcile.Reconciler, step config.BestEffortStep) error {
	var uid, gid int
	owned := step.User != ""
	if owned {
		var err error
		if uid, gid, err = s.options.LookupUser(step.User); err != nil {
			return err
		}
	}

	switch step.Type {
	case config.BestEffortEnsureDir:
		if err := s.options.MkdirAll(step.Path, os.FileMode(step.Mode)); err != nil {
			return err
		}
		if owned {
			_, err := reconciler.EnsureOwnership(ctx, step.Path, uid, gid)
			return err
		}
		return nil

	case config.BestEffortMountTmpfs:
		mounted, err := s.options.Mounter.IsMountPoint(step.Path)
		if err != nil {
			return err
		}
		if mounted {
			return nil
		}
		return s.options.Mounter.MountTmpfs(step.Path, tmpfsOptions(step.Size, step.Mode, uid, gid, owned))
	}
	return fmt.Errorf("unsupported step type %s", step.Type)
}

// updatePlugin never fails the run: the installed plugin keeps serving.
func (s *Sequencer) updatePlugin(ctx context.Context, profile *config.Profile) error {
	if profile.PluginUpdate == nil || !profile.PluginUpdate.Enabled {
		return nil
	}
	logger := s.stageLogger(StagePluginUpdate)

	updater := pluginupdate.NewUpdater(profile.PluginUpdate.Config, s.options.PluginRemote, s.reconciler(logger), logger)
	updated, err := updater.Run(ctx)
	if err != nil {
		s.record(StagePluginUpdate, logcollection.WarnLevel, "Plugin update failed, keeping installed version",
			logcollection.Path(profile.PluginUpdate.Directory), logcollection.Error(err))
		return nil
	}
	if !updated {
		s.record(StagePluginUpdate, logcollection.InfoLevel, "Plugin is up to date", logcollection.Path(profile.PluginUpdate.Directory))
	}
	return nil
}

func (s *Sequencer) launch(profile *config.Profile, values environment.Values, args []string) error {
	logger := s.stageLogger(StageLaunch)

	if len(args) == 0 {
		args = profile.Launch.DefaultArgs
	}

	l := launcher.NewLauncher(launcher.Options{
		Exec:     s.options.Exec,
		LookPath: s.options.LookPath,
	}, logger)

	return l.Launch(profile.Launch.Target, args, values.Environ(s.options.Environ()))
}

func (s *Sequencer) printPlan(profile *config.Profile, values environment.Values, args []string) error {
	var secrets []string
	for _, variable := range profile.Variables {
		if variable.Sensitive {
			secrets = append(secrets, values.Get(variable.Name))
		}
	}

	rendered, err := config.Render(profile, secrets)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = profile.Launch.DefaultArgs
	}
	argv, err := launcher.Command(profile.Launch.Target, args)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# profile: %s (%s)\n", profile.Name, s.source.Origin)
	for _, line := range environment.Display(profile.Variables, values) {
		fmt.Fprintf(&b, "# %s\n", line)
	}
	fmt.Fprintf(&b, "# exec: %q\n", argv)
	b.WriteString(rendered)

	if _, err := fmt.Fprint(s.options.Output, b.String()); err != nil {
		return errors.NewIOError("failed to write plan", err)
	}
	return nil
}
