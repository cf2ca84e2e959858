package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shellprobe/internal/common"
	"github.com/ternarybob/shellprobe/internal/interfaces"
	"github.com/ternarybob/shellprobe/internal/models"
	"github.com/ternarybob/shellprobe/internal/services/diagnostics"
	"github.com/ternarybob/shellprobe/internal/services/process"
	"github.com/ternarybob/shellprobe/internal/services/readiness"
	"github.com/ternarybob/shellprobe/internal/services/reporting"
	"github.com/ternarybob/shellprobe/internal/services/scenarios"
	"github.com/ternarybob/shellprobe/internal/services/scheduler"
	"github.com/ternarybob/shellprobe/internal/services/supervisor"
	"github.com/ternarybob/shellprobe/internal/storage"
)

// ErrNoScenarios is returned when the scenario filter matches nothing
var ErrNoScenarios = errors.New("no scenarios match the filter")

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Output receives the run summary and diagnostic dumps (default: stdout)
	Output io.Writer

	// Lifecycle
	Launcher   *process.Launcher
	Gate       *readiness.Gate
	Supervisor *supervisor.Service

	// Failure handling and reporting
	Collector *diagnostics.Collector
	Reports   *reporting.Writer

	// Run history, nil unless storage.enabled
	RunStorage interfaces.RunStorage

	// Scheduler, created on first Schedule call
	Scheduler *scheduler.Service
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		Output: os.Stdout,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.initServices()

	logger.Debug().
		Str("command", cfg.App.Command).
		Str("readiness_policy", cfg.Readiness.Policy).
		Str("results_dir", cfg.Output.ResultsDir).
		Bool("storage", app.RunStorage != nil).
		Msg("Application initialized")

	return app, nil
}

// initDatabase opens run history storage when enabled
func (a *App) initDatabase() error {
	if !a.Config.Storage.Enabled {
		return nil
	}

	runStorage, err := storage.NewRunStorage(a.Logger, &a.Config.Storage)
	if err != nil {
		return err
	}
	a.RunStorage = runStorage
	return nil
}

func (a *App) initServices() {
	a.Launcher = process.NewLauncher(a.Logger, a.Config.Diagnostics.MaxHostLines)
	a.Gate = readiness.NewGate(a.Config, a.Logger)
	a.Supervisor = supervisor.NewService(a.Config, a.Logger, a.Launcher, a.Gate)
	a.Collector = diagnostics.NewCollector(a.Config, a.Logger, a.Output)
	a.Reports = reporting.NewWriter(a.Logger, a.Config.Output.ResultsDir)
}

// RunOnce performs one full harness run: start, scenarios, diagnostics,
// stop. The returned report is never nil when err is nil; a failed run is
// reported through the report rather than err.
func (a *App) RunOnce(ctx context.Context) (*models.RunReport, error) {
	selected := scenarios.Filter(scenarios.Smoke(a.Config), a.Config.Scenarios.Only)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoScenarios, a.Config.Scenarios.Only)
	}

	runID := common.NewRunID()
	runDir := a.Reports.RunDir(runID)
	a.Supervisor.SetArtifactsDir(runDir)
	a.Collector.SetArtifactsDir(runDir)

	a.Logger.Info().
		Str("run_id", runID).
		Int("scenarios", len(selected)).
		Msg("Starting run")

	runner := scenarios.NewRunner(a.Supervisor, a.Collector, a.Logger, selected)
	report := runner.Run(ctx, runID)

	if _, err := a.Reports.WriteRun(report); err != nil {
		a.Logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to write run artifacts")
	}

	if a.RunStorage != nil {
		if err := a.RunStorage.SaveRun(context.WithoutCancel(ctx), report); err != nil {
			a.Logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to save run history")
		}
	}

	reporting.WriteSummary(a.Output, report)

	passed, failed, skipped := report.Counts()
	a.Logger.Info().
		Str("run_id", runID).
		Bool("passed", report.Passed()).
		Int("scenarios_passed", passed).
		Int("scenarios_failed", failed).
		Int("scenarios_skipped", skipped).
		Msg("Run finished")

	return report, nil
}

// Schedule runs the harness on cronExpr until ctx ends
func (a *App) Schedule(ctx context.Context, cronExpr string) error {
	a.Scheduler = scheduler.NewService(a.Logger, func(ctx context.Context) error {
		report, err := a.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !report.Passed() {
			return fmt.Errorf("run %s failed", report.ID)
		}
		return nil
	})

	if err := a.Scheduler.Start(cronExpr); err != nil {
		return err
	}

	<-ctx.Done()
	return a.Scheduler.Stop()
}

// Close releases storage and stops the scheduler
func (a *App) Close() error {
	var errs []error

	if a.Scheduler != nil && a.Scheduler.IsRunning() {
		if err := a.Scheduler.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
	}

	if a.Supervisor != nil && a.Supervisor.IsRunning() {
		if err := a.Supervisor.Stop(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("supervisor: %w", err))
		}
	}

	if a.RunStorage != nil {
		if err := a.RunStorage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.Logger.Info().Msg("Application closed")
	return nil
}
