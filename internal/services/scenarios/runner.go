package scenarios

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shellprobe/internal/common"
	"github.com/ternarybob/shellprobe/internal/interfaces"
	"github.com/ternarybob/shellprobe/internal/models"
	"github.com/ternarybob/shellprobe/internal/services/diagnostics"
)

// DiagnosticsCollector gathers logs for a failed scenario
type DiagnosticsCollector interface {
	CollectOnFailure(ctx context.Context, client interfaces.AutomationClient, label string) diagnostics.Report
}

// Runner drives one harness run: start the application, run every scenario
// in order, collect diagnostics for failures and always stop the application.
type Runner struct {
	supervisor interfaces.Supervisor
	collector  DiagnosticsCollector
	logger     arbor.ILogger
	scenarios  []Scenario

	mu    sync.Mutex
	state models.RunState
}

// NewRunner creates a runner for scenarios
func NewRunner(supervisor interfaces.Supervisor, collector DiagnosticsCollector, logger arbor.ILogger, scenarios []Scenario) *Runner {
	return &Runner{
		supervisor: supervisor,
		collector:  collector,
		logger:     logger,
		scenarios:  scenarios,
		state:      models.RunStateIdle,
	}
}

// State returns the runner's current state
func (r *Runner) State() models.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(state models.RunState) {
	r.mu.Lock()
	prev := r.state
	r.state = state
	r.mu.Unlock()
	r.logger.Trace().Str("from", prev.String()).Str("to", state.String()).Msg("Run state changed")
}

// Run performs a complete run and returns its report. runID may be empty.
func (r *Runner) Run(ctx context.Context, runID string) *models.RunReport {
	if runID == "" {
		runID = common.NewRunID()
	}
	report := &models.RunReport{
		ID:        runID,
		StartedAt: time.Now(),
		Results:   make([]models.ScenarioResult, 0, len(r.scenarios)),
	}

	r.setState(models.RunStateStarting)
	r.logger.Info().Str("run_id", runID).Int("scenarios", len(r.scenarios)).Msg("Starting application")

	if err := r.supervisor.Start(ctx); err != nil {
		r.logger.Error().Err(err).Str("kind", common.ErrorKind(err)).Msg("Application failed to start")
		report.SetupError = err
		for _, s := range r.scenarios {
			report.Results = append(report.Results, skipped(s.Name, err))
		}
	} else {
		r.setState(models.RunStateReady)
		if window, err := r.supervisor.Window(); err == nil {
			report.Window = window
		}
		r.runAll(ctx, report)
	}

	r.setState(models.RunStateStopping)
	// Teardown must run even when the caller has given up
	if err := r.supervisor.Stop(context.WithoutCancel(ctx)); err != nil {
		r.logger.Error().Err(err).Msg("Application teardown failed")
		report.TeardownError = err
	}

	r.setState(models.RunStateStopped)
	report.FinishedAt = time.Now()

	passed, failed, skippedCount := report.Counts()
	r.logger.Info().
		Str("run_id", runID).
		Int("passed", passed).
		Int("failed", failed).
		Int("skipped", skippedCount).
		Bool("ok", report.Passed()).
		Msg("Run finished")

	return report
}

func (r *Runner) runAll(ctx context.Context, report *models.RunReport) {
	for i, s := range r.scenarios {
		if err := ctx.Err(); err != nil {
			for _, rest := range r.scenarios[i:] {
				report.Results = append(report.Results, skipped(rest.Name, err))
			}
			return
		}

		r.setState(models.RunStateRunning)
		result := r.runScenario(ctx, s)

		if result.Passed {
			r.logger.Info().Str("scenario", s.Name).Str("duration", result.Duration.String()).Msg("PASS")
		} else {
			r.logger.Error().Str("scenario", s.Name).Err(result.Err).Msg("FAIL")
			r.setState(models.RunStateDiagnostics)
			r.collect(ctx, &result)
		}

		report.Results = append(report.Results, result)
	}
}

// runScenario runs s, turning a panic into a failed result
func (r *Runner) runScenario(ctx context.Context, s Scenario) (result models.ScenarioResult) {
	start := time.Now()
	result.Name = s.Name

	defer func() {
		if p := recover(); p != nil {
			result.Passed = false
			result.Err = fmt.Errorf("scenario panicked: %v", p)
			r.logger.Error().
				Str("scenario", s.Name).
				Str("panic", fmt.Sprintf("%v", p)).
				Str("stack", common.GetStackTrace()).
				Msg("Recovered from panic in scenario")
		}
		result.Duration = time.Since(start)
	}()

	client, err := r.supervisor.Client()
	if err != nil {
		result.Err = err
		return result
	}
	window, _ := r.supervisor.Window()

	recorder := NewRecorder(s.Name)
	sc := &ScenarioContext{
		Client:   client,
		Window:   window,
		Logger:   r.logger,
		Assert:   assert.New(recorder),
		recorder: recorder,
	}

	if err := s.Run(ctx, sc); err != nil {
		result.Err = err
		return result
	}
	if err := recorder.Err(); err != nil {
		result.Err = err
		return result
	}

	result.Passed = true
	return result
}

func (r *Runner) collect(ctx context.Context, result *models.ScenarioResult) {
	if r.collector == nil {
		return
	}
	client, err := r.supervisor.Client()
	if err != nil {
		result.Notes = append(result.Notes, fmt.Sprintf("diagnostics unavailable: %v", err))
		return
	}
	diag := r.collector.CollectOnFailure(ctx, client, result.Name)
	result.Diagnostics = diag.Text
	result.Notes = append(result.Notes, diag.Notes...)
	result.Artifacts = append(result.Artifacts, diag.Artifacts...)
}

func skipped(name string, cause error) models.ScenarioResult {
	return models.ScenarioResult{
		Name:    name,
		Skipped: true,
		Err:     fmt.Errorf("%w: %w", common.ErrSkipped, cause),
	}
}
