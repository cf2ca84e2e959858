package models

import (
	"time"

	"github.com/ternarybob/shellprobe/internal/common"
)

// RunState is the scenario runner's lifecycle state
type RunState int

const (
	RunStateIdle RunState = iota
	RunStateStarting
	RunStateReady
	RunStateRunning
	RunStateDiagnostics
	RunStateStopping
	RunStateStopped
)

func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateStarting:
		return "starting"
	case RunStateReady:
		return "ready"
	case RunStateRunning:
		return "running"
	case RunStateDiagnostics:
		return "diagnostics"
	case RunStateStopping:
		return "stopping"
	case RunStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ScenarioResult is the outcome of one scenario
type ScenarioResult struct {
	Name        string        `json:"name"`
	Passed      bool          `json:"passed"`
	Skipped     bool          `json:"skipped,omitempty"`
	Err         error         `json:"-"`
	Duration    time.Duration `json:"duration"`
	Diagnostics string        `json:"diagnostics,omitempty"` // Rendered log dump for failed scenarios
	Notes       []string      `json:"notes,omitempty"`       // Secondary problems hit while collecting diagnostics
	Artifacts   []string      `json:"artifacts,omitempty"`
}

// RunReport aggregates a whole harness run
type RunReport struct {
	ID            string           `json:"id"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
	Window        WindowHandle     `json:"window"`
	SetupError    error            `json:"-"`
	TeardownError error            `json:"-"`
	Results       []ScenarioResult `json:"results"`
	ArtifactsDir  string           `json:"artifacts_dir,omitempty"`
}

// Passed reports whether setup succeeded and every scenario passed.
// Teardown failures are reported separately and do not affect the outcome.
func (r *RunReport) Passed() bool {
	if r.SetupError != nil || len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// Counts returns the number of passed, failed and skipped scenarios
func (r *RunReport) Counts() (passed, failed, skipped int) {
	for _, res := range r.Results {
		switch {
		case res.Skipped:
			skipped++
		case res.Passed:
			passed++
		default:
			failed++
		}
	}
	return passed, failed, skipped
}

// Duration returns the wall time of the run
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ScenarioRecord is the persisted form of a ScenarioResult
type ScenarioRecord struct {
	Name        string        `json:"name" yaml:"name"`
	Passed      bool          `json:"passed" yaml:"passed"`
	Skipped     bool          `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	ErrorKind   string        `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
	Diagnostics string        `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// RunRecord is the persisted form of a RunReport
type RunRecord struct {
	ID            string           `json:"id" yaml:"id"`
	StartedAt     time.Time        `json:"started_at" yaml:"started_at" badgerhold:"index"`
	FinishedAt    time.Time        `json:"finished_at" yaml:"finished_at"`
	Passed        bool             `json:"passed" yaml:"passed" badgerhold:"index"`
	SetupError    string           `json:"setup_error,omitempty" yaml:"setup_error,omitempty"`
	TeardownError string           `json:"teardown_error,omitempty" yaml:"teardown_error,omitempty"`
	WindowTitle   string           `json:"window_title,omitempty" yaml:"window_title,omitempty"`
	ArtifactsDir  string           `json:"artifacts_dir,omitempty" yaml:"artifacts_dir,omitempty"`
	Scenarios     []ScenarioRecord `json:"scenarios" yaml:"scenarios"`
}

// NewRunRecord flattens a report into its persisted form
func NewRunRecord(r *RunReport) *RunRecord {
	record := &RunRecord{
		ID:           r.ID,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Passed:       r.Passed(),
		WindowTitle:  r.Window.Title,
		ArtifactsDir: r.ArtifactsDir,
		Scenarios:    make([]ScenarioRecord, 0, len(r.Results)),
	}
	if r.SetupError != nil {
		record.SetupError = r.SetupError.Error()
	}
	if r.TeardownError != nil {
		record.TeardownError = r.TeardownError.Error()
	}
	for _, res := range r.Results {
		sr := ScenarioRecord{
			Name:        res.Name,
			Passed:      res.Passed,
			Skipped:     res.Skipped,
			Duration:    res.Duration,
			Diagnostics: res.Diagnostics,
		}
		if res.Err != nil {
			sr.Error = res.Err.Error()
			sr.ErrorKind = common.ErrorKind(res.Err)
		}
		record.Scenarios = append(record.Scenarios, sr)
	}
	return record
}
