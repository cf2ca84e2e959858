package reporting

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/shellprobe/internal/common"
	"github.com/ternarybob/shellprobe/internal/models"
)

func sampleReport() *models.RunReport {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.RunReport{
		ID:         "run_test",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Window:     models.WindowHandle{TargetID: "T1", Title: "Nyaovim"},
		Results: []models.ScenarioResult{
			{Name: "opens a window", Passed: true, Duration: 120 * time.Millisecond},
			{
				Name:        "does not log errors or warnings",
				Err:         &common.AssertionError{Scenario: "does not log errors or warnings", Message: "renderer logged 1 error | warning entries"},
				Duration:    40 * time.Millisecond,
				Diagnostics: "Renderer process logs\n=====================\n\n[error] boom\nMain process logs\n=================\n\nmain: ok\n",
				Notes:       []string{"screenshot failed: no surface"},
			},
		},
		TeardownError: &common.ShutdownError{PID: 7, Err: errors.New("still running")},
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, sampleReport())
	out := buf.String()

	assert.Contains(t, out, "RUN SUMMARY  run_test")
	assert.Regexp(t, `opens a window\s+PASS \(0\.12s\)`, out)
	assert.Regexp(t, `does not log errors or warnings\s+FAIL`, out)
	assert.Contains(t, out, "note: screenshot failed: no surface")
	assert.Contains(t, out, "Total: 1 passed, 1 failed, 0 skipped (3.00s)")
	assert.Contains(t, out, "Teardown error: shutdown: process 7: still running")
	assert.Contains(t, out, "SOME SCENARIOS FAILED")
}

func TestWriteSummary_Skipped(t *testing.T) {
	report := &models.RunReport{
		ID:         "run_skip",
		SetupError: &common.StartupError{Op: "launch", Err: errors.New("not found")},
		Results: []models.ScenarioResult{
			{Name: "opens a window", Skipped: true, Err: common.ErrSkipped},
		},
	}
	var buf bytes.Buffer
	WriteSummary(&buf, report)

	assert.Regexp(t, `opens a window\s+SKIP`, buf.String())
	assert.Contains(t, buf.String(), "Setup error: startup: launch: not found")
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleReport())

	assert.Contains(t, md, "# Run run_test")
	assert.Contains(t, md, "- **Result:** FAIL")
	assert.Contains(t, md, "| opens a window | PASS | 0.12s |  |")
	assert.Contains(t, md, `error \| warning entries`)
	assert.Contains(t, md, "## Diagnostics: does not log errors or warnings")
	assert.Contains(t, md, "```text\nRenderer process logs")
	assert.NotContains(t, md, "## Diagnostics: opens a window")
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(Markdown(sampleReport()), "Run run_test")
	require.NoError(t, err)

	page := string(html)
	assert.Contains(t, page, "<title>Run run_test</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<td>opens a window</td>")
	assert.Contains(t, page, "[error] boom")
}

func TestRenderPDF(t *testing.T) {
	data, err := RenderPDF(Markdown(sampleReport()), "Run run_test")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	ctx, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ctx.PageCount, 1)
}

func TestRenderPDF_LongDiagnosticsPaginate(t *testing.T) {
	report := sampleReport()
	report.Results[1].Diagnostics = strings.Repeat("main: line of host output\n", 400)

	data, err := RenderPDF(Markdown(report), "long")
	require.NoError(t, err)

	ctx, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	require.NoError(t, err)
	assert.Greater(t, ctx.PageCount, 1)
}

func TestWriter_WriteRun(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(arbor.NewNoOpLogger(), dir)
	report := sampleReport()

	written, err := w.WriteRun(report)
	require.NoError(t, err)

	runDir := filepath.Join(dir, "run_test")
	assert.Equal(t, runDir, report.ArtifactsDir)
	assert.ElementsMatch(t, []string{
		filepath.Join(runDir, SummaryMarkdown),
		filepath.Join(runDir, SummaryHTML),
		filepath.Join(runDir, SummaryPDF),
		filepath.Join(runDir, ReportYAML),
	}, written)

	data, err := os.ReadFile(filepath.Join(runDir, ReportYAML))
	require.NoError(t, err)
	var record models.RunRecord
	require.NoError(t, yaml.Unmarshal(data, &record))
	assert.Equal(t, "run_test", record.ID)
	assert.False(t, record.Passed)
	require.Len(t, record.Scenarios, 2)
	assert.Equal(t, "assertion", record.Scenarios[1].ErrorKind)
}

func TestWriter_Disabled(t *testing.T) {
	w := NewWriter(arbor.NewNoOpLogger(), "")
	assert.False(t, w.Enabled())
	assert.Equal(t, "", w.RunDir("run_x"))

	written, err := w.WriteRun(sampleReport())
	assert.NoError(t, err)
	assert.Empty(t, written)
}
