package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/shellprobe/internal/models"
)

// Artifact file names inside a run's directory
const (
	SummaryMarkdown = "summary.md"
	SummaryHTML     = "summary.html"
	SummaryPDF      = "summary.pdf"
	ReportYAML      = "report.yaml"
)

// Writer lays out per-run artifact directories under a results directory
type Writer struct {
	logger     arbor.ILogger
	resultsDir string
}

// NewWriter creates a writer rooted at resultsDir. Empty disables artifacts.
func NewWriter(logger arbor.ILogger, resultsDir string) *Writer {
	return &Writer{logger: logger, resultsDir: resultsDir}
}

// Enabled reports whether artifacts are written at all
func (w *Writer) Enabled() bool {
	return w.resultsDir != ""
}

// RunDir returns the artifacts directory for runID, or "" when disabled
func (w *Writer) RunDir(runID string) string {
	if !w.Enabled() {
		return ""
	}
	return filepath.Join(w.resultsDir, runID)
}

// WriteRun writes the summary documents for report into its run directory
// and returns the written paths. A failing format is logged and skipped.
func (w *Writer) WriteRun(report *models.RunReport) ([]string, error) {
	dir := w.RunDir(report.ID)
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	report.ArtifactsDir = dir

	title := "Run " + report.ID
	markdown := Markdown(report)

	var written []string
	write := func(name string, data []byte) {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to write artifact")
			return
		}
		written = append(written, path)
	}

	write(SummaryMarkdown, []byte(markdown))

	if html, err := RenderHTML(markdown, title); err != nil {
		w.logger.Warn().Err(err).Msg("HTML summary skipped")
	} else {
		write(SummaryHTML, html)
	}

	if pdf, err := RenderPDF(markdown, title); err != nil {
		w.logger.Warn().Err(err).Msg("PDF summary skipped")
	} else {
		write(SummaryPDF, pdf)
	}

	if data, err := yaml.Marshal(models.NewRunRecord(report)); err != nil {
		w.logger.Warn().Err(err).Msg("YAML report skipped")
	} else {
		write(ReportYAML, data)
	}

	w.logger.Debug().Str("dir", dir).Int("files", len(written)).Msg("Run artifacts written")
	return written, nil
}
