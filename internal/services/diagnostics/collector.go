// Package diagnostics dumps the application's logs and page state when a
// scenario fails.
package diagnostics

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shellprobe/internal/common"
	"github.com/ternarybob/shellprobe/internal/interfaces"
)

const (
	uiHeading   = "Renderer process logs"
	hostHeading = "Main process logs"
)

// Report is what a collection produced. Collection never fails; problems
// while collecting end up in Notes.
type Report struct {
	Text      string
	Notes     []string
	Artifacts []string
}

// Collector gathers diagnostics for failed scenarios
type Collector struct {
	logger     arbor.ILogger
	out        io.Writer
	screenshot bool
	domSummary bool

	mu           sync.Mutex
	artifactsDir string
	seq          int
}

// NewCollector creates a collector writing log dumps to out (stdout when nil)
func NewCollector(config *common.Config, logger arbor.ILogger, out io.Writer) *Collector {
	if out == nil {
		out = os.Stdout
	}
	return &Collector{
		logger:     logger,
		out:        out,
		screenshot: config.Diagnostics.Screenshots,
		domSummary: config.Diagnostics.DOMSummary,
	}
}

// SetArtifactsDir sets where screenshots and DOM summaries are written.
// Empty disables them.
func (c *Collector) SetArtifactsDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifactsDir = dir
	c.seq = 0
}

// CollectOnFailure fetches UI-context logs and then host-context logs,
// renders both blocks, writes them to the diagnostic stream and captures
// page artifacts for label.
func (c *Collector) CollectOnFailure(ctx context.Context, client interfaces.AutomationClient, label string) Report {
	var report Report
	var b strings.Builder

	writeHeading(&b, uiHeading)
	uiLogs, err := client.GetUIContextLogs(ctx)
	if err != nil {
		report.Notes = append(report.Notes, c.note("renderer logs unavailable", err))
	}
	for _, entry := range uiLogs {
		b.WriteString(entry.String())
		b.WriteByte('\n')
	}

	writeHeading(&b, hostHeading)
	hostLogs, err := client.GetHostContextLogs(ctx)
	if err != nil {
		report.Notes = append(report.Notes, c.note("main process logs unavailable", err))
	}
	for _, line := range hostLogs {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	report.Text = b.String()
	if _, err := io.WriteString(c.out, report.Text); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to write diagnostics")
	}

	c.captureArtifacts(ctx, client, label, &report)
	return report
}

func writeHeading(b *strings.Builder, heading string) {
	b.WriteString(heading)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("=", len(heading)))
	b.WriteString("\n\n")
}

func (c *Collector) note(what string, err error) string {
	c.logger.Warn().Err(err).Msg("Diagnostics: " + what)
	return fmt.Sprintf("%s: %v", what, err)
}

func (c *Collector) captureArtifacts(ctx context.Context, client interfaces.AutomationClient, label string, report *Report) {
	capturer, ok := client.(interfaces.ArtifactCapturer)
	if !ok || (!c.screenshot && !c.domSummary) {
		return
	}

	c.mu.Lock()
	dir := c.artifactsDir
	c.seq++
	prefix := fmt.Sprintf("%02d_%s", c.seq, sanitizeName(label))
	c.mu.Unlock()
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		report.Notes = append(report.Notes, c.note("artifacts directory unavailable", err))
		return
	}

	if c.screenshot {
		if png, err := capturer.Screenshot(ctx); err != nil {
			report.Notes = append(report.Notes, c.note("screenshot failed", err))
		} else if path, err := writeArtifact(dir, prefix+".png", png); err != nil {
			report.Notes = append(report.Notes, c.note("screenshot not saved", err))
		} else {
			report.Artifacts = append(report.Artifacts, path)
		}
	}

	if c.domSummary {
		html, err := capturer.DocumentHTML(ctx)
		if err != nil {
			report.Notes = append(report.Notes, c.note("document capture failed", err))
			return
		}
		summary, err := SummarizeDOM(html)
		if err != nil {
			report.Notes = append(report.Notes, c.note("document summary failed", err))
			return
		}
		if path, err := writeArtifact(dir, prefix+"_dom.txt", []byte(summary.String())); err != nil {
			report.Notes = append(report.Notes, c.note("document summary not saved", err))
		} else {
			report.Artifacts = append(report.Artifacts, path)
		}
	}
}

func writeArtifact(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// sanitizeName converts a scenario name to a safe filename
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "scenario"
	}
	return b.String()
}
