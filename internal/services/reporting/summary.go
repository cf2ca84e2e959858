// Package reporting renders run reports for operators: a console summary and
// per-run artifacts (markdown, HTML, PDF and YAML).
package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/shellprobe/internal/models"
)

// Status returns PASS, FAIL or SKIP for a scenario result
func Status(res models.ScenarioResult) string {
	switch {
	case res.Skipped:
		return "SKIP"
	case res.Passed:
		return "PASS"
	default:
		return "FAIL"
	}
}

// WriteSummary prints the console summary of a run
func WriteSummary(w io.Writer, report *models.RunReport) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintf(w, "RUN SUMMARY  %s\n", report.ID)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	for _, res := range report.Results {
		fmt.Fprintf(w, "%-40s %s (%.2fs)\n", res.Name, Status(res), res.Duration.Seconds())
		if res.Err != nil && !res.Skipped {
			fmt.Fprintf(w, "    %v\n", res.Err)
		}
		for _, note := range res.Notes {
			fmt.Fprintf(w, "    note: %s\n", note)
		}
	}

	passed, failed, skipped := report.Counts()
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "Total: %d passed, %d failed, %d skipped (%.2fs)\n", passed, failed, skipped, report.Duration().Seconds())

	if report.SetupError != nil {
		fmt.Fprintf(w, "Setup error: %v\n", report.SetupError)
	}
	if report.TeardownError != nil {
		fmt.Fprintf(w, "Teardown error: %v\n", report.TeardownError)
	}
	if report.ArtifactsDir != "" {
		fmt.Fprintf(w, "Artifacts: %s\n", report.ArtifactsDir)
	}

	if report.Passed() {
		fmt.Fprintln(w, "\n✓ ALL SCENARIOS PASSED")
	} else {
		fmt.Fprintln(w, "\n✗ SOME SCENARIOS FAILED")
	}
}
