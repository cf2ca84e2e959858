package scenarios

import (
	"fmt"
	"strings"
	"sync"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/shellprobe/internal/common"
)

// Recorder is an assert.TestingT that records failed checks instead of
// failing a go test. Scenarios assert through it so testify's messages end
// up in the run report.
type Recorder struct {
	scenario string

	mu       sync.Mutex
	failures []string
}

var _ assert.TestingT = (*Recorder)(nil)

// NewRecorder creates a recorder for the named scenario
func NewRecorder(scenario string) *Recorder {
	return &Recorder{scenario: scenario}
}

// Errorf records a failed check
func (r *Recorder) Errorf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, cleanMessage(fmt.Sprintf(format, args...)))
}

// Helper satisfies testify's helper hook
func (r *Recorder) Helper() {}

// Failed reports whether any check failed
func (r *Recorder) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures) > 0
}

// Failures returns every recorded message in order
func (r *Recorder) Failures() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failures...)
}

// Err returns the first failed check as an AssertionError, or nil
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.failures) == 0 {
		return nil
	}
	return &common.AssertionError{Scenario: r.scenario, Message: r.failures[0]}
}

// cleanMessage reduces testify's labelled output to its Error and Messages
// fields, dropping the stack trace.
func cleanMessage(raw string) string {
	var parts []string
	capturing := false

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		label, value, isLabel := splitLabel(trimmed)
		if isLabel {
			capturing = label == "Error" || label == "Messages"
			if capturing && value != "" {
				parts = append(parts, value)
			}
			continue
		}
		if capturing && trimmed != "" {
			parts = append(parts, trimmed)
		}
	}

	if len(parts) == 0 {
		return strings.TrimSpace(raw)
	}
	return strings.Join(parts, " ")
}

func splitLabel(line string) (label, value string, ok bool) {
	for _, l := range []string{"Error Trace", "Error", "Test", "Messages"} {
		if strings.HasPrefix(line, l+":") {
			return l, strings.TrimSpace(strings.TrimPrefix(line, l+":")), true
		}
	}
	return "", "", false
}
