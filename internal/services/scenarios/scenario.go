// Package scenarios runs acceptance scenarios against the application under
// test and records their outcome.
package scenarios

import (
	"context"
	"strings"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shellprobe/internal/interfaces"
	"github.com/ternarybob/shellprobe/internal/models"
)

// ScenarioContext is handed to each scenario while the application is running
type ScenarioContext struct {
	Client interfaces.AutomationClient
	Window models.WindowHandle
	Logger arbor.ILogger
	// Assert records failed checks for the scenario
	Assert *assert.Assertions

	recorder *Recorder
}

// Scenario is one acceptance check. Run returns an error only when it could
// not complete its checks; failed checks go through sc.Assert.
type Scenario struct {
	Name string
	Run  func(ctx context.Context, sc *ScenarioContext) error
}

// Filter keeps scenarios whose name contains any of only (case-insensitive).
// An empty filter keeps everything.
func Filter(scenarios []Scenario, only []string) []Scenario {
	if len(only) == 0 {
		return scenarios
	}
	var kept []Scenario
	for _, s := range scenarios {
		name := strings.ToLower(s.Name)
		for _, want := range only {
			if want != "" && strings.Contains(name, strings.ToLower(want)) {
				kept = append(kept, s)
				break
			}
		}
	}
	return kept
}

// Failed reports whether any check in this scenario has failed so far
func (sc *ScenarioContext) Failed() bool {
	return sc.recorder != nil && sc.recorder.Failed()
}
