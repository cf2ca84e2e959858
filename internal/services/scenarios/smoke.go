package scenarios

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/shellprobe/internal/common"
	"github.com/ternarybob/shellprobe/internal/models"
)

// Scenario names of the startup smoke suite
const (
	OpensAWindow       = "opens a window"
	WindowIsVisible    = "window is visible"
	RendersEditorHost  = "renders the editor host element"
	NoErrorsOrWarnings = "does not log errors or warnings"
	SpawnsEngine       = "spawns the engine process"
)

// Smoke returns the startup smoke suite in execution order
func Smoke(config *common.Config) []Scenario {
	selector := config.Scenarios.HostSelector
	startedExpr := config.Scenarios.StartedExpression

	return []Scenario{
		{
			Name: OpensAWindow,
			Run: func(ctx context.Context, sc *ScenarioContext) error {
				count, err := sc.Client.GetWindowCount(ctx)
				if err != nil {
					return err
				}
				sc.Assert.Equal(1, count, "expected exactly one application window")
				return nil
			},
		},
		{
			Name: WindowIsVisible,
			Run: func(ctx context.Context, sc *ScenarioContext) error {
				visible, err := sc.Client.IsWindowVisible(ctx)
				if err != nil {
					return err
				}
				sc.Assert.True(visible, "window %s is not visible", sc.Window)
				return nil
			},
		},
		{
			Name: RendersEditorHost,
			Run: func(ctx context.Context, sc *ScenarioContext) error {
				el, err := sc.Client.FindElement(ctx, selector)
				if err != nil {
					return err
				}
				if sc.Assert.NotNil(el, "no element matches %q", selector) {
					sc.Logger.Debug().Str("selector", selector).Int64("node_id", el.NodeID).Msg("Editor host element found")
				}
				return nil
			},
		},
		{
			Name: NoErrorsOrWarnings,
			Run: func(ctx context.Context, sc *ScenarioContext) error {
				logs, err := sc.Client.GetUIContextLogs(ctx)
				if err != nil {
					return err
				}
				problems := models.ProblemEntries(logs)
				if len(problems) > 0 {
					lines := make([]string, 0, len(problems))
					for _, p := range problems {
						lines = append(lines, p.String())
					}
					sc.Assert.Fail(
						fmt.Sprintf("renderer logged %d error or warning entries", len(problems)),
						strings.Join(lines, "; "),
					)
				}
				return nil
			},
		},
		{
			Name: SpawnsEngine,
			Run: func(ctx context.Context, sc *ScenarioContext) error {
				started, err := sc.Client.EvaluateInPage(ctx, startedExpr)
				if err != nil {
					return err
				}
				sc.Assert.Equal(true, started, "embedded engine process has not started")
				return nil
			},
		},
	}
}
