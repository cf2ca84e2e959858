// Package readiness decides when the embedded editor engine inside the
// application has finished booting.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/shellprobe/internal/common"
	"github.com/ternarybob/shellprobe/internal/interfaces"
)

const (
	PolicyPoll   = "poll"
	PolicySettle = "settle"
)

var errNotStarted = errors.New("readiness expression is not yet true")

// Gate implements interfaces.ReadinessGate
type Gate struct {
	logger      arbor.ILogger
	policy      string
	expression  string
	settleDelay time.Duration
	backoff     common.Backoff
}

var _ interfaces.ReadinessGate = (*Gate)(nil)

// NewGate builds a gate from the readiness section of config
func NewGate(config *common.Config, logger arbor.ILogger) *Gate {
	policy := config.Readiness.Policy
	if policy == "" {
		policy = PolicyPoll
	}
	return &Gate{
		logger:      logger,
		policy:      policy,
		expression:  config.ReadinessExpression(),
		settleDelay: common.ParseDurationOr(config.Readiness.SettleDelay, 3*time.Second),
		backoff:     common.NewBackoff(config.Readiness),
	}
}

// AwaitEmbeddedReady blocks until the engine is ready according to the
// configured policy.
func (g *Gate) AwaitEmbeddedReady(ctx context.Context, client interfaces.AutomationClient, timeout time.Duration) error {
	switch g.policy {
	case PolicySettle:
		return g.settle(ctx)
	case PolicyPoll:
		return g.poll(ctx, client, timeout)
	default:
		return fmt.Errorf("unknown readiness policy %q", g.policy)
	}
}

// settle waits a fixed delay and assumes the engine is up afterwards
func (g *Gate) settle(ctx context.Context) error {
	g.logger.Debug().Str("delay", g.settleDelay.String()).Msg("Waiting for embedded engine to settle")

	timer := time.NewTimer(g.settleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) poll(ctx context.Context, client interfaces.AutomationClient, timeout time.Duration) error {
	pollCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	attempts := 0
	var lastErr error
	progress := rate.Sometimes{First: 1, Interval: 5 * time.Second}

	err := common.PollWithBackoff(pollCtx, g.backoff, func(ctx context.Context) (bool, error) {
		attempts++
		value, err := client.EvaluateInPage(ctx, g.expression)
		if err != nil {
			lastErr = err
		} else if started, _ := value.(bool); started {
			return true, nil
		} else {
			lastErr = errNotStarted
		}

		progress.Do(func() {
			g.logger.Debug().
				Int("attempt", attempts).
				Str("elapsed", time.Since(start).Round(time.Millisecond).String()).
				Err(lastErr).
				Msg("Embedded engine not ready yet")
		})
		return false, nil
	})

	if err == nil {
		g.logger.Info().
			Int("attempts", attempts).
			Str("elapsed", time.Since(start).Round(time.Millisecond).String()).
			Msg("Embedded engine started")
		return nil
	}

	// Caller cancelled; not our bound
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return &common.TimeoutError{
		Op:      "embedded engine readiness",
		Timeout: timeout.String(),
		Err:     lastErr,
	}
}
