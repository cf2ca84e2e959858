package common

import (
	"context"
	"errors"
	"math"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Backoff configures exponential polling
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64
}

// NewBackoff builds a Backoff from the readiness section of the config
func NewBackoff(cfg ReadinessConfig) Backoff {
	return Backoff{
		Initial: ParseDurationOr(cfg.InitialInterval, 100*time.Millisecond),
		Max:     ParseDurationOr(cfg.MaxInterval, 2*time.Second),
		Factor:  cfg.Factor,
		Jitter:  cfg.Jitter,
	}
}

// PollWithBackoff calls cond with exponentially growing intervals until it
// reports done, returns an error, or ctx ends. Once the interval reaches Max
// polling continues at Max. The overall bound is ctx's deadline.
func PollWithBackoff(ctx context.Context, b Backoff, cond wait.ConditionWithContextFunc) error {
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.Factor < 1 {
		b.Factor = 1
	}

	ramp := wait.Backoff{
		Duration: b.Initial,
		Factor:   b.Factor,
		Jitter:   b.Jitter,
		Steps:    math.MaxInt32,
		Cap:      b.Max,
	}

	err := wait.ExponentialBackoffWithContext(ctx, ramp, cond)
	if err == nil || ctx.Err() != nil {
		return err
	}
	if !wait.Interrupted(err) && !errors.Is(err, wait.ErrWaitTimeout) {
		return err
	}

	// Ramp reached the cap
	return wait.PollUntilContextCancel(ctx, b.Max, true, cond)
}
