package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/shellprobe/internal/models"
)

// AutomationClient drives the running application over its remote
// automation channel. Every call may block on the transport and honours ctx.
type AutomationClient interface {
	// GetWindowCount returns the number of top-level application windows
	GetWindowCount(ctx context.Context) (int, error)

	// IsWindowVisible reports the primary window's visibility flag
	IsWindowVisible(ctx context.Context) (bool, error)

	// FindElement returns nil (and no error) when nothing matches selector
	FindElement(ctx context.Context, selector string) (*models.ElementHandle, error)

	// GetUIContextLogs returns the renderer log buffer without draining it
	GetUIContextLogs(ctx context.Context) ([]models.LogEntry, error)

	// GetHostContextLogs returns raw main-process output lines
	GetHostContextLogs(ctx context.Context) ([]string, error)

	// EvaluateInPage evaluates a JavaScript expression in the primary window
	EvaluateInPage(ctx context.Context, expr string) (any, error)

	// WindowHandle returns the native window handle the client is attached to
	WindowHandle() models.WindowHandle

	// Close detaches from the application
	Close() error
}

// ArtifactCapturer is implemented by clients that can capture page state
// for diagnostics.
type ArtifactCapturer interface {
	Screenshot(ctx context.Context) ([]byte, error)
	DocumentHTML(ctx context.Context) (string, error)
}

// ReadinessGate waits until the embedded engine has started
type ReadinessGate interface {
	// AwaitEmbeddedReady blocks until the engine reports started, ctx ends or
	// timeout elapses (TimeoutError). timeout <= 0 leaves only ctx as the bound.
	AwaitEmbeddedReady(ctx context.Context, client AutomationClient, timeout time.Duration) error
}
