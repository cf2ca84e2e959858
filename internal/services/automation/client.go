// Package automation drives the application's renderer over the Chrome
// DevTools Protocol.
package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shellprobe/internal/common"
	"github.com/ternarybob/shellprobe/internal/interfaces"
	"github.com/ternarybob/shellprobe/internal/models"
)

// ConnectOptions configures Connect
type ConnectOptions struct {
	// DebuggerURL is the browser websocket url returned by Probe
	DebuggerURL string
	// HostLogs supplies the host-context log lines on demand
	HostLogs func() []string
	// CallTimeout bounds every individual automation call
	CallTimeout time.Duration
}

// Client is a chromedp-backed AutomationClient attached to the application's
// first window.
type Client struct {
	logger      arbor.ILogger
	hostLogs    func() []string
	callTimeout time.Duration
	events      *eventBuffer

	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	tabCtx        context.Context
	cancelTab     context.CancelFunc

	window models.WindowHandle

	closeOnce sync.Once
}

var (
	_ interfaces.AutomationClient = (*Client)(nil)
	_ interfaces.ArtifactCapturer = (*Client)(nil)
)

// Connect attaches to the debugger at opts.DebuggerURL and selects the first
// page target as the application window. ctx bounds only the attach; the
// returned client lives until Close.
func Connect(ctx context.Context, logger arbor.ILogger, opts ConnectOptions) (*Client, error) {
	if opts.DebuggerURL == "" {
		return nil, &common.TransportError{Op: "connect", Err: errors.New("debugger url is empty")}
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.HostLogs == nil {
		opts.HostLogs = func() []string { return nil }
	}

	c := &Client{
		logger:      logger,
		hostLogs:    opts.HostLogs,
		callTimeout: opts.CallTimeout,
		events:      &eventBuffer{},
	}

	c.allocCtx, c.cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), opts.DebuggerURL, chromedp.NoModifyURL)
	c.browserCtx, c.cancelBrowser = chromedp.NewContext(c.allocCtx)

	if err := c.attach(ctx); err != nil {
		c.release()
		return nil, &common.TransportError{Op: "connect", Err: err}
	}

	logger.Info().
		Str("target_id", c.window.TargetID).
		Str("title", c.window.Title).
		Int64("window_id", c.window.WindowID).
		Msg("Attached to application window")

	return c, nil
}

func (c *Client) attach(ctx context.Context) error {
	var targets []*target.Info
	err := bounded(ctx, func() error {
		var err error
		targets, err = chromedp.Targets(c.browserCtx)
		return err
	})
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}

	pages := windowTargets(targets)
	if len(pages) == 0 {
		return errors.New("no window target found")
	}
	first := pages[0]

	c.tabCtx, c.cancelTab = chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(first.TargetID))
	chromedp.ListenTarget(c.tabCtx, c.events.add)

	c.window = models.WindowHandle{
		TargetID: string(first.TargetID),
		Title:    first.Title,
		URL:      first.URL,
	}

	// The first Run attaches the target and its event loop lives as long as
	// the context it runs on, so it must be tabCtx itself.
	if err := bounded(ctx, func() error { return chromedp.Run(c.tabCtx) }); err != nil {
		return fmt.Errorf("attach target: %w", err)
	}

	return c.run(ctx, "attach",
		cdplog.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			windowID, _, err := browser.GetWindowForTarget().Do(ctx)
			if err != nil {
				// Some embedders do not expose window ids; the handle stays usable
				c.logger.Debug().Err(err).Msg("Window id unavailable")
				return nil
			}
			c.window.WindowID = int64(windowID)
			return nil
		}),
	)
}

// bounded runs fn while honouring ctx, which is not an ancestor of the
// client's contexts. fn keeps running after ctx ends; release cancels it.
func bounded(ctx context.Context, fn func() error) error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// windowTargets filters to top-level page targets, excluding devtools
func windowTargets(targets []*target.Info) []*target.Info {
	var pages []*target.Info
	for _, t := range targets {
		if t == nil || t.Type != "page" {
			continue
		}
		if strings.HasPrefix(t.URL, "devtools://") {
			continue
		}
		pages = append(pages, t)
	}
	return pages
}

// run executes actions on the window target, bounded by both ctx and the
// per-call timeout.
func (c *Client) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.tabCtx, c.callTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return &common.TransportError{Op: op, Err: err}
	}
	return nil
}

// WindowHandle returns the window selected at connect time
func (c *Client) WindowHandle() models.WindowHandle {
	return c.window
}

// GetWindowCount counts the application's open windows
func (c *Client) GetWindowCount(ctx context.Context) (int, error) {
	var count int
	err := c.run(ctx, "get window count", chromedp.ActionFunc(func(ctx context.Context) error {
		targets, err := chromedp.Targets(ctx)
		if err != nil {
			return err
		}
		count = len(windowTargets(targets))
		return nil
	}))
	return count, err
}

// IsWindowVisible reports whether the first window is visible and not
// minimised
func (c *Client) IsWindowVisible(ctx context.Context) (bool, error) {
	var state string
	minimized := false

	err := c.run(ctx, "is window visible",
		chromedp.Evaluate(`document.visibilityState`, &state),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if c.window.WindowID == 0 {
				return nil
			}
			bounds, err := browser.GetWindowBounds(browser.WindowID(c.window.WindowID)).Do(ctx)
			if err != nil {
				c.logger.Debug().Err(err).Msg("Window bounds unavailable")
				return nil
			}
			minimized = bounds != nil && bounds.WindowState == browser.WindowStateMinimized
			return nil
		}),
	)
	if err != nil {
		return false, err
	}
	return state == "visible" && !minimized, nil
}

// FindElement returns a handle to the first element matching selector, or nil
// when there is none
func (c *Client) FindElement(ctx context.Context, selector string) (*models.ElementHandle, error) {
	var nodes []*cdp.Node
	err := c.run(ctx, "find element "+selector,
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &models.ElementHandle{
		NodeID:    int64(nodes[0].NodeID),
		LocalName: nodes[0].LocalName,
		Selector:  selector,
	}, nil
}

// GetUIContextLogs returns renderer log entries seen since attach
func (c *Client) GetUIContextLogs(ctx context.Context) ([]models.LogEntry, error) {
	return c.events.entries(), nil
}

// GetHostContextLogs returns host process output lines
func (c *Client) GetHostContextLogs(ctx context.Context) ([]string, error) {
	return c.hostLogs(), nil
}

// EvaluateInPage evaluates expr in the window and returns its JSON value.
// null and undefined both come back as nil.
func (c *Client) EvaluateInPage(ctx context.Context, expr string) (any, error) {
	var res any
	err := c.run(ctx, "evaluate", chromedp.Evaluate(expr, &res))
	if err != nil {
		if errors.Is(err, chromedp.ErrJSUndefined) || errors.Is(err, chromedp.ErrJSNull) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

// Screenshot captures the window as PNG
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, "screenshot", chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// DocumentHTML returns the window's serialised DOM
func (c *Client) DocumentHTML(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, "document html", chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Close detaches from the debugger. It leaves the application running.
func (c *Client) Close() error {
	c.closeOnce.Do(c.release)
	return nil
}

func (c *Client) release() {
	if c.cancelTab != nil {
		c.cancelTab()
	}
	if c.cancelBrowser != nil {
		c.cancelBrowser()
	}
	if c.cancelAlloc != nil {
		c.cancelAlloc()
	}
}
