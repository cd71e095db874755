// pkg/driver/cdp/client.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cdproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/cicerone-dev/cicerone/pkg/driver"
)

// ensure Client implements the bridge's transport interface
var _ driver.Client = (*Client)(nil)

var errClientStopped = errors.New("cdp: client stopped")

// window is one attached browser tab.
type window struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// frameScope is one level of the frame-switch stack: the frame the bridge
// has descended into and the execution context scripts run in there.
type frameScope struct {
	frameID   cdproto.FrameID
	contextID runtime.ExecutionContextID
}

// pendingDialog mirrors the browser's currently raised JavaScript dialog.
type pendingDialog struct {
	message string
	kind    page.DialogType
}

// Client drives one browser process over the DevTools protocol. It
// implements driver.Client: one instance per driver, created by Connect
// and released by Stop.
type Client struct {
	id  string
	log *zap.Logger
	cfg Config

	// allocCtx owns the browser process; root is the first tab, from
	// which further tabs are derived.
	allocCtx    context.Context
	allocCancel context.CancelFunc
	root        context.Context

	mu        sync.Mutex
	stopped   bool
	windows   map[string]*window
	current   string
	frames    []frameScope
	frameCtxs map[cdproto.FrameID]runtime.ExecutionContextID
	dialog    *pendingDialog

	headers             map[string]string
	authUser, authPass  string
	proxyUser, proxyPwd string
	rules               *requestRules
	intercepting        bool
	jsErrors            []string

	browserLog *zap.Logger
}

// Connector adapts Connect to the driver's transport-factory signature.
// The driver options it receives at connect time are laid over cfg, so
// launch knobs set on the driver (headless, window size, extensions,
// remote debugging endpoint, js-error policy) take effect.
func Connector(cfg Config, log *zap.Logger) driver.ConnectFunc {
	return func(ctx context.Context, opts driver.Options) (driver.Client, error) {
		return connect(ctx, cfg.withOptions(opts), log, opts.BrowserLogger)
	}
}

// Connect launches the browser process, opens the first tab and verifies
// the process is responsive. ctx bounds the launch only; the process
// itself lives until Stop.
func Connect(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	return connect(ctx, cfg, log, nil)
}

func connect(ctx context.Context, cfg Config, log, browserLog *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.New().String()

	c := &Client{
		id:        id,
		log:       log.Named("cdp").With(zap.String("session_id", id[:8])),
		cfg:       cfg,
		windows:   make(map[string]*window),
		frameCtxs: make(map[cdproto.FrameID]runtime.ExecutionContextID),
		headers:   make(map[string]string),
	}
	if browserLog != nil {
		c.browserLog = browserLog
	} else {
		c.browserLog = c.log.Named("browser")
	}

	// The allocator must outlive the launch call; Stop owns its lifetime.
	c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), cfg.allocatorOptions()...)

	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx, c.contextOptions()...)
	c.root = tabCtx

	// A trivial navigation confirms the browser started and responds.
	// Deriving the timeout from the tab context keeps chromedp's session
	// values while bounding the launch.
	timeout := cfg.launchTimeout()
	if dl, ok := ctx.Deadline(); ok {
		if r := time.Until(dl); r < timeout {
			timeout = r
		}
	}
	launchCtx, cancelLaunch := context.WithTimeout(tabCtx, timeout)
	defer cancelLaunch()
	if err := chromedp.Run(launchCtx, chromedp.Navigate("about:blank")); err != nil {
		tabCancel()
		c.allocCancel()
		return nil, fmt.Errorf("cdp: browser failed to start or respond: %w", err)
	}

	if _, err := c.attachWindow(tabCtx, tabCancel); err != nil {
		tabCancel()
		c.allocCancel()
		return nil, err
	}

	c.log.Info("browser launched and responsive")
	return c, nil
}

// contextOptions assembles the per-tab chromedp options: protocol traffic
// tracing when Debug is set.
func (c *Client) contextOptions(extra ...chromedp.ContextOption) []chromedp.ContextOption {
	opts := extra
	if c.cfg.Debug {
		opts = append(opts, chromedp.WithDebugf(c.log.Sugar().Debugf))
	}
	return opts
}

// attachWindow registers a materialized tab context, installs the event
// listeners and makes it the active window.
func (c *Client) attachWindow(ctx context.Context, cancel context.CancelFunc) (string, error) {
	// Run with no actions forces target attachment so the ID is known.
	if err := chromedp.Run(ctx); err != nil {
		return "", fmt.Errorf("cdp: attaching tab: %w", err)
	}
	handle := string(chromedp.FromContext(ctx).Target.TargetID)

	c.installListeners(ctx)

	if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := runtime.Enable().Do(ctx); err != nil {
			return err
		}
		return page.Enable().Do(ctx)
	})); err != nil {
		return "", fmt.Errorf("cdp: enabling domains: %w", err)
	}

	c.mu.Lock()
	c.windows[handle] = &window{ctx: ctx, cancel: cancel}
	c.current = handle
	c.frames = nil
	needsInterception := c.intercepting
	c.mu.Unlock()

	if err := c.applyHeaders(ctx); err != nil {
		return "", err
	}
	if needsInterception {
		if err := c.enableInterception(ctx); err != nil {
			return "", err
		}
	}
	return handle, nil
}

// installListeners wires protocol events into client state: pending
// dialogs, frame execution contexts and paused/authenticated requests.
func (c *Client) installListeners(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			c.mu.Lock()
			c.dialog = &pendingDialog{message: ev.Message, kind: ev.Type}
			c.mu.Unlock()
			c.log.Debug("dialog raised",
				zap.String("type", string(ev.Type)), zap.String("message", ev.Message))

		case *page.EventJavascriptDialogClosed:
			c.mu.Lock()
			c.dialog = nil
			c.mu.Unlock()

		case *runtime.EventExecutionContextCreated:
			var aux struct {
				FrameID string `json:"frameId"`
				Default bool   `json:"isDefault"`
			}
			if err := jsoniter.Unmarshal(ev.Context.AuxData, &aux); err != nil || !aux.Default {
				return
			}
			c.mu.Lock()
			c.frameCtxs[cdproto.FrameID(aux.FrameID)] = ev.Context.ID
			c.mu.Unlock()

		case *runtime.EventExecutionContextDestroyed:
			c.mu.Lock()
			for frameID, ctxID := range c.frameCtxs {
				if ctxID == ev.ExecutionContextID {
					delete(c.frameCtxs, frameID)
				}
			}
			c.mu.Unlock()

		case *runtime.EventExecutionContextsCleared:
			c.mu.Lock()
			c.frameCtxs = make(map[cdproto.FrameID]runtime.ExecutionContextID)
			c.frames = nil
			c.mu.Unlock()

		case *runtime.EventConsoleAPICalled:
			c.browserLog.Debug("console",
				zap.String("call", string(ev.Type)),
				zap.String("args", formatConsoleArgs(ev.Args)))

		case *runtime.EventExceptionThrown:
			if ev.ExceptionDetails == nil {
				return
			}
			text := exceptionError(ev.ExceptionDetails).Error()
			c.browserLog.Warn("page exception", zap.String("error", text))
			if c.cfg.RaiseJSErrors {
				c.mu.Lock()
				c.jsErrors = append(c.jsErrors, text)
				c.mu.Unlock()
			}

		case *fetch.EventRequestPaused:
			go c.handleRequestPaused(ctx, ev)

		case *fetch.EventAuthRequired:
			go c.handleAuthRequired(ctx, ev)
		}
	})
}

// takeJSErrors drains the uncaught page errors collected since the last
// call.
func (c *Client) takeJSErrors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := c.jsErrors
	c.jsErrors = nil
	return errs
}

// formatConsoleArgs renders console call arguments for the browser event
// log.
func formatConsoleArgs(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case len(arg.Value) > 0:
			parts = append(parts, string(arg.Value))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}

// page returns the active tab context.
func (c *Client) page() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil, errClientStopped
	}
	w := c.windows[c.current]
	if w == nil {
		return nil, errors.New("cdp: no active window")
	}
	return w.ctx, nil
}

// PageID reports the identifier node handles are bound to: the frame the
// bridge is currently scoped to, or the active tab at the top level.
func (c *Client) PageID(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return "", errClientStopped
	}
	if n := len(c.frames); n > 0 {
		return string(c.frames[n-1].frameID), nil
	}
	return c.current, nil
}

// -- Windows --

// Windows enumerates the open page targets, managed or not.
func (c *Client) Windows(ctx context.Context) ([]string, error) {
	root, err := c.rootCtx()
	if err != nil {
		return nil, err
	}
	infos, err := chromedp.Targets(root)
	if err != nil {
		return nil, err
	}
	var handles []string
	for _, info := range infos {
		if info.Type == "page" {
			handles = append(handles, string(info.TargetID))
		}
	}
	return handles, nil
}

// CurrentWindow reports the active window handle.
func (c *Client) CurrentWindow(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return "", errClientStopped
	}
	return c.current, nil
}

// SwitchWindow activates the window with the given handle, attaching to
// it first when it was opened by the page rather than by the bridge.
func (c *Client) SwitchWindow(ctx context.Context, handle string) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errClientStopped
	}
	if _, ok := c.windows[handle]; ok {
		c.current = handle
		c.frames = nil
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	handles, err := c.Windows(ctx)
	if err != nil {
		return err
	}
	known := false
	for _, h := range handles {
		if h == handle {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("cdp: no window with handle %q", handle)
	}

	root, err := c.rootCtx()
	if err != nil {
		return err
	}
	tabCtx, cancel := chromedp.NewContext(root, c.contextOptions(chromedp.WithTargetID(target.ID(handle)))...)
	if _, err := c.attachWindow(tabCtx, cancel); err != nil {
		cancel()
		return err
	}
	return nil
}

// OpenWindow opens a fresh tab and returns its handle. The active window
// is unchanged.
func (c *Client) OpenWindow(ctx context.Context) (string, error) {
	root, err := c.rootCtx()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	prev := c.current
	c.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(root, c.contextOptions()...)
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return "", fmt.Errorf("cdp: opening window: %w", err)
	}
	handle, err := c.attachWindow(tabCtx, cancel)
	if err != nil {
		cancel()
		return "", err
	}

	c.mu.Lock()
	c.current = prev
	c.mu.Unlock()
	return handle, nil
}

// CloseWindow closes the tab with the given handle.
func (c *Client) CloseWindow(ctx context.Context, handle string) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errClientStopped
	}
	w := c.windows[handle]
	delete(c.windows, handle)
	if c.current == handle {
		c.current = ""
	}
	c.mu.Unlock()

	if w == nil {
		return fmt.Errorf("cdp: no window with handle %q", handle)
	}
	err := chromedp.Run(w.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.Close().Do(ctx)
	}))
	w.cancel()
	return err
}

func (c *Client) rootCtx() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil, errClientStopped
	}
	return c.root, nil
}

// -- Dialogs --

// DialogMessage re-reads the pending dialog state.
func (c *Client) DialogMessage(context.Context) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return "", false, errClientStopped
	}
	if c.dialog == nil {
		return "", false, nil
	}
	return c.dialog.message, true, nil
}

// AcceptDialog accepts the pending dialog, entering promptText into
// prompt dialogs.
func (c *Client) AcceptDialog(ctx context.Context, promptText string) error {
	return c.handleDialog(ctx, true, promptText)
}

// DismissDialog dismisses the pending dialog.
func (c *Client) DismissDialog(ctx context.Context) error {
	return c.handleDialog(ctx, false, "")
}

func (c *Client) handleDialog(_ context.Context, accept bool, promptText string) error {
	pageCtx, err := c.page()
	if err != nil {
		return err
	}
	err = chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.HandleJavaScriptDialog(accept)
		if promptText != "" {
			params = params.WithPromptText(promptText)
		}
		return params.Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("cdp: handling dialog: %w", err)
	}
	c.mu.Lock()
	c.dialog = nil
	c.mu.Unlock()
	return nil
}

// -- Teardown --

// Stop closes every attached tab and terminates the browser process. It
// is safe to call repeatedly.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	windows := c.windows
	c.windows = make(map[string]*window)
	c.current = ""
	c.mu.Unlock()

	for _, w := range windows {
		w.cancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()

		// Wait for the process to go away, respecting the caller's
		// deadline and a hard cap.
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		select {
		case <-c.allocCtx.Done():
			c.log.Debug("browser process terminated")
		case <-waitCtx.Done():
			c.log.Warn("deadline exceeded waiting for browser termination", zap.Error(waitCtx.Err()))
		}
	}
	return nil
}
