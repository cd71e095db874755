// pkg/driver/session.go
package driver

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// sessionConfig is the effective, merged session configuration. Defaults
// live here; Options overrides are applied only when explicitly supplied.
// Launch-time knobs (headless, window size, js-error policy) are not
// mirrored here: the connector consumes them directly from Options.
type sessionConfig struct {
	allowlist  []string
	blocklist  []string
	maxWait    time.Duration
	appHost    string
	screenSize *Size
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{maxWait: DefaultMaxWait}
}

// mergeOptions folds the explicitly supplied options into the defaults.
// Absent options leave the underlying default untouched.
func mergeOptions(cfg sessionConfig, opts Options) sessionConfig {
	if opts.URLAllowlist != nil {
		cfg.allowlist = opts.URLAllowlist
	}
	if opts.URLBlocklist != nil {
		cfg.blocklist = opts.URLBlocklist
	}
	if opts.MaxWait > 0 {
		cfg.maxWait = opts.MaxWait
	}
	if opts.AppHost != "" {
		cfg.appHost = opts.AppHost
	}
	if opts.ScreenSize != nil {
		cfg.screenSize = opts.ScreenSize
	}
	return cfg
}

// Session is the lazily-initialized browser-control object. It owns the
// started flag and routes every browser operation through the transport,
// marshalling evaluation results and wrapping found elements on the way
// back.
type Session struct {
	client Client
	log    *zap.Logger
	cfg    sessionConfig

	mu      sync.Mutex
	started bool
}

func newSession(client Client, log *zap.Logger, opts Options) *Session {
	return &Session{
		client: client,
		log:    log.Named("session"),
		cfg:    mergeOptions(defaultSessionConfig(), opts),
	}
}

// Started reports whether a navigation has occurred.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Session) markStarted() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
}

// applyRequestRules pushes the allow/deny lists to the browser. Called on
// session construction and again on Reset.
func (s *Session) applyRequestRules(ctx context.Context) error {
	if len(s.cfg.allowlist) == 0 && len(s.cfg.blocklist) == 0 {
		return nil
	}
	return s.client.SetRequestRules(ctx, s.cfg.allowlist, s.cfg.blocklist)
}

// Reset re-applies the request rules and clears the started flag. The
// transport stays open.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.applyRequestRules(ctx); err != nil {
		return fmt.Errorf("driver: re-applying request rules: %w", err)
	}
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	s.log.Debug("session reset")
	return nil
}

// MaxWait is the session-wide default deadline for waiting operations.
func (s *Session) MaxWait() time.Duration { return s.cfg.maxWait }

// -- Navigation --

// Visit navigates to url and flips the started flag on success.
func (s *Session) Visit(ctx context.Context, url string) error {
	if err := s.client.Navigate(ctx, url); err != nil {
		return err
	}
	s.markStarted()
	return nil
}

// CurrentURL reports the page's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	return s.client.CurrentURL(ctx)
}

// Refresh reloads the current page.
func (s *Session) Refresh(ctx context.Context) error { return s.client.Refresh(ctx) }

// GoBack navigates one entry back in the session history.
func (s *Session) GoBack(ctx context.Context) error { return s.client.GoBack(ctx) }

// GoForward navigates one entry forward in the session history.
func (s *Session) GoForward(ctx context.Context) error { return s.client.GoForward(ctx) }

// -- Script execution --

// Evaluate runs script in the page and returns its result marshalled into
// native values, with node references wrapped as *Node handles.
func (s *Session) Evaluate(ctx context.Context, script string, args ...any) (any, error) {
	raw, err := s.client.Evaluate(ctx, script, args...)
	if err != nil {
		return nil, err
	}
	return s.marshalResult(ctx, raw)
}

// EvaluateAsync runs script that settles a promise and marshals the
// settled value.
func (s *Session) EvaluateAsync(ctx context.Context, script string, args ...any) (any, error) {
	raw, err := s.client.EvaluateAsync(ctx, script, args...)
	if err != nil {
		return nil, err
	}
	return s.marshalResult(ctx, raw)
}

// Execute runs script for its side effects only.
func (s *Session) Execute(ctx context.Context, script string, args ...any) error {
	return s.client.Execute(ctx, script, args...)
}

func (s *Session) marshalResult(ctx context.Context, raw *RemoteValue) (any, error) {
	pageID, err := s.client.PageID(ctx)
	if err != nil {
		return nil, err
	}
	return s.Marshal(raw, pageID), nil
}

// -- Element lookup --

// Find resolves selector with the given strategy ("css" or "xpath") and
// wraps each match as a node handle.
func (s *Session) Find(ctx context.Context, method, selector string) ([]*Node, error) {
	return s.findWithin(ctx, method, selector, nil)
}

func (s *Session) findWithin(ctx context.Context, method, selector string, within *NodeRef) ([]*Node, error) {
	refs, err := s.client.Find(ctx, method, selector, within)
	if err != nil {
		return nil, err
	}
	nodes := make([]*Node, len(refs))
	for i, ref := range refs {
		nodes[i] = newNode(s, ref.PageID, ref.ObjectID)
	}
	return nodes, nil
}

// -- Cookies --

// Cookies returns all cookies visible to the browser.
func (s *Session) Cookies(ctx context.Context) ([]Cookie, error) {
	return s.client.Cookies(ctx)
}

// SetCookie stores a cookie, defaulting its domain from the current URL
// (once started), the configured app host, or the loopback literal.
func (s *Session) SetCookie(ctx context.Context, c Cookie) error {
	if c.Domain == "" {
		c.Domain = s.defaultCookieDomain(ctx)
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return s.client.SetCookie(ctx, c)
}

// SetRawCookie parses a raw "name=value; attr=val" cookie string and
// stores the result.
func (s *Session) SetRawCookie(ctx context.Context, raw string) error {
	name, value, attrs := ParseCookie(raw)
	return s.SetCookie(ctx, cookieFromAttrs(name, value, attrs))
}

// RemoveCookie deletes the named cookie.
func (s *Session) RemoveCookie(ctx context.Context, name string) error {
	return s.client.RemoveCookie(ctx, name)
}

// ClearCookies deletes all cookies.
func (s *Session) ClearCookies(ctx context.Context) error {
	return s.client.ClearCookies(ctx)
}

func (s *Session) defaultCookieDomain(ctx context.Context) string {
	if s.Started() {
		if current, err := s.client.CurrentURL(ctx); err == nil {
			if u, err := url.Parse(current); err == nil && u.Hostname() != "" {
				return u.Hostname()
			}
		}
	}
	if s.cfg.appHost != "" {
		if u, err := url.Parse(s.cfg.appHost); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return "127.0.0.1"
}

// -- Headers, auth and proxy --

// Headers returns the extra HTTP headers currently applied.
func (s *Session) Headers(ctx context.Context) (map[string]string, error) {
	return s.client.Headers(ctx)
}

// SetHeaders replaces the extra HTTP headers sent with every request.
func (s *Session) SetHeaders(ctx context.Context, headers map[string]string) error {
	return s.client.SetHeaders(ctx, headers)
}

// SetBasicAuth installs HTTP basic-auth credentials.
func (s *Session) SetBasicAuth(ctx context.Context, user, password string) error {
	return s.client.SetBasicAuth(ctx, user, password)
}

// SetProxy routes browser traffic through the given proxy.
func (s *Session) SetProxy(ctx context.Context, p Proxy) error {
	return s.client.SetProxy(ctx, p)
}

// -- Windows --

// Windows lists the open window handles.
func (s *Session) Windows(ctx context.Context) ([]string, error) {
	return s.client.Windows(ctx)
}

// CurrentWindow reports the active window handle.
func (s *Session) CurrentWindow(ctx context.Context) (string, error) {
	return s.client.CurrentWindow(ctx)
}

// SwitchWindow activates the window with the given handle.
func (s *Session) SwitchWindow(ctx context.Context, handle string) error {
	return s.client.SwitchWindow(ctx, handle)
}

// OpenWindow opens a new window and returns its handle.
func (s *Session) OpenWindow(ctx context.Context) (string, error) {
	return s.client.OpenWindow(ctx)
}

// CloseWindow closes the window with the given handle.
func (s *Session) CloseWindow(ctx context.Context, handle string) error {
	return s.client.CloseWindow(ctx, handle)
}

// -- Viewport and rendering --

// SaveScreenshot renders the page to the file at path.
func (s *Session) SaveScreenshot(ctx context.Context, path string, opts ScreenshotOptions) error {
	opts.Path = path
	_, err := s.client.Screenshot(ctx, opts)
	return err
}

// ScreenshotBase64 renders the page and returns the base64 payload.
func (s *Session) ScreenshotBase64(ctx context.Context, opts ScreenshotOptions) (string, error) {
	opts.Path = ""
	return s.client.Screenshot(ctx, opts)
}

// ResizeWindow resizes the window, clamped to the configured screen size
// when one was supplied.
func (s *Session) ResizeWindow(ctx context.Context, width, height int) error {
	if screen := s.cfg.screenSize; screen != nil {
		if width > screen.Width {
			width = screen.Width
		}
		if height > screen.Height {
			height = screen.Height
		}
	}
	return s.client.Resize(ctx, width, height)
}

// MaximizeWindow grows the window to the configured screen size, or asks
// the browser to maximize when none was configured.
func (s *Session) MaximizeWindow(ctx context.Context) error {
	if screen := s.cfg.screenSize; screen != nil {
		return s.client.Resize(ctx, screen.Width, screen.Height)
	}
	return s.client.Maximize(ctx)
}

// FullscreenWindow switches the window to fullscreen.
func (s *Session) FullscreenWindow(ctx context.Context) error {
	return s.client.Fullscreen(ctx)
}
