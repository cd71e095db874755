// pkg/driver/driver.go
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxWait bounds waiting operations (the modal waiter) when no
// explicit wait is supplied.
const DefaultMaxWait = 2 * time.Second

// Size is a width/height pair in CSS pixels.
type Size struct {
	Width  int
	Height int
}

// Options is the construction-time configuration surface of a Driver.
// Every field is independently optional. Pointer fields carry
// apply-if-present semantics: a nil pointer leaves the session default
// untouched rather than overwriting it.
type Options struct {
	// Debug enables protocol-traffic logging in the transport.
	Debug bool

	// Headless, RemoteHost and RemotePort configure the launched browser
	// process. The connector receives them through ConnectFunc and lays
	// them over its own launch defaults.
	Headless   *bool
	RemoteHost string
	RemotePort int

	// WindowSize is the initial window size at launch; ScreenSize caps
	// resize calculations when set.
	WindowSize *Size
	ScreenSize *Size

	// RaiseJSErrors makes uncaught page JavaScript errors surface as
	// evaluation errors on the next script call.
	RaiseJSErrors *bool
	// IgnoreHTTPSErrors tolerates invalid certificates at launch.
	IgnoreHTTPSErrors *bool

	// Extensions lists unpacked extension directories to load at launch.
	Extensions []string

	// URLAllowlist and URLBlocklist restrict which network requests the
	// page may issue. They are re-applied on Reset.
	URLAllowlist []string
	URLBlocklist []string

	// Logger is the bridge's log sink. BrowserLogger receives browser-side
	// events (console output, page exceptions) via the connector; when nil
	// they share the transport's logger.
	Logger        *zap.Logger
	BrowserLogger *zap.Logger

	// InspectorURL is the debugger frontend endpoint. Inspector fails when
	// it is unset.
	InspectorURL string

	// MaxWait overrides DefaultMaxWait for waiting operations.
	MaxWait time.Duration

	// AppHost is the default application URL used for cookie domain
	// defaulting before any navigation has occurred.
	AppHost string

	// Connect launches the browser and opens the transport. Required.
	Connect ConnectFunc
}

type lifecycleState int

const (
	stateUninitialized lifecycleState = iota
	stateInitializing
	stateReady
	stateStopped
)

// Driver is the session façade: the public, synchronous-looking surface a
// test-automation caller drives the browser through. A Driver owns at most
// one transport and one session; neither is shared between drivers.
//
// Each lazy accessor is guarded by its own mutex held for the whole
// acquisition, so concurrent callers block until the single acquisition
// completes and then receive the cached instance. Browser acquires its own
// guard first and the transport guard second; Quit takes them in the same
// order.
type Driver struct {
	opts Options
	log  *zap.Logger

	browserMu    sync.Mutex
	browserState lifecycleState
	browser      *Session

	clientMu    sync.Mutex
	clientState lifecycleState
	client      Client
}

// New constructs a Driver. Nothing is launched until the first operation
// that needs the browser.
func New(opts Options) *Driver {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		opts: opts,
		log:  log.Named("driver"),
	}
}

// Client lazily launches the browser process and opens the transport,
// exactly once per driver. Subsequent calls return the cached handle.
// After Quit it fails with ErrDriverStopped.
func (d *Driver) Client(ctx context.Context) (Client, error) {
	d.clientMu.Lock()
	defer d.clientMu.Unlock()

	switch d.clientState {
	case stateReady:
		return d.client, nil
	case stateStopped:
		return nil, ErrDriverStopped
	}

	if d.opts.Connect == nil {
		return nil, fmt.Errorf("driver: no transport connector configured")
	}

	d.clientState = stateInitializing
	d.log.Debug("launching browser transport")

	client, err := d.opts.Connect(ctx, d.opts)
	if err != nil {
		// A failed acquisition leaves the driver usable: the next call
		// retries from scratch.
		d.clientState = stateUninitialized
		return nil, fmt.Errorf("driver: opening transport: %w", err)
	}

	d.client = client
	d.clientState = stateReady
	return client, nil
}

// Browser lazily constructs the Session exactly once per driver, applying
// the configured options on top of the session defaults (apply-if-present
// merge) and installing the request allow/deny rules.
func (d *Driver) Browser(ctx context.Context) (*Session, error) {
	d.browserMu.Lock()
	defer d.browserMu.Unlock()

	switch d.browserState {
	case stateReady:
		return d.browser, nil
	case stateStopped:
		return nil, ErrDriverStopped
	}

	d.browserState = stateInitializing

	client, err := d.Client(ctx)
	if err != nil {
		d.browserState = stateUninitialized
		return nil, err
	}

	sess := newSession(client, d.log, d.opts)
	if err := sess.applyRequestRules(ctx); err != nil {
		d.browserState = stateUninitialized
		return nil, fmt.Errorf("driver: applying request rules: %w", err)
	}

	d.browser = sess
	d.browserState = stateReady
	d.log.Debug("browser session initialized")
	return sess, nil
}

// Quit stops the transport and the launched process if they exist. It is
// a no-op when nothing was ever started and is safe to call repeatedly.
func (d *Driver) Quit(ctx context.Context) error {
	d.browserMu.Lock()
	d.browser = nil
	d.browserState = stateStopped
	d.browserMu.Unlock()

	d.clientMu.Lock()
	client := d.client
	d.client = nil
	d.clientState = stateStopped
	d.clientMu.Unlock()

	if client == nil {
		return nil
	}

	d.log.Debug("stopping browser transport")
	if err := client.Stop(ctx); err != nil {
		return fmt.Errorf("driver: stopping transport: %w", err)
	}
	return nil
}

// Reset re-applies the request allow/deny-list configuration and clears
// the started flag without discarding the session or the transport. It is
// a no-op when the session has not been constructed yet.
func (d *Driver) Reset(ctx context.Context) error {
	d.browserMu.Lock()
	sess := d.browser
	d.browserMu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.Reset(ctx)
}

// Inspector returns the configured debugger frontend endpoint, failing
// before any state mutation when none was supplied.
func (d *Driver) Inspector() (string, error) {
	if d.opts.InspectorURL == "" {
		return "", ErrInspectorNotConfigured
	}
	return d.opts.InspectorURL, nil
}

// Started reports whether a navigation has occurred since construction or
// the last Reset.
func (d *Driver) Started() bool {
	d.browserMu.Lock()
	sess := d.browser
	d.browserMu.Unlock()
	if sess == nil {
		return false
	}
	return sess.Started()
}
