// pkg/driver/cdp/config.go
package cdp

import (
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/cicerone-dev/cicerone/pkg/driver"
)

// Config holds the launch-time knobs of the browser process. Everything
// here must be known before the process starts; session-level behavior is
// configured through driver.Options instead.
type Config struct {
	// Headless launches the browser without a visible window.
	Headless bool

	// IgnoreTLSErrors tolerates invalid certificates.
	IgnoreTLSErrors bool

	// WindowWidth and WindowHeight set the initial window size.
	WindowWidth  int
	WindowHeight int

	// RemoteHost and RemotePort expose the remote-debugging endpoint.
	RemoteHost string
	RemotePort int

	// Extensions lists unpacked extension directories to load.
	Extensions []string

	// ProxyServer routes browser traffic through an upstream proxy,
	// "host:port". Proxy credentials are supplied later via SetProxy or
	// SetBasicAuth.
	ProxyServer string

	// Args are extra command-line flags, "name" or "name=value".
	Args []string

	// LaunchTimeout bounds the liveness check after launch.
	LaunchTimeout time.Duration

	// Debug logs DevTools protocol traffic at debug level.
	Debug bool

	// RaiseJSErrors surfaces uncaught page JavaScript errors as errors on
	// the next script evaluation.
	RaiseJSErrors bool
}

const defaultLaunchTimeout = 30 * time.Second

// withOptions lays the driver's construction-time options over the launch
// defaults. Only explicitly supplied options override.
func (c Config) withOptions(opts driver.Options) Config {
	if opts.Headless != nil {
		c.Headless = *opts.Headless
	}
	if opts.IgnoreHTTPSErrors != nil {
		c.IgnoreTLSErrors = *opts.IgnoreHTTPSErrors
	}
	if opts.RemoteHost != "" {
		c.RemoteHost = opts.RemoteHost
	}
	if opts.RemotePort > 0 {
		c.RemotePort = opts.RemotePort
	}
	if opts.WindowSize != nil {
		c.WindowWidth = opts.WindowSize.Width
		c.WindowHeight = opts.WindowSize.Height
	}
	if len(opts.Extensions) > 0 {
		c.Extensions = append(append([]string(nil), c.Extensions...), opts.Extensions...)
	}
	if opts.Debug {
		c.Debug = true
	}
	if opts.RaiseJSErrors != nil {
		c.RaiseJSErrors = *opts.RaiseJSErrors
	}
	return c
}

func (c Config) launchTimeout() time.Duration {
	if c.LaunchTimeout > 0 {
		return c.LaunchTimeout
	}
	return defaultLaunchTimeout
}

// allocatorOptions assembles the exec allocator flags for the configured
// browser instance.
func (c Config) allocatorOptions() []chromedp.ExecAllocatorOption {
	// Start from the defaults, overriding the flag that advertises
	// automation to the page.
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", c.Headless),
		chromedp.Flag("ignore-certificate-errors", c.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	if c.WindowWidth > 0 && c.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(c.WindowWidth, c.WindowHeight))
	}
	if c.RemotePort > 0 {
		opts = append(opts, chromedp.Flag("remote-debugging-port", c.RemotePort))
	}
	if c.RemoteHost != "" {
		opts = append(opts, chromedp.Flag("remote-debugging-address", c.RemoteHost))
	}
	if c.ProxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(c.ProxyServer))
	}

	if len(c.Extensions) > 0 {
		opts = append(opts,
			chromedp.Flag("disable-extensions", false),
			chromedp.Flag("load-extension", strings.Join(c.Extensions, ",")),
		)
	} else {
		opts = append(opts, chromedp.Flag("disable-extensions", true))
	}

	for _, arg := range c.Args {
		name, value, hasValue := splitArg(arg)
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	// Flags required when running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// splitArg normalizes "--name=value" / "name" style extra arguments.
func splitArg(arg string) (name, value string, hasValue bool) {
	arg = strings.TrimPrefix(arg, "--")
	name, value, hasValue = strings.Cut(arg, "=")
	return name, value, hasValue
}
