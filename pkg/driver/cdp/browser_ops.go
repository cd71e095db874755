// pkg/driver/cdp/browser_ops.go
package cdp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	cdproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/cicerone-dev/cicerone/pkg/driver"
)

// -- Navigation --

func (c *Client) Navigate(ctx context.Context, url string) error {
	pageCtx, err := c.page()
	if err != nil {
		return err
	}
	if err := chromedp.Run(pageCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("cdp: navigating to %s: %w", url, err)
	}
	return nil
}

func (c *Client) CurrentURL(ctx context.Context) (string, error) {
	pageCtx, err := c.page()
	if err != nil {
		return "", err
	}
	var url string
	if err := chromedp.Run(pageCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("cdp: reading location: %w", err)
	}
	return url, nil
}

func (c *Client) Refresh(ctx context.Context) error {
	pageCtx, err := c.page()
	if err != nil {
		return err
	}
	return chromedp.Run(pageCtx, chromedp.Reload())
}

func (c *Client) GoBack(ctx context.Context) error {
	pageCtx, err := c.page()
	if err != nil {
		return err
	}
	return chromedp.Run(pageCtx, chromedp.NavigateBack())
}

func (c *Client) GoForward(ctx context.Context) error {
	pageCtx, err := c.page()
	if err != nil {
		return err
	}
	return chromedp.Run(pageCtx, chromedp.NavigateForward())
}

// -- Cookies --

func (c *Client) Cookies(ctx context.Context) ([]driver.Cookie, error) {
	pageCtx, err := c.page()
	if err != nil {
		return nil, err
	}
	var raw []*network.Cookie
	err = chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("cdp: fetching cookies: %w", err)
	}
	cookies := make([]driver.Cookie, 0, len(raw))
	for _, ck := range raw {
		cookies = append(cookies, cookieFromNetwork(ck))
	}
	return cookies, nil
}

func (c *Client) SetCookie(ctx context.Context, ck driver.Cookie) error {
	pageCtx, err := c.page()
	if err != nil {
		return err
	}
	err = chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := network.SetCookie(ck.Name, ck.Value).
			WithDomain(ck.Domain).
			WithPath(ck.Path).
			WithSecure(ck.Secure).
			WithHTTPOnly(ck.HTTPOnly)
		if ck.SameSite != "" {
			params = params.WithSameSite(network.CookieSameSite(ck.SameSite))
		}
		if !ck.Expires.IsZero() {
			exp := cdproto.TimeSinceEpoch(ck.Expires)
			params = params.WithExpires(&exp)
		}
		return params.Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("cdp: setting cookie %q: %w", ck.Name, err)
	}
	return nil
}

func (c *Client) RemoveCookie(ctx context.Context, name string) error {
	pageCtx, err := c.page()
	if err != nil {
		return err
	}
	err = chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var url string
		if err := chromedp.Location(&url).Do(ctx); err != nil {
			return err
		}
		return network.DeleteCookies(name).WithURL(url).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("cdp: removing cookie %q: %w", name, err)
	}
	return nil
}

func (c *Client) ClearCookies(ctx context.Context) error {
	pageCtx, err := c.page()
	if err != nil {
		return err
	}
	return chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.ClearBrowserCookies().Do(ctx)
	}))
}

func cookieFromNetwork(ck *network.Cookie) driver.Cookie {
	out := driver.Cookie{
		Name:     ck.Name,
		Value:    ck.Value,
		Domain:   ck.Domain,
		Path:     ck.Path,
		Secure:   ck.Secure,
		HTTPOnly: ck.HTTPOnly,
		SameSite: string(ck.SameSite),
	}
	if ck.Expires > 0 {
		out.Expires = epochToTime(ck.Expires)
	}
	return out
}

// -- Headers and credentials --

func (c *Client) Headers(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil, errClientStopped
	}
	out := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		out[k] = v
	}
	return out, nil
}

func (c *Client) SetHeaders(ctx context.Context, headers map[string]string) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errClientStopped
	}
	c.headers = make(map[string]string, len(headers))
	for k, v := range headers {
		c.headers[k] = v
	}
	windows := make([]*window, 0, len(c.windows))
	for _, w := range c.windows {
		windows = append(windows, w)
	}
	c.mu.Unlock()

	for _, w := range windows {
		if err := c.applyHeaders(w.ctx); err != nil {
			return err
		}
	}
	return nil
}

// applyHeaders pushes the cached extra headers to one tab.
func (c *Client) applyHeaders(tabCtx context.Context) error {
	c.mu.Lock()
	hdrs := make(network.Headers, len(c.headers))
	for k, v := range c.headers {
		hdrs[k] = v
	}
	c.mu.Unlock()

	if len(hdrs) == 0 {
		return nil
	}
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return err
		}
		return network.SetExtraHTTPHeaders(hdrs).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("cdp: applying headers: %w", err)
	}
	return nil
}

// SetBasicAuth stores credentials answered to server auth challenges and
// turns on request interception so the challenges are delivered.
func (c *Client) SetBasicAuth(ctx context.Context, user, password string) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errClientStopped
	}
	c.authUser, c.authPass = user, password
	c.mu.Unlock()
	return c.enableInterceptionAll()
}

// SetProxy stores credentials for proxy auth challenges. The proxy server
// itself is a launch flag, so a host differing from the launch
// configuration cannot be honored.
func (c *Client) SetProxy(ctx context.Context, p driver.Proxy) error {
	if p.Host != "" {
		configured := fmt.Sprintf("%s:%d", p.Host, p.Port)
		if p.Port == 0 {
			configured = p.Host
		}
		if c.cfg.ProxyServer == "" || !proxyMatches(c.cfg.ProxyServer, configured) {
			return errors.New("cdp: proxy server must be set at launch via Config.ProxyServer")
		}
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errClientStopped
	}
	c.proxyUser, c.proxyPwd = p.User, p.Password
	c.mu.Unlock()
	if p.User == "" {
		return nil
	}
	return c.enableInterceptionAll()
}

// -- Viewport and rendering --

func (c *Client) Screenshot(ctx context.Context, opts driver.ScreenshotOptions) (string, error) {
	pageCtx, err := c.page()
	if err != nil {
		return "", err
	}
	quality := opts.Quality
	if quality <= 0 {
		quality = 90
	}

	var buf []byte
	actions := []chromedp.Action{}
	if opts.Transparent {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetDefaultBackgroundColorOverride().
				WithColor(&cdproto.RGBA{R: 0, G: 0, B: 0, A: 0}).Do(ctx)
		}))
	}
	switch {
	case opts.Selector != "":
		actions = append(actions, chromedp.Screenshot(opts.Selector, &buf, chromedp.ByQuery))
	case opts.FullPage:
		actions = append(actions, chromedp.FullScreenshot(&buf, quality))
	default:
		actions = append(actions, chromedp.CaptureScreenshot(&buf))
	}
	if opts.Transparent {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetDefaultBackgroundColorOverride().Do(ctx)
		}))
	}
	if err := chromedp.Run(pageCtx, actions...); err != nil {
		return "", fmt.Errorf("cdp: capturing screenshot: %w", err)
	}

	if opts.Path != "" {
		if err := os.WriteFile(opts.Path, buf, 0o644); err != nil {
			return "", fmt.Errorf("cdp: writing screenshot: %w", err)
		}
		return "", nil
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func (c *Client) Resize(ctx context.Context, width, height int) error {
	pageCtx, err := c.page()
	if err != nil {
		return err
	}
	return chromedp.Run(pageCtx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (c *Client) Maximize(ctx context.Context) error {
	return c.setWindowState(browser.WindowStateMaximized)
}

func (c *Client) Fullscreen(ctx context.Context) error {
	return c.setWindowState(browser.WindowStateFullscreen)
}

func (c *Client) setWindowState(state browser.WindowState) error {
	pageCtx, err := c.page()
	if err != nil {
		return err
	}
	return chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, bounds, err := browser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		// Leaving a non-normal state first is required before entering
		// another one.
		if bounds.WindowState != browser.WindowStateNormal {
			normal := &browser.Bounds{WindowState: browser.WindowStateNormal}
			if err := browser.SetWindowBounds(id, normal).Do(ctx); err != nil {
				return err
			}
		}
		return browser.SetWindowBounds(id, &browser.Bounds{WindowState: state}).Do(ctx)
	}))
}

// epochToTime converts protocol cookie expiry (seconds since epoch, with
// fractional part) to a time.Time.
func epochToTime(seconds float64) time.Time {
	sec := int64(seconds)
	nsec := int64((seconds - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// proxyMatches compares a launch-time proxy flag against a requested
// host:port, ignoring any scheme prefix on the flag.
func proxyMatches(configured, requested string) bool {
	if i := strings.Index(configured, "://"); i >= 0 {
		configured = configured[i+3:]
	}
	return strings.EqualFold(strings.TrimSuffix(configured, "/"), requested)
}
