// pkg/driver/cdp/rules.go
package cdp

import (
	"context"
	"regexp"
	"strings"

	cdproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// requestRules is a compiled allow/block list for request URLs. Patterns
// are glob-style: * matches any run of characters, everything else is
// literal. An empty allowlist admits everything not blocked.
type requestRules struct {
	allow []*regexp.Regexp
	block []*regexp.Regexp
}

func compileRules(allow, block []string) (*requestRules, error) {
	r := &requestRules{}
	for _, p := range allow {
		re, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		r.allow = append(r.allow, re)
	}
	for _, p := range block {
		re, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		r.block = append(r.block, re)
	}
	return r, nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile(strings.Join(parts, ".*"))
}

// permits decides whether a URL may load: blocklist first, then the
// allowlist when one is present.
func (r *requestRules) permits(url string) bool {
	if r == nil {
		return true
	}
	for _, re := range r.block {
		if re.MatchString(url) {
			return false
		}
	}
	if len(r.allow) == 0 {
		return true
	}
	for _, re := range r.allow {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// SetRequestRules installs URL allow/block patterns and turns on request
// interception so they apply.
func (c *Client) SetRequestRules(ctx context.Context, allow, block []string) error {
	rules, err := compileRules(allow, block)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errClientStopped
	}
	if len(allow) == 0 && len(block) == 0 {
		rules = nil
	}
	c.rules = rules
	c.mu.Unlock()
	return c.enableInterceptionAll()
}

// enableInterceptionAll (re)enables fetch interception on every attached
// tab and marks the client so future tabs get it on attach.
func (c *Client) enableInterceptionAll() error {
	c.mu.Lock()
	c.intercepting = true
	windows := make([]*window, 0, len(c.windows))
	for _, w := range c.windows {
		windows = append(windows, w)
	}
	c.mu.Unlock()

	for _, w := range windows {
		if err := c.enableInterception(w.ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) enableInterception(tabCtx context.Context) error {
	return chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return fetch.Enable().WithHandleAuthRequests(true).Do(ctx)
	}))
}

// handleRequestPaused answers one paused request. It runs on its own
// goroutine: fetch commands must not execute on the event callback, which
// would deadlock the target's message loop.
func (c *Client) handleRequestPaused(tabCtx context.Context, ev *fetch.EventRequestPaused) {
	c.mu.Lock()
	rules := c.rules
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return
	}

	execCtx := cdproto.WithExecutor(tabCtx, chromedp.FromContext(tabCtx).Target)
	if rules.permits(ev.Request.URL) {
		if err := fetch.ContinueRequest(ev.RequestID).Do(execCtx); err != nil {
			c.log.Debug("continuing request", zap.String("url", ev.Request.URL), zap.Error(err))
		}
		return
	}
	c.log.Debug("blocking request", zap.String("url", ev.Request.URL))
	err := fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	if err != nil {
		c.log.Debug("failing request", zap.String("url", ev.Request.URL), zap.Error(err))
	}
}

// handleAuthRequired answers server and proxy auth challenges with the
// stored credentials.
func (c *Client) handleAuthRequired(tabCtx context.Context, ev *fetch.EventAuthRequired) {
	c.mu.Lock()
	user, pass := c.authUser, c.authPass
	if ev.AuthChallenge != nil && ev.AuthChallenge.Source == fetch.AuthChallengeSourceProxy {
		user, pass = c.proxyUser, c.proxyPwd
	}
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return
	}

	execCtx := cdproto.WithExecutor(tabCtx, chromedp.FromContext(tabCtx).Target)
	resp := &fetch.AuthChallengeResponse{
		Response: fetch.AuthChallengeResponseResponseCancelAuth,
	}
	if user != "" {
		resp = &fetch.AuthChallengeResponse{
			Response: fetch.AuthChallengeResponseResponseProvideCredentials,
			Username: user,
			Password: pass,
		}
	}
	err := fetch.ContinueWithAuth(ev.RequestID, resp).Do(execCtx)
	if err != nil {
		c.log.Debug("answering auth challenge", zap.Error(err))
	}
}
