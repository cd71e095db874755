// pkg/driver/fake_test.go
package driver_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/cicerone-dev/cicerone/pkg/driver"
)

// fakeClient is an in-memory Client used to exercise the bridge without a
// browser. Behavior knobs are plain fields; every mutating call is
// recorded so tests can assert on call order and counts.
type fakeClient struct {
	mu sync.Mutex

	pageID     string
	currentURL string

	navigations []string
	stopCalls   int

	evalResult *driver.RemoteValue
	evalErr    error
	executed   []string

	// findResults maps "method selector" to the refs returned.
	findResults map[string][]driver.NodeRef
	findErr     error
	findCalls   []string

	cookies        []driver.Cookie
	removedCookies []string
	clearedCookies int

	headers map[string]string

	allow, deny      []string
	ruleApplications int

	basicAuthUser string
	proxy         driver.Proxy

	windows       []string
	currentWindow string
	windowSwitch  []string

	frameSwitches []driver.NodeRef
	parentCalls   int

	// dialog returns the currently raised dialog message, re-read on
	// every poll.
	dialog    func() (string, bool)
	accepted  []string
	dismissed int

	screenshots []driver.ScreenshotOptions

	resizes    []driver.Size
	maximized  int
	fullscreen int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pageID:        "page-1",
		currentWindow: "window-1",
		windows:       []string{"window-1"},
		findResults:   make(map[string][]driver.NodeRef),
		headers:       make(map[string]string),
	}
}

var _ driver.Client = (*fakeClient)(nil)

func (f *fakeClient) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	f.currentURL = url
	return nil
}

func (f *fakeClient) CurrentURL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentURL, nil
}

func (f *fakeClient) Refresh(context.Context) error   { return nil }
func (f *fakeClient) GoBack(context.Context) error    { return nil }
func (f *fakeClient) GoForward(context.Context) error { return nil }

func (f *fakeClient) Evaluate(context.Context, string, ...any) (*driver.RemoteValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.evalResult, f.evalErr
}

func (f *fakeClient) EvaluateAsync(ctx context.Context, script string, args ...any) (*driver.RemoteValue, error) {
	return f.Evaluate(ctx, script, args...)
}

func (f *fakeClient) Execute(_ context.Context, script string, _ ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, script)
	return nil
}

func (f *fakeClient) Find(_ context.Context, method, selector string, _ *driver.NodeRef) ([]driver.NodeRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + selector
	f.findCalls = append(f.findCalls, key)
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findResults[key], nil
}

func (f *fakeClient) PageID(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageID, nil
}

func (f *fakeClient) Cookies(context.Context) ([]driver.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]driver.Cookie(nil), f.cookies...), nil
}

func (f *fakeClient) SetCookie(_ context.Context, c driver.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = append(f.cookies, c)
	return nil
}

func (f *fakeClient) RemoveCookie(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedCookies = append(f.removedCookies, name)
	return nil
}

func (f *fakeClient) ClearCookies(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearedCookies++
	f.cookies = nil
	return nil
}

func (f *fakeClient) Headers(context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers, nil
}

func (f *fakeClient) SetHeaders(_ context.Context, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = headers
	return nil
}

func (f *fakeClient) SetProxy(_ context.Context, p driver.Proxy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proxy = p
	return nil
}

func (f *fakeClient) SetBasicAuth(_ context.Context, user, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.basicAuthUser = user
	return nil
}

func (f *fakeClient) SetRequestRules(_ context.Context, allow, deny []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allow, f.deny = allow, deny
	f.ruleApplications++
	return nil
}

func (f *fakeClient) Windows(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.windows...), nil
}

func (f *fakeClient) CurrentWindow(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentWindow, nil
}

func (f *fakeClient) SwitchWindow(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.windows {
		if w == handle {
			f.currentWindow = handle
			f.windowSwitch = append(f.windowSwitch, handle)
			return nil
		}
	}
	return fmt.Errorf("no window with handle %q", handle)
}

func (f *fakeClient) OpenWindow(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := fmt.Sprintf("window-%d", len(f.windows)+1)
	f.windows = append(f.windows, handle)
	return handle, nil
}

func (f *fakeClient) CloseWindow(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range f.windows {
		if w == handle {
			f.windows = append(f.windows[:i], f.windows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no window with handle %q", handle)
}

func (f *fakeClient) SwitchFrame(_ context.Context, ref driver.NodeRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frameSwitches = append(f.frameSwitches, ref)
	return nil
}

func (f *fakeClient) SwitchToParentFrame(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parentCalls++
	return nil
}

func (f *fakeClient) Screenshot(_ context.Context, opts driver.ScreenshotOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screenshots = append(f.screenshots, opts)
	if opts.Path != "" {
		return "", nil
	}
	return "aW1hZ2U=", nil
}

func (f *fakeClient) Resize(_ context.Context, width, height int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, driver.Size{Width: width, Height: height})
	return nil
}

func (f *fakeClient) Maximize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maximized++
	return nil
}

func (f *fakeClient) Fullscreen(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fullscreen++
	return nil
}

func (f *fakeClient) DialogMessage(context.Context) (string, bool, error) {
	f.mu.Lock()
	dialog := f.dialog
	f.mu.Unlock()
	if dialog == nil {
		return "", false, nil
	}
	msg, ok := dialog()
	return msg, ok, nil
}

func (f *fakeClient) AcceptDialog(_ context.Context, promptText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, promptText)
	f.dialog = nil
	return nil
}

func (f *fakeClient) DismissDialog(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed++
	f.dialog = nil
	return nil
}

func (f *fakeClient) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeClient) setDialog(fn func() (string, bool)) {
	f.mu.Lock()
	f.dialog = fn
	f.mu.Unlock()
}
