// pkg/driver/modal.go
package driver

import (
	"context"
	"regexp"
	"time"
)

// modalPollInterval is the sleep between polls of the remote dialog state.
const modalPollInterval = 50 * time.Millisecond

// ModalOptions filters and bounds a modal wait.
type ModalOptions struct {
	// Wait bounds the wait; zero falls back to the session default.
	Wait time.Duration
	// Text, when non-empty, must occur literally in the dialog message.
	// The match is case-sensitive.
	Text string
	// TextRegexp, when set, is matched against the dialog message and
	// takes precedence over Text.
	TextRegexp *regexp.Regexp
	// Prompt is the text entered into a prompt dialog by AcceptModal.
	Prompt string
}

// matcher compiles the expected-text predicate. A nil matcher accepts any
// raised dialog. The second return is the textual form used in timeout
// diagnostics.
func (o ModalOptions) matcher() (*regexp.Regexp, string) {
	if o.TextRegexp != nil {
		return o.TextRegexp, o.TextRegexp.String()
	}
	if o.Text != "" {
		return regexp.MustCompile(regexp.QuoteMeta(o.Text)), o.Text
	}
	return nil, ""
}

// FindModal blocks until a dialog message satisfying the expected-text
// predicate is observed, or the deadline elapses. Dialog state has no push
// notification at this layer: the remote pending-dialog accessor is
// re-read every 50ms. A raised dialog is assumed to stay raised until the
// caller accepts or dismisses it, so missed transitions between polls are
// tolerated.
//
// On expiry the returned *ModalNotFoundError distinguishes "no dialog was
// ever observed" from "a dialog was observed but its text did not match",
// reporting both the expected and the observed text in the latter case.
func (s *Session) FindModal(ctx context.Context, opts ModalOptions) (string, error) {
	matcher, expected := opts.matcher()

	wait := opts.Wait
	if wait <= 0 {
		wait = s.cfg.maxWait
	}
	deadline := time.Now().Add(wait)

	var observed []string
	seen := make(map[string]struct{})

	for {
		msg, ok, err := s.client.DialogMessage(ctx)
		if err != nil {
			return "", err
		}
		if ok {
			if matcher == nil || matcher.MatchString(msg) {
				return msg, nil
			}
			if _, dup := seen[msg]; !dup {
				seen[msg] = struct{}{}
				observed = append(observed, msg)
			}
		}

		if !time.Now().Before(deadline) {
			return "", &ModalNotFoundError{Expected: expected, Observed: observed}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(modalPollInterval):
		}
	}
}

// AcceptModal runs action (which is expected to raise a dialog), waits for
// a matching dialog and accepts it, entering opts.Prompt into prompt
// dialogs. It returns the observed message. A nil action skips straight to
// the wait, for dialogs raised out of band.
func (s *Session) AcceptModal(ctx context.Context, opts ModalOptions, action func(context.Context) error) (string, error) {
	if action != nil {
		if err := action(ctx); err != nil {
			return "", err
		}
	}
	msg, err := s.FindModal(ctx, opts)
	if err != nil {
		return "", err
	}
	if err := s.client.AcceptDialog(ctx, opts.Prompt); err != nil {
		return "", err
	}
	return msg, nil
}

// DismissModal is AcceptModal's counterpart for dismissing the dialog.
func (s *Session) DismissModal(ctx context.Context, opts ModalOptions, action func(context.Context) error) (string, error) {
	if action != nil {
		if err := action(ctx); err != nil {
			return "", err
		}
	}
	msg, err := s.FindModal(ctx, opts)
	if err != nil {
		return "", err
	}
	if err := s.client.DismissDialog(ctx); err != nil {
		return "", err
	}
	return msg, nil
}
