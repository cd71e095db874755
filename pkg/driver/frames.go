// pkg/driver/frames.go
package driver

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// WithinFrame switches the script-execution context into the frame
// identified by selector, runs fn, and unconditionally restores the parent
// frame on every exit path. The selector is one of:
//
//   - *Node: an iframe element handle,
//   - int: a positional index among the page's current iframe elements,
//   - string: an iframe name-attribute match.
//
// Any other selector type fails with *InvalidFrameSelectorError before the
// context is switched.
func (s *Session) WithinFrame(ctx context.Context, selector any, fn func(context.Context) error) (err error) {
	ref, err := s.resolveFrame(ctx, selector)
	if err != nil {
		return err
	}

	if err := s.client.SwitchFrame(ctx, ref); err != nil {
		return err
	}
	defer func() {
		if rerr := s.client.SwitchToParentFrame(ctx); rerr != nil {
			s.log.Warn("failed to restore parent frame", zap.Error(rerr))
			if err == nil {
				err = fmt.Errorf("driver: restoring parent frame: %w", rerr)
			}
		}
	}()

	return fn(ctx)
}

// resolveFrame maps a frame selector to a remote object reference without
// switching context. Selector-type validation happens here, ahead of any
// remote call.
func (s *Session) resolveFrame(ctx context.Context, selector any) (NodeRef, error) {
	switch sel := selector.(type) {
	case *Node:
		return sel.Ref(), nil

	case int:
		frames, err := s.Find(ctx, "css", "iframe")
		if err != nil {
			return NodeRef{}, err
		}
		if sel < 0 || sel >= len(frames) {
			return NodeRef{}, &FrameNotFoundError{Selector: sel}
		}
		return frames[sel].Ref(), nil

	case string:
		frames, err := s.Find(ctx, "css", fmt.Sprintf("iframe[name=%q]", sel))
		if err != nil {
			return NodeRef{}, err
		}
		if len(frames) == 0 {
			return NodeRef{}, &FrameNotFoundError{Selector: sel}
		}
		return frames[0].Ref(), nil

	default:
		return NodeRef{}, &InvalidFrameSelectorError{Selector: selector}
	}
}

// WithinWindow activates the window with the given handle, runs fn, and
// switches back to the previously active window on every exit path.
func (s *Session) WithinWindow(ctx context.Context, handle string, fn func(context.Context) error) (err error) {
	prev, err := s.client.CurrentWindow(ctx)
	if err != nil {
		return err
	}
	if err := s.client.SwitchWindow(ctx, handle); err != nil {
		return err
	}
	defer func() {
		if rerr := s.client.SwitchWindow(ctx, prev); rerr != nil {
			s.log.Warn("failed to restore previous window", zap.Error(rerr), zap.String("handle", prev))
			if err == nil {
				err = fmt.Errorf("driver: restoring window %q: %w", prev, rerr)
			}
		}
	}()

	return fn(ctx)
}
