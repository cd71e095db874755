// pkg/driver/cdp/eval.go
package cdp

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	cdproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"

	"github.com/cicerone-dev/cicerone/pkg/driver"
)

// frameCtxWait bounds how long SwitchFrame waits for the frame's default
// execution context to be announced.
const frameCtxWait = 2 * time.Second

// Evaluate runs script in the current scope and returns its result tree.
func (c *Client) Evaluate(ctx context.Context, script string, args ...any) (*driver.RemoteValue, error) {
	return c.evaluate(ctx, script, args, false)
}

// EvaluateAsync runs script and awaits the returned promise.
func (c *Client) EvaluateAsync(ctx context.Context, script string, args ...any) (*driver.RemoteValue, error) {
	return c.evaluate(ctx, script, args, true)
}

// Execute runs script for its side effects.
func (c *Client) Execute(ctx context.Context, script string, args ...any) error {
	_, err := c.evaluate(ctx, script, args, false)
	return err
}

func (c *Client) evaluate(ctx context.Context, script string, args []any, awaitPromise bool) (*driver.RemoteValue, error) {
	pageCtx, err := c.page()
	if err != nil {
		return nil, err
	}
	if c.cfg.RaiseJSErrors {
		if errs := c.takeJSErrors(); len(errs) > 0 {
			return nil, fmt.Errorf("cdp: uncaught page error: %s", strings.Join(errs, "; "))
		}
	}
	expr, err := buildExpression(script, args)
	if err != nil {
		return nil, err
	}
	contextID := c.scopeContextID()

	var rv *driver.RemoteValue
	err = chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := runtime.Evaluate(expr).WithReturnByValue(false)
		if awaitPromise {
			params = params.WithAwaitPromise(true)
		}
		if contextID != 0 {
			params = params.WithContextID(contextID)
		}
		obj, exc, err := params.Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exceptionError(exc)
		}
		rv, err = c.buildRemoteValue(ctx, obj, map[runtime.RemoteObjectID]*driver.RemoteValue{})
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("cdp: evaluating script: %w", err)
	}
	return rv, nil
}

// buildExpression wraps script so it evaluates as an expression with the
// given arguments applied positionally.
func buildExpression(script string, args []any) (string, error) {
	if len(args) == 0 {
		return fmt.Sprintf("(function() { return (%s); }).call(null)", script), nil
	}
	encoded := make([]string, len(args))
	for i, arg := range args {
		b, err := jsoniter.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("cdp: encoding script argument %d: %w", i, err)
		}
		encoded[i] = string(b)
	}
	return fmt.Sprintf("(function() { return (%s); }).apply(null, [%s])",
		script, strings.Join(encoded, ", ")), nil
}

// exceptionError renders a thrown JavaScript value as a Go error.
func exceptionError(exc *runtime.ExceptionDetails) error {
	msg := exc.Text
	if exc.Exception != nil && exc.Exception.Description != "" {
		msg = exc.Exception.Description
	}
	return fmt.Errorf("cdp: script exception: %s", msg)
}

// buildRemoteValue converts a protocol RemoteObject into the bridge's
// result tree, descending into arrays and plain objects by identifier.
// seen is keyed by remote object ID so a revisited object maps to the
// same node, which keeps shared references and cycles intact.
func (c *Client) buildRemoteValue(ctx context.Context, obj *runtime.RemoteObject, seen map[runtime.RemoteObjectID]*driver.RemoteValue) (*driver.RemoteValue, error) {
	if obj == nil {
		return driver.Scalar(nil), nil
	}
	if obj.UnserializableValue != "" {
		v, err := parseUnserializable(obj.UnserializableValue)
		if err != nil {
			return nil, err
		}
		return driver.Scalar(v), nil
	}
	if obj.ObjectID == "" {
		return scalarFromValue(obj)
	}
	if rv, ok := seen[obj.ObjectID]; ok {
		return rv, nil
	}

	switch {
	case obj.Subtype == runtime.SubtypeNode:
		rv := driver.ObjectRef(string(runtime.SubtypeNode), string(obj.ObjectID))
		seen[obj.ObjectID] = rv
		return rv, nil

	case obj.Subtype == runtime.SubtypeNull:
		return driver.Scalar(nil), nil

	case obj.Type == runtime.TypeFunction, obj.Type == runtime.TypeSymbol:
		return driver.Scalar(obj.Description), nil

	case obj.Subtype == runtime.SubtypeArray:
		rv := &driver.RemoteValue{Kind: driver.KindSeq}
		seen[obj.ObjectID] = rv
		props, err := c.ownProperties(ctx, obj.ObjectID)
		if err != nil {
			return nil, err
		}
		items := make([]indexedValue, 0, len(props))
		for _, p := range props {
			idx, err := strconv.Atoi(p.Name)
			if err != nil {
				continue
			}
			child, err := c.buildRemoteValue(ctx, p.Value, seen)
			if err != nil {
				return nil, err
			}
			items = append(items, indexedValue{idx, child})
		}
		sort.Slice(items, func(i, j int) bool { return items[i].idx < items[j].idx })
		rv.Seq = make([]*driver.RemoteValue, len(items))
		for i, it := range items {
			rv.Seq[i] = it.value
		}
		return rv, nil

	case obj.Type == runtime.TypeObject:
		rv := &driver.RemoteValue{Kind: driver.KindMap, Map: map[string]*driver.RemoteValue{}}
		seen[obj.ObjectID] = rv
		props, err := c.ownProperties(ctx, obj.ObjectID)
		if err != nil {
			return nil, err
		}
		// GetProperties reports own properties in the engine's insertion
		// order; keep it for consumers of the result tree.
		rv.Keys = make([]string, 0, len(props))
		for _, p := range props {
			child, err := c.buildRemoteValue(ctx, p.Value, seen)
			if err != nil {
				return nil, err
			}
			rv.Map[p.Name] = child
			rv.Keys = append(rv.Keys, p.Name)
		}
		return rv, nil
	}

	return driver.Scalar(obj.Description), nil
}

type indexedValue struct {
	idx   int
	value *driver.RemoteValue
}

// ownProperties fetches the enumerable own properties of a remote object.
func (c *Client) ownProperties(ctx context.Context, id runtime.RemoteObjectID) ([]*runtime.PropertyDescriptor, error) {
	props, _, _, exc, err := runtime.GetProperties(id).WithOwnProperties(true).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("cdp: fetching object properties: %w", err)
	}
	if exc != nil {
		return nil, exceptionError(exc)
	}
	out := props[:0]
	for _, p := range props {
		if p.Enumerable && p.Value != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// parseUnserializable maps values JSON cannot carry back to Go numbers.
func parseUnserializable(v runtime.UnserializableValue) (any, error) {
	switch v.String() {
	case "-0":
		return math.Copysign(0, -1), nil
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	// BigInt literals arrive as "123n".
	if s := strings.TrimSuffix(v.String(), "n"); s != v.String() {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cdp: parsing bigint %q: %w", v, err)
		}
		return n, nil
	}
	return nil, fmt.Errorf("cdp: unserializable value %q", v)
}

// scalarFromValue decodes a by-value result into a scalar node.
func scalarFromValue(obj *runtime.RemoteObject) (*driver.RemoteValue, error) {
	if obj.Type == runtime.TypeUndefined || len(obj.Value) == 0 {
		return driver.Scalar(nil), nil
	}
	var v any
	if err := jsoniter.Unmarshal(obj.Value, &v); err != nil {
		return nil, fmt.Errorf("cdp: decoding scalar result: %w", err)
	}
	return driver.Scalar(v), nil
}

// -- Finding nodes --

const (
	findByCSS = `function(sel) {
		var root = this === window ? document : this;
		return Array.prototype.slice.call(root.querySelectorAll(sel));
	}`
	findByXPath = `function(sel) {
		var root = this === window ? document : this;
		var ctx = root === document ? document : root;
		var r = document.evaluate(sel, ctx, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		var out = [];
		for (var i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
		return out;
	}`
)

// Find resolves a selector to node references, optionally scoped to a
// previously found node.
func (c *Client) Find(ctx context.Context, method, selector string, within *driver.NodeRef) ([]driver.NodeRef, error) {
	pageCtx, err := c.page()
	if err != nil {
		return nil, err
	}
	var fn string
	switch method {
	case "css":
		fn = findByCSS
	case "xpath":
		fn = findByXPath
	default:
		return nil, fmt.Errorf("cdp: unknown find method %q", method)
	}

	pageID, err := c.PageID(ctx)
	if err != nil {
		return nil, err
	}
	contextID := c.scopeContextID()

	selArg, err := jsoniter.Marshal(selector)
	if err != nil {
		return nil, fmt.Errorf("cdp: encoding selector: %w", err)
	}

	var refs []driver.NodeRef
	err = chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		receiver, err := c.resolveReceiver(ctx, within, contextID)
		if err != nil {
			return err
		}
		params := runtime.CallFunctionOn(fn).
			WithObjectID(receiver).
			WithReturnByValue(false).
			WithArguments([]*runtime.CallArgument{{Value: selArg}})
		obj, exc, err := params.Do(ctx)
		if err != nil {
			return fmt.Errorf("cdp: finding nodes: %w", err)
		}
		if exc != nil {
			return exceptionError(exc)
		}
		if obj.ObjectID == "" {
			return nil
		}
		props, err := c.ownProperties(ctx, obj.ObjectID)
		if err != nil {
			return err
		}
		type indexedRef struct {
			idx int
			id  string
		}
		items := make([]indexedRef, 0, len(props))
		for _, p := range props {
			idx, err := strconv.Atoi(p.Name)
			if err != nil || p.Value.ObjectID == "" {
				continue
			}
			items = append(items, indexedRef{idx, string(p.Value.ObjectID)})
		}
		sort.Slice(items, func(i, j int) bool { return items[i].idx < items[j].idx })
		refs = make([]driver.NodeRef, len(items))
		for i, it := range items {
			refs[i] = driver.NodeRef{PageID: pageID, ObjectID: it.id}
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// resolveReceiver picks the object the find function is called on: the
// scoping node when given, otherwise the window of the current scope.
func (c *Client) resolveReceiver(ctx context.Context, within *driver.NodeRef, contextID runtime.ExecutionContextID) (runtime.RemoteObjectID, error) {
	if within != nil {
		return runtime.RemoteObjectID(within.ObjectID), nil
	}
	params := runtime.Evaluate("window").WithReturnByValue(false)
	if contextID != 0 {
		params = params.WithContextID(contextID)
	}
	obj, exc, err := params.Do(ctx)
	if err != nil {
		return "", fmt.Errorf("cdp: resolving scope root: %w", err)
	}
	if exc != nil {
		return "", exceptionError(exc)
	}
	return obj.ObjectID, nil
}

// -- Frames --

// SwitchFrame descends into the frame hosted by the given iframe node.
// Scripts and finds run in that frame until the matching
// SwitchToParentFrame.
func (c *Client) SwitchFrame(ctx context.Context, ref driver.NodeRef) error {
	pageCtx, err := c.page()
	if err != nil {
		return err
	}
	var frameID cdproto.FrameID
	err = chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.DescribeNode().WithObjectID(runtime.RemoteObjectID(ref.ObjectID)).Do(ctx)
		if err != nil {
			return fmt.Errorf("cdp: describing frame node: %w", err)
		}
		if node.FrameID == "" {
			return fmt.Errorf("cdp: node %s does not host a frame", ref.ObjectID)
		}
		frameID = node.FrameID
		return nil
	}))
	if err != nil {
		return err
	}

	contextID, err := c.waitFrameContext(ctx, frameID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return errClientStopped
	}
	c.frames = append(c.frames, frameScope{frameID: frameID, contextID: contextID})
	return nil
}

// SwitchToParentFrame pops one level off the frame stack. At the top
// level it is a no-op.
func (c *Client) SwitchToParentFrame(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return errClientStopped
	}
	if n := len(c.frames); n > 0 {
		c.frames = c.frames[:n-1]
	}
	return nil
}

// waitFrameContext polls for the frame's default execution context, which
// is announced asynchronously after the frame loads.
func (c *Client) waitFrameContext(ctx context.Context, frameID cdproto.FrameID) (runtime.ExecutionContextID, error) {
	deadline := time.Now().Add(frameCtxWait)
	for {
		c.mu.Lock()
		id, ok := c.frameCtxs[frameID]
		c.mu.Unlock()
		if ok {
			return id, nil
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("cdp: no execution context for frame %s", frameID)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// scopeContextID reports the execution context of the innermost entered
// frame, or zero at the top level.
func (c *Client) scopeContextID() runtime.ExecutionContextID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.frames); n > 0 {
		return c.frames[n-1].contextID
	}
	return 0
}
