// pkg/driver/types.go
package driver

import (
	"context"
	"time"
)

// ValueKind discriminates the closed set of shapes a script evaluation
// result can take on the wire.
type ValueKind int

const (
	// KindScalar is a primitive: nil, bool, number or string.
	KindScalar ValueKind = iota
	// KindSeq is an ordered sequence of remote values.
	KindSeq
	// KindMap is a keyed map of remote values.
	KindMap
	// KindObject is a reference to an object living in the remote engine,
	// carrying a subtype tag and an opaque object identifier.
	KindObject
)

// SubtypeNode is the object subtype the remote engine assigns to DOM nodes.
// Object references with this subtype and a present object identifier are
// re-wrapped as *Node handles by the marshaller.
const SubtypeNode = "node"

// RemoteValue is a single node in an evaluation result tree as returned by
// the transport. It is a tagged union: exactly the fields relevant to Kind
// are populated. Trees may share sub-structures and may contain cycles;
// the marshaller relies on pointer identity to handle both.
type RemoteValue struct {
	Kind ValueKind

	// Scalar payload, valid when Kind == KindScalar.
	Scalar any

	// Seq payload, valid when Kind == KindSeq.
	Seq []*RemoteValue

	// Map payload, valid when Kind == KindMap. Keys preserves the map's
	// insertion order when the transport provides one; a transport that
	// cannot leaves it nil.
	Map  map[string]*RemoteValue
	Keys []string

	// Subtype and ObjectID describe a KindObject reference. An object
	// reference without an ObjectID is not addressable remotely; its
	// Properties (if any) are treated as a plain map.
	Subtype    string
	ObjectID   string
	Properties map[string]*RemoteValue
}

// Scalar wraps a primitive into a RemoteValue.
func Scalar(v any) *RemoteValue { return &RemoteValue{Kind: KindScalar, Scalar: v} }

// Seq wraps an ordered sequence into a RemoteValue.
func Seq(items ...*RemoteValue) *RemoteValue { return &RemoteValue{Kind: KindSeq, Seq: items} }

// MapValue wraps a keyed map into a RemoteValue. Key order is unspecified;
// transports that know the insertion order populate Keys themselves.
func MapValue(m map[string]*RemoteValue) *RemoteValue {
	return &RemoteValue{Kind: KindMap, Map: m}
}

// ObjectRef wraps a remote object reference into a RemoteValue.
func ObjectRef(subtype, objectID string) *RemoteValue {
	return &RemoteValue{Kind: KindObject, Subtype: subtype, ObjectID: objectID}
}

// NodeRef identifies a remote DOM/JS object: the page it lives on and its
// opaque object identifier. This is what Find returns from the transport.
type NodeRef struct {
	PageID   string
	ObjectID string
}

// Cookie is the transport-neutral cookie representation used across the
// Client boundary.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	SameSite string
	Expires  time.Time
}

// Proxy describes an upstream proxy for browser traffic.
type Proxy struct {
	Host     string
	Port     int
	User     string
	Password string
}

// ScreenshotOptions controls screenshot rendering. When Path is set the
// image is written to disk; otherwise the base64 payload is returned.
type ScreenshotOptions struct {
	Path        string
	FullPage    bool
	Quality     int
	Selector    string
	Transparent bool
}

// Client is the transport collaborator: an open connection to a running
// browser instance speaking a remote debugging protocol. Every method is a
// synchronous request/response against the remote browser; failures are
// transport errors and propagate to the caller unchanged. The bridge never
// issues overlapping calls on one Client.
type Client interface {
	// Navigation.
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error

	// Script execution. Evaluate returns the raw result tree; Execute
	// discards the result.
	Evaluate(ctx context.Context, script string, args ...any) (*RemoteValue, error)
	EvaluateAsync(ctx context.Context, script string, args ...any) (*RemoteValue, error)
	Execute(ctx context.Context, script string, args ...any) error

	// Find resolves a selector to remote object references. The method is
	// the selection strategy understood by the browser side ("css" or
	// "xpath"); within can scope the query to a node.
	Find(ctx context.Context, method, selector string, within *NodeRef) ([]NodeRef, error)

	// PageID reports the identifier of the page currently executing
	// scripts. Node handles are bound to it.
	PageID(ctx context.Context) (string, error)

	// Cookies and headers.
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookie(ctx context.Context, c Cookie) error
	RemoveCookie(ctx context.Context, name string) error
	ClearCookies(ctx context.Context) error
	Headers(ctx context.Context) (map[string]string, error)
	SetHeaders(ctx context.Context, headers map[string]string) error

	// Network configuration.
	SetProxy(ctx context.Context, p Proxy) error
	SetBasicAuth(ctx context.Context, user, password string) error
	SetRequestRules(ctx context.Context, allow, deny []string) error

	// Windows.
	Windows(ctx context.Context) ([]string, error)
	CurrentWindow(ctx context.Context) (string, error)
	SwitchWindow(ctx context.Context, handle string) error
	OpenWindow(ctx context.Context) (string, error)
	CloseWindow(ctx context.Context, handle string) error

	// Frames. SwitchFrame enters the frame backed by the given remote
	// object; SwitchToParentFrame pops back one level.
	SwitchFrame(ctx context.Context, ref NodeRef) error
	SwitchToParentFrame(ctx context.Context) error

	// Viewport and rendering.
	Screenshot(ctx context.Context, opts ScreenshotOptions) (string, error)
	Resize(ctx context.Context, width, height int) error
	Maximize(ctx context.Context) error
	Fullscreen(ctx context.Context) error

	// Modal dialogs. DialogMessage re-reads the remote pending-dialog
	// state: ok reports whether a dialog is currently raised.
	DialogMessage(ctx context.Context) (message string, ok bool, err error)
	AcceptDialog(ctx context.Context, promptText string) error
	DismissDialog(ctx context.Context) error

	// Stop tears down the transport and the launched browser process.
	// It must be idempotent.
	Stop(ctx context.Context) error
}

// ConnectFunc launches a browser process and opens a transport to it. The
// driver passes its full Options through so the connector can honor the
// launch-time knobs (headless, remote debugging endpoint, window size,
// extensions, js-error policy). The production implementation lives in
// pkg/driver/cdp; tests substitute fakes.
type ConnectFunc func(ctx context.Context, opts Options) (Client, error)
