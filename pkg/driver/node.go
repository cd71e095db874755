// pkg/driver/node.go
package driver

import (
	"context"
	"fmt"
)

// Node is an opaque handle to a remote DOM/JS object, bound to the session
// and the page it was observed on. The handle carries no liveness
// information: once the remote page navigates or the object is collected
// remotely, operations through the handle fail with the transport's
// stale-reference error.
type Node struct {
	sess     *Session
	pageID   string
	objectID string
}

func newNode(sess *Session, pageID, objectID string) *Node {
	return &Node{sess: sess, pageID: pageID, objectID: objectID}
}

// PageID reports the page the node was observed on.
func (n *Node) PageID() string { return n.pageID }

// ObjectID reports the remote object identifier backing the node.
func (n *Node) ObjectID() string { return n.objectID }

// Ref returns the transport-level reference for the node.
func (n *Node) Ref() NodeRef {
	return NodeRef{PageID: n.pageID, ObjectID: n.objectID}
}

// Find resolves selector scoped to this node.
func (n *Node) Find(ctx context.Context, method, selector string) ([]*Node, error) {
	ref := n.Ref()
	return n.sess.findWithin(ctx, method, selector, &ref)
}

func (n *Node) String() string {
	return fmt.Sprintf("Node(page=%s object=%s)", n.pageID, n.objectID)
}
