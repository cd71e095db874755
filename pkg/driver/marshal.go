// pkg/driver/marshal.go
package driver

// Marshal converts an evaluation result tree into native values. Remote
// object references tagged as nodes become *Node handles bound to
// (session, pageID, objectID); sequences become []any; keyed maps and
// non-node object references become map[string]any; scalars pass through.
//
// The traversal runs over an explicit work-list with a memo table keyed by
// the identity of each RemoteValue, not by structural equality. Composite
// containers are allocated and memoized before their children are
// scheduled, so a sub-structure referenced twice marshals to the same
// native instance and a cycle resolves to the in-progress container
// instead of recursing forever. Marshalling never fails: it only
// restructures transport output that has already been validated upstream.
func (s *Session) Marshal(v *RemoteValue, pageID string) any {
	if v == nil {
		return nil
	}

	type task struct {
		rv     *RemoteValue
		assign func(any)
	}

	var root any
	memo := make(map[*RemoteValue]any)
	stack := []task{{rv: v, assign: func(out any) { root = out }}}

	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t.rv == nil {
			t.assign(nil)
			continue
		}
		if out, ok := memo[t.rv]; ok {
			t.assign(out)
			continue
		}

		switch t.rv.Kind {
		case KindScalar:
			t.assign(t.rv.Scalar)

		case KindSeq:
			out := make([]any, len(t.rv.Seq))
			memo[t.rv] = out
			t.assign(out)
			for i, child := range t.rv.Seq {
				stack = append(stack, task{rv: child, assign: func(v any) { out[i] = v }})
			}

		case KindMap:
			out := make(map[string]any, len(t.rv.Map))
			memo[t.rv] = out
			t.assign(out)
			// Keys carries the transport's insertion order when known, so
			// children are scheduled deterministically.
			for _, key := range mapKeys(t.rv) {
				child := t.rv.Map[key]
				stack = append(stack, task{rv: child, assign: func(v any) { out[key] = v }})
			}

		case KindObject:
			if t.rv.Subtype == SubtypeNode && t.rv.ObjectID != "" {
				node := newNode(s, pageID, t.rv.ObjectID)
				memo[t.rv] = node
				t.assign(node)
				continue
			}
			// A reference without an addressable object identifier is just
			// a bag of properties.
			out := make(map[string]any, len(t.rv.Properties))
			memo[t.rv] = out
			t.assign(out)
			for key, child := range t.rv.Properties {
				stack = append(stack, task{rv: child, assign: func(v any) { out[key] = v }})
			}
		}
	}

	return root
}

// mapKeys returns the keys of a KindMap value, preferring the transport's
// recorded insertion order when it covers the whole map.
func mapKeys(rv *RemoteValue) []string {
	if len(rv.Keys) == len(rv.Map) {
		return rv.Keys
	}
	keys := make([]string, 0, len(rv.Map))
	for key := range rv.Map {
		keys = append(keys, key)
	}
	return keys
}
