package bind

import (
	"context"

	"github.com/conneroisu/treebind/internal/errors"
	"github.com/conneroisu/treebind/internal/host"
	"github.com/conneroisu/treebind/internal/logical"
)

// reconciler performs the full bidirectional structural diff between a
// logical subtree and an external subtree. syncDown is used for bulk
// replacement and whole-subtree assignment; syncUp adopts an
// externally-authored subtree the engine did not create.
type reconciler struct {
	s *Session
}

// syncDown makes the external subtree under node match m: missing children
// are built, type-mismatched children destroyed and rebuilt, matching
// containers recursed into, and children absent from m destroyed. A full
// diff, not an event.
func (r *reconciler) syncDown(m logical.Map, node host.Node) {
	for key, v := range m {
		r.syncKeyDown(m, node, key, v)
	}

	// Destroy node-represented children absent from the logical container.
	for key, child := range r.s.index.Children(node) {
		if _, ok := m[key]; !ok {
			r.s.destroyChild(node, key, child)
		}
	}

	// Same for attribute-represented scalars.
	if r.s.strategy.ScalarAsAttribute() {
		for attr := range node.Attributes() {
			if _, ok := m[attr]; !ok {
				r.s.subs.Disconnect(node, attr)
				node.SetAttribute(attr, nil)
			}
		}
	}
}

func (r *reconciler) syncKeyDown(m logical.Map, node host.Node, key string, v any) {
	kind := logical.KindOf(v)
	child, bound := r.s.index.Child(node, key)

	if kind == logical.KindInvalid {
		if bound {
			r.s.destroyChild(node, key, child)
		}
		r.s.logger.Warn(context.Background(),
			errors.NewUnsupportedKindError(key, v).WithPath(childPath(node, key)),
			"skipping unsupported value")
		return
	}

	if bound {
		switch {
		case kind == logical.KindMap && child.Class().IsContainer():
			// Whole-subtree assignment may have replaced the map the node
			// represents; point the binding at the current one.
			cm := v.(logical.Map)
			r.s.index.Rebind(child, cm, key, m)
			r.syncDown(cm, child)
		case kind != logical.KindMap && child.Class().IsScalar() && r.scalarClassMatches(kind, child):
			r.s.index.BindScalar(child, key, m)
			child.SetValue(logical.Normalize(v))
			r.s.subs.Register(child, "", child.OnValueChanged(r.s.handleValueChanged))
		default:
			// Representation mismatch: destroy and rebuild, never mutate
			// in place.
			r.s.destroyChild(node, key, child)
			r.s.factory.Build(key, v, m, node)
		}
		return
	}

	if r.s.strategy.ScalarAsAttribute() && kind != logical.KindMap {
		node.SetAttribute(key, logical.Normalize(v))
		if !r.s.subs.Has(node, key) {
			r.s.subs.Register(node, key,
				node.OnAttributeChanged(key, r.s.handleAttributeChanged))
		}
		return
	}

	// An attribute may be shadowing the key from a previous scalar shape.
	if r.s.strategy.ScalarAsAttribute() {
		if _, ok := node.Attribute(key); ok {
			r.s.subs.Disconnect(node, key)
			node.SetAttribute(key, nil)
		}
	}

	r.s.factory.Build(key, v, m, node)
}

func (r *reconciler) scalarClassMatches(kind logical.Kind, child host.Node) bool {
	class, ok := r.s.strategy.ScalarClass(kind)
	return ok && class == child.Class()
}

// syncUp adopts the external subtree under node into m: every external
// child is derived into a logical value, bound, and subscribed, recursing
// through containers. It never removes external children; at adoption time
// the logical container is empty, so none are absent.
func (r *reconciler) syncUp(node host.Node, m logical.Map) {
	for _, child := range node.Children() {
		name := child.Name()
		switch {
		case child.Class().IsContainer():
			cm := logical.Map{}
			m[name] = cm
			r.s.index.BindContainer(child, cm, name, m)
			r.s.index.SetChild(node, name, child)
			r.syncUp(child, cm)
			r.s.factory.subscribeContainer(child)
		case child.Class().IsScalar():
			m[name] = child.Value()
			r.s.index.BindScalar(child, name, m)
			r.s.index.SetChild(node, name, child)
			r.s.subs.Register(child, "", child.OnValueChanged(r.s.handleValueChanged))
		default:
			r.s.logger.Warn(context.Background(),
				errors.NewUnsupportedClassError(name, string(child.Class())).
					WithPath(nodePath(child)),
				"skipping node with unsupported class")
		}
	}

	if r.s.strategy.ScalarAsAttribute() {
		for attr, v := range node.Attributes() {
			m[attr] = v
			r.s.subs.Register(node, attr,
				node.OnAttributeChanged(attr, r.s.handleAttributeChanged))
		}
	}
}
