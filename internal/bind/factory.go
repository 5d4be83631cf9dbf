package bind

import (
	"context"

	"github.com/conneroisu/treebind/internal/errors"
	"github.com/conneroisu/treebind/internal/host"
	"github.com/conneroisu/treebind/internal/logical"
)

// nodeFactory builds external nodes (and, recursively, their subtrees) for
// logical values, choosing the representation dictated by the session's
// strategy, and records bindings and subscriptions for everything it makes.
type nodeFactory struct {
	s *Session
}

// Build builds the external representation of owner[key] = v under parent.
// Returns the created node, or nil when the value is represented as an
// attribute of parent or was skipped as unsupported. Unsupported values are
// logged and skipped; they never abort the enclosing build.
func (f *nodeFactory) Build(key string, v any, owner logical.Map, parent host.Node) host.Node {
	switch kind := logical.KindOf(v); kind {
	case logical.KindMap:
		return f.buildContainer(key, v.(logical.Map), key, owner, parent)
	case logical.KindNumber, logical.KindString, logical.KindBool:
		return f.buildScalar(key, v, kind, owner, parent)
	default:
		f.s.logger.Warn(context.Background(),
			errors.NewUnsupportedKindError(key, v).WithPath(childPath(parent, key)),
			"skipping unsupported value")
		return nil
	}
}

func (f *nodeFactory) buildScalar(key string, v any, kind logical.Kind, owner logical.Map, parent host.Node) host.Node {
	if f.s.strategy.ScalarAsAttribute() {
		parent.SetAttribute(key, logical.Normalize(v))
		f.s.subs.Register(parent, key,
			parent.OnAttributeChanged(key, f.s.handleAttributeChanged))
		return nil
	}

	class, ok := f.s.strategy.ScalarClass(kind)
	if !ok {
		f.s.logger.Warn(context.Background(),
			errors.NewUnsupportedKindError(key, v).WithPath(childPath(parent, key)),
			"skipping unsupported value")
		return nil
	}

	node := f.s.host.NewNode(class, key, parent)
	node.SetValue(logical.Normalize(v))

	f.s.index.BindScalar(node, key, owner)
	if parent != nil {
		f.s.index.SetChild(parent, key, node)
	}
	f.s.subs.Register(node, "", node.OnValueChanged(f.s.handleValueChanged))

	return node
}

// buildContainer creates the container node, recursively builds every
// child, then subscribes the node's structural notifications, then records
// the container's binding. owner is nil for the session root.
func (f *nodeFactory) buildContainer(name string, m logical.Map, key string, owner logical.Map, parent host.Node) host.Node {
	node := f.s.host.NewNode(f.s.strategy.ContainerClass(), name, parent)

	for k, child := range m {
		f.Build(k, child, m, node)
	}

	f.subscribeContainer(node)
	f.s.index.BindContainer(node, m, key, owner)
	if parent != nil {
		f.s.index.SetChild(parent, key, node)
	}

	return node
}

// subscribeContainer arms the paired structural subscriptions for a
// container node, plus the attribute wildcard used to discover
// externally-authored attributes under the attribute strategy.
func (f *nodeFactory) subscribeContainer(node host.Node) {
	f.s.subs.Register(node, "",
		node.OnChildAdded(f.s.handleChildAdded),
		node.OnChildRemoved(f.s.handleChildRemoved))

	if f.s.strategy.ScalarAsAttribute() {
		f.s.subs.Register(node, attrWildcard,
			node.OnAttributeChanged("", f.s.handleAttributeDiscovered))
	}
}
