package bind

import (
	"context"

	"github.com/conneroisu/treebind/internal/errors"
	"github.com/conneroisu/treebind/internal/host"
	"github.com/conneroisu/treebind/internal/logical"
)

// Reverse propagation: external change notifications become logical-tree
// mutations. Every handler first tries the reentrancy guard; a held guard
// means the notification is self-inflicted and is ignored.

// handleValueChanged writes a scalar node's current value back into the
// logical container it represents.
func (s *Session) handleValueChanged(n host.Node) {
	release, ok := s.beginMutation()
	if !ok {
		return
	}
	defer release()

	b := s.index.Binding(n)
	if b == nil {
		s.logger.Warn(context.Background(),
			errors.NewOrphanedNodeError(n.Name()), "ignoring value change")
		return
	}

	v := n.Value()
	b.Owner[b.Key] = v
	s.emit(ChangeSet, nodePath(n), v, true)
}

// handleAttributeChanged writes a changed attribute back into the logical
// map of the container node carrying it. A cleared attribute deletes the
// key and its registration.
func (s *Session) handleAttributeChanged(n host.Node, attr string) {
	release, ok := s.beginMutation()
	if !ok {
		return
	}
	defer release()

	m := s.index.ContainerMap(n)
	if m == nil {
		s.logger.Warn(context.Background(),
			errors.NewOrphanedNodeError(n.Name()), "ignoring attribute change")
		return
	}

	v, present := n.Attribute(attr)
	if !present {
		delete(m, attr)
		s.subs.Disconnect(n, attr)
		s.emit(ChangeDelete, childPath(n, attr), nil, true)
		return
	}

	m[attr] = v
	s.emit(ChangeSet, childPath(n, attr), v, true)
}

// handleAttributeDiscovered is the wildcard attribute handler: it adopts
// attributes authored externally on a bound container. Attributes already
// under a per-field registration are that registration's business.
func (s *Session) handleAttributeDiscovered(n host.Node, attr string) {
	if s.subs.Has(n, attr) {
		return
	}

	release, ok := s.beginMutation()
	if !ok {
		return
	}
	defer release()

	m := s.index.ContainerMap(n)
	if m == nil {
		s.logger.Warn(context.Background(),
			errors.NewOrphanedNodeError(n.Name()), "ignoring attribute change")
		return
	}

	v, present := n.Attribute(attr)
	if !present {
		delete(m, attr)
		return
	}

	m[attr] = v
	s.subs.Register(n, attr, n.OnAttributeChanged(attr, s.handleAttributeChanged))
	s.emit(ChangeAdopt, childPath(n, attr), v, true)
}

// handleChildAdded adopts a node parented under a bound container by
// something other than the engine.
func (s *Session) handleChildAdded(parent, child host.Node) {
	release, ok := s.beginMutation()
	if !ok {
		return
	}
	defer release()

	if s.index.ContainerMap(parent) == nil {
		s.logger.Warn(context.Background(),
			errors.NewOrphanedNodeError(parent.Name()), "ignoring child addition")
		return
	}

	s.adoptChild(parent, child)
}

// adoptChild classifies the new child by its external representation and
// mirrors it into the logical tree. Container children get a full
// external-to-logical reconciliation and their own structural
// subscriptions, so deeper externally-authored edits propagate too.
// Callers hold the guard.
func (s *Session) adoptChild(parent, child host.Node) {
	m := s.index.ContainerMap(parent)
	name := child.Name()

	switch {
	case child.Class().IsContainer():
		cm := logical.Map{}
		m[name] = cm
		s.index.BindContainer(child, cm, name, m)
		s.index.SetChild(parent, name, child)
		s.rec.syncUp(child, cm)
		s.factory.subscribeContainer(child)
		s.emit(ChangeAdopt, nodePath(child), logical.Clone(cm), true)
	case child.Class().IsScalar():
		m[name] = child.Value()
		s.index.BindScalar(child, name, m)
		s.index.SetChild(parent, name, child)
		s.subs.Register(child, "", child.OnValueChanged(s.handleValueChanged))
		s.emit(ChangeAdopt, nodePath(child), child.Value(), true)
	default:
		s.logger.Warn(context.Background(),
			errors.NewUnsupportedClassError(name, string(child.Class())).
				WithPath(nodePath(child)),
			"skipping node with unsupported class")
	}
}

// handleChildRemoved deletes the logical key a removed child represented
// and purges every registration under the removed subtree. The nodes are
// already detached; the records must still go.
func (s *Session) handleChildRemoved(parent, child host.Node) {
	release, ok := s.beginMutation()
	if !ok {
		return
	}
	defer release()

	m := s.index.ContainerMap(parent)
	if m == nil {
		s.logger.Warn(context.Background(),
			errors.NewOrphanedNodeError(parent.Name()), "ignoring child removal")
		return
	}

	key := child.Name()
	if b := s.index.Binding(child); b != nil {
		key = b.Key
	}

	delete(m, key)
	s.index.RemoveChild(parent, key)
	s.purge(child)
	s.emit(ChangeDelete, nodePath(parent)+"/"+key, nil, true)
}
