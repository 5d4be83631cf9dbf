package bind

import (
	"context"
	"reflect"
	"sort"

	"github.com/conneroisu/treebind/internal/errors"
	"github.com/conneroisu/treebind/internal/host"
	"github.com/conneroisu/treebind/internal/logical"
)

// Proxy is the intercepting facade application code reads and writes
// instead of the raw logical container. Reads of absent keys lazily create
// empty nested containers; writes route through the factory and reconciler
// so the external tree follows. One facade per live container, cached.
type Proxy struct {
	s      *Session
	node   host.Node
	data   logical.Map
	nested map[string]*Proxy

	// parent and key locate this facade in its enclosing container; nil
	// parent means the session root. Used to resolve the bound node for
	// facades created during a propagation, before their node existed.
	parent *Proxy
	key    string
}

// Get returns the value under key: the raw scalar, a facade for a nested
// container, or — when the key is absent — a facade for a newly created
// empty container. Reading an unset key is treated as intent to nest.
func (p *Proxy) Get(key string) (any, error) {
	if err := p.s.ensureOpen("get"); err != nil {
		return nil, err
	}
	p.repair()

	if v, ok := p.data[key]; ok {
		if m, isMap := v.(logical.Map); isMap {
			p.ensureRepresented(key, m)
			return p.facade(key, m), nil
		}
		return v, nil
	}

	m := logical.Map{}

	if p.node == nil {
		// No external container to build under yet; raw creation only.
		p.data[key] = m
		return p.facade(key, m), nil
	}

	release, ok := p.s.beginMutation()
	if !ok {
		// Mid-propagation read: create the raw container only. The
		// external node is built on the next non-propagating access.
		p.data[key] = m
		return p.facade(key, m), nil
	}
	defer release()

	p.data[key] = m
	p.s.factory.Build(key, m, p.data, p.node)
	p.s.emit(ChangeSet, childPath(p.node, key), logical.Map{}, false)

	return p.facade(key, m), nil
}

// Set assigns value under key, mirroring the change into the external
// tree. A nil value deletes the key and destroys its external
// representation. A representation mismatch (container vs scalar, or a
// scalar type change) destroys the old node and builds a fresh one.
func (p *Proxy) Set(key string, value any) error {
	if err := p.s.ensureOpen("set"); err != nil {
		return err
	}
	p.repair()

	if p.node == nil {
		// No external container to mirror into; the raw write stands.
		if value == nil {
			delete(p.data, key)
			delete(p.nested, key)
		} else {
			p.data[key] = value
		}
		return nil
	}

	release, ok := p.s.beginMutation()
	if !ok {
		// Reverse-originated write: raw update only, no external-tree
		// mutation, so propagation cannot feed back.
		if value == nil {
			delete(p.data, key)
			delete(p.nested, key)
		} else {
			p.data[key] = value
		}
		return nil
	}
	defer release()

	if value == nil {
		p.deleteKey(key)
		return nil
	}

	p.assign(key, value)
	return nil
}

// Delete removes key. Equivalent to Set(key, nil).
func (p *Proxy) Delete(key string) error {
	return p.Set(key, nil)
}

// Has reports whether key is present, without lazy creation.
func (p *Proxy) Has(key string) bool {
	_, ok := p.data[key]
	return ok
}

// Keys returns the container's keys, sorted for stable output.
func (p *Proxy) Keys() []string {
	keys := make([]string, 0, len(p.data))
	for k := range p.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys in the container.
func (p *Proxy) Len() int {
	return len(p.data)
}

// Node returns the external node this facade is bound to.
func (p *Proxy) Node() host.Node {
	return p.node
}

// Snapshot returns a deep copy of the underlying container. Safe to call
// from any goroutine.
func (p *Proxy) Snapshot() logical.Map {
	p.s.dataMu.Lock()
	defer p.s.dataMu.Unlock()

	return logical.Clone(p.data).(logical.Map)
}

// repair resolves the bound node for a facade whose external container was
// never built because it was created during a propagation. A facade whose
// map the parent no longer holds stays node-less; it is a detached view.
func (p *Proxy) repair() {
	if p.node != nil || p.parent == nil {
		return
	}

	p.parent.repair()
	if p.parent.node == nil {
		return
	}

	v, ok := p.parent.data[p.key]
	m, isMap := v.(logical.Map)
	if !ok || !isMap || !sameMap(m, p.data) {
		return
	}

	p.parent.ensureRepresented(p.key, p.data)
	if n, bound := p.s.index.Child(p.parent.node, p.key); bound {
		p.node = n
	}
}

// ensureRepresented builds the external node for a container key whose
// creation was deferred by a mid-propagation read. No-op while a
// propagation is still in flight or when the key is already bound.
func (p *Proxy) ensureRepresented(key string, m logical.Map) {
	if p.node == nil {
		return
	}
	if _, bound := p.s.index.Child(p.node, key); bound {
		return
	}

	release, ok := p.s.beginMutation()
	if !ok {
		return
	}
	defer release()

	p.s.factory.Build(key, m, p.data, p.node)
	p.s.emit(ChangeSet, childPath(p.node, key), logical.Clone(m), false)
}

// deleteKey removes key, classifying cleanup by the representation the key
// held before deletion.
func (p *Proxy) deleteKey(key string) {
	prev, existed := p.data[key]
	if !existed {
		return
	}

	delete(p.data, key)
	delete(p.nested, key)
	p.s.removeRepresentation(p.node, key, prev)
	p.s.emit(ChangeDelete, childPath(p.node, key), nil, false)
}

func (p *Proxy) assign(key string, value any) {
	kind := logical.KindOf(value)
	prev, existed := p.data[key]
	p.data[key] = value

	if kind == logical.KindInvalid {
		// The raw write stands; the value is omitted from the external
		// tree with a diagnostic rather than failing the whole call.
		if existed {
			p.s.removeRepresentation(p.node, key, prev)
		}
		p.s.logger.Warn(context.Background(),
			errors.NewUnsupportedKindError(key, value).WithPath(childPath(p.node, key)),
			"skipping unsupported value")
		return
	}

	child, bound := p.s.index.Child(p.node, key)

	if kind == logical.KindMap {
		// Any cached facade wraps the replaced map; re-created on next read.
		delete(p.nested, key)
		m := value.(logical.Map)

		if bound && child.Class().IsContainer() {
			p.s.index.Rebind(child, m, key, p.data)
			p.s.rec.syncDown(m, child)
		} else {
			p.clearMismatched(key, prev, existed, child, bound)
			p.s.factory.Build(key, value, p.data, p.node)
		}
		p.s.emit(ChangeSet, childPath(p.node, key), logical.Clone(value), false)
		return
	}

	// Scalar assignment.
	if p.s.strategy.ScalarAsAttribute() {
		if bound {
			p.s.destroyChild(p.node, key, child)
			delete(p.nested, key)
		}
		p.node.SetAttribute(key, logical.Normalize(value))
		p.s.subs.Register(p.node, key,
			p.node.OnAttributeChanged(key, p.s.handleAttributeChanged))
	} else {
		class, _ := p.s.strategy.ScalarClass(kind)
		if bound && child.Class() == class {
			child.SetValue(logical.Normalize(value))
			p.s.subs.Register(child, "", child.OnValueChanged(p.s.handleValueChanged))
		} else {
			p.clearMismatched(key, prev, existed, child, bound)
			p.s.factory.Build(key, value, p.data, p.node)
		}
	}

	p.s.emit(ChangeSet, childPath(p.node, key), value, false)
}

// clearMismatched tears down whatever representation key held before a
// type-changing assignment: a bound child node, or an attribute under the
// attribute strategy.
func (p *Proxy) clearMismatched(key string, prev any, existed bool, child host.Node, bound bool) {
	if bound {
		p.s.destroyChild(p.node, key, child)
		delete(p.nested, key)
		return
	}
	if p.s.strategy.ScalarAsAttribute() && existed && logical.IsScalar(prev) {
		p.s.subs.Disconnect(p.node, key)
		p.node.SetAttribute(key, nil)
	}
}

// facade returns the cached facade for a nested container, creating it
// once. A cached facade is discarded when the key's map has changed
// underneath it, as after a bulk Replace; when only the bound node changed
// (deferred creation, rebuild), the facade is repointed in place so held
// references follow.
func (p *Proxy) facade(key string, m logical.Map) *Proxy {
	node, _ := p.s.index.Child(p.node, key)
	if f, ok := p.nested[key]; ok {
		if sameMap(f.data, m) {
			f.node = node
			return f
		}
		delete(p.nested, key)
	}

	f := &Proxy{
		s:      p.s,
		node:   node,
		data:   m,
		nested: make(map[string]*Proxy),
		parent: p,
		key:    key,
	}
	p.nested[key] = f
	return f
}

// sameMap reports whether two maps are the same map object.
func sameMap(a, b logical.Map) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
