// Package memtree is an in-memory reference implementation of the host
// node contract. It delivers change notifications synchronously on the
// calling goroutine, matching the cooperative single-threaded model the
// engine is designed for. It backs the CLI, the inspector server, and the
// test suites; production embedders supply their own host.
package memtree

import (
	"sync"
	"sync/atomic"

	"golang.org/x/text/unicode/norm"

	"github.com/conneroisu/treebind/internal/host"
)

// Host creates and owns memtree nodes.
type Host struct{}

// New creates a memtree host.
func New() *Host {
	return &Host{}
}

// NewNode creates a node of the given class, optionally parented.
func (h *Host) NewNode(class host.Class, name string, parent host.Node) host.Node {
	n := &node{
		name:     normalizeName(name),
		class:    class,
		children: make(map[string]*node),
		attrs:    make(map[string]any),
	}

	if parent != nil {
		if p, ok := parent.(*node); ok {
			p.attach(n)
		}
	}

	return n
}

// normalizeName canonicalizes node names to NFC so lookups behave the same
// regardless of how the input source composed its unicode.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// node implements host.Node.
type node struct {
	name      string
	class     host.Class
	parent    *node
	children  map[string]*node
	attrs     map[string]any
	value     any
	destroyed bool

	mutex       sync.Mutex
	nextSubID   int
	valueSubs   map[int]func(host.Node)
	attrSubs    map[int]attrHandler
	addedSubs   map[int]func(parent, child host.Node)
	removedSubs map[int]func(parent, child host.Node)
}

type attrHandler struct {
	name string // empty matches every attribute
	fn   func(n host.Node, attr string)
}

func (n *node) Name() string      { return n.name }
func (n *node) Class() host.Class { return n.class }
func (n *node) Destroyed() bool   { return n.destroyed }

func (n *node) Parent() host.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *node) Children() []host.Node {
	out := make([]host.Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out
}

func (n *node) Child(name string) host.Node {
	c, ok := n.children[normalizeName(name)]
	if !ok {
		return nil
	}
	return c
}

func (n *node) Value() any { return n.value }

func (n *node) SetValue(v any) {
	if n.destroyed {
		return
	}
	n.value = v
	for _, fn := range n.snapshotValueSubs() {
		fn(n)
	}
}

func (n *node) Attribute(name string) (any, bool) {
	v, ok := n.attrs[normalizeName(name)]
	return v, ok
}

func (n *node) SetAttribute(name string, v any) {
	if n.destroyed {
		return
	}

	key := normalizeName(name)
	if v == nil {
		if _, ok := n.attrs[key]; !ok {
			return
		}
		delete(n.attrs, key)
	} else {
		n.attrs[key] = v
	}

	for _, h := range n.snapshotAttrSubs() {
		if h.name == "" || h.name == key {
			h.fn(n, key)
		}
	}
}

func (n *node) Attributes() map[string]any {
	out := make(map[string]any, len(n.attrs))
	for k, v := range n.attrs {
		out[k] = v
	}
	return out
}

// Destroy detaches the node from its parent, notifies the parent's
// child-removed subscribers, then destroys the subtree. The detach
// notification fires before descendants are torn down so observers can
// still walk the subtree while handling it.
func (n *node) Destroy() {
	if n.destroyed {
		return
	}

	if n.parent != nil {
		p := n.parent
		delete(p.children, n.name)
		n.parent = nil
		for _, fn := range p.snapshotRemovedSubs() {
			fn(p, n)
		}
	}

	n.destroySubtree()
}

func (n *node) destroySubtree() {
	n.destroyed = true
	for name, c := range n.children {
		delete(n.children, name)
		c.parent = nil
		for _, fn := range n.snapshotRemovedSubs() {
			fn(n, c)
		}
		c.destroySubtree()
	}
}

func (n *node) attach(child *node) {
	child.parent = n
	n.children[child.name] = child
	for _, fn := range n.snapshotAddedSubs() {
		fn(n, child)
	}
}

// Subscription management

func (n *node) OnValueChanged(fn func(host.Node)) host.Subscription {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.valueSubs == nil {
		n.valueSubs = make(map[int]func(host.Node))
	}
	id := n.nextSubID
	n.nextSubID++
	n.valueSubs[id] = fn

	return newSubscription(func() {
		n.mutex.Lock()
		defer n.mutex.Unlock()
		delete(n.valueSubs, id)
	})
}

func (n *node) OnAttributeChanged(name string, fn func(host.Node, string)) host.Subscription {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.attrSubs == nil {
		n.attrSubs = make(map[int]attrHandler)
	}
	id := n.nextSubID
	n.nextSubID++
	if name != "" {
		name = normalizeName(name)
	}
	n.attrSubs[id] = attrHandler{name: name, fn: fn}

	return newSubscription(func() {
		n.mutex.Lock()
		defer n.mutex.Unlock()
		delete(n.attrSubs, id)
	})
}

func (n *node) OnChildAdded(fn func(parent, child host.Node)) host.Subscription {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.addedSubs == nil {
		n.addedSubs = make(map[int]func(parent, child host.Node))
	}
	id := n.nextSubID
	n.nextSubID++
	n.addedSubs[id] = fn

	return newSubscription(func() {
		n.mutex.Lock()
		defer n.mutex.Unlock()
		delete(n.addedSubs, id)
	})
}

func (n *node) OnChildRemoved(fn func(parent, child host.Node)) host.Subscription {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.removedSubs == nil {
		n.removedSubs = make(map[int]func(parent, child host.Node))
	}
	id := n.nextSubID
	n.nextSubID++
	n.removedSubs[id] = fn

	return newSubscription(func() {
		n.mutex.Lock()
		defer n.mutex.Unlock()
		delete(n.removedSubs, id)
	})
}

// Snapshots decouple handler iteration from disconnects performed inside
// the handlers themselves.

func (n *node) snapshotValueSubs() []func(host.Node) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	out := make([]func(host.Node), 0, len(n.valueSubs))
	for _, fn := range n.valueSubs {
		out = append(out, fn)
	}
	return out
}

func (n *node) snapshotAttrSubs() []attrHandler {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	out := make([]attrHandler, 0, len(n.attrSubs))
	for _, h := range n.attrSubs {
		out = append(out, h)
	}
	return out
}

func (n *node) snapshotAddedSubs() []func(parent, child host.Node) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	out := make([]func(parent, child host.Node), 0, len(n.addedSubs))
	for _, fn := range n.addedSubs {
		out = append(out, fn)
	}
	return out
}

func (n *node) snapshotRemovedSubs() []func(parent, child host.Node) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	out := make([]func(parent, child host.Node), 0, len(n.removedSubs))
	for _, fn := range n.removedSubs {
		out = append(out, fn)
	}
	return out
}

// subscription implements host.Subscription with idempotent disconnect.
// connected is atomic so Connected can be polled from any goroutine.
type subscription struct {
	once         sync.Once
	remove       func()
	disconnected atomic.Bool
}

func newSubscription(remove func()) *subscription {
	return &subscription{remove: remove}
}

func (s *subscription) Disconnect() {
	s.once.Do(func() {
		s.disconnected.Store(true)
		s.remove()
	})
}

func (s *subscription) Connected() bool {
	return !s.disconnected.Load()
}
