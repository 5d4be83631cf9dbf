package bind

import (
	"sync"

	"github.com/conneroisu/treebind/internal/host"
	"github.com/conneroisu/treebind/internal/logical"
)

// Binding is the authoritative correspondence record for one external node:
// the logical container and key the node represents. Owner is a live map
// reference, so a reverse write is a direct assignment.
type Binding struct {
	Key   string
	Owner logical.Map
}

// PathIndex maintains the bidirectional mapping between logical-tree
// locations and external nodes. For every bound node it records its
// Binding; for every container node it additionally records the logical
// map the node represents and the child key → node map.
type PathIndex struct {
	mutex    sync.RWMutex
	bindings map[host.Node]*Binding
	maps     map[host.Node]logical.Map
	children map[host.Node]map[string]host.Node
}

// NewPathIndex creates an empty path index.
func NewPathIndex() *PathIndex {
	return &PathIndex{
		bindings: make(map[host.Node]*Binding),
		maps:     make(map[host.Node]logical.Map),
		children: make(map[host.Node]map[string]host.Node),
	}
}

// BindScalar records the binding for a scalar node.
func (x *PathIndex) BindScalar(n host.Node, key string, owner logical.Map) {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	x.bindings[n] = &Binding{Key: key, Owner: owner}
}

// BindContainer records the binding for a container node representing m.
// owner is nil for the root node, which has no parent container.
func (x *PathIndex) BindContainer(n host.Node, m logical.Map, key string, owner logical.Map) {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	x.maps[n] = m
	if owner != nil {
		x.bindings[n] = &Binding{Key: key, Owner: owner}
	}
	if _, ok := x.children[n]; !ok {
		x.children[n] = make(map[string]host.Node)
	}
}

// Rebind points an existing container binding at a new logical map. Used
// when a whole-subtree assignment replaces the map a node represents.
func (x *PathIndex) Rebind(n host.Node, m logical.Map, key string, owner logical.Map) {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	x.maps[n] = m
	if owner != nil {
		x.bindings[n] = &Binding{Key: key, Owner: owner}
	}
}

// SetChild records that key under the container node parent is represented
// by child.
func (x *PathIndex) SetChild(parent host.Node, key string, child host.Node) {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	m, ok := x.children[parent]
	if !ok {
		m = make(map[string]host.Node)
		x.children[parent] = m
	}
	m[key] = child
}

// RemoveChild drops the key → node entry under parent.
func (x *PathIndex) RemoveChild(parent host.Node, key string) {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	if m, ok := x.children[parent]; ok {
		delete(m, key)
	}
}

// Binding returns the binding for a node, or nil if the node is unbound.
func (x *PathIndex) Binding(n host.Node) *Binding {
	x.mutex.RLock()
	defer x.mutex.RUnlock()

	return x.bindings[n]
}

// ContainerMap returns the logical map a container node represents, or nil.
func (x *PathIndex) ContainerMap(n host.Node) logical.Map {
	x.mutex.RLock()
	defer x.mutex.RUnlock()

	return x.maps[n]
}

// Child returns the node bound to key under parent.
func (x *PathIndex) Child(parent host.Node, key string) (host.Node, bool) {
	x.mutex.RLock()
	defer x.mutex.RUnlock()

	m, ok := x.children[parent]
	if !ok {
		return nil, false
	}
	n, ok := m[key]
	return n, ok
}

// Children returns a copy of the key → node map for a container node.
func (x *PathIndex) Children(parent host.Node) map[string]host.Node {
	x.mutex.RLock()
	defer x.mutex.RUnlock()

	m, ok := x.children[parent]
	if !ok {
		return nil
	}
	out := make(map[string]host.Node, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Remove drops every record for a node. The caller is responsible for the
// parent's child entry; see RemoveChild.
func (x *PathIndex) Remove(n host.Node) {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	delete(x.bindings, n)
	delete(x.maps, n)
	delete(x.children, n)
}

// Clear drops every record.
func (x *PathIndex) Clear() {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	x.bindings = make(map[host.Node]*Binding)
	x.maps = make(map[host.Node]logical.Map)
	x.children = make(map[host.Node]map[string]host.Node)
}

// Len returns the number of bound nodes.
func (x *PathIndex) Len() int {
	x.mutex.RLock()
	defer x.mutex.RUnlock()

	seen := make(map[host.Node]struct{}, len(x.bindings)+len(x.maps))
	for n := range x.bindings {
		seen[n] = struct{}{}
	}
	for n := range x.maps {
		seen[n] = struct{}{}
	}
	return len(seen)
}
