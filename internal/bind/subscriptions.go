package bind

import (
	"sync"

	"github.com/conneroisu/treebind/internal/host"
)

// attrWildcard keys the per-container subscription that watches every
// attribute, used to discover externally-authored attributes.
const attrWildcard = "@attributes"

type subKey struct {
	node  host.Node
	field string
}

// SubscriptionRegistry owns every active change-notification registration,
// keyed by node for structural and value notifications and by (node, field)
// for attribute notifications. Each key holds at most one registration;
// re-registering disconnects the predecessor first. Teardown is idempotent.
type SubscriptionRegistry struct {
	mutex sync.Mutex
	subs  map[subKey][]host.Subscription
}

// NewSubscriptionRegistry creates an empty registry.
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		subs: make(map[subKey][]host.Subscription),
	}
}

// Register stores subscriptions under (node, field), disconnecting any
// previous registration for the same key. Container nodes register their
// paired child-added and child-removed subscriptions under one key.
func (r *SubscriptionRegistry) Register(n host.Node, field string, subs ...host.Subscription) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := subKey{node: n, field: field}
	for _, prev := range r.subs[key] {
		prev.Disconnect()
	}
	r.subs[key] = subs
}

// Has reports whether (node, field) has a live registration.
func (r *SubscriptionRegistry) Has(n host.Node, field string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	_, ok := r.subs[subKey{node: n, field: field}]
	return ok
}

// Disconnect tears down the registration for (node, field). No-op if none.
func (r *SubscriptionRegistry) Disconnect(n host.Node, field string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := subKey{node: n, field: field}
	for _, s := range r.subs[key] {
		s.Disconnect()
	}
	delete(r.subs, key)
}

// DisconnectNode tears down every registration whose key names the node,
// including all attribute fields and the wildcard.
func (r *SubscriptionRegistry) DisconnectNode(n host.Node) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for key, subs := range r.subs {
		if key.node != n {
			continue
		}
		for _, s := range subs {
			s.Disconnect()
		}
		delete(r.subs, key)
	}
}

// DisconnectAll tears down every registration.
func (r *SubscriptionRegistry) DisconnectAll() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for key, subs := range r.subs {
		for _, s := range subs {
			s.Disconnect()
		}
		delete(r.subs, key)
	}
}

// Count returns the number of live registration keys.
func (r *SubscriptionRegistry) Count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.subs)
}
