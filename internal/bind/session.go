package bind

import (
	"sync"

	"github.com/conneroisu/treebind/internal/errors"
	"github.com/conneroisu/treebind/internal/host"
	"github.com/conneroisu/treebind/internal/logical"
	"github.com/conneroisu/treebind/internal/logging"
)

// Session binds one logical tree to one external root node. It owns the
// path index, the subscription registry, and the reentrancy guard that
// keeps the engine's own writes from re-triggering themselves.
//
// All session state assumes the cooperative single-threaded model: the
// host delivers notifications synchronously and never re-enters the
// session while one is being processed. The guard is feedback protection,
// not a concurrency lock. Mutations additionally hold the data lock so
// Snapshot can be called from other goroutines, such as the inspector
// server's request handlers.
type Session struct {
	name     string
	host     host.Host
	strategy Strategy
	logger   logging.Logger

	data  logical.Map
	root  host.Node
	proxy *Proxy

	index   *PathIndex
	subs    *SubscriptionRegistry
	factory *nodeFactory
	rec     *reconciler
	guard   reentrancyGuard

	mutex    sync.Mutex
	watchers []chan ChangeEvent
	closed   bool

	// dataMu serializes tree mutations against Snapshot readers.
	dataMu sync.Mutex
}

// Option configures a Session at Open time.
type Option func(*Session)

// WithStrategy selects the external representation strategy. Default is
// FolderStrategy.
func WithStrategy(stg Strategy) Option {
	return func(s *Session) { s.strategy = stg }
}

// WithLogger sets the session logger. Default discards.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.logger = l.WithComponent("bind") }
}

// Open builds the external tree for rootValue under a fresh root node and
// returns the session exposing both sides. Construction happens with the
// reentrancy guard held, so the subscriptions armed along the way stay
// inert and initial build emits no feedback.
func Open(h host.Host, name string, rootValue logical.Map, opts ...Option) (*Session, error) {
	if h == nil {
		return nil, errors.NewInternalError("open requires a host", nil)
	}
	if rootValue == nil {
		rootValue = logical.Map{}
	}

	s := &Session{
		name:     name,
		host:     h,
		strategy: FolderStrategy{},
		logger:   logging.Discard(),
		data:     rootValue,
		index:    NewPathIndex(),
		subs:     NewSubscriptionRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.factory = &nodeFactory{s: s}
	s.rec = &reconciler{s: s}

	release, _ := s.guard.enter()
	s.root = s.factory.buildContainer(name, rootValue, "", nil, nil)
	release()

	s.proxy = &Proxy{
		s:      s,
		node:   s.root,
		data:   rootValue,
		nested: make(map[string]*Proxy),
	}

	return s, nil
}

// Root returns the external root node, for the embedder to place in its
// own tree.
func (s *Session) Root() host.Node { return s.root }

// Proxy returns the facade application code mutates instead of the raw
// logical tree.
func (s *Session) Proxy() *Proxy { return s.proxy }

// Name returns the session name, which is also the root node's name.
func (s *Session) Name() string { return s.name }

// Strategy returns the representation strategy in effect.
func (s *Session) Strategy() Strategy { return s.strategy }

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.closed
}

// Snapshot returns a deep copy of the logical tree. Safe to call from any
// goroutine.
func (s *Session) Snapshot() logical.Map {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	return logical.Clone(s.data).(logical.Map)
}

// SubscriptionCount returns the number of live subscription registrations.
func (s *Session) SubscriptionCount() int {
	return s.subs.Count()
}

// Replace reconciles the logical tree to match data, used for bulk
// replacement: the root container's contents are swapped in place and a
// full diff pass brings the external tree along.
func (s *Session) Replace(data logical.Map) error {
	if err := s.ensureOpen("replace"); err != nil {
		return err
	}
	if data == nil {
		data = logical.Map{}
	}

	release, ok := s.beginMutation()
	if !ok {
		return errors.NewInternalError("replace during propagation", nil)
	}
	defer release()

	for k := range s.data {
		if _, keep := data[k]; !keep {
			delete(s.data, k)
		}
	}
	for k, v := range data {
		s.data[k] = v
	}

	s.rec.syncDown(s.data, s.root)
	s.emit(ChangeSet, s.name, logical.Clone(s.data), false)

	return nil
}

// Adopt runs the external-to-logical reconciliation for externally
// pre-authored children of the root the engine did not create.
func (s *Session) Adopt() error {
	if err := s.ensureOpen("adopt"); err != nil {
		return err
	}

	release, ok := s.beginMutation()
	if !ok {
		return errors.NewInternalError("adopt during propagation", nil)
	}
	defer release()

	for _, child := range s.root.Children() {
		if _, bound := s.index.Child(s.root, child.Name()); !bound {
			s.adoptChild(s.root, child)
		}
	}

	return nil
}

// Close disconnects every subscription under the root, destroys the root
// external node, and clears all maps. Idempotent; later operations on the
// session fail fast.
func (s *Session) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	watchers := s.watchers
	s.watchers = nil
	s.mutex.Unlock()

	release, ok := s.guard.enter()
	s.subs.DisconnectAll()
	s.root.Destroy()
	s.index.Clear()
	if ok {
		release()
	}

	for _, w := range watchers {
		close(w)
	}

	return nil
}

func (s *Session) ensureOpen(op string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return errors.NewSessionClosedError(op)
	}
	return nil
}

// destroyChild tears down the bound child under parent[key]: registry
// entries and index records first, then the node itself.
func (s *Session) destroyChild(parent host.Node, key string, child host.Node) {
	s.purge(child)
	s.index.RemoveChild(parent, key)
	child.Destroy()
}

// purge recursively removes registry and index records for a subtree.
// Safe to call after the nodes are already destroyed; the records must be
// dropped either way to avoid leaks and stale re-subscription.
func (s *Session) purge(n host.Node) {
	for _, child := range s.index.Children(n) {
		s.purge(child)
	}
	s.subs.DisconnectNode(n)
	s.index.Remove(n)
}

// removeRepresentation tears down whatever external representation
// parent[key] held, classified by the previous value captured before the
// logical deletion.
func (s *Session) removeRepresentation(parent host.Node, key string, prev any) {
	if child, ok := s.index.Child(parent, key); ok {
		s.destroyChild(parent, key, child)
		return
	}
	if s.strategy.ScalarAsAttribute() && logical.IsScalar(prev) {
		s.subs.Disconnect(parent, key)
		parent.SetAttribute(key, nil)
	}
}

// beginMutation acquires the reentrancy guard and the data lock for one
// tree mutation. Engine code running while the guard is held is already
// inside a locked mutation on the same goroutine and takes neither.
func (s *Session) beginMutation() (release func(), ok bool) {
	rel, entered := s.guard.enter()
	if !entered {
		return nil, false
	}
	s.dataMu.Lock()
	return func() {
		s.dataMu.Unlock()
		rel()
	}, true
}

// reentrancyGuard stops the engine's own mutations from re-triggering the
// reverse direction. enter returns a release closure so every exit path,
// including failures, releases via defer and can never lock the session
// out.
type reentrancyGuard struct {
	held bool
}

func (g *reentrancyGuard) enter() (release func(), ok bool) {
	if g.held {
		return nil, false
	}
	g.held = true
	return func() { g.held = false }, true
}
