package bind

import (
	"strings"
	"time"

	"github.com/conneroisu/treebind/internal/host"
)

// ChangeType represents the type of change event.
type ChangeType int

const (
	ChangeSet ChangeType = iota
	ChangeDelete
	ChangeAdopt
)

// String returns the string representation of the ChangeType
func (t ChangeType) String() string {
	switch t {
	case ChangeSet:
		return "set"
	case ChangeDelete:
		return "delete"
	case ChangeAdopt:
		return "adopt"
	default:
		return "unknown"
	}
}

// ChangeEvent describes one settled mutation of the synchronized tree,
// regardless of which side originated it.
type ChangeEvent struct {
	Type      ChangeType `json:"type"`
	Path      string     `json:"path"`
	Value     any        `json:"value,omitempty"`
	External  bool       `json:"external"` // originated from the host tree
	Timestamp time.Time  `json:"timestamp"`
}

// Watch returns a channel that receives change events. The channel is
// buffered; events are dropped rather than blocking the engine.
func (s *Session) Watch() <-chan ChangeEvent {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ch := make(chan ChangeEvent, 100)
	s.watchers = append(s.watchers, ch)
	return ch
}

// Unwatch removes a watcher channel and closes it.
func (s *Session) Unwatch(ch <-chan ChangeEvent) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, w := range s.watchers {
		if w == ch {
			close(w)
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			break
		}
	}
}

func (s *Session) emit(t ChangeType, path string, value any, external bool) {
	s.mutex.Lock()
	watchers := make([]chan ChangeEvent, len(s.watchers))
	copy(watchers, s.watchers)
	s.mutex.Unlock()

	if len(watchers) == 0 {
		return
	}

	event := ChangeEvent{
		Type:      t,
		Path:      path,
		Value:     value,
		External:  external,
		Timestamp: time.Now(),
	}

	for _, w := range watchers {
		select {
		case w <- event:
		default:
			// Skip if channel is full
		}
	}
}

// nodePath reports the slash-joined path of a node from the session root.
func nodePath(n host.Node) string {
	var parts []string
	for cur := n; cur != nil; cur = cur.Parent() {
		parts = append(parts, cur.Name())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

func childPath(parent host.Node, key string) string {
	return nodePath(parent) + "/" + key
}
