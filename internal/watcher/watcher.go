// Package watcher provides debounced file watching for the document the
// CLI mirrors into a session. Editors replace files on save, so the
// document's directory is watched and events are filtered to the document
// path; rapid bursts of writes are grouped by the debouncer before
// handlers run.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/treebind/internal/logging"
)

// DocumentWatcher watches one document file for changes with debouncing.
type DocumentWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	path      string
	handlers  []ChangeHandler
	logger    logging.Logger
	mutex     sync.RWMutex
}

// ChangeEvent represents one file change.
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
}

// EventType represents the type of file change.
type EventType int

const (
	EventTypeModified EventType = iota
	EventTypeCreated
	EventTypeDeleted
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ChangeHandler handles debounced change events.
type ChangeHandler func(events []ChangeEvent) error

// Debouncer groups rapid file changes together.
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

// New creates a watcher for the document at path.
func New(path string, debounceDelay time.Duration, logger logging.Logger) (*DocumentWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	dw := &DocumentWatcher{
		watcher: fsw,
		path:    abs,
		debouncer: &Debouncer{
			delay:   debounceDelay,
			events:  make(chan ChangeEvent, 100),
			output:  make(chan []ChangeEvent, 10),
			pending: make([]ChangeEvent, 0),
		},
		logger: logger.WithComponent("watcher"),
	}

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	return dw, nil
}

// AddHandler adds a change handler.
func (dw *DocumentWatcher) AddHandler(handler ChangeHandler) {
	dw.mutex.Lock()
	defer dw.mutex.Unlock()
	dw.handlers = append(dw.handlers, handler)
}

// Start starts the watcher goroutines; they stop when ctx is cancelled.
func (dw *DocumentWatcher) Start(ctx context.Context) {
	go dw.debouncer.start(ctx)
	go dw.processEvents(ctx)
	go dw.watchLoop(ctx)
}

// Stop stops the watcher and releases its resources.
func (dw *DocumentWatcher) Stop() error {
	if dw.debouncer.timer != nil {
		dw.debouncer.timer.Stop()
	}
	return dw.watcher.Close()
}

func (dw *DocumentWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			dw.handleFsnotifyEvent(event)
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (dw *DocumentWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != dw.path {
		return
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		eventType = EventTypeDeleted
	default:
		eventType = EventTypeModified
	}

	var modTime time.Time
	if info, err := os.Stat(abs); err == nil {
		modTime = info.ModTime()
	}

	changeEvent := ChangeEvent{
		Type:    eventType,
		Path:    abs,
		ModTime: modTime,
	}

	select {
	case dw.debouncer.events <- changeEvent:
	default:
		// Channel full, skip this event
	}
}

func (dw *DocumentWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-dw.debouncer.output:
			dw.mutex.RLock()
			handlers := dw.handlers
			dw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(events); err != nil {
					dw.logger.Warn(ctx, err, "change handler error")
				}
			}
		}
	}
}

// Debouncer implementation

func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.flush()
	})
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	// Collapse the burst to its latest event per path.
	eventMap := make(map[string]ChangeEvent)
	for _, event := range d.pending {
		eventMap[event.Path] = event
	}

	events := make([]ChangeEvent, 0, len(eventMap))
	for _, event := range eventMap {
		events = append(events, event)
	}

	select {
	case d.output <- events:
	default:
		// Channel full, skip
	}

	d.pending = d.pending[:0]
}
