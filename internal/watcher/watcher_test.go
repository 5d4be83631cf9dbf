package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/treebind/internal/logging"
)

func newTestWatcher(t *testing.T) (*DocumentWatcher, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.yml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0644))

	dw, err := New(path, 20*time.Millisecond, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { dw.Stop() })

	return dw, path
}

func TestWatcherDeliversDebouncedChanges(t *testing.T) {
	dw, path := newTestWatcher(t)

	got := make(chan []ChangeEvent, 1)
	dw.AddHandler(func(events []ChangeEvent) error {
		select {
		case got <- events:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dw.Start(ctx)

	// A burst of writes collapses to one delivery.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0644))
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case events := <-got:
		require.Len(t, events, 1)
		assert.Equal(t, path, events[0].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("no debounced delivery")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dw, path := newTestWatcher(t)

	sibling := filepath.Join(filepath.Dir(path), "other.yml")
	dw.handleFsnotifyEvent(fsnotify.Event{Name: sibling, Op: fsnotify.Write})

	select {
	case <-dw.debouncer.events:
		t.Fatal("sibling file event was not filtered")
	default:
	}
}

func TestWatcherClassifiesEvents(t *testing.T) {
	dw, path := newTestWatcher(t)

	cases := []struct {
		op   fsnotify.Op
		want EventType
	}{
		{fsnotify.Create, EventTypeCreated},
		{fsnotify.Write, EventTypeModified},
		{fsnotify.Remove, EventTypeDeleted},
		{fsnotify.Rename, EventTypeDeleted},
	}

	for _, tc := range cases {
		dw.handleFsnotifyEvent(fsnotify.Event{Name: path, Op: tc.op})
		select {
		case ev := <-dw.debouncer.events:
			assert.Equal(t, tc.want, ev.Type, tc.op.String())
		default:
			t.Fatalf("no event for %v", tc.op)
		}
	}
}

func TestDebouncerCollapsesPerPath(t *testing.T) {
	d := &Debouncer{
		delay:   time.Second,
		events:  make(chan ChangeEvent, 10),
		output:  make(chan []ChangeEvent, 1),
		pending: make([]ChangeEvent, 0),
	}

	d.addEvent(ChangeEvent{Path: "a", Type: EventTypeCreated})
	d.addEvent(ChangeEvent{Path: "a", Type: EventTypeModified})
	d.addEvent(ChangeEvent{Path: "b", Type: EventTypeModified})
	d.flush()

	select {
	case events := <-d.output:
		assert.Len(t, events, 2)
	default:
		t.Fatal("expected flushed events")
	}

	// Flush with nothing pending emits nothing.
	d.flush()
	select {
	case <-d.output:
		t.Fatal("unexpected second flush")
	default:
	}
}

func TestNewRequiresExistingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "state.yml"),
		time.Millisecond, logging.Discard())
	require.Error(t, err)
}
