package memtree

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/treebind/internal/host"
)

func TestNewNode(t *testing.T) {
	h := New()

	root := h.NewNode(host.ClassFolder, "Root", nil)
	require.NotNil(t, root)
	assert.Equal(t, "Root", root.Name())
	assert.Equal(t, host.ClassFolder, root.Class())
	assert.Nil(t, root.Parent())
	assert.Empty(t, root.Children())

	child := h.NewNode(host.ClassNumber, "Health", root)
	assert.Equal(t, root, child.Parent())
	assert.Equal(t, child, root.Child("Health"))
	assert.Len(t, root.Children(), 1)
}

func TestChildAddedNotification(t *testing.T) {
	h := New()
	root := h.NewNode(host.ClassFolder, "Root", nil)

	var added []host.Node
	sub := root.OnChildAdded(func(parent, child host.Node) {
		assert.Equal(t, root, parent)
		added = append(added, child)
	})
	defer sub.Disconnect()

	child := h.NewNode(host.ClassString, "Name", root)
	require.Len(t, added, 1)
	assert.Equal(t, child, added[0])
}

func TestValueChangedNotification(t *testing.T) {
	h := New()
	node := h.NewNode(host.ClassNumber, "Health", nil)

	count := 0
	sub := node.OnValueChanged(func(n host.Node) {
		count++
		assert.Equal(t, 150.0, n.Value())
	})

	node.SetValue(150.0)
	assert.Equal(t, 1, count)

	sub.Disconnect()
	node.SetValue(200.0)
	assert.Equal(t, 1, count)
}

func TestAttributeNotifications(t *testing.T) {
	h := New()
	node := h.NewNode(host.ClassModel, "Stats", nil)

	var changed []string
	all := node.OnAttributeChanged("", func(n host.Node, attr string) {
		changed = append(changed, attr)
	})
	defer all.Disconnect()

	speedOnly := 0
	sub := node.OnAttributeChanged("Speed", func(n host.Node, attr string) {
		speedOnly++
	})
	defer sub.Disconnect()

	node.SetAttribute("Speed", 1.5)
	node.SetAttribute("Armor", 10.0)

	assert.Equal(t, []string{"Speed", "Armor"}, changed)
	assert.Equal(t, 1, speedOnly)

	v, ok := node.Attribute("Speed")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	// Clearing fires the notification and removes the attribute.
	node.SetAttribute("Speed", nil)
	_, ok = node.Attribute("Speed")
	assert.False(t, ok)
	assert.Equal(t, 2, speedOnly)

	// Clearing an absent attribute is silent.
	node.SetAttribute("Speed", nil)
	assert.Equal(t, 2, speedOnly)
}

func TestDestroyCascades(t *testing.T) {
	h := New()
	root := h.NewNode(host.ClassFolder, "Root", nil)
	settings := h.NewNode(host.ClassFolder, "Settings", root)
	volume := h.NewNode(host.ClassNumber, "Volume", settings)

	var removed []host.Node
	sub := root.OnChildRemoved(func(parent, child host.Node) {
		removed = append(removed, child)
	})
	defer sub.Disconnect()

	settings.Destroy()

	require.Len(t, removed, 1)
	assert.Equal(t, settings, removed[0])
	assert.True(t, settings.Destroyed())
	assert.True(t, volume.Destroyed())
	assert.Nil(t, root.Child("Settings"))

	// Idempotent.
	settings.Destroy()
	assert.Len(t, removed, 1)
}

func TestDestroyDetachesBeforeSubtreeTeardown(t *testing.T) {
	h := New()
	root := h.NewNode(host.ClassFolder, "Root", nil)
	settings := h.NewNode(host.ClassFolder, "Settings", root)
	h.NewNode(host.ClassNumber, "Volume", settings)

	sub := root.OnChildRemoved(func(parent, child host.Node) {
		// The subtree must still be walkable while the removal is handled.
		assert.NotNil(t, child.Child("Volume"))
		assert.False(t, child.Child("Volume").Destroyed())
	})
	defer sub.Disconnect()

	settings.Destroy()
}

func TestSubscriptionDisconnectIdempotent(t *testing.T) {
	h := New()
	node := h.NewNode(host.ClassNumber, "X", nil)

	sub := node.OnValueChanged(func(host.Node) {})
	assert.True(t, sub.Connected())

	sub.Disconnect()
	assert.False(t, sub.Connected())
	sub.Disconnect() // no panic, no error storm
	assert.False(t, sub.Connected())
}

func TestNameNormalization(t *testing.T) {
	h := New()
	root := h.NewNode(host.ClassFolder, "Root", nil)

	// NFD "é" (e + combining acute) must match NFC "é" on lookup.
	h.NewNode(host.ClassString, "café", root)
	assert.NotNil(t, root.Child("café"))
}

func TestDestroyedNodeIgnoresWrites(t *testing.T) {
	h := New()
	node := h.NewNode(host.ClassNumber, "X", nil)
	node.SetValue(1.0)
	node.Destroy()

	count := 0
	node.OnValueChanged(func(host.Node) { count++ })
	node.SetValue(2.0)
	node.SetAttribute("a", 1)

	assert.Equal(t, 0, count)
	assert.Equal(t, 1.0, node.Value())
}

func TestSubscriptionConnectedConcurrentWithDisconnect(t *testing.T) {
	// Connected may be polled from another goroutine while a disconnect
	// runs. Run under -race.
	h := New()
	n := h.NewNode(host.ClassNumber, "Score", nil)
	sub := n.OnValueChanged(func(host.Node) {})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = sub.Connected()
		}
	}()
	go func() {
		defer wg.Done()
		sub.Disconnect()
	}()
	wg.Wait()

	assert.False(t, sub.Connected())
}
