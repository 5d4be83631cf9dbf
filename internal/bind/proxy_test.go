package bind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/treebind/internal/host"
	"github.com/conneroisu/treebind/internal/logical"
)

func TestProxyScalarWriteNoFeedback(t *testing.T) {
	s := openTestSession(t, logical.Map{"Health": 100})
	health := s.Root().Child("Health")
	require.NotNil(t, health)

	// An independent observer counts external mutations.
	mutations := 0
	sub := health.OnValueChanged(func(host.Node) { mutations++ })
	defer sub.Disconnect()

	require.NoError(t, s.Proxy().Set("Health", 150))

	// Exactly one external mutation, and the notification it caused did
	// not write back into the logical tree a second time.
	assert.Equal(t, 1, mutations)
	assert.Equal(t, 150.0, health.Value())

	v, err := s.Proxy().Get("Health")
	require.NoError(t, err)
	assert.Equal(t, 150, v)
}

func TestProxyGetReturnsScalarsAndFacades(t *testing.T) {
	s := openTestSession(t, logical.Map{
		"Name":  "hero",
		"Stats": logical.Map{"Speed": 1.5},
	})

	v, err := s.Proxy().Get("Name")
	require.NoError(t, err)
	assert.Equal(t, "hero", v)

	v, err = s.Proxy().Get("Stats")
	require.NoError(t, err)
	stats, ok := v.(*Proxy)
	require.True(t, ok)

	speed, err := stats.Get("Speed")
	require.NoError(t, err)
	assert.Equal(t, 1.5, speed)

	// The facade is cached: repeated reads return the same one.
	again, err := s.Proxy().Get("Stats")
	require.NoError(t, err)
	assert.Same(t, stats, again.(*Proxy))
}

func TestProxyLazyCreation(t *testing.T) {
	s := openTestSession(t, logical.Map{})

	// Reading an unset key creates an empty nested container on both
	// sides and returns a working facade.
	v, err := s.Proxy().Get("Unset")
	require.NoError(t, err)
	unset, ok := v.(*Proxy)
	require.True(t, ok)

	node := s.Root().Child("Unset")
	require.NotNil(t, node)
	assert.Equal(t, host.ClassFolder, node.Class())

	inner, err := unset.Get("Foo")
	require.NoError(t, err)
	require.IsType(t, &Proxy{}, inner)
	require.NotNil(t, node.Child("Foo"))

	snap := s.Snapshot()
	assert.True(t, logical.DeepEqual(
		logical.Map{"Unset": logical.Map{"Foo": logical.Map{}}}, snap))
}

func TestProxyDeletionDestroysSubtree(t *testing.T) {
	s := openTestSession(t, logical.Map{
		"Settings": logical.Map{
			"Volume": 0.8,
			"Video":  logical.Map{"Quality": "high"},
		},
		"Health": 100,
	})

	settings := s.Root().Child("Settings")
	require.NotNil(t, settings)
	before := s.SubscriptionCount()

	require.NoError(t, s.Proxy().Set("Settings", nil))

	assert.False(t, s.Proxy().Has("Settings"))
	assert.Nil(t, s.Root().Child("Settings"))
	assert.True(t, settings.Destroyed())

	// Settings held: its own structural pair, Volume's value sub, Video's
	// structural pair, and Quality's value sub.
	assert.Equal(t, before-4, s.SubscriptionCount())
}

func TestProxyDeleteAbsentKeyIsNoop(t *testing.T) {
	s := openTestSession(t, logical.Map{"A": 1})
	require.NoError(t, s.Proxy().Delete("Missing"))
	assert.Equal(t, []string{"A"}, s.Proxy().Keys())
}

func TestProxyTypeChangeContainerToScalar(t *testing.T) {
	s := openTestSession(t, logical.Map{
		"Stats": logical.Map{"Speed": 1.5},
	})

	old := s.Root().Child("Stats")
	require.NotNil(t, old)
	require.True(t, old.Class().IsContainer())

	require.NoError(t, s.Proxy().Set("Stats", 5))

	// Exactly one node named Stats, now scalar; the container is gone.
	assert.True(t, old.Destroyed())
	replaced := s.Root().Child("Stats")
	require.NotNil(t, replaced)
	assert.Equal(t, host.ClassNumber, replaced.Class())
	assert.Equal(t, 5.0, replaced.Value())

	count := 0
	for _, c := range s.Root().Children() {
		if c.Name() == "Stats" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestProxyTypeChangeScalarToContainer(t *testing.T) {
	s := openTestSession(t, logical.Map{"Stats": 5})

	old := s.Root().Child("Stats")
	require.NotNil(t, old)

	require.NoError(t, s.Proxy().Set("Stats", logical.Map{"Speed": 2.0}))

	assert.True(t, old.Destroyed())
	replaced := s.Root().Child("Stats")
	require.NotNil(t, replaced)
	assert.True(t, replaced.Class().IsContainer())
	require.NotNil(t, replaced.Child("Speed"))
	assert.Equal(t, 2.0, replaced.Child("Speed").Value())
}

func TestProxyScalarTypeChangeRebuildsNode(t *testing.T) {
	s := openTestSession(t, logical.Map{"Value": 5})

	old := s.Root().Child("Value")
	require.Equal(t, host.ClassNumber, old.Class())

	require.NoError(t, s.Proxy().Set("Value", "five"))

	assert.True(t, old.Destroyed())
	replaced := s.Root().Child("Value")
	require.NotNil(t, replaced)
	assert.Equal(t, host.ClassString, replaced.Class())
	assert.Equal(t, "five", replaced.Value())
}

func TestProxyWholeSubtreeAssignmentReconciles(t *testing.T) {
	s := openTestSession(t, logical.Map{
		"Stats": logical.Map{
			"Speed": 1.5,
			"Armor": 10,
			"Buffs": logical.Map{"Haste": true},
		},
	})

	stats := s.Root().Child("Stats")
	require.NotNil(t, stats)

	require.NoError(t, s.Proxy().Set("Stats", logical.Map{
		"Speed": 2.0,          // changed
		"Mana":  50,           // added
		"Buffs": logical.Map{ // container survives, contents change
			"Shield": true,
		},
	}))

	// The container node itself survives a matching assignment.
	assert.Same(t, stats, s.Root().Child("Stats"))
	assert.Equal(t, 2.0, stats.Child("Speed").Value())
	assert.Equal(t, 50.0, stats.Child("Mana").Value())
	assert.Nil(t, stats.Child("Armor"))

	buffs := stats.Child("Buffs")
	require.NotNil(t, buffs)
	require.NotNil(t, buffs.Child("Shield"))
	assert.Nil(t, buffs.Child("Haste"))
}

func TestProxyAttributeStrategyWrites(t *testing.T) {
	s := openTestSession(t, logical.Map{
		"Health": 100,
	}, WithStrategy(AttributeStrategy{}))

	root := s.Root()

	require.NoError(t, s.Proxy().Set("Health", 150))
	v, ok := root.Attribute("Health")
	require.True(t, ok)
	assert.Equal(t, 150.0, v)

	// Scalar -> container: the attribute is cleared, a node appears.
	require.NoError(t, s.Proxy().Set("Health", logical.Map{"Max": 200}))
	_, ok = root.Attribute("Health")
	assert.False(t, ok)
	healthNode := root.Child("Health")
	require.NotNil(t, healthNode)
	max, ok := healthNode.Attribute("Max")
	require.True(t, ok)
	assert.Equal(t, 200.0, max)

	// Container -> scalar: node destroyed, attribute back.
	require.NoError(t, s.Proxy().Set("Health", 75))
	assert.True(t, healthNode.Destroyed())
	v, ok = root.Attribute("Health")
	require.True(t, ok)
	assert.Equal(t, 75.0, v)
}

func TestProxyDeletionAttributeStrategy(t *testing.T) {
	s := openTestSession(t, logical.Map{
		"Health": 100,
	}, WithStrategy(AttributeStrategy{}))

	require.NoError(t, s.Proxy().Set("Health", nil))

	_, ok := s.Root().Attribute("Health")
	assert.False(t, ok)
	assert.False(t, s.Proxy().Has("Health"))
}

func TestProxyMidPropagationReadDefersNodeCreation(t *testing.T) {
	s := openTestSession(t, logical.Map{"Health": 100})

	// A handler reads an absent key while a propagation is in flight:
	// it gets a working facade, but the external container is deferred.
	var captured *Proxy
	sub := s.Root().Child("Health").OnValueChanged(func(host.Node) {
		if captured != nil {
			return
		}
		v, err := s.Proxy().Get("Pending")
		require.NoError(t, err)
		captured = v.(*Proxy)
	})
	defer sub.Disconnect()

	require.NoError(t, s.Proxy().Set("Health", 150))
	require.NotNil(t, captured)
	assert.Nil(t, captured.Node())
	assert.Nil(t, s.Root().Child("Pending"))

	// Re-reading from the parent builds the container and repoints the
	// same facade at it.
	v, err := s.Proxy().Get("Pending")
	require.NoError(t, err)
	assert.Same(t, captured, v.(*Proxy))
	require.NotNil(t, s.Root().Child("Pending"))
	assert.Same(t, s.Root().Child("Pending"), captured.Node())
}

func TestProxyDeferredFacadeRepairsOnDirectWrite(t *testing.T) {
	s := openTestSession(t, logical.Map{"Health": 100})

	var captured *Proxy
	sub := s.Root().Child("Health").OnValueChanged(func(host.Node) {
		if captured != nil {
			return
		}
		v, err := s.Proxy().Get("Pending")
		require.NoError(t, err)
		captured = v.(*Proxy)
	})
	defer sub.Disconnect()

	require.NoError(t, s.Proxy().Set("Health", 150))
	require.NotNil(t, captured)
	require.Nil(t, captured.Node())

	// Writing through the held facade, without touching the parent again,
	// builds the container first; the child lands under it, not orphaned.
	require.NoError(t, captured.Set("Flag", true))

	pending := s.Root().Child("Pending")
	require.NotNil(t, pending)
	flag := pending.Child("Flag")
	require.NotNil(t, flag)
	assert.Equal(t, true, flag.Value())
	assert.Same(t, pending, captured.Node())
}

func TestProxyDeferredFacadeRepairsAttributeStrategy(t *testing.T) {
	s := openTestSession(t, logical.Map{
		"Stats": logical.Map{"Speed": 1.0},
	}, WithStrategy(AttributeStrategy{}))

	var captured *Proxy
	sub := s.Root().Child("Stats").OnAttributeChanged("Speed", func(host.Node, string) {
		if captured != nil {
			return
		}
		v, err := s.Proxy().Get("Pending")
		require.NoError(t, err)
		captured = v.(*Proxy)
	})
	defer sub.Disconnect()

	stats, err := s.Proxy().Get("Stats")
	require.NoError(t, err)
	require.NoError(t, stats.(*Proxy).Set("Speed", 2.0))
	require.NotNil(t, captured)
	require.Nil(t, captured.Node())

	// A scalar write through the node-less facade must not touch a nil
	// container node; repair builds it first.
	require.NoError(t, captured.Set("Level", 3))

	pending := s.Root().Child("Pending")
	require.NotNil(t, pending)
	level, ok := pending.Attribute("Level")
	require.True(t, ok)
	assert.Equal(t, 3.0, level)
}

func TestProxyUnsupportedValueSkipped(t *testing.T) {
	s := openTestSession(t, logical.Map{})

	// The write does not error and nothing appears externally.
	require.NoError(t, s.Proxy().Set("Bad", []int{1, 2, 3}))
	assert.Nil(t, s.Root().Child("Bad"))
}
