package bind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/treebind/internal/host"
	"github.com/conneroisu/treebind/internal/logical"
)

// treeToMap derives the logical value a node tree represents, the inverse
// of building.
func treeToMap(n host.Node, attrScalars bool) logical.Map {
	m := logical.Map{}
	for _, c := range n.Children() {
		if c.Class().IsContainer() {
			m[c.Name()] = treeToMap(c, attrScalars)
		} else {
			m[c.Name()] = c.Value()
		}
	}
	if attrScalars {
		for name, v := range n.Attributes() {
			m[name] = v
		}
	}
	return m
}

func TestRoundTripFolderStrategy(t *testing.T) {
	data := logical.Map{
		"Health": 100,
		"Name":   "hero",
		"Alive":  true,
		"Stats": logical.Map{
			"Speed": 1.5,
			"Buffs": logical.Map{"Haste": true},
		},
	}
	s := openTestSession(t, data)

	derived := treeToMap(s.Root(), false)
	assert.True(t, logical.DeepEqual(data, derived))
}

func TestRoundTripAttributeStrategy(t *testing.T) {
	data := logical.Map{
		"Health": 100,
		"Stats": logical.Map{
			"Speed": 1.5,
		},
	}
	s := openTestSession(t, data, WithStrategy(AttributeStrategy{}))

	derived := treeToMap(s.Root(), true)
	assert.True(t, logical.DeepEqual(data, derived))
}

func TestReplaceBulkSync(t *testing.T) {
	s := openTestSession(t, logical.Map{
		"Keep":   1,
		"Drop":   2,
		"Change": "old",
		"Nest":   logical.Map{"A": 1},
	})

	next := logical.Map{
		"Keep":   1,
		"Change": "new",
		"Nest":   logical.Map{"B": 2},
		"Added":  true,
	}
	require.NoError(t, s.Replace(next))

	assert.True(t, logical.DeepEqual(next, s.Snapshot()))
	assert.True(t, logical.DeepEqual(next, treeToMap(s.Root(), false)))
	assert.Nil(t, s.Root().Child("Drop"))
}

func TestReplacePreservesMatchingNodes(t *testing.T) {
	s := openTestSession(t, logical.Map{
		"Health": 100,
		"Stats":  logical.Map{"Speed": 1.5},
	})

	health := s.Root().Child("Health")
	stats := s.Root().Child("Stats")

	require.NoError(t, s.Replace(logical.Map{
		"Health": 50,
		"Stats":  logical.Map{"Speed": 3.0},
	}))

	// Same kinds on both sides: the nodes are updated, not rebuilt.
	assert.Same(t, health, s.Root().Child("Health"))
	assert.Same(t, stats, s.Root().Child("Stats"))
	assert.Equal(t, 50.0, health.Value())
	assert.Equal(t, 3.0, stats.Child("Speed").Value())
}

func TestReplaceRebuildsOnTypeChange(t *testing.T) {
	s := openTestSession(t, logical.Map{"Stats": logical.Map{"Speed": 1.5}})

	old := s.Root().Child("Stats")
	require.NoError(t, s.Replace(logical.Map{"Stats": 5}))

	assert.True(t, old.Destroyed())
	replaced := s.Root().Child("Stats")
	require.NotNil(t, replaced)
	assert.Equal(t, host.ClassNumber, replaced.Class())
}

func TestReplaceClearsStaleAttributes(t *testing.T) {
	s := openTestSession(t, logical.Map{
		"Health": 100,
		"Mana":   50,
	}, WithStrategy(AttributeStrategy{}))

	require.NoError(t, s.Replace(logical.Map{"Health": 75}))

	_, ok := s.Root().Attribute("Mana")
	assert.False(t, ok)
	v, ok := s.Root().Attribute("Health")
	require.True(t, ok)
	assert.Equal(t, 75.0, v)
}

func TestReplaceNilClearsEverything(t *testing.T) {
	s := openTestSession(t, logical.Map{"A": 1, "B": logical.Map{"C": 2}})

	require.NoError(t, s.Replace(nil))

	assert.Equal(t, 0, s.Proxy().Len())
	assert.Empty(t, s.Root().Children())
}

func TestReplaceEmitsEvent(t *testing.T) {
	s := openTestSession(t, logical.Map{"A": 1})
	events := s.Watch()

	require.NoError(t, s.Replace(logical.Map{"A": 2}))

	select {
	case ev := <-events:
		assert.Equal(t, ChangeSet, ev.Type)
		assert.Equal(t, "Root", ev.Path)
		assert.False(t, ev.External)
	default:
		t.Fatal("expected an event")
	}
}

func TestAdoptIsIdempotent(t *testing.T) {
	h, s := openWithHost(t, logical.Map{"A": 1})

	score := h.NewNode(host.ClassNumber, "Score", s.Root())
	score.SetValue(9.0)

	before := s.SubscriptionCount()
	require.NoError(t, s.Adopt())

	// Everything was already bound; Adopt changes nothing.
	assert.Equal(t, before, s.SubscriptionCount())
	assert.True(t, logical.DeepEqual(
		logical.Map{"A": 1, "Score": 9.0}, s.Snapshot()))
}
