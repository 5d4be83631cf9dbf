// Package host declares the contract the synchronization engine requires
// from an external node system: a live tree of named, typed nodes with
// change notifications. Any host able to create, destroy, read, write,
// enumerate, and signal satisfies the engine unmodified.
package host

// Class tags a node with its representation. Container classes either carry
// named scalar attributes (ClassModel) or represent nesting purely through
// children (ClassFolder). Scalar classes carry a single typed value whose
// runtime type must match the class tag.
type Class string

const (
	ClassFolder Class = "Folder"
	ClassModel  Class = "Model"
	ClassNumber Class = "NumberValue"
	ClassString Class = "StringValue"
	ClassBool   Class = "BoolValue"
)

// IsContainer reports whether the class has container semantics.
func (c Class) IsContainer() bool {
	return c == ClassFolder || c == ClassModel
}

// IsScalar reports whether the class has scalar semantics.
func (c Class) IsScalar() bool {
	return c == ClassNumber || c == ClassString || c == ClassBool
}

// Subscription is a handle to one active change-notification registration.
// Disconnect is idempotent; disconnecting twice is a no-op.
type Subscription interface {
	Disconnect()
	Connected() bool
}

// Node is an opaque handle to one external tree node. All mutation and
// notification delivery is synchronous and single-threaded: a callback
// fires before the mutating call returns, and the host never delivers a
// second notification while one is being processed.
type Node interface {
	Name() string
	Class() Class
	Parent() Node

	// Children returns the node's current children in no guaranteed order.
	Children() []Node
	// Child returns the named child, or nil.
	Child(name string) Node

	// Value and SetValue access the scalar payload of a scalar-class node.
	Value() any
	SetValue(v any)

	// Attribute access for container-with-fields nodes. SetAttribute with
	// a nil value clears the attribute.
	Attribute(name string) (any, bool)
	SetAttribute(name string, v any)
	Attributes() map[string]any

	// Destroy detaches the node from its parent and destroys it together
	// with its subtree. Idempotent once destroyed.
	Destroy()
	Destroyed() bool

	// OnValueChanged fires after SetValue on a scalar-class node.
	OnValueChanged(fn func(n Node)) Subscription
	// OnAttributeChanged fires after SetAttribute for the named attribute.
	// An empty name subscribes to every attribute of the node.
	OnAttributeChanged(name string, fn func(n Node, attr string)) Subscription
	// OnChildAdded fires after a child is parented under this node.
	OnChildAdded(fn func(parent, child Node)) Subscription
	// OnChildRemoved fires after a child is detached from this node,
	// including detachment caused by Destroy.
	OnChildRemoved(fn func(parent, child Node)) Subscription
}

// Host creates nodes. Passing a non-nil parent parents the new node
// immediately, firing the parent's child-added notification.
type Host interface {
	NewNode(class Class, name string, parent Node) Node
}
