package bind

import (
	"github.com/conneroisu/treebind/internal/host"
	"github.com/conneroisu/treebind/internal/logical"
)

// Strategy selects the external representation of logical values. The
// engine is otherwise representation-agnostic: one engine, two historical
// node layouts.
type Strategy interface {
	// String names the strategy for configuration and logging.
	String() string
	// ContainerClass is the node class used for logical containers.
	ContainerClass() host.Class
	// ScalarAsAttribute reports whether scalar children are stored as
	// named attributes on their container node instead of typed child
	// value nodes.
	ScalarAsAttribute() bool
	// ScalarClass maps a scalar kind to its node class. Unused when
	// ScalarAsAttribute is true.
	ScalarClass(k logical.Kind) (host.Class, bool)
}

// FolderStrategy represents containers as field-less folder nodes and
// scalars as typed value nodes parented under them.
type FolderStrategy struct{}

func (FolderStrategy) String() string             { return "folder" }
func (FolderStrategy) ContainerClass() host.Class { return host.ClassFolder }
func (FolderStrategy) ScalarAsAttribute() bool    { return false }

func (FolderStrategy) ScalarClass(k logical.Kind) (host.Class, bool) {
	switch k {
	case logical.KindNumber:
		return host.ClassNumber, true
	case logical.KindString:
		return host.ClassString, true
	case logical.KindBool:
		return host.ClassBool, true
	default:
		return "", false
	}
}

// AttributeStrategy represents containers as attribute-bearing model nodes;
// scalar children live as attributes, nested containers as child nodes.
type AttributeStrategy struct{}

func (AttributeStrategy) String() string             { return "attribute" }
func (AttributeStrategy) ContainerClass() host.Class { return host.ClassModel }
func (AttributeStrategy) ScalarAsAttribute() bool    { return true }

func (AttributeStrategy) ScalarClass(logical.Kind) (host.Class, bool) {
	return "", false
}

// StrategyByName resolves a configured strategy name. Unknown names fall
// back to the folder strategy.
func StrategyByName(name string) Strategy {
	if name == "attribute" {
		return AttributeStrategy{}
	}
	return FolderStrategy{}
}
