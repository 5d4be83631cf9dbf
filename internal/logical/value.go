// Package logical defines the in-memory value model for the logical tree:
// nested string-keyed containers holding scalar leaves. The synchronization
// engine mirrors values of this model into a live external node tree.
package logical

// Map is a logical container: an order-irrelevant mapping from string keys
// to scalars or nested containers. It is an alias so ordinary map literals
// work directly against the engine API.
type Map = map[string]any

// Kind classifies a logical value.
type Kind int

const (
	KindInvalid Kind = iota
	KindNumber
	KindString
	KindBool
	KindMap
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// KindOf classifies a runtime value. Integer and float values both classify
// as KindNumber; anything outside the supported set is KindInvalid.
func KindOf(v any) Kind {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return KindNumber
	case string:
		return KindString
	case bool:
		return KindBool
	case Map:
		return KindMap
	default:
		return KindInvalid
	}
}

// IsScalar reports whether v is a supported scalar value.
func IsScalar(v any) bool {
	switch KindOf(v) {
	case KindNumber, KindString, KindBool:
		return true
	default:
		return false
	}
}

// Number converts any supported numeric value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Normalize returns the canonical form of a scalar: numbers become float64,
// strings and bools pass through. Non-scalars are returned unchanged.
func Normalize(v any) any {
	if n, ok := Number(v); ok {
		return n
	}
	return v
}

// DeepEqual compares two logical values structurally. Numbers compare by
// normalized float64 value, so 5 and 5.0 are equal.
func DeepEqual(a, b any) bool {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return false
	}

	switch ka {
	case KindMap:
		am, bm := a.(Map), b.(Map)
		if len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !DeepEqual(av, bv) {
				return false
			}
		}
		return true
	case KindNumber:
		an, _ := Number(a)
		bn, _ := Number(b)
		return an == bn
	default:
		return a == b
	}
}

// Clone returns a deep copy of a logical value. Containers are copied
// recursively; scalars are returned as-is.
func Clone(v any) any {
	m, ok := v.(Map)
	if !ok {
		return v
	}

	out := make(Map, len(m))
	for k, child := range m {
		out[k] = Clone(child)
	}
	return out
}
