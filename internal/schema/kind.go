package schema

import (
	"fmt"
	"math"
	"strings"
)

// Kind is the closed set of scalar kinds a model member can have.
// The operator table, value coercion and ordering rules are all keyed by Kind.
type Kind int

const (
	// KindInt covers signed and unsigned integers that fit in int64.
	KindInt Kind = iota
	// KindFelt covers field elements and wide unsigned integers stored as fixed-width hex.
	KindFelt
	// KindBool covers booleans.
	KindBool
	// KindString covers text.
	KindString
	// KindBytes covers opaque byte strings. Bytes are comparable but not orderable.
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFelt:
		return "felt"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Orderable reports whether values of this kind have a meaningful total order.
func (k Kind) Orderable() bool {
	return k != KindBytes
}

// intRange bounds the accepted values for a member type mapped to KindInt.
type intRange struct {
	min, max int64
}

var intRanges = map[string]intRange{
	"u8":    {0, math.MaxUint8},
	"u16":   {0, math.MaxUint16},
	"u32":   {0, math.MaxUint32},
	"usize": {0, math.MaxUint32},
	"i8":    {math.MinInt8, math.MaxInt8},
	"i16":   {math.MinInt16, math.MaxInt16},
	"i32":   {math.MinInt32, math.MaxInt32},
	"i64":   {math.MinInt64, math.MaxInt64},
}

// KindForType maps a member type name, as announced by the world contract,
// onto a scalar kind. Matching is case-insensitive for the primitive names.
func KindForType(typeName string) (Kind, error) {
	name := strings.TrimSpace(typeName)
	if _, ok := intRanges[strings.ToLower(name)]; ok {
		return KindInt, nil
	}
	switch strings.ToLower(name) {
	case "u64", "u128", "u256", "felt252", "felt", "contractaddress", "classhash", "ethaddress":
		return KindFelt, nil
	case "bool":
		return KindBool, nil
	case "bytearray", "string", "shortstring":
		return KindString, nil
	case "bytes":
		return KindBytes, nil
	default:
		return 0, fmt.Errorf("unsupported member type %q", typeName)
	}
}

// FitsUint32 reports whether every value of the member type fits an unsigned 32-bit integer.
func FitsUint32(typeName string) bool {
	r, ok := intRanges[strings.ToLower(strings.TrimSpace(typeName))]
	if !ok {
		return false
	}
	return r.min >= 0 && r.max <= math.MaxUint32
}

// FitsInt32 reports whether every value of the member type fits a 32-bit signed integer.
func FitsInt32(typeName string) bool {
	r, ok := intRanges[strings.ToLower(strings.TrimSpace(typeName))]
	if !ok {
		return false
	}
	return r.min >= math.MinInt32 && r.max <= math.MaxInt32
}
