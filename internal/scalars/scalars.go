// Package scalars defines the custom GraphQL scalars used by model types.
//
// Felt carries field elements as hex strings, UInt32 carries unsigned 32-bit
// members as JSON numbers, BigInt carries 64-bit integers as decimal strings
// (JSON numbers lose precision past 2^53) and Bytes carries raw bytes as base64. ParseValue and ParseLiteral return nil for anything
// they cannot accept, which graphql-go reports as an invalid argument.
package scalars

import (
	"encoding/base64"
	"math"
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/jobez/dojo/internal/schema"
)

// NonNegativeInt is used for page sizes.
func NonNegativeInt() *graphql.Scalar {
	coerce := func(value interface{}) interface{} {
		n, ok := coerceInt64(value)
		if !ok || n < 0 || n > math.MaxInt32 {
			return nil
		}
		return int(n)
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "NonNegativeInt",
		Description: "An integer greater than or equal to zero.",
		Serialize:   coerce,
		ParseValue:  coerce,
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if v, ok := valueAST.(*ast.IntValue); ok {
				return coerce(v.Value)
			}
			return nil
		},
	})
}

// UInt32 carries u32 and usize members. Input accepts any 64-bit integer so
// that comparisons past the type's range reach the filter compiler, which
// decides what they mean.
func UInt32() *graphql.Scalar {
	coerce := func(value interface{}) interface{} {
		if n, ok := coerceInt64(value); ok {
			return n
		}
		return nil
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "UInt32",
		Description: "Unsigned 32-bit integer serialized as a JSON number.",
		Serialize: func(value interface{}) interface{} {
			n, ok := coerceInt64(value)
			if !ok || n < 0 || n > math.MaxUint32 {
				return nil
			}
			return n
		},
		ParseValue: coerce,
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if v, ok := valueAST.(*ast.IntValue); ok {
				return coerce(v.Value)
			}
			return nil
		},
	})
}

// BigInt carries i64 members, which do not fit a JSON number exactly.
func BigInt() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "BigInt",
		Description: "64-bit integer value serialized as a decimal string.",
		Serialize: func(value interface{}) interface{} {
			if n, ok := coerceInt64(value); ok {
				return strconv.FormatInt(n, 10)
			}
			return nil
		},
		ParseValue: func(value interface{}) interface{} {
			if n, ok := coerceInt64(value); ok {
				return n
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			switch v := valueAST.(type) {
			case *ast.IntValue:
				if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
					return n
				}
			case *ast.StringValue:
				if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
					return n
				}
			}
			return nil
		},
	})
}

// Felt carries felt252-backed members (u64..u256, addresses, class hashes).
// Output is the minimal hex form; input accepts hex or decimal text and is
// normalised to minimal hex.
func Felt() *graphql.Scalar {
	parse := func(s string) interface{} {
		text, err := feltInput(s)
		if err != nil {
			return nil
		}
		return text
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Felt",
		Description: "Field element serialized as a 0x-prefixed hex string.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case string:
				return parse(v)
			case []byte:
				return parse(string(v))
			default:
				return nil
			}
		},
		ParseValue: func(value interface{}) interface{} {
			if s, ok := value.(string); ok {
				return parse(s)
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			switch v := valueAST.(type) {
			case *ast.StringValue:
				return parse(v.Value)
			case *ast.IntValue:
				return parse(v.Value)
			}
			return nil
		},
	})
}

// Bytes carries bytes members as standard base64.
func Bytes() *graphql.Scalar {
	parse := func(s string) interface{} {
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil
		}
		return decoded
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Bytes",
		Description: "Binary value serialized as a base64 string.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case []byte:
				return base64.StdEncoding.EncodeToString(v)
			case string:
				return base64.StdEncoding.EncodeToString([]byte(v))
			default:
				return nil
			}
		},
		ParseValue: func(value interface{}) interface{} {
			if s, ok := value.(string); ok {
				return parse(s)
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if v, ok := valueAST.(*ast.StringValue); ok {
				return parse(v.Value)
			}
			return nil
		},
	})
}

func feltInput(s string) (string, error) {
	stored, err := schema.EncodeFelt(s)
	if err != nil {
		return "", err
	}
	return schema.FeltText(stored)
}

func coerceInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
