package schema

import (
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// StoreValue converts an API input value for the field into the parameter
// bound against the field's column.
func (f Field) StoreValue(value interface{}) (interface{}, error) {
	switch f.Kind {
	case KindInt:
		n, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		if r, ok := intRanges[strings.ToLower(f.Type)]; ok && (n < r.min || n > r.max) {
			return nil, fmt.Errorf("value %d out of range for %s", n, f.Type)
		}
		return n, nil
	case KindFelt:
		switch v := value.(type) {
		case string:
			return EncodeFelt(v)
		case *big.Int:
			if v.Sign() < 0 || v.Cmp(feltLimit) >= 0 {
				return nil, fmt.Errorf("felt out of range")
			}
			return encodeFeltInt(v), nil
		default:
			n, err := toInt64(value)
			if err != nil {
				return nil, fmt.Errorf("felt value must be a hex or decimal string")
			}
			if n < 0 {
				return nil, fmt.Errorf("felt out of range")
			}
			return encodeFeltInt(big.NewInt(n)), nil
		}
	case KindBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("value must be a boolean")
		}
		return b, nil
	case KindString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("value must be a string")
		}
		return s, nil
	case KindBytes:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			decoded, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("invalid base64 value")
			}
			return decoded, nil
		default:
			return nil, fmt.Errorf("bytes value must be a base64 string")
		}
	default:
		return nil, fmt.Errorf("unsupported kind %s", f.Kind)
	}
}

// BoundValue is StoreValue for ordering comparisons. An integer outside the
// member type's range is moved just past the nearest bound, so xGT: -1 on a
// u32 matches every row instead of failing.
func (f Field) BoundValue(value interface{}) (interface{}, error) {
	if f.Kind != KindInt {
		return f.StoreValue(value)
	}
	n, err := toInt64(value)
	if err != nil {
		return nil, err
	}
	if r, ok := intRanges[strings.ToLower(f.Type)]; ok {
		switch {
		case n < r.min:
			n = r.min - 1
		case n > r.max:
			n = r.max + 1
		}
	}
	return n, nil
}

// APIValue converts a scanned column value into the value exposed on the API.
// NULL maps to nil for every kind.
func (f Field) APIValue(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	switch f.Kind {
	case KindInt:
		return toInt64(raw)
	case KindFelt:
		return FeltText(asString(raw))
	case KindBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case []byte, string:
			return strconv.ParseBool(asString(v))
		default:
			return nil, fmt.Errorf("unexpected bool value %T", raw)
		}
	case KindString:
		return asString(raw), nil
	case KindBytes:
		switch v := raw.(type) {
		case []byte:
			return append([]byte(nil), v...), nil
		case string:
			return []byte(v), nil
		default:
			return nil, fmt.Errorf("unexpected bytes value %T", raw)
		}
	default:
		return nil, fmt.Errorf("unsupported kind %s", f.Kind)
	}
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d out of range", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v > math.MaxInt64 {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not an integer", v)
		}
		return n, nil
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not an integer", string(v))
		}
		return n, nil
	default:
		return 0, fmt.Errorf("value of type %T is not an integer", value)
	}
}
