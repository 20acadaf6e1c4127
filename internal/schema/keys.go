package schema

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// KeySeparator joins the components of an encoded key tuple.
const KeySeparator = "/"

// KeyTuple renders the key members of a row, in declaration order, in their
// canonical text form. values holds API values keyed by member name.
func (m Model) KeyTuple(values map[string]interface{}) ([]string, error) {
	keys := m.KeyFields()
	if len(keys) == 0 {
		return nil, fmt.Errorf("model %s has no key members", m.Name)
	}
	tuple := make([]string, len(keys))
	for i, f := range keys {
		v, ok := values[f.Name]
		if !ok || v == nil {
			return nil, fmt.Errorf("key member %s is missing", f.Name)
		}
		text, err := f.KeyText(v)
		if err != nil {
			return nil, fmt.Errorf("key member %s: %w", f.Name, err)
		}
		tuple[i] = text
	}
	return tuple, nil
}

// KeyText renders one API value as a key component. Felts use the minimal hex
// form; strings and bytes are hex encoded so a component never contains the
// separator.
func (f Field) KeyText(v interface{}) (string, error) {
	switch f.Kind {
	case KindInt:
		n, err := toInt64(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case KindFelt:
		return FeltText(asString(v))
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("expected bool, got %T", v)
		}
		return strconv.FormatBool(b), nil
	case KindString:
		return "0x" + hex.EncodeToString([]byte(asString(v))), nil
	case KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return "", fmt.Errorf("expected bytes, got %T", v)
		}
		return "0x" + hex.EncodeToString(b), nil
	default:
		return "", fmt.Errorf("unsupported kind %s", f.Kind)
	}
}

// JoinKeys encodes a key tuple as stored in the entities table.
func JoinKeys(tuple []string) string {
	return strings.Join(tuple, KeySeparator)
}

// SplitKeys decodes a stored key tuple.
func SplitKeys(keys string) []string {
	if keys == "" {
		return nil
	}
	return strings.Split(keys, KeySeparator)
}
