package schema

import (
	"fmt"
	"math/big"
	"strings"
)

// feltWidth is the number of hex digits used to store a felt. Fixed width keeps
// lexicographic column order equal to numeric order on every backend.
const feltWidth = 64

var feltLimit = new(big.Int).Lsh(big.NewInt(1), 4*feltWidth)

// ParseFelt parses a hex ("0x" prefixed) or decimal felt literal.
func ParseFelt(s string) (*big.Int, error) {
	text := strings.TrimSpace(s)
	if text == "" {
		return nil, fmt.Errorf("empty felt")
	}
	base := 10
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		text = text[2:]
		base = 16
		if text == "" {
			return nil, fmt.Errorf("invalid felt %q", s)
		}
	}
	n, ok := new(big.Int).SetString(text, base)
	if !ok {
		return nil, fmt.Errorf("invalid felt %q", s)
	}
	if n.Sign() < 0 || n.Cmp(feltLimit) >= 0 {
		return nil, fmt.Errorf("felt %q out of range", s)
	}
	return n, nil
}

// EncodeFelt converts a felt literal to its stored form: "0x" followed by
// 64 lower-case hex digits.
func EncodeFelt(s string) (string, error) {
	n, err := ParseFelt(s)
	if err != nil {
		return "", err
	}
	return encodeFeltInt(n), nil
}

func encodeFeltInt(n *big.Int) string {
	return fmt.Sprintf("0x%0*x", feltWidth, n)
}

// FeltText renders a stored felt in its canonical minimal hex form ("0x2").
func FeltText(stored string) (string, error) {
	n, err := ParseFelt(stored)
	if err != nil {
		return "", err
	}
	return "0x" + n.Text(16), nil
}
