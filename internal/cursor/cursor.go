// Package cursor encodes and decodes Relay-style connection cursors.
//
// A cursor carries the order-key tuple of the last row a client saw together
// with a fingerprint of the filter and order it was issued under. The JSON
// payload is signed with a truncated HMAC-SHA256 tag and base64url encoded, so
// a cursor cannot be edited to seek to an arbitrary position.
package cursor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jobez/dojo/internal/queryerr"
)

// Version is the payload version written by Encode.
const Version = 1

const tagSize = 16

// DefaultSecret signs cursors when no secret is configured.
const DefaultSecret = "dojo-graphql-cursor"

var errTag = errors.New("cursor signature mismatch")

type payload struct {
	Version     int      `json:"v"`
	Fingerprint string   `json:"f"`
	Values      []string `json:"k"`
}

// Codec signs and verifies cursors with one key.
type Codec struct {
	key []byte
}

// NewCodec creates a codec. An empty secret selects DefaultSecret.
func NewCodec(secret string) *Codec {
	if secret == "" {
		secret = DefaultSecret
	}
	return &Codec{key: []byte(secret)}
}

// Fingerprint binds a cursor to one model version, filter and order.
func Fingerprint(model string, version int, filterKey, orderKey string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s@%d\n%s\n%s", model, version, filterKey, orderKey)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Encode builds an opaque cursor from an order-key tuple and fingerprint.
func (c *Codec) Encode(values []string, fingerprint string) string {
	data, err := json.Marshal(payload{Version: Version, Fingerprint: fingerprint, Values: values})
	if err != nil {
		return ""
	}
	buf := make([]byte, 0, tagSize+len(data))
	buf = append(buf, c.tag(data)...)
	buf = append(buf, data...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Decode verifies and parses a cursor. Every failure is a cursor error.
func (c *Codec) Decode(raw string) ([]string, string, error) {
	buf, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", queryerr.Cursor("invalid cursor encoding", err)
	}
	if len(buf) <= tagSize {
		return nil, "", queryerr.Cursor("truncated cursor", nil)
	}
	tag, data := buf[:tagSize], buf[tagSize:]
	if !hmac.Equal(tag, c.tag(data)) {
		return nil, "", queryerr.Cursor("cursor was not issued by this server", errTag)
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, "", queryerr.Cursor("invalid cursor payload", err)
	}
	if p.Version != Version {
		return nil, "", queryerr.Cursor(fmt.Sprintf("unsupported cursor version %d", p.Version), nil)
	}
	if p.Fingerprint == "" || len(p.Values) == 0 {
		return nil, "", queryerr.Cursor("incomplete cursor", nil)
	}
	return p.Values, p.Fingerprint, nil
}

// DecodeFor decodes a cursor and checks it was issued under fingerprint.
func (c *Codec) DecodeFor(raw, fingerprint string) ([]string, error) {
	values, got, err := c.Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(fingerprint, got); err != nil {
		return nil, err
	}
	return values, nil
}

// Validate confirms a decoded fingerprint matches the current query.
func Validate(expected, actual string) error {
	if expected != actual {
		return queryerr.Cursor("cursor does not match the requested filter and order", nil)
	}
	return nil
}

func (c *Codec) tag(data []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(data)
	return mac.Sum(nil)[:tagSize]
}
