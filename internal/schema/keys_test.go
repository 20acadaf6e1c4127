package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyTuple(t *testing.T) {
	m := Model{Name: "Moves", Fields: []Field{
		{Name: "player", Type: "ContractAddress", Kind: KindFelt, Key: true},
		{Name: "game", Type: "u32", Kind: KindInt, Key: true},
		{Name: "remaining", Type: "u8", Kind: KindInt},
	}}

	tuple, err := m.KeyTuple(map[string]interface{}{
		"player":    "0x0000000000000000000000000000000000000000000000000000000000000002",
		"game":      int64(7),
		"remaining": int64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"0x2", "7"}, tuple)
	assert.Equal(t, "0x2/7", JoinKeys(tuple))
	assert.Equal(t, tuple, SplitKeys("0x2/7"))

	_, err = m.KeyTuple(map[string]interface{}{"player": "0x2"})
	assert.Error(t, err)
}

func TestKeyTextEscapesSeparator(t *testing.T) {
	f := Field{Name: "name", Type: "ByteArray", Kind: KindString, Key: true}
	text, err := f.KeyText("a/b")
	require.NoError(t, err)
	assert.Equal(t, "0x612f62", text)
	assert.NotContains(t, text, KeySeparator)
}

func TestKeyTupleWithoutKeys(t *testing.T) {
	m := Model{Name: "Config", Fields: []Field{{Name: "x", Type: "u8", Kind: KindInt}}}
	_, err := m.KeyTuple(map[string]interface{}{"x": int64(1)})
	assert.Error(t, err)
	assert.Empty(t, SplitKeys(""))
}
