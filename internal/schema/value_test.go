package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFeltIsFixedWidth(t *testing.T) {
	stored, err := EncodeFelt("0x2")
	require.NoError(t, err)
	assert.Len(t, stored, 66)
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000002", stored)

	fromDecimal, err := EncodeFelt("2")
	require.NoError(t, err)
	assert.Equal(t, stored, fromDecimal)

	text, err := FeltText(stored)
	require.NoError(t, err)
	assert.Equal(t, "0x2", text)
}

func TestEncodedFeltsSortNumerically(t *testing.T) {
	small, err := EncodeFelt("0xf")
	require.NoError(t, err)
	large, err := EncodeFelt("0x10")
	require.NoError(t, err)
	assert.Less(t, small, large)
}

func TestParseFeltRejects(t *testing.T) {
	for _, input := range []string{"", "0x", "0xzz", "-1", "0x1" + strings.Repeat("0", 64)} {
		_, err := ParseFelt(input)
		assert.Error(t, err, input)
	}
}

func TestStoreValue(t *testing.T) {
	u8 := Field{Name: "remaining", Type: "u8", Kind: KindInt}
	v, err := u8.StoreValue(42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = u8.StoreValue(300)
	assert.Error(t, err)
	_, err = u8.StoreValue("abc")
	assert.Error(t, err)

	felt := Field{Name: "player", Type: "ContractAddress", Kind: KindFelt}
	v, err = felt.StoreValue("0x2")
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000002", v)

	v, err = felt.StoreValue(int64(2))
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000002", v)

	flag := Field{Name: "alive", Type: "bool", Kind: KindBool}
	_, err = flag.StoreValue("true")
	assert.Error(t, err)

	raw := Field{Name: "blob", Type: "bytes", Kind: KindBytes}
	v, err = raw.StoreValue("AQI=")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, v)
	_, err = raw.StoreValue("***")
	assert.Error(t, err)
}

func TestAPIValue(t *testing.T) {
	x := Field{Name: "x", Type: "u32", Kind: KindInt}
	v, err := x.APIValue([]byte("69"))
	require.NoError(t, err)
	assert.Equal(t, int64(69), v)

	v, err = x.APIValue(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	flag := Field{Name: "alive", Type: "bool", Kind: KindBool}
	v, err = flag.APIValue(int64(1))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	felt := Field{Name: "player", Type: "ContractAddress", Kind: KindFelt}
	v, err = felt.APIValue("0x00000000000000000000000000000000000000000000000000000000000000ab")
	require.NoError(t, err)
	assert.Equal(t, "0xab", v)
}
