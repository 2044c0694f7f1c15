package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	tb := Default()
	assert.Equal(t, []string{"AHT20", "LSM6DS3", "LTC4015", "MCP9808", "TMP117", "VCNL4040"}, tb.Types())

	f, err := tb.Decode("TMP117", []byte{0x0C, 0x80})
	require.NoError(t, err)
	assert.Equal(t, []Field{{"temperature", 25000, "mC"}}, f)

	f, err = tb.Decode("AHT20", []byte{0x1C, 0x80, 0x00, 0x06, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, int32(500), f[0].Value)
	assert.Equal(t, int32(250), f[1].Value)

	f, err = tb.Decode("VCNL4040", []byte{0x10, 0x00, 0x20, 0x01, 0x30, 0x02})
	require.NoError(t, err)
	assert.Equal(t, []int32{0x10, 0x120, 0x230}, values(f))

	f, err = tb.Decode("LSM6DS3", []byte{0xFF, 0xFF, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0x80})
	require.NoError(t, err)
	assert.Equal(t, []int32{-1, 1, 0, 0, 0, -32768}, values(f))

	f, err = tb.Decode("LTC4015", []byte{0x44, 0x51, 0x71, 0x1C, 0x3C, 0x1C, 0x5E, 0x33})
	require.NoError(t, err)
	assert.Equal(t, []int32{3999, 11999, 11911, 25000}, values(f))
}

func TestDecodeErrors(t *testing.T) {
	tb := Default()
	_, err := tb.Decode("NOPE", nil)
	assert.ErrorIs(t, err, ErrNoDecoder)
	_, err = tb.Decode("VCNL4040", []byte{1, 2})
	assert.Error(t, err)
	_, err = tb.Decode("MCP9808", []byte{1})
	assert.Error(t, err)
}

func TestRegisterOverrides(t *testing.T) {
	tb := NewTable()
	tb.Register("X", func(data []byte) ([]Field, error) { return []Field{{"n", int32(len(data)), ""}}, nil })
	f, err := tb.Decode("X", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, int32(3), f[0].Value)
}

func values(f []Field) []int32 {
	out := make([]int32, len(f))
	for i := range f {
		out[i] = f[i].Value
	}
	return out
}
