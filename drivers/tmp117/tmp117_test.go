package tmp117

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMilli(t *testing.T) {
	cases := []struct {
		in   []byte
		want int32
	}{
		{[]byte{0x0C, 0x80}, 25000},
		{[]byte{0x00, 0x01}, 7},
		{[]byte{0xFF, 0x80}, -1000},
	}
	for _, c := range cases {
		got, err := Milli(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "% x", c.in)
	}
	_, err := Milli([]byte{1})
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestIdentity(t *testing.T) {
	assert.True(t, IsTMP117([]byte{0x01, 0x17}))
	assert.False(t, IsTMP117([]byte{0x01, 0x18}))
	assert.Equal(t, []byte{0x0F}, Probe())
	assert.Equal(t, []byte{0x00}, ReadTemp())
	assert.Equal(t, []byte{0x01, 0x02, 0x20}, Configure(0x0220))
}
