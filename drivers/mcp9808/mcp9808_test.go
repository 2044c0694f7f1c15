package mcp9808

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMilli(t *testing.T) {
	got, err := Milli([]byte{0xC1, 0x90})
	require.NoError(t, err)
	assert.Equal(t, int32(25000), got)

	got, err = Milli([]byte{0x1F, 0xF0})
	require.NoError(t, err)
	assert.Equal(t, int32(-1000), got)

	_, err = Milli(nil)
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestAlerts(t *testing.T) {
	c, u, l := Alerts([]byte{0xC1, 0x90})
	assert.True(t, c)
	assert.True(t, u)
	assert.False(t, l)
	assert.Equal(t, []byte{0x05}, ReadAmbient())
}
