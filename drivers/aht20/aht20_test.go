package aht20

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	// 50 %RH, 25.0 C
	s, err := Parse([]byte{0x1C, 0x80, 0x00, 0x06, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x80000), s.RawHumidity)
	assert.Equal(t, uint32(0x60000), s.RawTemp)
	assert.Equal(t, int32(500), s.DeciRelHumidity())
	assert.Equal(t, int32(250), s.DeciCelsius())
}

func TestParseRejects(t *testing.T) {
	_, err := Parse([]byte{0x1C, 0x80})
	assert.ErrorIs(t, err, ErrShortFrame)
	_, err = Parse([]byte{0x9C, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = Parse([]byte{0x10, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestCommands(t *testing.T) {
	assert.Equal(t, []byte{0xAC, 0x33, 0x00}, Trigger())
	assert.Equal(t, []byte{0x71}, Status())
	assert.True(t, Calibrated(0x18))
	assert.False(t, Calibrated(0x10))
}
