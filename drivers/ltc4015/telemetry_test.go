package ltc4015

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	frame := []byte{
		0x44, 0x51, // VBAT 20804
		0x71, 0x1C, // VIN 7281
		0x3C, 0x1C, // VSYS 7228
		0x5E, 0x33, // die 13150
	}
	tm, err := Parse(frame, ChemLithium)
	require.NoError(t, err)
	assert.Equal(t, int32(3999), tm.VBATCell_mV)
	assert.Equal(t, int32(11999), tm.VIN_mV)
	assert.Equal(t, int32(11911), tm.VSYS_mV)
	assert.Equal(t, int32(25000), tm.Die_mC)

	lead, err := Parse(frame, ChemLeadAcid)
	require.NoError(t, err)
	assert.Less(t, lead.VBATCell_mV, tm.VBATCell_mV)

	_, err = Parse(frame[:6], ChemLithium)
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestChemCells(t *testing.T) {
	assert.Equal(t, ChemLithium, ChemistryOf(0x0203))
	assert.Equal(t, ChemLeadAcid, ChemistryOf(0x0806))
	assert.Equal(t, uint8(6), CellsOf(0x0806))
}

func TestIbat(t *testing.T) {
	assert.Equal(t, int32(0), Ibat_mA(1000, 0))
	assert.Equal(t, int32(366), Ibat_mA(1000, 4000))
	assert.Equal(t, int32(-366), Ibat_mA(0xFC18, 4000))
}
