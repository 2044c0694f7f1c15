// Package ltc4015 decodes telemetry frames of the Analog Devices LTC4015
// battery charger.
//
// The charger's measurement registers are 16-bit little-endian words. The
// bus poller reads PollRegs in order and concatenates the words into one
// frame.
package ltc4015

import "errors"

const Address = 0x68

const (
	regVBAT    = 0x3A
	regVIN     = 0x3B
	regVSYS    = 0x3C
	regDieTemp = 0x3F
)

// PollRegs are the registers of one telemetry frame, in frame order.
var PollRegs = []byte{regVBAT, regVIN, regVSYS, regDieTemp}

// FrameLen is the byte length of one telemetry frame.
const FrameLen = 8

var ErrShortFrame = errors.New("ltc4015: short frame")

// Chemistry selects the VBAT scale.
type Chemistry uint8

const (
	ChemLithium Chemistry = iota
	ChemLeadAcid
)

// ChemistryOf decodes the chemistry field of a CHEM_CELLS word (bits 11:8).
// Codes 0..6 are lithium variants, 7..8 lead-acid.
func ChemistryOf(chemCells uint16) Chemistry {
	if (chemCells>>8)&0x0F >= 7 {
		return ChemLeadAcid
	}
	return ChemLithium
}

// CellsOf decodes the cell count field of a CHEM_CELLS word (bits 3:0).
func CellsOf(chemCells uint16) uint8 { return uint8(chemCells & 0x0F) }

// Telemetry is one decoded frame.
type Telemetry struct {
	VBATCell_mV int32
	VIN_mV      int32
	VSYS_mV     int32
	Die_mC      int32
}

// Parse decodes a telemetry frame.
func Parse(frame []byte, chem Chemistry) (Telemetry, error) {
	if len(frame) < FrameLen {
		return Telemetry{}, ErrShortFrame
	}
	w := func(i int) uint16 { return uint16(frame[2*i]) | uint16(frame[2*i+1])<<8 }
	return Telemetry{
		VBATCell_mV: VBATCell_mV(w(0), chem),
		VIN_mV:      VIN_mV(w(1)),
		VSYS_mV:     VIN_mV(w(2)),
		Die_mC:      Die_mC(w(3)),
	}, nil
}

// VBATCell_mV scales a raw VBAT word to millivolts per cell.
// Li: 192,264 nV/LSB; Lead: 128,176 nV/LSB.
func VBATCell_mV(raw uint16, chem Chemistry) int32 {
	nV := int64(192264)
	if chem == ChemLeadAcid {
		nV = 128176
	}
	uV := (int64(raw) * nV) / 1000 // nV → µV
	return int32(uV / 1000)        // µV → mV
}

// VIN_mV scales a raw VIN or VSYS word (1.648 mV/LSB).
func VIN_mV(raw uint16) int32 {
	return int32(int64(raw) * 1648 / 1000)
}

// Die_mC scales a raw die temperature word.
func Die_mC(raw uint16) int32 {
	return int32((int64(int16(raw)) - 12010) * 10000 / 456)
}

// Ibat_mA scales a raw IBAT word for a sense resistor in µΩ.
func Ibat_mA(raw uint16, rsns_uOhm uint32) int32 {
	if rsns_uOhm == 0 {
		return 0
	}
	uA := (int64(int16(raw)) * 1464870) / int64(rsns_uOhm)
	return int32(uA / 1000)
}
