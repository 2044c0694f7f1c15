// Package aht20 decodes measurement frames of the Aosong AHT20 humidity and
// temperature sensor.
//
// The bus poller triggers a conversion with Trigger and reads FrameLen bytes
// back; Parse turns that frame into a Sample.
package aht20

import "errors"

const Address = 0x38

const (
	cmdTrigger = 0xAC
	cmdStatus  = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08
)

// FrameLen is status plus five data bytes.
const FrameLen = 6

var (
	ErrShortFrame = errors.New("aht20: short frame")
	ErrNotReady   = errors.New("aht20: not ready")
)

// Trigger is the write that starts a measurement.
func Trigger() []byte { return []byte{cmdTrigger, 0x33, 0x00} }

// Status is the write that selects the status byte.
func Status() []byte { return []byte{cmdStatus} }

// Calibrated reports whether a status byte has the calibration bit set.
func Calibrated(st byte) bool { return st&statusCalibrated != 0 }

// Sample holds raw readings.
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

// Parse decodes a measurement frame. A frame whose status shows a busy or
// uncalibrated sensor yields ErrNotReady.
func Parse(data []byte) (Sample, error) {
	if len(data) < FrameLen {
		return Sample{}, ErrShortFrame
	}
	if !Calibrated(data[0]) || data[0]&statusBusy != 0 {
		return Sample{}, ErrNotReady
	}
	return Sample{
		RawHumidity: (uint32(data[1]) << 12) | (uint32(data[2]) << 4) | (uint32(data[3]) >> 4),
		RawTemp:     (uint32(data[3]&0x0F) << 16) | (uint32(data[4]) << 8) | uint32(data[5]),
	}, nil
}

// Fixed-point conversion helpers.

func (s Sample) DeciRelHumidity() int32 {
	return int32((int64(s.RawHumidity) * 1000) / 0x100000)
}

func (s Sample) DeciCelsius() int32 {
	return int32((int64(s.RawTemp)*2000)/0x100000) - 500
}
