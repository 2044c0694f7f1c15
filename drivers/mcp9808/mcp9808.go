// Package mcp9808 decodes readings of the Microchip MCP9808 temperature
// sensor.
package mcp9808

import "errors"

const regAmbient = 0x05

var ErrShortFrame = errors.New("mcp9808: short frame")

// ReadAmbient is the write selecting the ambient temperature register.
func ReadAmbient() []byte { return []byte{regAmbient} }

// Milli converts an ambient temperature word to m°C. The top three bits are
// alert flags; bit 12 is the sign.
func Milli(frame []byte) (int32, error) {
	if len(frame) < 2 {
		return 0, ErrShortFrame
	}
	raw := int32(frame[0]&0x0F)<<8 | int32(frame[1])
	mC := raw * 1000 / 16
	if frame[0]&0x10 != 0 {
		mC -= 256000
	}
	return mC, nil
}

// Alerts returns the alert flags of an ambient word: critical, upper, lower.
func Alerts(frame []byte) (crit, upper, lower bool) {
	if len(frame) < 1 {
		return
	}
	return frame[0]&0x80 != 0, frame[0]&0x40 != 0, frame[0]&0x20 != 0
}
