// Package tmp117 decodes readings of the TI TMP117 temperature sensor.
package tmp117

import "errors"

const (
	regTemp     = 0x00
	regConfig   = 0x01
	regDeviceID = 0x0F

	deviceID = 0x0117
)

var ErrShortFrame = errors.New("tmp117: short frame")

// Probe is the identification write; the two-byte answer is DeviceID.
func Probe() []byte { return []byte{regDeviceID} }

// IsTMP117 reports whether a device ID read matches.
func IsTMP117(id []byte) bool {
	return len(id) == 2 && uint16(id[0])<<8|uint16(id[1]) == deviceID
}

// Configure is the write of a configuration word.
func Configure(cfg uint16) []byte { return []byte{regConfig, byte(cfg >> 8), byte(cfg)} }

// ReadTemp is the write selecting the temperature result register.
func ReadTemp() []byte { return []byte{regTemp} }

// Milli converts a big-endian temperature word to m°C (7.8125 m°C/LSB).
func Milli(frame []byte) (int32, error) {
	if len(frame) < 2 {
		return 0, ErrShortFrame
	}
	raw := int16(uint16(frame[0])<<8 | uint16(frame[1]))
	return int32(int64(raw) * 78125 / 10000), nil
}
