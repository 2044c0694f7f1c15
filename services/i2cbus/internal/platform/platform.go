// Package platform supplies the transaction primitive and bus line pins per
// build target: machine.I2C on RP2 boards, a simulated bus elsewhere.
package platform

import (
	"tinygo.org/x/drivers"

	"devicebus-go/types"
)

// Pull selects an input pull resistor.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Pin is a bus line used for stuck detection and manual clocking.
type Pin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
	Number() int
}

// Factory opens the primitive and line pins for one configured bus.
type Factory interface {
	Open(cfg types.BusConfig) (drivers.I2C, error)
	Lines(cfg types.BusConfig) (sda, scl Pin, ok bool)
}
