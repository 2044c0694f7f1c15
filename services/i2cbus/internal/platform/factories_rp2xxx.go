//go:build rp2040 || rp2350

package platform

import (
	"machine"

	"tinygo.org/x/drivers"

	"devicebus-go/errcode"
	"devicebus-go/types"
)

// DefaultFactory maps port 0/1 onto machine.I2C0/I2C1 and configures them
// with the bus pins and frequency.
func DefaultFactory() Factory { return rp2Factory{} }

type rp2Factory struct{}

func (rp2Factory) Open(cfg types.BusConfig) (drivers.I2C, error) {
	var hw *machine.I2C
	switch cfg.Port {
	case 0:
		hw = machine.I2C0
	case 1:
		hw = machine.I2C1
	default:
		return nil, errcode.New(errcode.InvalidConfig, "open", "unknown i2c port")
	}
	if cfg.SDAPin < 0 || cfg.SDAPin > 28 || cfg.SCLPin < 0 || cfg.SCLPin > 28 {
		return nil, errcode.New(errcode.InvalidConfig, "open", "invalid pins")
	}
	err := hw.Configure(machine.I2CConfig{
		Frequency: cfg.FreqHz,
		SDA:       machine.Pin(cfg.SDAPin),
		SCL:       machine.Pin(cfg.SCLPin),
	})
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "open", err)
	}
	return hw, nil
}

// Lines hands out the bus pins for stuck inspection. They are only driven
// as GPIO while the handler recovers the bus.
func (rp2Factory) Lines(cfg types.BusConfig) (Pin, Pin, bool) {
	if cfg.SDAPin < 0 || cfg.SCLPin < 0 {
		return nil, nil, false
	}
	return &rp2Pin{p: machine.Pin(cfg.SDAPin), n: cfg.SDAPin},
		&rp2Pin{p: machine.Pin(cfg.SCLPin), n: cfg.SCLPin}, true
}

type rp2Pin struct {
	p machine.Pin
	n int
}

func (r *rp2Pin) ConfigureInput(pull Pull) error {
	var mode machine.PinMode
	switch pull {
	case PullUp:
		mode = machine.PinInputPullup
	case PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2Pin) Set(level bool) { r.p.Set(level) }
func (r *rp2Pin) Get() bool      { return r.p.Get() }
func (r *rp2Pin) Number() int    { return r.n }
