//go:build !rp2040 && !rp2350

package platform

import (
	"sync"

	"tinygo.org/x/drivers"

	"devicebus-go/errcode"
	"devicebus-go/types"
)

// HostFactory serves simulated buses keyed by port. Ports without a
// registered SimBus get an empty one on first Open.
type HostFactory struct {
	mu    sync.Mutex
	buses map[int]*SimBus
}

// DefaultFactory returns an empty HostFactory.
func DefaultFactory() Factory { return NewHostFactory() }

func NewHostFactory() *HostFactory { return &HostFactory{buses: make(map[int]*SimBus)} }

// Attach registers sb as the bus behind port.
func (f *HostFactory) Attach(port int, sb *SimBus) {
	f.mu.Lock()
	f.buses[port] = sb
	f.mu.Unlock()
}

// Sim returns the SimBus behind port.
func (f *HostFactory) Sim(port int) (*SimBus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb, ok := f.buses[port]
	return sb, ok
}

func (f *HostFactory) Open(cfg types.BusConfig) (drivers.I2C, error) {
	if cfg.Port < 0 {
		return nil, errcode.New(errcode.InvalidConfig, "open", "unknown i2c port")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sb, ok := f.buses[cfg.Port]
	if !ok {
		sb = NewSimBus()
		f.buses[cfg.Port] = sb
	}
	return sb, nil
}

func (f *HostFactory) Lines(cfg types.BusConfig) (Pin, Pin, bool) {
	sb, ok := f.Sim(cfg.Port)
	if !ok {
		return nil, nil, false
	}
	sda, scl := sb.Lines(cfg.SDAPin, cfg.SCLPin)
	return sda, scl, true
}
