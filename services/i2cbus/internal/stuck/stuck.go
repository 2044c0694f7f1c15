// Package stuck wraps the transaction primitive with lockup detection and
// recovery: SCL clocking first, then a power cycle plus hiatus.
package stuck

import (
	"log/slog"
	"time"

	"tinygo.org/x/drivers"

	"devicebus-go/errcode"
	"devicebus-go/services/i2cbus/internal/platform"
)

const (
	DefaultStuckAfter = 3
	recoveryClocks    = 9
	halfClock         = 5 * time.Microsecond
)

// PowerCycler is satisfied by *power.Controller.
type PowerCycler interface {
	Configured() bool
	PowerCycleSlot(slot uint8, now time.Time)
	Flush(now time.Time)
}

type Config struct {
	SDA, SCL   platform.Pin // optional
	StuckAfter int          // consecutive timeouts treated as a lockup
	Power      PowerCycler  // optional
	Hiatus     func(time.Duration)
	HiatusFor  time.Duration
	Reinit     func() // hands the lines back to the bus peripheral
	Log        *slog.Logger
}

// Handler implements drivers.I2C on top of another drivers.I2C.
// Bus goroutine only.
type Handler struct {
	bus        drivers.I2C
	cfg        Config
	timeouts   int
	stuck      bool
	recovering bool // power writes during recovery pass straight through
	recoveries int
}

var _ drivers.I2C = (*Handler)(nil)

func New(bus drivers.I2C, cfg Config) *Handler {
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = DefaultStuckAfter
	}
	if cfg.HiatusFor <= 0 {
		cfg.HiatusFor = time.Second
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Handler{bus: bus, cfg: cfg}
}

// SetPower attaches the power controller once it exists; it is built on
// top of this handler.
func (h *Handler) SetPower(p PowerCycler) { h.cfg.Power = p }

// Tx runs one transaction and starts recovery on a lockup signature.
func (h *Handler) Tx(addr uint16, w, r []byte) error {
	err := h.bus.Tx(addr, w, r)
	if h.recovering {
		return err
	}
	switch errcode.MapDriverErr(err) {
	case errcode.BusStuck:
		h.stuck = true
		h.recover("tx reported stuck")
	case errcode.Timeout:
		h.timeouts++
		if h.timeouts >= h.cfg.StuckAfter || h.LinesStuck() {
			h.stuck = true
			h.recover("repeated timeouts")
		}
	default:
		// ack or nack: the bus is moving
		h.timeouts = 0
		h.stuck = false
	}
	return err
}

// LinesStuck reports whether either line is held low while idle. Without
// pins it is always false.
func (h *Handler) LinesStuck() bool {
	if h.cfg.SDA == nil || h.cfg.SCL == nil {
		return false
	}
	return !h.cfg.SDA.Get() || !h.cfg.SCL.Get()
}

// Service checks the idle lines and recovers if needed. It returns whether
// the hardware is believed healthy.
func (h *Handler) Service() bool {
	switch {
	case h.LinesStuck():
		h.stuck = true
		h.recover("lines held low")
	case h.cfg.SDA != nil && h.cfg.SCL != nil:
		h.stuck = false
	}
	return !h.stuck
}

// OK reports the last known hardware state.
func (h *Handler) OK() bool { return !h.stuck }

// Recoveries counts recovery attempts.
func (h *Handler) Recoveries() int { return h.recoveries }

func (h *Handler) recover(reason string) {
	h.recovering = true
	defer func() { h.recovering = false }()
	h.recoveries++
	h.timeouts = 0
	h.cfg.Log.Warn("bus stuck, recovering", "reason", reason, "attempt", h.recoveries)

	if h.cfg.SDA != nil && h.cfg.SCL != nil {
		h.clockOut()
		if h.cfg.Reinit != nil {
			h.cfg.Reinit()
		}
		if !h.LinesStuck() {
			h.stuck = false
			h.cfg.Log.Info("bus released by clocking")
			return
		}
	}
	if h.cfg.Power != nil && h.cfg.Power.Configured() {
		now := time.Now()
		h.cfg.Power.PowerCycleSlot(0, now)
		// rails go off before the hiatus starts; they come back on during it
		h.cfg.Power.Flush(now)
		if h.cfg.Hiatus != nil {
			h.cfg.Hiatus(h.cfg.HiatusFor)
		}
		h.cfg.Log.Warn("bus power cycled", "hiatus", h.cfg.HiatusFor)
	}
}

// clockOut pulses SCL until the slave releases SDA, then issues a STOP.
func (h *Handler) clockOut() {
	sda, scl := h.cfg.SDA, h.cfg.SCL
	_ = sda.ConfigureInput(platform.PullUp)
	_ = scl.ConfigureOutput(true)
	for i := 0; i < recoveryClocks && !sda.Get(); i++ {
		scl.Set(false)
		time.Sleep(halfClock)
		scl.Set(true)
		time.Sleep(halfClock)
	}
	// STOP: SDA rises while SCL is high
	_ = sda.ConfigureOutput(false)
	time.Sleep(halfClock)
	sda.Set(true)
	_ = sda.ConfigureInput(platform.PullUp)
	_ = scl.ConfigureInput(platform.PullUp)
}
