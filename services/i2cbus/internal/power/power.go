// Package power drives slot power rails through PCA9535-style port
// expanders: two active-low bits per slot, 3V3 and 5V.
package power

import (
	"log/slog"
	"time"

	"tinygo.org/x/drivers"

	"devicebus-go/errcode"
	"devicebus-go/types"
	"devicebus-go/x/timex"
)

// Level is a slot rail setting.
type Level uint8

const (
	Off Level = iota
	Rail3V3
	Rail5V
)

// SlotState is the per-slot power state machine.
type SlotState uint8

const (
	OffPermanently SlotState = iota
	OffPreInit
	OffPendingCycle
	OnWaitStable
	OnLowV
	OnHighV
)

func (s SlotState) String() string {
	switch s {
	case OffPermanently:
		return "off"
	case OffPreInit:
		return "off_pre_init"
	case OffPendingCycle:
		return "off_pending_cycle"
	case OnWaitStable:
		return "on_wait_stable"
	case OnLowV:
		return "on_3v3"
	case OnHighV:
		return "on_5v"
	default:
		return "unknown"
	}
}

const (
	DevPCA9535   = "PCA9535"
	MaxSlots     = 8
	regOutPort0  = 0x02
	regConfPort0 = 0x06
)

// Timing of the slot state machine.
type Timing struct {
	StartupOff time.Duration // hold rails off after boot
	CycleOff   time.Duration // off time during a power cycle
	Stabilize  time.Duration // settle time after switching on
}

func (t *Timing) defaults() {
	if t.StartupOff <= 0 {
		t.StartupOff = 100 * time.Millisecond
	}
	if t.CycleOff <= 0 {
		t.CycleOff = 500 * time.Millisecond
	}
	if t.Stabilize <= 0 {
		t.Stabilize = 100 * time.Millisecond
	}
}

type slot struct {
	state SlotState
	since time.Time
}

type ctrl struct {
	addr    uint16
	minSlot uint8
	slots   []slot
	reg     uint16 // both output and config registers take this value
	written uint16 // last value that reached the device
	dirty   bool
}

// Controller owns every configured expander. Bus goroutine only.
type Controller struct {
	bus   drivers.I2C
	ctrls []*ctrl
	tm    Timing
	held  bool
	log   *slog.Logger
}

// New builds a controller. Invalid entries are logged and skipped.
func New(cfg []types.PowerCtrlConfig, tm Timing, bus drivers.I2C, log *slog.Logger, now time.Time) *Controller {
	tm.defaults()
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{bus: bus, tm: tm, log: log}
	for _, e := range cfg {
		switch {
		case e.Dev != DevPCA9535:
			log.Warn("power ctrl dev invalid", "dev", e.Dev)
			continue
		case e.Addr.Addr == 0 || e.Addr.Slot != 0:
			log.Warn("power ctrl addr invalid", "addr", e.Addr.String())
			continue
		case e.MinSlot <= 0 || e.MinSlot > types.SlotMax:
			log.Warn("power ctrl minSlot invalid", "minSlot", e.MinSlot)
			continue
		case e.NumSlots <= 0 || e.NumSlots > MaxSlots:
			log.Warn("power ctrl numSlots invalid", "numSlots", e.NumSlots)
			continue
		}
		k := &ctrl{addr: e.Addr.Addr, minSlot: uint8(e.MinSlot), reg: 0xFFFF, written: 0xFFFF}
		for i := 0; i < e.NumSlots; i++ {
			k.slots = append(k.slots, slot{state: OffPreInit, since: now})
		}
		c.ctrls = append(c.ctrls, k)
	}
	return c
}

// Configured reports whether any controller exists.
func (c *Controller) Configured() bool { return len(c.ctrls) > 0 }

// IsPowerAddr reports whether addr belongs to a power controller.
func (c *Controller) IsPowerAddr(addr uint16) bool {
	for _, k := range c.ctrls {
		if k.addr == addr {
			return true
		}
	}
	return false
}

func (c *Controller) lookup(s uint8) (*ctrl, int) {
	for _, k := range c.ctrls {
		if s >= k.minSlot && int(s) < int(k.minSlot)+len(k.slots) {
			return k, int(s - k.minSlot)
		}
	}
	return nil, 0
}

// IsSlotPowerStable reports whether devices on slot can be probed. Slots
// without a controller are always stable.
func (c *Controller) IsSlotPowerStable(s uint8) bool {
	if s == 0 {
		return true
	}
	k, i := c.lookup(s)
	if k == nil {
		return true
	}
	st := k.slots[i].state
	return st == OnLowV || st == OnHighV
}

// CycleTime is the off plus settle time of one power cycle. Safe from any
// goroutine.
func (c *Controller) CycleTime() time.Duration { return c.tm.CycleOff + c.tm.Stabilize }

// Cycling reports whether any slot is between a power cycle and stable
// power.
func (c *Controller) Cycling() bool {
	for _, k := range c.ctrls {
		for _, sl := range k.slots {
			if sl.state == OffPendingCycle || sl.state == OnWaitStable {
				return true
			}
		}
	}
	return false
}

// Hold stops register writes while set. Slot timers of controllers with
// unwritten changes stand still until the hold is released.
func (c *Controller) Hold(h bool) { c.held = h }

// State returns the state of slot s.
func (c *Controller) State(s uint8) (SlotState, bool) {
	k, i := c.lookup(s)
	if k == nil {
		return 0, false
	}
	return k.slots[i].state, true
}

// PowerCycleSlot switches slot s off and back on through the state machine.
// s == 0 cycles every slot.
func (c *Controller) PowerCycleSlot(s uint8, now time.Time) {
	c.each(s, func(k *ctrl, i int) {
		k.setLevel(i, Off)
		k.slots[i] = slot{state: OffPendingCycle, since: now}
	})
}

// SetRail forces a rail level on slot s (0: all slots) and writes it at the
// next Service or Flush. Off is permanent until the next cycle.
func (c *Controller) SetRail(s uint8, lvl Level, now time.Time) {
	c.each(s, func(k *ctrl, i int) {
		k.setLevel(i, lvl)
		switch lvl {
		case Off:
			k.slots[i] = slot{state: OffPermanently, since: now}
		case Rail5V:
			k.slots[i] = slot{state: OnHighV, since: now}
		default:
			k.slots[i] = slot{state: OnWaitStable, since: now}
		}
	})
}

func (c *Controller) each(s uint8, fn func(k *ctrl, i int)) {
	if s == 0 {
		for _, k := range c.ctrls {
			for i := range k.slots {
				fn(k, i)
			}
		}
		return
	}
	if k, i := c.lookup(s); k != nil {
		fn(k, i)
	}
}

// Flush writes changed registers now.
func (c *Controller) Flush(now time.Time) {
	for _, k := range c.ctrls {
		c.write(k, now)
	}
}

// Service advances every slot state machine and writes changed registers.
// A controller advances only once its previous levels reached the device.
func (c *Controller) Service(now time.Time) {
	for _, k := range c.ctrls {
		c.write(k, now)
		if k.dirty {
			continue
		}
		for i := range k.slots {
			sl := &k.slots[i]
			switch sl.state {
			case OffPreInit:
				if timex.Expired(now, sl.since, c.tm.StartupOff) {
					k.setLevel(i, Off)
					*sl = slot{state: OffPendingCycle, since: now}
				}
			case OffPendingCycle:
				if timex.Expired(now, sl.since, c.tm.CycleOff) {
					k.setLevel(i, Rail3V3)
					*sl = slot{state: OnWaitStable, since: now}
				}
			case OnWaitStable:
				if timex.Expired(now, sl.since, c.tm.Stabilize) {
					*sl = slot{state: OnLowV, since: now}
					c.log.Debug("slot power stable", "slot", int(k.minSlot)+i)
				}
			}
		}
		c.write(k, now)
	}
}

// setLevel updates the two bits of slot i. Enabled outputs are 0 in both
// the output and the direction register.
func (k *ctrl) setLevel(i int, lvl Level) {
	var on uint16
	switch lvl {
	case Rail3V3:
		on = 0b01
	case Rail5V:
		on = 0b10
	}
	shift := uint(i * 2)
	v := (k.reg | 0b11<<shift) &^ (on << shift)
	if v != k.reg {
		k.reg = v
		k.dirty = true
	}
}

// write sends the register pair. Slots whose bits changed restart their
// off or settle time from the moment the rails actually switched.
func (c *Controller) write(k *ctrl, now time.Time) {
	if !k.dirty || c.held {
		return
	}
	lo, hi := byte(k.reg), byte(k.reg>>8)
	err := c.bus.Tx(k.addr, []byte{regOutPort0, lo, hi}, nil)
	if err == nil {
		err = c.bus.Tx(k.addr, []byte{regConfPort0, lo, hi}, nil)
	}
	if err != nil {
		c.log.Warn("power ctrl write failed", "addr", k.addr, "code", string(errcode.MapDriverErr(err)))
		return
	}
	for i := range k.slots {
		shift := uint(i * 2)
		if (k.reg^k.written)>>shift&0b11 == 0 {
			continue
		}
		if st := k.slots[i].state; st == OffPendingCycle || st == OnWaitStable {
			k.slots[i].since = now
		}
	}
	k.written = k.reg
	k.dirty = false
}

// Register returns the cached register value of the controller at addr.
func (c *Controller) Register(addr uint16) (uint16, bool) {
	for _, k := range c.ctrls {
		if k.addr == addr {
			return k.reg, true
		}
	}
	return 0, false
}
