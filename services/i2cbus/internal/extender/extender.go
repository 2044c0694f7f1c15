// Package extender maps logical slots onto channels of bus multiplexers
// sitting on the root bus.
//
// Slot numbering: slot = extenderIndex*ChannelsPerExtender + channel + 1,
// where extenderIndex counts from MinAddr. Slot 0 is the root bus.
package extender

import (
	"log/slog"

	"tinygo.org/x/drivers"

	"devicebus-go/errcode"
	"devicebus-go/types"
	"devicebus-go/x/mathx"
)

const (
	ChannelsPerExtender = 8
	DefaultMinAddr      = 0x70
	DefaultMaxAddr      = 0x77

	allOff = 0x00
)

type Config struct {
	MinAddr uint16
	MaxAddr uint16
	Log     *slog.Logger
}

type extender struct {
	addr     uint16
	online   bool
	needInit bool
	mask     byte
}

// Manager caches the active channel so consecutive same-slot transactions
// do not re-select. Bus goroutine only.
type Manager struct {
	bus    drivers.I2C
	ext    []extender
	active int // index into ext, -1 when no channel is on
	log    *slog.Logger
}

func New(cfg Config, bus drivers.I2C) *Manager {
	if cfg.MinAddr == 0 {
		cfg.MinAddr = DefaultMinAddr
	}
	if cfg.MaxAddr == 0 {
		cfg.MaxAddr = DefaultMaxAddr
	}
	if cfg.MaxAddr < cfg.MinAddr {
		cfg.MinAddr, cfg.MaxAddr = cfg.MaxAddr, cfg.MinAddr
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	m := &Manager{bus: bus, active: -1, log: cfg.Log}
	for a := cfg.MinAddr; a <= cfg.MaxAddr; a++ {
		m.ext = append(m.ext, extender{addr: a})
	}
	return m
}

// IsExtenderAddr reports whether addr is in the extender range.
func (m *Manager) IsExtenderAddr(addr uint16) bool {
	if len(m.ext) == 0 {
		return false
	}
	return mathx.Between(addr, m.ext[0].addr, m.ext[len(m.ext)-1].addr)
}

// Addrs lists the extender range.
func (m *Manager) Addrs() []uint16 {
	out := make([]uint16, len(m.ext))
	for i, e := range m.ext {
		out[i] = e.addr
	}
	return out
}

// SlotFor returns the slot of an extender channel.
func (m *Manager) SlotFor(extAddr uint16, channel int) uint8 {
	return uint8(int(extAddr-m.ext[0].addr)*ChannelsPerExtender + channel + 1)
}

// OnPresence tracks extender presence from root-bus probe transitions. An
// extender coming online is re-initialised on the next Service call.
func (m *Manager) OnPresence(addr uint16, online bool) {
	if !m.IsExtenderAddr(addr) {
		return
	}
	i := int(addr - m.ext[0].addr)
	e := &m.ext[i]
	if e.online == online {
		return
	}
	e.online = online
	e.needInit = online
	e.mask = allOff
	if m.active == i {
		m.active = -1
	}
	m.log.Debug("extender presence", "addr", addr, "online", online)
}

// Service writes all-off to extenders needing initialisation.
func (m *Manager) Service() {
	for i := range m.ext {
		e := &m.ext[i]
		if !e.online || !e.needInit {
			continue
		}
		if err := m.bus.Tx(e.addr, []byte{allOff}, nil); err != nil {
			m.log.Warn("extender init failed", "addr", e.addr, "err", err)
			continue
		}
		e.needInit = false
		e.mask = allOff
		if m.active == i {
			m.active = -1
		}
	}
}

// OnlineCount returns the number of online extenders.
func (m *Manager) OnlineCount() int {
	n := 0
	for _, e := range m.ext {
		if e.online {
			n++
		}
	}
	return n
}

// Slots lists every slot reachable through an online extender.
func (m *Manager) Slots() []uint8 {
	var out []uint8
	for _, e := range m.ext {
		if !e.online {
			continue
		}
		for ch := 0; ch < ChannelsPerExtender; ch++ {
			if s := m.SlotFor(e.addr, ch); s <= types.SlotMax {
				out = append(out, s)
			}
		}
	}
	return out
}

// Select makes slot the only active channel. slot 0 behaves as SelectRoot.
// The select write is skipped when the cache already matches.
func (m *Manager) Select(slot uint8) errcode.Code {
	if slot == 0 {
		return m.SelectRoot()
	}
	idx := int(slot-1) / ChannelsPerExtender
	if idx >= len(m.ext) || !m.ext[idx].online {
		return errcode.SlotUnreachable
	}
	mask := byte(1) << ((slot - 1) % ChannelsPerExtender)
	if m.active == idx && m.ext[idx].mask == mask && !m.ext[idx].needInit {
		return errcode.OK
	}
	if m.active >= 0 && m.active != idx {
		m.disable(m.active)
	}
	e := &m.ext[idx]
	if err := m.bus.Tx(e.addr, []byte{mask}, nil); err != nil {
		e.needInit = true
		e.mask = allOff
		m.active = -1
		m.log.Debug("extender select failed", "addr", e.addr, "slot", slot, "err", err)
		return errcode.SlotUnreachable
	}
	e.needInit = false
	e.mask = mask
	m.active = idx
	return errcode.OK
}

// SelectRoot turns off whichever channel is active, isolating the root bus.
func (m *Manager) SelectRoot() errcode.Code {
	if m.active >= 0 {
		m.disable(m.active)
	}
	return errcode.OK
}

func (m *Manager) disable(i int) {
	e := &m.ext[i]
	if err := m.bus.Tx(e.addr, []byte{allOff}, nil); err != nil {
		e.needInit = true
		m.log.Debug("extender disable failed", "addr", e.addr, "err", err)
	}
	e.mask = allOff
	if m.active == i {
		m.active = -1
	}
}

// Reset forgets all extender state.
func (m *Manager) Reset() {
	for i := range m.ext {
		m.ext[i].online = false
		m.ext[i].needInit = false
		m.ext[i].mask = allOff
	}
	m.active = -1
}
