// Package scan decides which presence probes the bus should send next.
//
// After start (or an explicit request) the scanner sweeps extender addresses,
// then the root bus, then every slot behind an online extender. Each sweep
// phase repeats FailMax+1 times so presence debouncing can settle. Afterwards
// it optionally falls back to a slow background scan of one probe per period.
package scan

import (
	"time"

	"devicebus-go/types"
	"devicebus-go/x/mathx"
)

type Phase uint8

const (
	Idle Phase = iota
	Extenders
	MainBus
	Fast
	Slow
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Extenders:
		return "extenders"
	case MainBus:
		return "main_bus"
	case Fast:
		return "fast"
	case Slow:
		return "slow"
	default:
		return "unknown"
	}
}

// Topology is the scanner's view of the bus.
type Topology interface {
	ExtenderAddrs() []uint16
	Slots() []uint8
	OnlineOnRoot(addr uint16) bool
	SlotReady(slot uint8) bool
}

type Config struct {
	FailMax        int
	SlowScanPeriod time.Duration
	FastScanMax    time.Duration
	Boost          []uint16 // interleaved into the slow scan
	BoostEvery     int      // one boost probe per this many slow probes
	SlowEnabled    bool
	MinAddr        uint16
	MaxAddr        uint16
}

type Scanner struct {
	cfg  Config
	topo Topology

	phase     Phase
	pass      int
	targets   []types.Addr
	idx       int
	fastStart time.Time

	slowTargets []types.Addr
	slowIdx     int
	boostIdx    int
	slowCount   int
	lastSlow    time.Time
}

func New(cfg Config, topo Topology) *Scanner {
	cfg.FailMax = mathx.OrDefault(cfg.FailMax, 3)
	cfg.SlowScanPeriod = mathx.OrDefault(cfg.SlowScanPeriod, 10*time.Millisecond)
	cfg.FastScanMax = mathx.OrDefault(cfg.FastScanMax, 5*time.Second)
	cfg.BoostEvery = mathx.OrDefault(cfg.BoostEvery, 4)
	if cfg.MinAddr == 0 && cfg.MaxAddr == 0 {
		cfg.MinAddr, cfg.MaxAddr = types.ScanMin, types.ScanMax
	}
	s := &Scanner{cfg: cfg, topo: topo}
	s.enter(Extenders, time.Time{})
	return s
}

func (s *Scanner) Phase() Phase { return s.phase }

// Sweeping reports whether a fast sweep phase is running.
func (s *Scanner) Sweeping() bool {
	return s.phase == Extenders || s.phase == MainBus || s.phase == Fast
}

// Request sets the slow-scan flag and, if requestFast, restarts the sweep.
func (s *Scanner) Request(enableSlow, requestFast bool, now time.Time) {
	s.cfg.SlowEnabled = enableSlow
	switch {
	case requestFast:
		s.enter(Extenders, now)
	case s.phase == Slow && !enableSlow:
		s.enter(Idle, now)
	case s.phase == Idle && enableSlow:
		s.enter(Slow, now)
	}
}

// SweepSlots restarts at the slot sweep, e.g. after an extender appears.
func (s *Scanner) SweepSlots(now time.Time) {
	if s.phase == Extenders || s.phase == MainBus {
		return
	}
	s.enter(Fast, now)
}

// Next returns up to max probe requests due now.
func (s *Scanner) Next(now time.Time, max int) []types.Request {
	if max <= 0 {
		return nil
	}
	var out []types.Request
	for len(out) < max {
		switch s.phase {
		case Idle:
			return out
		case Slow:
			if a, ok := s.nextSlow(now); ok {
				out = append(out, probe(a, types.KindSlowScan))
			}
			return out
		}
		if s.phase == Fast && now.Sub(s.fastStart) > s.cfg.FastScanMax {
			s.finishSweep(now)
			continue
		}
		if s.idx >= len(s.targets) {
			s.pass++
			if s.pass > s.cfg.FailMax {
				s.advance(now)
				continue
			}
			s.targets = s.sweepTargets(s.phase)
			s.idx = 0
			if len(s.targets) == 0 {
				s.advance(now)
				continue
			}
		}
		out = append(out, probe(s.targets[s.idx], types.KindFastScan))
		s.idx++
	}
	return out
}

func probe(a types.Addr, kind types.RequestKind) types.Request {
	return types.Request{Addr: a, Kind: kind}
}

func (s *Scanner) enter(p Phase, now time.Time) {
	s.phase = p
	s.pass = 0
	s.idx = 0
	s.targets = s.sweepTargets(p)
	if p == Fast {
		s.fastStart = now
	}
	if p == Slow {
		s.slowTargets = nil
		s.slowIdx = 0
	}
}

func (s *Scanner) advance(now time.Time) {
	switch s.phase {
	case Extenders:
		s.enter(MainBus, now)
	case MainBus:
		if len(s.topo.Slots()) > 0 {
			s.enter(Fast, now)
			return
		}
		s.finishSweep(now)
	default:
		s.finishSweep(now)
	}
}

func (s *Scanner) finishSweep(now time.Time) {
	if s.cfg.SlowEnabled {
		s.enter(Slow, now)
		return
	}
	s.enter(Idle, now)
}

func (s *Scanner) isExtender(addr uint16) bool {
	for _, e := range s.topo.ExtenderAddrs() {
		if e == addr {
			return true
		}
	}
	return false
}

func (s *Scanner) sweepTargets(p Phase) []types.Addr {
	var out []types.Addr
	switch p {
	case Extenders:
		for _, e := range s.topo.ExtenderAddrs() {
			out = append(out, types.Addr{Addr: e})
		}
	case MainBus:
		for a := s.cfg.MinAddr; a <= s.cfg.MaxAddr; a++ {
			if !s.isExtender(a) {
				out = append(out, types.Addr{Addr: a})
			}
		}
	case Fast:
		for _, slot := range s.topo.Slots() {
			out = s.appendSlot(out, slot)
		}
	}
	return out
}

// appendSlot adds every probeable address behind slot. Addresses that are
// extenders or already answer on the root bus are skipped: the root device
// would answer for them.
func (s *Scanner) appendSlot(out []types.Addr, slot uint8) []types.Addr {
	if !s.topo.SlotReady(slot) {
		return out
	}
	for a := s.cfg.MinAddr; a <= s.cfg.MaxAddr; a++ {
		if s.isExtender(a) || s.topo.OnlineOnRoot(a) {
			continue
		}
		out = append(out, types.Addr{Addr: a, Slot: slot})
	}
	return out
}

func (s *Scanner) nextSlow(now time.Time) (types.Addr, bool) {
	if !s.lastSlow.IsZero() && now.Sub(s.lastSlow) < s.cfg.SlowScanPeriod {
		return types.Addr{}, false
	}
	s.slowCount++
	if len(s.cfg.Boost) > 0 && s.slowCount%s.cfg.BoostEvery == 0 {
		if a, ok := s.nextBoost(); ok {
			s.lastSlow = now
			return a, true
		}
	}
	if s.slowIdx >= len(s.slowTargets) {
		s.slowTargets = s.slowTargets[:0]
		for a := s.cfg.MinAddr; a <= s.cfg.MaxAddr; a++ {
			s.slowTargets = append(s.slowTargets, types.Addr{Addr: a})
		}
		for _, slot := range s.topo.Slots() {
			s.slowTargets = s.appendSlot(s.slowTargets, slot)
		}
		s.slowIdx = 0
		if len(s.slowTargets) == 0 {
			return types.Addr{}, false
		}
	}
	a := s.slowTargets[s.slowIdx]
	s.slowIdx++
	s.lastSlow = now
	return a, true
}

// nextBoost cycles through boost addresses on the root bus and every
// ready slot.
func (s *Scanner) nextBoost() (types.Addr, bool) {
	slots := append([]uint8{0}, s.topo.Slots()...)
	n := len(s.cfg.Boost) * len(slots)
	for tries := 0; tries < n; tries++ {
		i := s.boostIdx % n
		s.boostIdx++
		a := types.Addr{Addr: s.cfg.Boost[i%len(s.cfg.Boost)], Slot: slots[i/len(s.cfg.Boost)]}
		if a.Slot != 0 && (!s.topo.SlotReady(a.Slot) || s.topo.OnlineOnRoot(a.Addr)) {
			continue
		}
		return a, true
	}
	return types.Addr{}, false
}
