package platform

import (
	"errors"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"devicebus-go/errcode"
	"devicebus-go/types"
)

// ErrNack is returned by SimBus when nothing acknowledges the address.
var ErrNack = errors.New("i2c: nack")

// SimDevice is one emulated peripheral. Reads return the register selected
// by the first written byte (or the last selected register when nothing is
// written). Multi-byte writes are recorded.
type SimDevice struct {
	Regs  map[byte][]byte
	Fail  bool          // nack everything
	Nack  map[byte]bool // registers whose selection is not acknowledged
	Hang  time.Duration // block each Tx this long
	OnTx  func(w []byte)
	sel   byte
	write [][]byte
}

type simMux struct {
	base uint8 // first slot
	mask byte
}

// TxRecord is one transaction seen by SimBus.
type TxRecord struct {
	Addr uint16
	W    []byte
	Rn   int
	Err  error
	At   time.Time
}

// SimBus emulates a multi-drop bus with channel multiplexers. It implements
// drivers.I2C.
type SimBus struct {
	mu     sync.Mutex
	devs   map[types.Addr]*SimDevice
	muxes  map[uint16]*simMux
	log    []TxRecord
	logCap int
	counts map[uint16]int
	stuck  bool
	clocks int // SCL pulses needed to free a stuck bus, 0 = never
	sda    *FakePin
	scl    *FakePin
}

var _ drivers.I2C = (*SimBus)(nil)

func NewSimBus() *SimBus {
	return &SimBus{
		devs:   make(map[types.Addr]*SimDevice),
		muxes:  make(map[uint16]*simMux),
		counts: make(map[uint16]int),
		logCap: 4096,
	}
}

// AddDevice places d at a. It returns d for chaining.
func (s *SimBus) AddDevice(a types.Addr, d *SimDevice) *SimDevice {
	if d.Regs == nil {
		d.Regs = make(map[byte][]byte)
	}
	s.mu.Lock()
	s.devs[a] = d
	s.mu.Unlock()
	return d
}

// RemoveDevice unplugs the device at a.
func (s *SimBus) RemoveDevice(a types.Addr) {
	s.mu.Lock()
	delete(s.devs, a)
	s.mu.Unlock()
}

// Device returns the device at a.
func (s *SimBus) Device(a types.Addr) *SimDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devs[a]
}

// SetFail makes the device at a nack everything (or stop doing so).
func (s *SimBus) SetFail(a types.Addr, fail bool) {
	s.mu.Lock()
	if d := s.devs[a]; d != nil {
		d.Fail = fail
	}
	s.mu.Unlock()
}

// SetReg replaces the contents of one device register.
func (s *SimBus) SetReg(a types.Addr, reg byte, v []byte) {
	s.mu.Lock()
	if d := s.devs[a]; d != nil {
		d.Regs[reg] = append([]byte(nil), v...)
	}
	s.mu.Unlock()
}

// AddMux places an 8-channel multiplexer at addr serving slots
// firstSlot..firstSlot+7.
func (s *SimBus) AddMux(addr uint16, firstSlot uint8) {
	s.mu.Lock()
	s.muxes[addr] = &simMux{base: firstSlot}
	s.mu.Unlock()
}

// MuxMask returns the channel mask last written to the mux at addr.
func (s *SimBus) MuxMask(addr uint16) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.muxes[addr]; m != nil {
		return m.mask
	}
	return 0
}

// SetStuck holds SDA low until clocks SCL pulses are seen (0: until
// cleared by SetStuck(false)).
func (s *SimBus) SetStuck(stuck bool, clocks int) {
	s.mu.Lock()
	s.stuck = stuck
	s.clocks = clocks
	s.mu.Unlock()
}

// Stuck reports the emulated lockup state.
func (s *SimBus) Stuck() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stuck
}

// Lines returns pins reflecting the emulated bus: SDA reads low while stuck,
// pulses on SCL count towards freeing it.
func (s *SimBus) Lines(sdaN, sclN int) (*FakePin, *FakePin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sda == nil {
		s.sda = NewFakePin(sdaN)
		s.sda.read = func() bool { return !s.Stuck() }
		s.scl = NewFakePin(sclN)
		s.scl.read = func() bool { return true }
		s.scl.onSet = func(level bool) {
			if !level {
				return
			}
			s.mu.Lock()
			if s.stuck && s.clocks > 0 {
				s.clocks--
				if s.clocks == 0 {
					s.stuck = false
				}
			}
			s.mu.Unlock()
		}
	}
	return s.sda, s.scl
}

// TxCount returns the number of transactions addressed to addr.
func (s *SimBus) TxCount(addr uint16) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[addr]
}

// Log returns a copy of the transaction log.
func (s *SimBus) Log() []TxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TxRecord(nil), s.log...)
}

// Writes returns the multi-byte writes seen by the device at a.
func (s *SimBus) Writes(a types.Addr) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.devs[a]; d != nil {
		out := make([][]byte, len(d.write))
		copy(out, d.write)
		return out
	}
	return nil
}

func (s *SimBus) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	s.counts[addr]++
	hang, err := s.txLocked(addr, w, r)
	rec := TxRecord{Addr: addr, W: append([]byte(nil), w...), Rn: len(r), Err: err, At: time.Now()}
	if len(s.log) >= s.logCap {
		s.log = s.log[1:]
	}
	s.log = append(s.log, rec)
	s.mu.Unlock()
	if hang > 0 {
		time.Sleep(hang)
	}
	return err
}

// caller holds s.mu
func (s *SimBus) txLocked(addr uint16, w, r []byte) (time.Duration, error) {
	if s.stuck {
		return 0, errcode.BusStuck
	}
	if m := s.muxes[addr]; m != nil {
		if len(w) == 1 {
			m.mask = w[0]
		}
		for i := range r {
			r[i] = m.mask
		}
		return 0, nil
	}
	d := s.responderLocked(addr)
	if d == nil || d.Fail || (len(w) > 0 && d.Nack[w[0]]) {
		return 0, ErrNack
	}
	if d.OnTx != nil {
		d.OnTx(w)
	}
	if len(w) > 0 {
		d.sel = w[0]
	}
	if len(w) > 1 {
		d.write = append(d.write, append([]byte(nil), w...))
	}
	if len(r) > 0 {
		src := d.Regs[d.sel]
		for i := range r {
			if i < len(src) {
				r[i] = src[i]
			} else {
				r[i] = 0
			}
		}
	}
	return d.Hang, nil
}

// caller holds s.mu
func (s *SimBus) responderLocked(addr uint16) *SimDevice {
	if d := s.devs[types.Addr{Addr: addr}]; d != nil {
		return d
	}
	for _, m := range s.muxes {
		if m.mask == 0 {
			continue
		}
		for ch := uint8(0); ch < 8; ch++ {
			if m.mask&(1<<ch) == 0 {
				continue
			}
			if d := s.devs[types.Addr{Addr: addr, Slot: m.base + ch}]; d != nil {
				return d
			}
		}
	}
	return nil
}
