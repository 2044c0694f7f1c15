// Package status is the source of truth for per-address presence, poll
// buffers, bar state and the bus operational status.
//
// All mutating methods are called from the bus goroutine only. Query methods
// may be called from anywhere and return copies.
package status

import (
	"sort"
	"sync"
	"time"

	"devicebus-go/types"
)

// Listener receives notifications from the bus goroutine. Implementations
// must not block.
type Listener interface {
	Element(types.StatusEvent)
	BusStatus(types.BusStatusEvent)
}

// Config holds debounce and barring thresholds.
type Config struct {
	Bus          string
	OKMax        int // successes needed to go online
	FailMax      int // failures needed to go offline
	BarThreshold int // consecutive failures before barring
	BarDuration  time.Duration
	LockupDetect *types.Addr
}

const (
	DefaultOKMax        = 1
	DefaultFailMax      = 3
	DefaultBarThreshold = 5
	DefaultBarDuration  = time.Second
)

type record struct {
	online     bool
	onceOnline bool
	spurious   bool // still-offline already reported
	okCount    int
	failCount  int

	devType   string
	identDone bool

	polls   []types.PollResult
	pollCap int

	presenceMs int64
	pollMs     int64
}

type bar struct {
	fails int
	until time.Time
}

// Tracker holds all per-address state of one bus.
type Tracker struct {
	mu   sync.RWMutex
	cfg  Config
	recs map[types.Addr]*record
	bars map[types.Addr]*bar

	lastPresenceMs int64
	lastPollMs     int64

	hwOK      bool
	busStatus types.BusStatus

	listener Listener
	pending  []types.StatusEvent
}

// New creates a tracker. l may be nil.
func New(cfg Config, l Listener) *Tracker {
	if cfg.OKMax <= 0 {
		cfg.OKMax = DefaultOKMax
	}
	if cfg.FailMax <= 0 {
		cfg.FailMax = DefaultFailMax
	}
	if cfg.BarThreshold <= 0 {
		cfg.BarThreshold = DefaultBarThreshold
	}
	if cfg.BarDuration <= 0 {
		cfg.BarDuration = DefaultBarDuration
	}
	return &Tracker{
		cfg:      cfg,
		recs:     make(map[types.Addr]*record),
		bars:     make(map[types.Addr]*bar),
		hwOK:     true,
		listener: l,
	}
}

// FailMax exposes the offline debounce threshold (the scanner repeats sweeps
// FailMax+1 times).
func (t *Tracker) FailMax() int { return t.cfg.FailMax }

// -----------------------------------------------------------------------------
// Presence
// -----------------------------------------------------------------------------

// Observe feeds one presence observation. It returns the transition, or 0 if
// none occurred. Events are delivered to the listener before returning.
func (t *Tracker) Observe(a types.Addr, ok bool, now time.Time) types.Presence {
	t.mu.Lock()
	p := t.observeLocked(a, ok, now.UnixMilli())
	evs := t.takePendingLocked()
	t.mu.Unlock()
	t.emit(evs)
	return p
}

// caller holds t.mu
func (t *Tracker) observeLocked(a types.Addr, ok bool, nowMs int64) types.Presence {
	r := t.recs[a]
	if r == nil {
		if !ok {
			return 0
		}
		r = &record{}
		t.recs[a] = r
	}
	if ok {
		r.failCount = 0
		r.spurious = false
		if r.online {
			return 0
		}
		r.okCount++
		if r.okCount < t.cfg.OKMax {
			return 0
		}
		r.online, r.onceOnline = true, true
		t.changedLocked(a, r, types.Online, nowMs)
		return types.Online
	}

	r.okCount = 0
	if r.failCount < t.cfg.FailMax {
		r.failCount++
	}
	if r.failCount < t.cfg.FailMax {
		return 0
	}
	switch {
	case r.online:
		r.online = false
		r.identDone = false
		r.devType = ""
		t.changedLocked(a, r, types.Offline, nowMs)
		return types.Offline
	case !r.onceOnline && !r.spurious:
		r.spurious = true
		t.changedLocked(a, r, types.StillOffline, nowMs)
		return types.StillOffline
	}
	return 0
}

// caller holds t.mu
func (t *Tracker) changedLocked(a types.Addr, r *record, p types.Presence, nowMs int64) {
	r.presenceMs = nowMs
	t.lastPresenceMs = nowMs
	t.pending = append(t.pending, types.StatusEvent{
		Bus:      t.cfg.Bus,
		Addr:     a,
		Presence: p,
		DevType:  r.devType,
		TS:       nowMs,
	})
}

func (t *Tracker) takePendingLocked() []types.StatusEvent {
	evs := t.pending
	t.pending = nil
	return evs
}

func (t *Tracker) emit(evs []types.StatusEvent) {
	if t.listener == nil {
		return
	}
	for _, e := range evs {
		t.listener.Element(e)
	}
}

// IsOnline reports the debounced presence of a.
func (t *Tracker) IsOnline(a types.Addr) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r := t.recs[a]
	return r != nil && r.online
}

// Known reports whether a has ever responded.
func (t *Tracker) Known(a types.Addr) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.recs[a] != nil
}

// Addresses lists known addresses in composite order.
func (t *Tracker) Addresses(onlyOnline bool) []types.Addr {
	t.mu.RLock()
	out := make([]types.Addr, 0, len(t.recs))
	for a, r := range t.recs {
		if onlyOnline && !r.online {
			continue
		}
		out = append(out, a)
	}
	t.mu.RUnlock()
	sortAddrs(out)
	return out
}

// OnlineOnRoot reports whether addr is online on slot 0. Used to skip the
// same address behind extenders.
func (t *Tracker) OnlineOnRoot(addr uint16) bool {
	return t.IsOnline(types.Addr{Addr: addr})
}

// -----------------------------------------------------------------------------
// Identification
// -----------------------------------------------------------------------------

// NeedsIdent reports whether a is online and has not been through
// identification since it came online.
func (t *Tracker) NeedsIdent(a types.Addr) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r := t.recs[a]
	return r != nil && r.online && !r.identDone
}

// SetIdent records the identification outcome. devType "" means no match.
// pollCap sizes the poll buffer.
func (t *Tracker) SetIdent(a types.Addr, devType string, pollCap int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.recs[a]
	if r == nil {
		return
	}
	r.identDone = true
	r.devType = devType
	if pollCap < 0 {
		pollCap = 0
	}
	r.pollCap = pollCap
	if len(r.polls) > pollCap {
		r.polls = append([]types.PollResult(nil), r.polls[len(r.polls)-pollCap:]...)
	}
}

// DevType returns the identified type of a, or "".
func (t *Tracker) DevType(a types.Addr) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r := t.recs[a]; r != nil {
		return r.devType
	}
	return ""
}

// -----------------------------------------------------------------------------
// Poll results
// -----------------------------------------------------------------------------

// AddPollResult appends to the bounded FIFO of a, evicting the oldest.
func (t *Tracker) AddPollResult(a types.Addr, res types.PollResult) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.recs[a]
	if r == nil || r.pollCap == 0 {
		return false
	}
	if len(r.polls) >= r.pollCap {
		copy(r.polls, r.polls[1:])
		r.polls = r.polls[:len(r.polls)-1]
	}
	r.polls = append(r.polls, res)
	r.pollMs = res.TS
	t.lastPollMs = res.TS
	return true
}

// PollResults returns the newest max stored results of a, oldest first.
// max <= 0 returns all.
func (t *Tracker) PollResults(a types.Addr, max int) []types.PollResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r := t.recs[a]
	if r == nil {
		return nil
	}
	src := r.polls
	if max > 0 && len(src) > max {
		src = src[len(src)-max:]
	}
	out := make([]types.PollResult, len(src))
	for i, p := range src {
		out[i] = types.PollResult{TS: p.TS, Data: append([]byte(nil), p.Data...)}
	}
	return out
}

// LastUpdate returns the latest presence and/or poll-data change in ms.
func (t *Tracker) LastUpdate(presence, pollData bool) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var v int64
	if presence {
		v = t.lastPresenceMs
	}
	if pollData && t.lastPollMs > v {
		v = t.lastPollMs
	}
	return v
}

// -----------------------------------------------------------------------------
// Barring
// -----------------------------------------------------------------------------

// Barred reports whether access to a is currently suppressed.
func (t *Tracker) Barred(a types.Addr, now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b := t.bars[a]
	return b != nil && now.Before(b.until)
}

// RecordAccess counts consecutive failures of a and bars it once the
// threshold is reached. Success clears the count.
func (t *Tracker) RecordAccess(a types.Addr, ok bool, now time.Time) (barred bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.bars[a]
	if ok {
		if b != nil {
			b.fails = 0
		}
		return false
	}
	if b == nil {
		b = &bar{}
		t.bars[a] = b
	}
	b.fails++
	if b.fails >= t.cfg.BarThreshold {
		b.fails = 0
		b.until = now.Add(t.cfg.BarDuration)
		return true
	}
	return false
}

// BarFor suppresses access to a for d from now (request-driven bar).
func (t *Tracker) BarFor(a types.Addr, d time.Duration, now time.Time) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.bars[a]
	if b == nil {
		b = &bar{}
		t.bars[a] = b
	}
	if u := now.Add(d); u.After(b.until) {
		b.until = u
	}
}

// -----------------------------------------------------------------------------
// Bus operational status
// -----------------------------------------------------------------------------

// SetHardwareOK records the stuck-bus handler's view of the lines.
func (t *Tracker) SetHardwareOK(ok bool) {
	t.mu.Lock()
	t.hwOK = ok
	t.mu.Unlock()
}

// ServiceBusStatus recomputes the bus status and notifies on change.
func (t *Tracker) ServiceBusStatus(now time.Time) types.BusStatus {
	t.mu.Lock()
	st := t.busStatusLocked()
	changed := st != t.busStatus
	t.busStatus = st
	t.mu.Unlock()
	if changed && t.listener != nil {
		t.listener.BusStatus(types.BusStatusEvent{Bus: t.cfg.Bus, Status: st, TS: now.UnixMilli()})
	}
	return st
}

// caller holds t.mu
func (t *Tracker) busStatusLocked() types.BusStatus {
	if t.cfg.LockupDetect != nil {
		r := t.recs[*t.cfg.LockupDetect]
		switch {
		case r == nil:
			return types.BusUnknown
		case r.online:
			return types.BusOK
		default:
			return types.BusFailing
		}
	}
	if t.hwOK {
		return types.BusOK
	}
	return types.BusFailing
}

// BusStatus returns the last computed status.
func (t *Tracker) BusStatus() types.BusStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.busStatus
}

// -----------------------------------------------------------------------------
// Snapshot / clear
// -----------------------------------------------------------------------------

// Snapshot copies every known address with its latest maxPolls results.
func (t *Tracker) Snapshot(maxPolls int) []types.DeviceState {
	t.mu.RLock()
	out := make([]types.DeviceState, 0, len(t.recs))
	for a, r := range t.recs {
		polls := r.polls
		if maxPolls > 0 && len(polls) > maxPolls {
			polls = polls[len(polls)-maxPolls:]
		}
		d := types.DeviceState{Addr: a, Online: r.online, DevType: r.devType}
		for _, p := range polls {
			d.Polls = append(d.Polls, types.PollResult{TS: p.TS, Data: append([]byte(nil), p.Data...)})
		}
		out = append(out, d)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Addr.Composite() < out[j].Addr.Composite() })
	return out
}

// Clear drops every record and bar.
func (t *Tracker) Clear(now time.Time) {
	t.mu.Lock()
	t.recs = make(map[types.Addr]*record)
	t.bars = make(map[types.Addr]*bar)
	t.lastPresenceMs = now.UnixMilli()
	t.mu.Unlock()
}

func sortAddrs(a []types.Addr) {
	sort.Slice(a, func(i, j int) bool { return a[i].Composite() < a[j].Composite() })
}
