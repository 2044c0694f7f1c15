// Package i2cbus runs one management engine per configured multi-drop bus:
// discovery, identification, polling and fault handling on a dedicated
// goroutine, with a thread-safe request and query surface.
package i2cbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"tinygo.org/x/drivers"

	"devicebus-go/errcode"
	"devicebus-go/services/i2cbus/internal/accessor"
	"devicebus-go/services/i2cbus/internal/buserr"
	"devicebus-go/services/i2cbus/internal/devtypes"
	"devicebus-go/services/i2cbus/internal/extender"
	"devicebus-go/services/i2cbus/internal/ident"
	"devicebus-go/services/i2cbus/internal/platform"
	"devicebus-go/services/i2cbus/internal/poll"
	"devicebus-go/services/i2cbus/internal/power"
	"devicebus-go/services/i2cbus/internal/scan"
	"devicebus-go/services/i2cbus/internal/status"
	"devicebus-go/services/i2cbus/internal/stuck"
	"devicebus-go/services/i2cbus/internal/worker"
	"devicebus-go/types"
	"devicebus-go/x/mathx"
)

const (
	DefaultFreqHz        = 100_000
	MaxFreqHz            = 1_000_000
	MaxFilterLevel       = 7
	DefaultRawTimeout    = time.Second
	defaultTxTimeout     = 20 * time.Millisecond
	defaultYieldBudget   = 10 * time.Millisecond
	defaultFastYield     = 50 * time.Millisecond
	defaultYieldFor      = time.Millisecond
	defaultSlowScan      = 10 * time.Millisecond
	defaultFastScanMax   = 5 * time.Second
	defaultCycleHiatus   = time.Second
	defaultMaxInternal   = 4
	defaultQueueLen      = 32
	idleWaitMax          = 50 * time.Millisecond
	powerServiceInterval = 10 * time.Millisecond
)

// Factory opens the transaction primitive and line pins of a bus.
type Factory = platform.Factory

// RailLevel is a slot power rail setting.
type RailLevel = power.Level

const (
	RailOff = power.Off
	Rail3V3 = power.Rail3V3
	Rail5V  = power.Rail5V
)

// Options carries the collaborators of a Bus. Zero values are usable.
type Options struct {
	Factory    Factory
	Registry   *devtypes.Registry // nil disables identification
	Listener   status.Listener    // presence and bus-status events
	Log        *slog.Logger
	PollJitter time.Duration
}

type timing struct {
	txTimeout      time.Duration
	minSpacing     time.Duration
	slowScan       time.Duration
	fastScanMax    time.Duration
	yieldBudget    time.Duration
	fastYield      time.Duration
	yieldFor       time.Duration
	barDuration    time.Duration
	cycleHiatus    time.Duration
	maxInternal    int
	queueLen       int
	okMax, failMax int
	barThreshold   int
	stuckAfter     int
}

func timingFrom(c types.BusConfig) timing {
	ms := func(v int, d time.Duration) time.Duration {
		if v <= 0 {
			return d
		}
		return time.Duration(v) * time.Millisecond
	}
	t := c.Timing
	l := c.Limits
	return timing{
		txTimeout:    ms(t.TxTimeoutMs, defaultTxTimeout),
		minSpacing:   time.Duration(mathx.Clamp(t.MinTxSpacingUs, 0, 1_000_000)) * time.Microsecond,
		slowScan:     ms(t.SlowScanPeriodMs, defaultSlowScan),
		fastScanMax:  ms(t.FastScanMaxMs, defaultFastScanMax),
		yieldBudget:  ms(t.YieldBudgetMs, defaultYieldBudget),
		fastYield:    ms(t.FastScanYieldBudget, defaultFastYield),
		yieldFor:     ms(t.YieldForMs, defaultYieldFor),
		barDuration:  ms(t.BarDurationMs, status.DefaultBarDuration),
		cycleHiatus:  ms(t.PowerCycleHiatusMs, defaultCycleHiatus),
		maxInternal:  mathx.OrDefault(l.MaxInternalPerIter, defaultMaxInternal),
		queueLen:     mathx.OrDefault(l.QueueLen, defaultQueueLen),
		okMax:        mathx.OrDefault(l.OKMax, status.DefaultOKMax),
		failMax:      mathx.OrDefault(l.FailMax, status.DefaultFailMax),
		barThreshold: mathx.OrDefault(l.BarThreshold, status.DefaultBarThreshold),
		stuckAfter:   mathx.OrDefault(l.StuckAfter, stuck.DefaultStuckAfter),
	}
}

type scanRequest struct {
	slow, fast bool
}

type powerOp struct {
	slot  uint8
	cycle bool
	level power.Level
}

// Bus is one managed bus. All hardware access and all mutation of scan, poll
// and extender state happen on the worker goroutine started by Start.
type Bus struct {
	cfg     types.BusConfig
	tm      timing
	log     *slog.Logger
	session string

	owner   *txOwner
	handler *stuck.Handler
	ext     *extender.Manager
	pwr     *power.Controller
	tracker *status.Tracker
	ident   *ident.Matcher
	scanner *scan.Scanner
	poller  *poll.Scheduler
	acc     *accessor.Accessor

	mu          sync.Mutex // guards the fields below
	hiatusUntil time.Time
	hiatusLimit time.Time // latest end when held for settling rails
	scanReq     *scanRequest
	clearReq    bool
	powerOps    []powerOp

	phase     atomic.Uint32 // scan.Phase, published by the worker
	lastPower time.Time
	identQ    []types.Addr // online, awaiting identification

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	wk        *worker.Context
}

// New validates cfg and builds every subsystem. The bus does nothing until
// Start.
func New(cfg types.BusConfig, opts Options) (*Bus, error) {
	if err := validate(&cfg); err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "setup", err)
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("bus", cfg.Name)
	f := opts.Factory
	if f == nil {
		f = platform.DefaultFactory()
	}
	hw, err := f.Open(cfg)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "open", err)
	}

	tm := timingFrom(cfg)
	now := time.Now()
	b := &Bus{
		cfg:     cfg,
		tm:      tm,
		log:     log,
		session: uuid.NewString(),
		owner:   newTxOwner(hw),
	}
	sda, scl, _ := f.Lines(cfg)
	b.handler = stuck.New(&boundedI2C{o: b.owner, timeout: tm.txTimeout}, stuck.Config{
		SDA:        sda,
		SCL:        scl,
		StuckAfter: tm.stuckAfter,
		Hiatus:     b.Hiatus,
		HiatusFor:  tm.cycleHiatus,
		Reinit:     func() { b.reopen(f) },
		Log:        log,
	})
	var bus drivers.I2C = b.handler

	extCfg := extender.Config{Log: log}
	if cfg.Mux.MinAddr != nil {
		extCfg.MinAddr = cfg.Mux.MinAddr.Addr
	}
	if cfg.Mux.MaxAddr != nil {
		extCfg.MaxAddr = cfg.Mux.MaxAddr.Addr
	}
	b.ext = extender.New(extCfg, bus)
	b.pwr = power.New(cfg.Power.Ctrl, power.Timing{}, bus, log, now)
	b.handler.SetPower(b.pwr)

	b.tracker = status.New(status.Config{
		Bus:          cfg.Name,
		OKMax:        tm.okMax,
		FailMax:      tm.failMax,
		BarThreshold: tm.barThreshold,
		BarDuration:  tm.barDuration,
		LockupDetect: cfg.LockupDetect,
	}, opts.Listener)

	identOn := cfg.IdentEnable == nil || *cfg.IdentEnable
	b.ident = ident.New(opts.Registry, identOn, log)

	var boost []uint16
	for _, a := range cfg.ScanBoost {
		boost = append(boost, a.Addr)
	}
	if cfg.LockupDetect != nil {
		boost = append(boost, cfg.LockupDetect.Addr)
	}
	if opts.Registry != nil {
		boost = append(boost, opts.Registry.Addresses()...)
	}
	b.scanner = scan.New(scan.Config{
		FailMax:        tm.failMax,
		SlowScanPeriod: tm.slowScan,
		FastScanMax:    tm.fastScanMax,
		Boost:          boost,
		SlowEnabled:    true,
	}, topology{b})
	b.poller = poll.New(opts.PollJitter)
	b.acc = accessor.New(accessor.Config{
		ClientLen:    tm.queueLen,
		InternalLen:  tm.maxInternal,
		MinTxSpacing: tm.minSpacing,
	})
	b.phase.Store(uint32(b.scanner.Phase()))
	return b, nil
}

func validate(cfg *types.BusConfig) error {
	switch {
	case cfg.Name == "":
		return buserr.ErrMissingName
	case cfg.AddrBits != 0 && cfg.AddrBits != types.AddrBits:
		return fmt.Errorf("%w: %d-bit", buserr.ErrAddrMode, cfg.AddrBits)
	case cfg.SDAPin < 0 || cfg.SCLPin < 0 || cfg.SDAPin == cfg.SCLPin:
		return fmt.Errorf("%w: sda=%d scl=%d", buserr.ErrInvalidPin, cfg.SDAPin, cfg.SCLPin)
	case cfg.FreqHz > MaxFreqHz:
		return fmt.Errorf("%w: %d", buserr.ErrInvalidFreq, cfg.FreqHz)
	case cfg.FilterLevel < 0 || cfg.FilterLevel > MaxFilterLevel:
		return fmt.Errorf("%w: %d", buserr.ErrInvalidFilter, cfg.FilterLevel)
	}
	for _, p := range cfg.Power.Ctrl {
		if p.Dev != power.DevPCA9535 || p.NumSlots <= 0 || p.NumSlots > power.MaxSlots ||
			p.MinSlot <= 0 || p.MinSlot+p.NumSlots-1 > types.SlotMax {
			return fmt.Errorf("%w: %s at %s", buserr.ErrInvalidPower, p.Dev, p.Addr.String())
		}
	}
	if cfg.AddrBits == 0 {
		cfg.AddrBits = types.AddrBits
	}
	if cfg.FreqHz == 0 {
		cfg.FreqHz = DefaultFreqHz
	}
	if cfg.Type == "" {
		cfg.Type = TypeI2C
	}
	return nil
}

func (b *Bus) reopen(f platform.Factory) {
	if _, err := f.Open(b.cfg); err != nil {
		b.log.Warn("bus reinit failed", "err", err)
	}
}

// Start launches the worker goroutine. It is a no-op after the first call.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		ctx, b.cancel = context.WithCancel(ctx)
		b.wk = worker.Start(ctx, "i2cbus:"+b.cfg.Name, b.cfg.Worker, b.log, b.run)
		b.started.Store(true)
		b.log.Info("bus started", "freq", b.cfg.FreqHz, "session", b.session)
	})
}

// Close stops the worker and completes every queued request with Closed.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
			<-b.wk.Done()
		}
		now := time.Now()
		for _, r := range b.acc.Close() {
			complete(r, nil, errcode.Closed, now)
		}
		b.owner.stop()
		b.log.Info("bus closed")
	})
}

func (b *Bus) Name() string    { return b.cfg.Name }
func (b *Bus) Session() string { return b.session }

// Config returns the validated configuration.
func (b *Bus) Config() types.BusConfig { return b.cfg }

// -----------------------------------------------------------------------------
// Control surface (any goroutine)
// -----------------------------------------------------------------------------

// AddRequest queues req. It returns false when the queue is full, the bus is
// closed or the address is out of range.
func (b *Bus) AddRequest(req types.Request) bool {
	code := b.acc.Add(req)
	if code != errcode.OK {
		b.log.Debug("request rejected", "addr", req.Addr.String(), "code", string(code))
	}
	return code == errcode.OK
}

// Pause stops request processing, scanning and polling after the current
// transaction. Queued requests are kept.
func (b *Bus) Pause(p bool) { b.acc.SetPaused(p) }

func (b *Bus) Paused() bool { return b.acc.Paused() }

// Hiatus suspends bus activity for at least d. Only slot power writes go
// out during a hiatus.
func (b *Bus) Hiatus(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)
	b.mu.Lock()
	if until.After(b.hiatusUntil) {
		b.hiatusUntil = until
		b.hiatusLimit = until.Add(b.pwr.CycleTime())
	}
	b.mu.Unlock()
	b.log.Info("hiatus", "for", d)
}

// InHiatus reports whether a hiatus is active.
func (b *Bus) InHiatus() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().Before(b.hiatusUntil)
}

// RequestScan enables or disables the slow background scan and, with
// requestFast, restarts the full sweep.
func (b *Bus) RequestScan(enableSlow, requestFast bool) {
	b.mu.Lock()
	b.scanReq = &scanRequest{slow: enableSlow, fast: requestFast}
	b.mu.Unlock()
	b.acc.Poke()
}

// ClearBus forgets every device, bar and extender. Discovery restarts.
func (b *Bus) ClearBus() {
	b.mu.Lock()
	b.clearReq = true
	b.mu.Unlock()
	b.acc.Poke()
}

// PowerCycle switches the rails of slot off and back on. Slot 0 cycles every
// controlled slot and puts the bus in hiatus until the rails are stable.
// No-op without a power controller.
func (b *Bus) PowerCycle(slot uint8) {
	b.mu.Lock()
	b.powerOps = append(b.powerOps, powerOp{slot: slot, cycle: true})
	b.mu.Unlock()
	b.acc.Poke()
}

// SetRail forces the rail level of slot (0: every controlled slot).
func (b *Bus) SetRail(slot uint8, lvl RailLevel) {
	b.mu.Lock()
	b.powerOps = append(b.powerOps, powerOp{slot: slot, level: lvl})
	b.mu.Unlock()
	b.acc.Poke()
}

// ScanPhase reports the scanner phase as last seen by the worker.
func (b *Bus) ScanPhase() scan.Phase { return scan.Phase(b.phase.Load()) }

// Raw sends one transaction through the queue and waits for it. Without a
// deadline on ctx the wait is bounded by DefaultRawTimeout.
func (b *Bus) Raw(ctx context.Context, a types.Addr, w []byte, readLen int) ([]byte, error) {
	if !b.started.Load() {
		return nil, errcode.Wrap(errcode.NotInit, "raw", buserr.ErrNotStarted)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRawTimeout)
		defer cancel()
	}
	ch := make(chan types.Result, 1)
	req := types.Request{
		Addr:    a,
		Write:   append([]byte(nil), w...),
		ReadLen: readLen,
		Kind:    types.KindStd,
		Done:    func(r types.Result) { ch <- r },
	}
	if code := b.acc.Add(req); code != errcode.OK {
		return nil, errcode.New(code, "raw", a.String())
	}
	select {
	case r := <-ch:
		if !r.OK() {
			return r.Read, errcode.New(r.Code, "raw", a.String())
		}
		return r.Read, nil
	case <-ctx.Done():
		return nil, errcode.Wrap(errcode.Timeout, "raw", ctx.Err())
	}
}

// -----------------------------------------------------------------------------
// Queries (any goroutine, copies)
// -----------------------------------------------------------------------------

func (b *Bus) ElementAddresses(onlyOnline bool) []types.Addr {
	return b.tracker.Addresses(onlyOnline)
}

// PollResponses returns up to max stored poll results for a, oldest first.
func (b *Bus) PollResponses(a types.Addr, max int) []types.PollResult {
	return b.tracker.PollResults(a, max)
}

func (b *Bus) LastStatusUpdate(presence, pollData bool) int64 {
	return b.tracker.LastUpdate(presence, pollData)
}

// DeviceType returns the identified type name at a, or "".
func (b *Bus) DeviceType(a types.Addr) string { return b.tracker.DevType(a) }

func (b *Bus) BusStatus() types.BusStatus { return b.tracker.BusStatus() }

func (b *Bus) IsOperatingOK() bool { return b.tracker.BusStatus() == types.BusOK }

// Snapshot copies all device state with up to maxPolls results each
// (0 = all stored).
func (b *Bus) Snapshot(maxPolls int) types.BusSnapshot {
	return types.BusSnapshot{
		Bus:     b.cfg.Name,
		Session: b.session,
		Status:  b.tracker.BusStatus(),
		TS:      time.Now().UnixMilli(),
		Devices: b.tracker.Snapshot(maxPolls),
	}
}

// topology adapts the bus to the scanner's view. Worker goroutine only.
type topology struct{ b *Bus }

func (t topology) ExtenderAddrs() []uint16       { return t.b.ext.Addrs() }
func (t topology) Slots() []uint8                { return t.b.ext.Slots() }
func (t topology) OnlineOnRoot(addr uint16) bool { return t.b.tracker.OnlineOnRoot(addr) }
func (t topology) SlotReady(slot uint8) bool     { return t.b.pwr.IsSlotPowerStable(slot) }
