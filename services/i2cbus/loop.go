package i2cbus

import (
	"context"
	"time"

	"devicebus-go/errcode"
	"devicebus-go/services/i2cbus/internal/poll"
	"devicebus-go/services/i2cbus/internal/scan"
	"devicebus-go/types"
	"devicebus-go/x/timex"
)

// run is the worker body. One iteration:
//
//	hiatus -> maintenance -> pop -> bar -> select slot -> Tx -> route
//	-> enqueue scan/poll work -> yield
func (b *Bus) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	var busySince time.Time

	for ctx.Err() == nil {
		now := time.Now()
		b.applyControl(now)

		paused := b.acc.Paused()
		if wait := b.hiatusLeft(now); wait > 0 {
			busySince = time.Time{}
			// rails keep switching so a power cycle completes inside the hiatus
			if b.pwr.Configured() {
				b.servicePower(now, paused)
				b.tracker.SetHardwareOK(b.handler.OK())
				b.tracker.ServiceBusStatus(now)
				wait = min(wait, powerServiceInterval)
			}
			b.sleep(ctx, timer, wait, false)
			continue
		}

		b.service(now, paused)
		if b.hiatusLeft(now) > 0 {
			continue // maintenance may have started one
		}

		did := false
		if !paused {
			b.drainIdent(now)
		}
		if req, ok := b.acc.Next(now); ok {
			b.execute(req, now)
			did = true
		}
		if !paused && b.enqueueInternal(now) > 0 {
			did = true
		}
		b.phase.Store(uint32(b.scanner.Phase()))

		if did {
			if busySince.IsZero() {
				busySince = now
			}
			budget := b.tm.yieldBudget
			if b.scanner.Sweeping() {
				budget = b.tm.fastYield
			}
			if time.Since(busySince) >= budget {
				busySince = time.Time{}
				b.sleep(ctx, timer, b.tm.yieldFor, false)
			}
			continue
		}
		busySince = time.Time{}
		b.sleep(ctx, timer, b.idleWait(now, paused), true)
	}
}

// sleep waits for d, ctx, or (when wake is set) new work.
func (b *Bus) sleep(ctx context.Context, timer *time.Timer, d time.Duration, wake bool) {
	timex.ResetTimer(timer, d)
	var wakeC <-chan struct{}
	if wake {
		wakeC = b.acc.Wake()
	}
	select {
	case <-ctx.Done():
	case <-wakeC:
	case <-timer.C:
	}
}

func (b *Bus) idleWait(now time.Time, paused bool) time.Duration {
	wait := idleWaitMax
	if !paused {
		if pw := b.poller.NextWait(now); pw >= 0 && pw < wait {
			wait = pw
		}
		if b.scanner.Phase() != scan.Idle && b.tm.slowScan < wait {
			wait = b.tm.slowScan
		}
	}
	if sw := b.acc.SpacingWait(now); sw > 0 && sw < wait {
		wait = sw
	}
	if b.pwr.Configured() && powerServiceInterval < wait {
		wait = powerServiceInterval
	}
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

// hiatusLeft also holds an expired hiatus while slot rails are mid-cycle, up
// to one cycle time past its end.
func (b *Bus) hiatusLeft(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hiatusUntil.IsZero() {
		return 0
	}
	if !now.Before(b.hiatusUntil) {
		if b.pwr.Cycling() && now.Before(b.hiatusLimit) {
			b.hiatusUntil = now.Add(powerServiceInterval)
			return powerServiceInterval
		}
		b.hiatusUntil, b.hiatusLimit = time.Time{}, time.Time{}
		b.log.Info("hiatus over")
		return 0
	}
	return b.hiatusUntil.Sub(now)
}

// applyControl folds cross-goroutine requests into worker-owned state.
func (b *Bus) applyControl(now time.Time) {
	b.mu.Lock()
	sr, clear, ops := b.scanReq, b.clearReq, b.powerOps
	b.scanReq, b.clearReq, b.powerOps = nil, false, nil
	b.mu.Unlock()

	wholeBus := false
	for _, op := range ops {
		if op.cycle {
			b.pwr.PowerCycleSlot(op.slot, now)
			wholeBus = wholeBus || op.slot == 0
		} else {
			b.pwr.SetRail(op.slot, op.level, now)
		}
		b.log.Info("slot power", "slot", int(op.slot), "cycle", op.cycle, "level", int(op.level))
	}
	if len(ops) > 0 {
		b.pwr.Hold(b.acc.Paused())
		b.pwr.Flush(now)
		if wholeBus && b.pwr.Configured() {
			b.Hiatus(b.tm.cycleHiatus)
		}
	}

	if clear {
		b.acc.DropInternal()
		b.poller.Clear()
		b.identQ = nil
		b.ext.Reset()
		b.tracker.Clear(now)
		b.scanner.Request(true, true, now)
		b.log.Info("bus cleared")
	}
	if sr != nil {
		b.scanner.Request(sr.slow, sr.fast, now)
	}
}

// service runs periodic maintenance. Line checks and power timers run even
// while paused; power writes and extender initialisation wait.
func (b *Bus) service(now time.Time, paused bool) {
	b.servicePower(now, paused)
	b.tracker.SetHardwareOK(b.handler.Service())
	b.tracker.ServiceBusStatus(now)
	if !paused {
		b.ext.Service()
	}
}

func (b *Bus) servicePower(now time.Time, paused bool) {
	b.pwr.Hold(paused)
	if timex.Expired(now, b.lastPower, powerServiceInterval) {
		b.lastPower = now
		b.pwr.Service(now)
	}
}

// enqueueInternal tops the internal lane up to MaxInternalPerIter with due
// polls first, then scan probes.
func (b *Bus) enqueueInternal(now time.Time) int {
	_, pending := b.acc.Pending()
	room := b.tm.maxInternal - pending
	if room <= 0 {
		return 0
	}
	n := 0
	for _, j := range b.poller.Due(now, room) {
		if b.acc.Add(types.Request{Addr: j.Addr, Kind: types.KindPoll, Ctx: j}) == errcode.OK {
			n++
		}
	}
	for _, r := range b.scanner.Next(now, room-n) {
		if b.acc.Add(r) == errcode.OK {
			n++
		}
	}
	return n
}

// -----------------------------------------------------------------------------
// Execution
// -----------------------------------------------------------------------------

func (b *Bus) execute(req types.Request, now time.Time) {
	if job, ok := req.Ctx.(poll.Job); ok && req.Kind == types.KindPoll {
		b.runPoll(job, now)
		return
	}
	read, code := b.transact(req.Addr, req.Write, req.ReadLen, req.Kind, now)
	switch {
	case code == errcode.Barred:
	case req.Kind.IsScan():
		b.observe(req.Addr, code == errcode.OK, now)
	case code == errcode.OK:
		b.observe(req.Addr, true, now)
	}
	if code != errcode.Barred && req.BarAfterSend > 0 {
		b.tracker.BarFor(req.Addr, req.BarAfterSend, now)
	}
	complete(req, read, code, now)
}

// transact performs one transaction with barring and slot selection.
// Identification and init traffic does not count towards barring.
func (b *Bus) transact(a types.Addr, w []byte, readLen int, kind types.RequestKind, now time.Time) ([]byte, errcode.Code) {
	if b.tracker.Barred(a, now) {
		return nil, errcode.Barred
	}
	counted := kind != types.KindIdent && kind != types.KindInit
	if code := b.ext.Select(a.Slot); code != errcode.OK {
		if counted {
			b.tracker.RecordAccess(a, false, now)
		}
		return nil, code
	}
	var r []byte
	if readLen > 0 {
		r = make([]byte, readLen)
	}
	b.acc.Sent(now)
	code := errcode.MapDriverErr(b.handler.Tx(a.Addr, w, r))
	if counted && b.tracker.RecordAccess(a, code == errcode.OK, now) {
		b.log.Debug("address barred", "addr", a.String(), "for", b.tm.barDuration)
	}
	if code != errcode.OK {
		return nil, code
	}
	return r, code
}

func complete(req types.Request, read []byte, code errcode.Code, now time.Time) {
	if req.Done == nil {
		return
	}
	req.Done(types.Result{
		Addr:   req.Addr,
		CmdID:  req.CmdID,
		Code:   code,
		Read:   read,
		TimeMs: now.UnixMilli(),
		Ctx:    req.Ctx,
	})
}

// observe feeds presence and reacts to transitions.
func (b *Bus) observe(a types.Addr, ok bool, now time.Time) {
	switch b.tracker.Observe(a, ok, now) {
	case types.Online:
		b.log.Debug("online", "addr", a.String())
		if a.Slot == 0 && b.ext.IsExtenderAddr(a.Addr) {
			b.ext.OnPresence(a.Addr, true)
			b.scanner.SweepSlots(now)
		}
		b.identQ = append(b.identQ, a)
		if !b.acc.Paused() {
			b.drainIdent(now)
		}
	case types.Offline:
		b.log.Debug("offline", "addr", a.String())
		if a.Slot == 0 && b.ext.IsExtenderAddr(a.Addr) {
			b.ext.OnPresence(a.Addr, false)
		}
		b.poller.Stop(a)
	}
}

// drainIdent identifies addresses that came online. Held back while paused.
func (b *Bus) drainIdent(now time.Time) {
	for len(b.identQ) > 0 {
		a := b.identQ[0]
		b.identQ = b.identQ[1:]
		b.identify(a, now)
	}
}

// identify runs the matcher once per online transition.
func (b *Bus) identify(a types.Addr, now time.Time) {
	if !b.tracker.NeedsIdent(a) {
		return
	}
	t := b.ident.Identify(a, func(at types.Addr, w []byte, readLen int, kind types.RequestKind) ([]byte, errcode.Code) {
		return b.transact(at, w, readLen, kind, time.Now())
	})
	if t == nil {
		b.tracker.SetIdent(a, "", 0)
		return
	}
	store := 0
	if t.Polled() {
		store = t.Poll.Store
	}
	b.tracker.SetIdent(a, t.Name, store)
	b.poller.Upsert(a, t, now)
	b.log.Info("device identified", "addr", a.String(), "type", t.Name)
}

// runPoll runs every poll transaction of a device. The result is stored only
// if all of them succeed.
func (b *Bus) runPoll(job poll.Job, now time.Time) {
	if !b.tracker.IsOnline(job.Addr) {
		b.poller.Stop(job.Addr)
		return
	}
	data := make([]byte, 0, job.Type.Poll.ResultLen())
	for _, pr := range job.Type.Poll.Requests {
		r, code := b.transact(job.Addr, pr.Write, pr.ReadLen, types.KindPoll, now)
		switch code {
		case errcode.OK:
			data = append(data, r...)
			continue
		case errcode.Barred:
			return
		}
		b.observe(job.Addr, false, now)
		return
	}
	b.observe(job.Addr, true, now)
	b.tracker.AddPollResult(job.Addr, types.PollResult{TS: now.UnixMilli(), Data: data})
}
