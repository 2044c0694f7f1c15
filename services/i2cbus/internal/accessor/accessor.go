// Package accessor is the bus request queue. Client requests and internally
// generated work (scan, poll) sit in separate FIFO lanes; the client lane is
// always served first.
package accessor

import (
	"sync"
	"time"

	"devicebus-go/errcode"
	"devicebus-go/types"
)

type Config struct {
	ClientLen    int
	InternalLen  int
	MinTxSpacing time.Duration
}

type Accessor struct {
	cfg Config

	mu       sync.Mutex
	client   []types.Request
	internal []types.Request
	paused   bool
	closed   bool
	lastTx   time.Time

	wake chan struct{}
}

func New(cfg Config) *Accessor {
	if cfg.ClientLen <= 0 {
		cfg.ClientLen = 32
	}
	if cfg.InternalLen <= 0 {
		cfg.InternalLen = 16
	}
	return &Accessor{cfg: cfg, wake: make(chan struct{}, 1)}
}

// Add queues r. Safe from any goroutine.
func (q *Accessor) Add(r types.Request) errcode.Code {
	if !r.Addr.Valid() {
		return errcode.InvalidAddr
	}
	q.mu.Lock()
	switch {
	case q.closed:
		q.mu.Unlock()
		return errcode.Closed
	case r.Kind.IsClient():
		if len(q.client) >= q.cfg.ClientLen {
			q.mu.Unlock()
			return errcode.QueueFull
		}
		q.client = append(q.client, r)
	default:
		if len(q.internal) >= q.cfg.InternalLen {
			q.mu.Unlock()
			return errcode.QueueFull
		}
		q.internal = append(q.internal, r)
	}
	q.mu.Unlock()
	q.signal()
	return errcode.OK
}

// Next pops the next runnable request. While paused only KindSendIfPaused
// requests are runnable; everything else stays queued. Nothing is returned
// until MinTxSpacing has passed since the last Sent.
func (q *Accessor) Next(now time.Time) (types.Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.spacingWaitLocked(now) > 0 {
		return types.Request{}, false
	}
	if q.paused {
		for i, r := range q.client {
			if r.Kind == types.KindSendIfPaused {
				q.client = append(q.client[:i], q.client[i+1:]...)
				return r, true
			}
		}
		return types.Request{}, false
	}
	if len(q.client) > 0 {
		r := q.client[0]
		q.client = q.client[1:]
		return r, true
	}
	if len(q.internal) > 0 {
		r := q.internal[0]
		q.internal = q.internal[1:]
		return r, true
	}
	return types.Request{}, false
}

// Sent records a transaction start for spacing.
func (q *Accessor) Sent(now time.Time) {
	q.mu.Lock()
	q.lastTx = now
	q.mu.Unlock()
}

// SpacingWait is how long until the next transaction may start.
func (q *Accessor) SpacingWait(now time.Time) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.spacingWaitLocked(now)
}

func (q *Accessor) spacingWaitLocked(now time.Time) time.Duration {
	if q.cfg.MinTxSpacing <= 0 || q.lastTx.IsZero() {
		return 0
	}
	return q.cfg.MinTxSpacing - now.Sub(q.lastTx)
}

// Pending returns the lane lengths.
func (q *Accessor) Pending() (client, internal int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.client), len(q.internal)
}

func (q *Accessor) SetPaused(p bool) {
	q.mu.Lock()
	q.paused = p
	q.mu.Unlock()
	q.signal()
}

func (q *Accessor) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// DropInternal discards queued internal work, e.g. on hiatus or clear.
func (q *Accessor) DropInternal() []types.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.internal
	q.internal = nil
	return out
}

// Close rejects further Adds and returns everything still queued so the
// caller can complete it.
func (q *Accessor) Close() []types.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	out := append(q.client, q.internal...)
	q.client, q.internal = nil, nil
	return out
}

// Wake fires (coalesced) whenever work is added or the pause flag changes.
func (q *Accessor) Wake() <-chan struct{} { return q.wake }

// Poke wakes the consumer without queueing anything.
func (q *Accessor) Poke() { q.signal() }

func (q *Accessor) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
