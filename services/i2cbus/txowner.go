package i2cbus

import (
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers"

	"devicebus-go/errcode"
)

// request posted to the owner goroutine
type txReq struct {
	addr      uint16
	w         []byte
	rn        int
	done      chan txResp  // buffered(1); owner replies best-effort
	abandoned *atomic.Bool // set once the caller has timed out
}

type txResp struct {
	r   []byte
	err error
}

// txOwner hosts the single goroutine that touches the primitive, so a hung
// transaction costs the bus loop a timeout and not the loop itself.
type txOwner struct {
	hw   drivers.I2C
	reqs chan txReq
	quit chan struct{}
}

func newTxOwner(hw drivers.I2C) *txOwner {
	o := &txOwner{
		hw:   hw,
		reqs: make(chan txReq, 1),
		quit: make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *txOwner) loop() {
	for {
		select {
		case req := <-o.reqs:
			if req.abandoned != nil && req.abandoned.Load() {
				continue
			}
			var r []byte
			if req.rn > 0 {
				r = make([]byte, req.rn)
			}
			err := o.hw.Tx(req.addr, req.w, r)
			// best-effort reply; the caller may have given up
			select {
			case req.done <- txResp{r: r, err: err}:
			default:
			}
		case <-o.quit:
			return
		}
	}
}

func (o *txOwner) stop() { close(o.quit) }

// boundedI2C adapts the owner to drivers.I2C with a per-call deadline.
type boundedI2C struct {
	o       *txOwner
	timeout time.Duration // 0 => no deadline
}

var _ drivers.I2C = (*boundedI2C)(nil)

func (d *boundedI2C) Tx(addr uint16, w, r []byte) error {
	req := txReq{
		addr:      addr,
		w:         append([]byte(nil), w...),
		rn:        len(r),
		done:      make(chan txResp, 1),
		abandoned: new(atomic.Bool),
	}

	if d.timeout <= 0 {
		d.o.reqs <- req
		resp := <-req.done
		copy(r, resp.r)
		return resp.err
	}

	// Bounded enqueue
	enq := time.NewTimer(d.timeout)
	select {
	case d.o.reqs <- req:
		enq.Stop()
	case <-enq.C:
		return errcode.Busy
	}

	// Completion
	t := time.NewTimer(d.timeout)
	defer t.Stop()
	select {
	case resp := <-req.done:
		copy(r, resp.r)
		return resp.err
	case <-t.C:
		// still queued behind a hung transaction: it must not run later
		req.abandoned.Store(true)
		return errcode.Timeout
	}
}
