// Package poll schedules periodic device polls on a due-time min-heap.
// It is owned by a single bus goroutine and is not safe for concurrent use.
package poll

import (
	"container/heap"
	"math/rand"
	"time"

	"devicebus-go/services/i2cbus/internal/devtypes"
	"devicebus-go/types"
)

// Job is one due poll: run every request of Type.Poll against Addr.
type Job struct {
	Addr types.Addr
	Type *devtypes.Type
}

type pollItem struct {
	job   Job
	due   int64
	every time.Duration
	index int
}

type pollHeap []*pollItem

func (h pollHeap) Len() int           { return len(h) }
func (h pollHeap) Less(i, j int) bool { return h[i].due < h[j].due }
func (h pollHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *pollHeap) Push(x any)        { it := x.(*pollItem); it.index = len(*h); *h = append(*h, it) }
func (h *pollHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	it.index = -1
	*h = old[:n-1]
	return it
}
func (h pollHeap) Top() *pollItem {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

type Scheduler struct {
	items  map[types.Addr]*pollItem
	h      pollHeap
	rand   *rand.Rand
	jitter time.Duration
}

// New returns a scheduler. The first poll of each device is delayed by a
// random [0..jitter] so devices found together do not poll in lockstep.
func New(jitter time.Duration) *Scheduler {
	if jitter < 0 {
		jitter = 0
	}
	return &Scheduler{
		items:  make(map[types.Addr]*pollItem),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		jitter: jitter,
	}
}

// Upsert schedules (or reschedules) a device. Types without a usable poll
// descriptor are removed instead.
func (s *Scheduler) Upsert(a types.Addr, t *devtypes.Type, now time.Time) {
	if t == nil || !t.Polled() {
		s.Stop(a)
		return
	}
	due := now.Add(s.jittered()).UnixNano()
	if it := s.items[a]; it == nil {
		it2 := &pollItem{job: Job{Addr: a, Type: t}, due: due, every: t.Poll.Interval, index: -1}
		s.items[a] = it2
		heap.Push(&s.h, it2)
	} else {
		it.job.Type = t
		it.every = t.Poll.Interval
		it.due = due
		heap.Fix(&s.h, it.index)
	}
}

func (s *Scheduler) Stop(a types.Addr) {
	if it := s.items[a]; it != nil {
		heap.Remove(&s.h, it.index)
		delete(s.items, a)
	}
}

// Clear drops every schedule.
func (s *Scheduler) Clear() {
	s.items = make(map[types.Addr]*pollItem)
	s.h = s.h[:0]
}

func (s *Scheduler) Len() int { return len(s.h) }

// Due pops up to max jobs whose due time has passed and re-arms each at
// now + interval.
func (s *Scheduler) Due(now time.Time, max int) []Job {
	var out []Job
	ns := now.UnixNano()
	for len(out) < max {
		top := s.h.Top()
		if top == nil || top.due > ns {
			break
		}
		top.due = now.Add(top.every).UnixNano()
		heap.Fix(&s.h, 0)
		out = append(out, top.job)
	}
	return out
}

// NextWait is the time until the earliest job, or -1 when none is scheduled.
func (s *Scheduler) NextWait(now time.Time) time.Duration {
	top := s.h.Top()
	if top == nil {
		return -1
	}
	d := time.Duration(top.due - now.UnixNano())
	if d < 0 {
		return 0
	}
	return d
}

func (s *Scheduler) jittered() time.Duration {
	if s.jitter <= 0 {
		return 0
	}
	return time.Duration(s.rand.Int63n(int64(s.jitter) + 1))
}
