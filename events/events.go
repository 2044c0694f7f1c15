// Package events delivers bus status transitions to interested goroutines.
//
// Publishing never blocks the bus goroutine: a full subscriber queue drops its
// oldest event. The most recent bus-level status per bus is retained and
// replayed to new subscribers.
package events

import (
	"sync"

	"devicebus-go/types"
)

// Kind tags an Event.
type Kind uint8

const (
	KindElement Kind = iota + 1 // Element is set
	KindBus                     // Bus is set
)

// Event is a tagged union of the two status notifications.
type Event struct {
	Kind    Kind
	Element types.StatusEvent
	Bus     types.BusStatusEvent
}

// BusName returns the bus the event belongs to.
func (e Event) BusName() string {
	if e.Kind == KindBus {
		return e.Bus.Bus
	}
	return e.Element.Bus
}

// Filter selects events. Zero values match everything.
type Filter struct {
	Bus  string
	Kind Kind
}

func (f Filter) match(e Event) bool {
	if f.Kind != 0 && f.Kind != e.Kind {
		return false
	}
	return f.Bus == "" || f.Bus == e.BusName()
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	filter Filter
	ch     chan Event
	hub    *Hub
}

func (s *Subscription) C() <-chan Event { return s.ch }
func (s *Subscription) Close()          { s.hub.unsubscribe(s) }

// -----------------------------------------------------------------------------
// Hub
// -----------------------------------------------------------------------------

type Hub struct {
	mu       sync.Mutex
	subs     []*Subscription
	retained map[string]Event // bus name -> last KindBus event
	qLen     int
}

// NewHub creates a hub with the given per-subscriber queue length.
func NewHub(queueLen int) *Hub {
	if queueLen <= 0 {
		queueLen = 16
	}
	return &Hub{retained: make(map[string]Event), qLen: queueLen}
}

// Subscribe registers a subscriber. Retained bus status events matching f are
// delivered immediately.
func (h *Hub) Subscribe(f Filter) *Subscription {
	s := &Subscription{filter: f, ch: make(chan Event, h.qLen), hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, s)
	for _, e := range h.retained {
		if f.match(e) {
			deliver(s.ch, e)
		}
	}
	return s
}

// Publish hands e to every matching subscriber without blocking.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e.Kind == KindBus {
		h.retained[e.Bus.Bus] = e
	}
	for _, s := range h.subs {
		if s.filter.match(e) {
			deliver(s.ch, e)
		}
	}
}

// Element and BusStatus are Publish shorthands; they satisfy the status
// tracker's Listener interface.
func (h *Hub) Element(ev types.StatusEvent) { h.Publish(Event{Kind: KindElement, Element: ev}) }
func (h *Hub) BusStatus(ev types.BusStatusEvent) {
	h.Publish(Event{Kind: KindBus, Bus: ev})
}

// caller holds h.mu
func deliver(ch chan Event, e Event) {
	select {
	case ch <- e:
	default:
		// drop oldest if queue full
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, x := range h.subs {
		if x == s {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}
