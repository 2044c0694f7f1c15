package platform

import "sync"

// FakePin implements Pin for host-side tests. When read is set, Get reports
// its value while the pin is an input; onSet observes output writes.
type FakePin struct {
	mu     sync.Mutex
	number int
	level  bool
	out    bool
	read   func() bool
	onSet  func(level bool)
}

func NewFakePin(n int) *FakePin { return &FakePin{number: n, level: true} }

func (p *FakePin) ConfigureInput(_ Pull) error {
	p.mu.Lock()
	p.out = false
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.out = true
	p.mu.Unlock()
	p.Set(initial)
	return nil
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	cb := p.onSet
	p.mu.Unlock()
	if cb != nil {
		cb(level)
	}
}

func (p *FakePin) Get() bool {
	p.mu.Lock()
	out, lvl, rd := p.out, p.level, p.read
	p.mu.Unlock()
	if !out && rd != nil {
		return rd()
	}
	return lvl
}

func (p *FakePin) Number() int { return p.number }

// IsOutput reports the configured direction.
func (p *FakePin) IsOutput() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out
}
