package i2cbus

import (
	"sort"
	"sync"

	"devicebus-go/types"
)

// TypeI2C is the bus type tag of the built-in engine.
const TypeI2C = "i2c"

// Constructor builds a bus of one type.
type Constructor func(cfg types.BusConfig, opts Options) (*Bus, error)

// Registry maps bus type tags to constructors. Build it once at startup and
// hand it to NewManager.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Constructor
}

func NewRegistry() *Registry { return &Registry{m: make(map[string]Constructor)} }

// DefaultRegistry knows the built-in "i2c" type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeI2C, New)
	return r
}

// Register adds or replaces the constructor for typ.
func (r *Registry) Register(typ string, c Constructor) {
	r.mu.Lock()
	r.m[typ] = c
	r.mu.Unlock()
}

func (r *Registry) Lookup(typ string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.m[typ]
	return c, ok
}

// Types lists registered tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
