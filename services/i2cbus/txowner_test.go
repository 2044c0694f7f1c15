package i2cbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicebus-go/errcode"
)

// gatedI2C blocks every Tx until the gate is opened and records addresses.
type gatedI2C struct {
	gate chan struct{}
	mu   sync.Mutex
	seen []uint16
}

func (g *gatedI2C) Tx(addr uint16, _, _ []byte) error {
	<-g.gate
	g.mu.Lock()
	g.seen = append(g.seen, addr)
	g.mu.Unlock()
	return nil
}

func (g *gatedI2C) addrs() []uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uint16(nil), g.seen...)
}

func TestTimedOutTxNeverReachesHardware(t *testing.T) {
	hw := &gatedI2C{gate: make(chan struct{})}
	o := newTxOwner(hw)
	defer o.stop()
	d := &boundedI2C{o: o, timeout: 20 * time.Millisecond}

	// The first call hangs in the owner; the second waits in its queue.
	assert.Equal(t, errcode.Timeout, d.Tx(0x10, nil, nil))
	assert.Equal(t, errcode.Timeout, d.Tx(0x11, nil, nil))

	close(hw.gate)
	require.Eventually(t, func() bool { return len(hw.addrs()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, d.Tx(0x12, nil, nil))
	assert.Equal(t, []uint16{0x10, 0x12}, hw.addrs())
}

func TestBoundedTxPassesThrough(t *testing.T) {
	hw := &gatedI2C{gate: make(chan struct{})}
	close(hw.gate)
	o := newTxOwner(hw)
	defer o.stop()
	d := &boundedI2C{o: o, timeout: 50 * time.Millisecond}

	r := make([]byte, 2)
	require.NoError(t, d.Tx(0x48, []byte{0x00}, r))
	assert.Equal(t, []uint16{0x48}, hw.addrs())
}
