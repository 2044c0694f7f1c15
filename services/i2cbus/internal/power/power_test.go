package power

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicebus-go/services/i2cbus/internal/platform"
	"devicebus-go/types"
)

var pwrAddr = types.Addr{Addr: 0x21}

func newCtrl(t *testing.T, now time.Time) (*platform.SimBus, *Controller) {
	t.Helper()
	sb := platform.NewSimBus()
	sb.AddDevice(pwrAddr, &platform.SimDevice{})
	c := New([]types.PowerCtrlConfig{
		{Dev: DevPCA9535, Addr: pwrAddr, MinSlot: 1, NumSlots: 4},
		{Dev: "bogus", Addr: types.Addr{Addr: 0x22}, MinSlot: 5, NumSlots: 4},
		{Dev: DevPCA9535, Addr: types.Addr{Addr: 0x23}, MinSlot: 9, NumSlots: 9},
	}, Timing{StartupOff: 10 * time.Millisecond, CycleOff: 20 * time.Millisecond, Stabilize: 5 * time.Millisecond}, sb, nil, now)
	return sb, c
}

func TestInvalidEntriesSkipped(t *testing.T) {
	_, c := newCtrl(t, time.Now())
	assert.True(t, c.Configured())
	assert.True(t, c.IsPowerAddr(0x21))
	assert.False(t, c.IsPowerAddr(0x22))
	assert.False(t, c.IsPowerAddr(0x23))
	assert.True(t, c.IsSlotPowerStable(5), "uncontrolled slots are always stable")
	assert.True(t, c.IsSlotPowerStable(0))
}

func TestStartupSequence(t *testing.T) {
	t0 := time.Now()
	sb, c := newCtrl(t, t0)

	assert.False(t, c.IsSlotPowerStable(1))
	c.Service(t0.Add(10 * time.Millisecond))
	st, _ := c.State(1)
	assert.Equal(t, OffPendingCycle, st)

	c.Service(t0.Add(30 * time.Millisecond))
	st, _ = c.State(2)
	assert.Equal(t, OnWaitStable, st)
	reg, _ := c.Register(0x21)
	assert.Equal(t, uint16(0xFF00|0b10101010), reg, "3V3 bit low for each of 4 slots")

	c.Service(t0.Add(35 * time.Millisecond))
	assert.True(t, c.IsSlotPowerStable(4))

	w := sb.Writes(pwrAddr)
	require.GreaterOrEqual(t, len(w), 2)
	last := w[len(w)-1]
	assert.Equal(t, []byte{regConfPort0, 0b10101010, 0xFF}, last)
	assert.Equal(t, byte(regOutPort0), w[len(w)-2][0], "output register written before direction")
}

func TestPowerCycleSlot(t *testing.T) {
	t0 := time.Now()
	_, c := newCtrl(t, t0)
	c.Service(t0.Add(10 * time.Millisecond))
	c.Service(t0.Add(30 * time.Millisecond))
	c.Service(t0.Add(35 * time.Millisecond))
	require.True(t, c.IsSlotPowerStable(2))

	t1 := t0.Add(40 * time.Millisecond)
	c.PowerCycleSlot(2, t1)
	assert.False(t, c.IsSlotPowerStable(2))
	assert.True(t, c.IsSlotPowerStable(1))
	assert.True(t, c.Cycling())
	reg, _ := c.Register(0x21)
	assert.Equal(t, uint16(0b11), (reg>>2)&0b11, "slot 2 both rails off")

	c.Flush(t1)
	c.Service(t1.Add(20 * time.Millisecond))
	st, _ := c.State(2)
	assert.Equal(t, OnWaitStable, st)
	c.Service(t1.Add(25 * time.Millisecond))
	assert.True(t, c.IsSlotPowerStable(2))
	assert.False(t, c.Cycling())
}

// Off time is measured from the write that switched the rails, not from the
// request.
func TestCycleTimedFromWrite(t *testing.T) {
	t0 := time.Now()
	sb, c := newCtrl(t, t0)
	c.Service(t0.Add(10 * time.Millisecond))
	c.Service(t0.Add(30 * time.Millisecond))
	c.Service(t0.Add(35 * time.Millisecond))

	t1 := t0.Add(40 * time.Millisecond)
	c.PowerCycleSlot(1, t1)
	sb.Device(pwrAddr).Fail = true
	c.Service(t1.Add(50 * time.Millisecond))
	st, _ := c.State(1)
	assert.Equal(t, OffPendingCycle, st, "no progress before the off write lands")

	sb.Device(pwrAddr).Fail = false
	t2 := t1.Add(60 * time.Millisecond)
	c.Service(t2)
	st, _ = c.State(1)
	assert.Equal(t, OffPendingCycle, st)
	c.Service(t2.Add(19 * time.Millisecond))
	st, _ = c.State(1)
	assert.Equal(t, OffPendingCycle, st)
	c.Service(t2.Add(20 * time.Millisecond))
	st, _ = c.State(1)
	assert.Equal(t, OnWaitStable, st)
}

func TestHoldDefersWrites(t *testing.T) {
	t0 := time.Now()
	sb, c := newCtrl(t, t0)
	c.Hold(true)
	c.SetRail(3, Rail5V, t0)
	c.Flush(t0)
	for i := 1; i <= 10; i++ {
		c.Service(t0.Add(time.Duration(i) * 10 * time.Millisecond))
	}
	assert.Zero(t, sb.TxCount(0x21), "nothing written while held")
	st, _ := c.State(1)
	assert.Equal(t, OffPreInit, st, "slot timers wait for the pending write")

	c.Hold(false)
	c.Service(t0.Add(200 * time.Millisecond))
	w := sb.Writes(pwrAddr)
	require.Len(t, w, 2)
	assert.Equal(t, byte(regConfPort0), w[1][0])
	assert.Equal(t, byte(0b01), (w[1][1]>>4)&0b11, "slot 3 on the 5V rail")
}

func TestSetRail5V(t *testing.T) {
	t0 := time.Now()
	_, c := newCtrl(t, t0)
	c.SetRail(3, Rail5V, t0)
	st, _ := c.State(3)
	assert.Equal(t, OnHighV, st)
	reg, _ := c.Register(0x21)
	assert.Equal(t, uint16(0b01), (reg>>4)&0b11)

	c.SetRail(0, Off, t0)
	for s := uint8(1); s <= 4; s++ {
		st, _ := c.State(s)
		assert.Equal(t, OffPermanently, st)
	}
}

func TestWriteRetriedWhenNacked(t *testing.T) {
	t0 := time.Now()
	sb, c := newCtrl(t, t0)
	sb.Device(pwrAddr).Fail = true
	c.SetRail(1, Rail3V3, t0)
	c.Service(t0)
	n := sb.TxCount(0x21)
	c.Service(t0)
	assert.Greater(t, sb.TxCount(0x21), n, "dirty registers retried")

	sb.Device(pwrAddr).Fail = false
	c.Service(t0)
	n = sb.TxCount(0x21)
	c.Service(t0)
	assert.Equal(t, n, sb.TxCount(0x21))
}
