package extender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicebus-go/errcode"
	"devicebus-go/services/i2cbus/internal/platform"
	"devicebus-go/types"
)

func newSim() (*platform.SimBus, *Manager) {
	sb := platform.NewSimBus()
	sb.AddMux(0x70, 1)
	sb.AddMux(0x71, 9)
	return sb, New(Config{}, sb)
}

func TestSlotMapping(t *testing.T) {
	_, m := newSim()
	assert.Equal(t, uint8(1), m.SlotFor(0x70, 0))
	assert.Equal(t, uint8(8), m.SlotFor(0x70, 7))
	assert.Equal(t, uint8(9), m.SlotFor(0x71, 0))
	assert.True(t, m.IsExtenderAddr(0x77))
	assert.False(t, m.IsExtenderAddr(0x78))
	assert.Len(t, m.Addrs(), 8)
}

func TestSelectSkipsRedundantWrites(t *testing.T) {
	sb, m := newSim()
	m.OnPresence(0x70, true)
	m.Service()
	require.Equal(t, 1, sb.TxCount(0x70), "init writes all-off")

	require.Equal(t, errcode.OK, m.Select(3))
	assert.Equal(t, byte(1<<2), sb.MuxMask(0x70))
	require.Equal(t, errcode.OK, m.Select(3))
	require.Equal(t, errcode.OK, m.Select(3))
	assert.Equal(t, 2, sb.TxCount(0x70), "same slot must not re-select")

	require.Equal(t, errcode.OK, m.Select(4))
	assert.Equal(t, byte(1<<3), sb.MuxMask(0x70))
	assert.Equal(t, 3, sb.TxCount(0x70))
}

func TestSelectAcrossExtendersDisablesPrevious(t *testing.T) {
	sb, m := newSim()
	m.OnPresence(0x70, true)
	m.OnPresence(0x71, true)
	m.Service()

	require.Equal(t, errcode.OK, m.Select(2))
	require.Equal(t, errcode.OK, m.Select(10))
	assert.Equal(t, byte(0), sb.MuxMask(0x70))
	assert.Equal(t, byte(1<<1), sb.MuxMask(0x71))

	require.Equal(t, errcode.OK, m.SelectRoot())
	assert.Equal(t, byte(0), sb.MuxMask(0x71))
	n := sb.TxCount(0x71)
	require.Equal(t, errcode.OK, m.Select(0))
	assert.Equal(t, n, sb.TxCount(0x71), "root already isolated")
}

func TestSelectUnreachable(t *testing.T) {
	sb, m := newSim()
	assert.Equal(t, errcode.SlotUnreachable, m.Select(20), "extender 0x72 never seen")
	assert.Equal(t, 0, sb.TxCount(0x72))

	// Known online but now not acknowledging.
	m.OnPresence(0x72, true)
	assert.Equal(t, errcode.SlotUnreachable, m.Select(20))
	assert.Equal(t, 1, sb.TxCount(0x72))
}

func TestSlotsOnlyForOnlineExtenders(t *testing.T) {
	_, m := newSim()
	assert.Empty(t, m.Slots())
	m.OnPresence(0x71, true)
	assert.Equal(t, []uint8{9, 10, 11, 12, 13, 14, 15, 16}, m.Slots())
	assert.Equal(t, 1, m.OnlineCount())

	m.OnPresence(0x71, false)
	assert.Empty(t, m.Slots())
}

func TestReinitAfterOffline(t *testing.T) {
	sb, m := newSim()
	m.OnPresence(0x70, true)
	m.Service()
	require.Equal(t, errcode.OK, m.Select(1))

	m.OnPresence(0x70, false)
	m.OnPresence(0x70, true)
	before := sb.TxCount(0x70)
	m.Service()
	assert.Equal(t, before+1, sb.TxCount(0x70))
	assert.Equal(t, byte(0), sb.MuxMask(0x70))

	require.Equal(t, errcode.OK, m.Select(1))
	assert.Equal(t, byte(1), sb.MuxMask(0x70), "cache was invalidated")
}

func TestSlotsWithinPackedDomain(t *testing.T) {
	sb := platform.NewSimBus()
	m := New(Config{}, sb)
	m.OnPresence(0x77, true)
	for _, s := range m.Slots() {
		assert.LessOrEqual(t, s, uint8(types.SlotMax))
	}
	assert.Len(t, m.Slots(), 7)
}
