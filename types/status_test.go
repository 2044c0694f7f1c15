package types

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusSnapshotCBORUsesPackedAddr(t *testing.T) {
	s := BusSnapshot{
		Bus:     "I2CA",
		Session: "s1",
		Status:  BusOK,
		TS:      1234,
		Devices: []DeviceState{
			{Addr: Addr{Addr: 0x48, Slot: 3}, Online: true, DevType: "TMP117",
				Polls: []PollResult{{TS: 1200, Data: []byte{0x0c, 0x80}}}},
			{Addr: Addr{Addr: 0x20}, Online: false},
		},
	}
	b, err := cbor.Marshal(s)
	require.NoError(t, err)

	var raw map[uint64]any
	require.NoError(t, cbor.Unmarshal(b, &raw))
	devs, ok := raw[5].([]any)
	require.True(t, ok)
	first := devs[0].(map[any]any)
	assert.EqualValues(t, Addr{Addr: 0x48, Slot: 3}.Composite(), first[uint64(1)])

	var back BusSnapshot
	require.NoError(t, cbor.Unmarshal(b, &back))
	assert.Equal(t, s.Bus, back.Bus)
	require.Len(t, back.Devices, 2)
	assert.Equal(t, s.Devices[0].Addr, back.Devices[0].Addr)
	assert.Equal(t, []byte{0x0c, 0x80}, back.Devices[0].Polls[0].Data)
	assert.Equal(t, "TMP117", back.Devices[0].DevType)
}

func TestPresenceString(t *testing.T) {
	assert.Equal(t, "online", Online.String())
	assert.Equal(t, "offline", Offline.String())
	assert.Equal(t, "still_offline", StillOffline.String())
	assert.Equal(t, "failing", BusFailing.String())
}
