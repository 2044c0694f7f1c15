package poll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicebus-go/services/i2cbus/internal/devtypes"
	"devicebus-go/types"
)

func mkType(t *testing.T, name string, ms int) *devtypes.Type {
	t.Helper()
	ty, err := devtypes.Parse(devtypes.Entry{
		Type: name, Addr: "0x48",
		Poll: devtypes.PollEntry{C: "0x00=0bxxxxxxxx", I: ms, S: 4},
	})
	require.NoError(t, err)
	return ty
}

var (
	a48 = types.Addr{Addr: 0x48}
	a49 = types.Addr{Addr: 0x49, Slot: 3}
)

func TestDueOrderAndRearm(t *testing.T) {
	s := New(0)
	now := time.Now()
	s.Upsert(a48, mkType(t, "fast", 100), now)
	s.Upsert(a49, mkType(t, "slow", 300), now)

	jobs := s.Due(now, 10)
	require.Len(t, jobs, 2, "first poll is immediate without jitter")

	assert.Empty(t, s.Due(now.Add(50*time.Millisecond), 10))
	assert.Equal(t, 100*time.Millisecond, s.NextWait(now))

	jobs = s.Due(now.Add(100*time.Millisecond), 10)
	require.Len(t, jobs, 1)
	assert.Equal(t, a48, jobs[0].Addr)
	assert.Equal(t, "fast", jobs[0].Type.Name)

	jobs = s.Due(now.Add(300*time.Millisecond), 10)
	require.Len(t, jobs, 2)
}

func TestDueRespectsMax(t *testing.T) {
	s := New(0)
	now := time.Now()
	s.Upsert(a48, mkType(t, "a", 100), now)
	s.Upsert(a49, mkType(t, "b", 100), now)
	assert.Len(t, s.Due(now, 1), 1)
	assert.Len(t, s.Due(now, 1), 1)
	assert.Empty(t, s.Due(now, 1))
}

func TestStopAndUnpolled(t *testing.T) {
	s := New(0)
	now := time.Now()
	s.Upsert(a48, mkType(t, "a", 100), now)
	require.Equal(t, 1, s.Len())

	s.Stop(a48)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, time.Duration(-1), s.NextWait(now))

	unpolled, err := devtypes.Parse(devtypes.Entry{Type: "x", Addr: "0x48"})
	require.NoError(t, err)
	s.Upsert(a48, unpolled, now)
	assert.Equal(t, 0, s.Len())

	s.Upsert(a48, mkType(t, "a", 100), now)
	s.Upsert(a49, mkType(t, "b", 100), now)
	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestJitterBoundsFirstPoll(t *testing.T) {
	s := New(20 * time.Millisecond)
	now := time.Now()
	s.Upsert(a48, mkType(t, "a", 100), now)
	w := s.NextWait(now)
	assert.GreaterOrEqual(t, w, time.Duration(0))
	assert.LessOrEqual(t, w, 20*time.Millisecond)
	assert.Len(t, s.Due(now.Add(20*time.Millisecond), 1), 1)
}
