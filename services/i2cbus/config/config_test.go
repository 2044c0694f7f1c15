package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicebus-go/types"
)

const busesYAML = `
identEnable: false
buses:
  - type: i2c
    name: I2CA
    port: 0
    sdaPin: 4
    sclPin: 5
    addrBits: 7
    freqHz: 400000
    filterLevel: 7
    lockupDetect: "0x20"
    scanBoost: ["0x48", "0x1d@3"]
    mux: {minAddr: "0x70", maxAddr: "0x73"}
    pwr:
      ctrl:
        - {dev: PCA9535, addr: "0x21", minSlot: 1, numSlots: 8}
    worker: {core: 1, priority: 5, stackBytes: 4096}
    timing: {txTimeoutMs: 10, minTxSpacingUs: 200, barDurationMs: 500}
    limits: {failMax: 4, barThreshold: 6}
  - sdaPin: 6
    sclPin: 7
    identEnable: true
`

func TestParseBuses(t *testing.T) {
	cfg, err := ParseBuses([]byte(busesYAML))
	require.NoError(t, err)
	require.NotNil(t, cfg.IdentEnable)
	assert.False(t, *cfg.IdentEnable)
	require.Len(t, cfg.Buses, 2)

	a := cfg.Buses[0]
	assert.Equal(t, "I2CA", a.Name)
	assert.Equal(t, uint32(400000), a.FreqHz)
	assert.Equal(t, 7, a.AddrBits)
	require.NotNil(t, a.LockupDetect)
	assert.Equal(t, types.Addr{Addr: 0x20}, *a.LockupDetect)
	assert.Equal(t, []types.Addr{{Addr: 0x48}, {Addr: 0x1d, Slot: 3}}, a.ScanBoost)
	assert.Equal(t, uint16(0x73), a.Mux.MaxAddr.Addr)
	require.Len(t, a.Power.Ctrl, 1)
	assert.Equal(t, types.PowerCtrlConfig{Dev: "PCA9535", Addr: types.Addr{Addr: 0x21}, MinSlot: 1, NumSlots: 8}, a.Power.Ctrl[0])
	assert.Equal(t, 5, a.Worker.Priority)
	assert.Equal(t, 200, a.Timing.MinTxSpacingUs)
	assert.Equal(t, 6, a.Limits.BarThreshold)

	b := cfg.Buses[1]
	assert.Equal(t, "I2C1", b.Name, "unnamed entries get a positional name")
	require.NotNil(t, b.IdentEnable)
	assert.True(t, *b.IdentEnable)
}

func TestParseBusesErrors(t *testing.T) {
	_, err := ParseBuses([]byte("buses: [\n"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "failed to parse YAML", le.Message)

	_, err = ParseBuses([]byte(`buses: [{lockupDetect: "0x48@99"}]`))
	assert.Error(t, err)
}

func TestLoadBusesFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "buses.yaml")
	require.NoError(t, os.WriteFile(p, []byte(busesYAML), 0o644))
	cfg, err := LoadBuses(p)
	require.NoError(t, err)
	assert.Len(t, cfg.Buses, 2)

	_, err = LoadBuses(filepath.Join(dir, "missing.yaml"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.File, "missing.yaml")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	tmp, ok := r.ByName("TMP117")
	require.True(t, ok)
	assert.True(t, tmp.Polled())
	assert.Equal(t, [][]byte{{0x01, 0x02, 0x20}}, tmp.Init)

	c := r.Candidates(0x48)
	require.NotEmpty(t, c)
	assert.Equal(t, "TMP117", c[0].Name)

	v, ok := r.ByName("VCNL4040")
	require.True(t, ok)
	assert.Equal(t, 6, v.Poll.ResultLen())
	assert.Equal(t, "Proximity", v.Descriptor().Info["name"])
}

func TestParseRegistryErrors(t *testing.T) {
	_, err := ParseRegistry([]byte("types: []"))
	assert.ErrorContains(t, err, "no device types")

	_, err = ParseRegistry([]byte(`types: [{type: X, addr: "0x99"}]`))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "invalid device type", le.Message)

	dir := t.TempDir()
	p := filepath.Join(dir, "reg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`types: [{type: X, addr: "0x10"}]`), 0o644))
	r, err := LoadRegistry(p)
	require.NoError(t, err)
	assert.Len(t, r.Types(), 1)
}
