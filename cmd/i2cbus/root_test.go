package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "i2cbus", cmd.Use)

	for _, name := range []string{"scan", "snapshot", "watch", "raw", "addr", "registry"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := newRootCommand()
	lvl := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, lvl)
	assert.Equal(t, "warn", lvl.DefValue)
	demo := cmd.PersistentFlags().Lookup("demo")
	require.NotNil(t, demo)
	assert.Equal(t, "true", demo.DefValue)
	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "registry", "list")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestAddrCodec(t *testing.T) {
	out, err := execute(t, "addr", "encode", "0x48@3")
	require.NoError(t, err)
	assert.Equal(t, "3144 0xc48\n", out)

	out, err = execute(t, "addr", "decode", "0xc48")
	require.NoError(t, err)
	assert.Equal(t, "0x48@3\n", out)

	_, err = execute(t, "addr", "encode", "48")
	assert.Error(t, err)
	_, err = execute(t, "addr", "decode", "0x10000")
	assert.Error(t, err)
}

func TestRegistryCommands(t *testing.T) {
	out, err := execute(t, "registry", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "TMP117")
	assert.Contains(t, out, "0x48-0x4b")

	out, err = execute(t, "registry", "show", "VCNL4040")
	require.NoError(t, err)
	var d map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, "VCNL4040", d["type"])

	_, err = execute(t, "registry", "show", "NOPE")
	assert.Error(t, err)
}

func TestRegistryFromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "reg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
types:
  - type: ONLY
    addr: "0x10"
    det: "0x00=0bxxxxxxxx"
`), 0o644))
	out, err := execute(t, "--registry", p, "registry", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ONLY")
	assert.NotContains(t, out, "TMP117")
}

func TestScanDemo(t *testing.T) {
	out, err := execute(t, "scan", "--duration", "3s", "--format", "json")
	require.NoError(t, err)
	var rows []scanRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	var found bool
	for _, r := range rows {
		if r.Addr == "0x48@0" {
			found = true
			assert.Equal(t, "TMP117", r.Type)
			assert.True(t, r.Online)
		}
	}
	assert.True(t, found, out)
}

func TestScanRejectsFormat(t *testing.T) {
	_, err := execute(t, "scan", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestSnapshotCBORIsHex(t *testing.T) {
	out, err := execute(t, "snapshot", "-d", "200ms", "-e", "cbor")
	require.NoError(t, err)
	s := strings.TrimSpace(out)
	require.NotEmpty(t, s)
	assert.Equal(t, 0, len(s)%2)
	assert.Equal(t, -1, strings.IndexFunc(s, func(r rune) bool {
		return !strings.ContainsRune("0123456789abcdef", r)
	}))
}

func TestRawDemo(t *testing.T) {
	out, err := execute(t, "raw", "0x48", "--write", "0f", "--read", "2")
	require.NoError(t, err)
	assert.Equal(t, "0117\n", out)

	_, err = execute(t, "raw", "0x48", "--write", "zz")
	assert.ErrorContains(t, err, "invalid hex")
}

func TestNoUsableBus(t *testing.T) {
	p := filepath.Join(t.TempDir(), "buses.yaml")
	require.NoError(t, os.WriteFile(p, []byte("buses:\n  - {name: X, sdaPin: 1, sclPin: 1}\n"), 0o644))
	_, err := execute(t, "-c", p, "scan", "-d", "10ms")
	assert.ErrorContains(t, err, "no usable bus")
}
