// Package decode turns stored poll results into named readings. Decoders are
// keyed by device type name and see the concatenated read bytes of one poll.
package decode

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"devicebus-go/drivers/aht20"
	"devicebus-go/drivers/ltc4015"
	"devicebus-go/drivers/mcp9808"
	"devicebus-go/drivers/tmp117"
)

var ErrNoDecoder = errors.New("decode: no decoder for type")

// Field is one reading in integer engineering units.
type Field struct {
	Name  string `json:"name" cbor:"1,keyasint"`
	Value int32  `json:"value" cbor:"2,keyasint"`
	Unit  string `json:"unit" cbor:"3,keyasint"`
}

// Func decodes one poll result.
type Func func(data []byte) ([]Field, error)

// Table maps device type names to decoders. Safe for concurrent use.
type Table struct {
	mu sync.RWMutex
	m  map[string]Func
}

func NewTable() *Table { return &Table{m: make(map[string]Func)} }

// Default returns a table covering the built-in device types.
func Default() *Table {
	t := NewTable()
	t.Register("TMP117", decodeTMP117)
	t.Register("MCP9808", decodeMCP9808)
	t.Register("VCNL4040", decodeVCNL4040)
	t.Register("LSM6DS3", decodeLSM6DS3)
	t.Register("AHT20", decodeAHT20)
	t.Register("LTC4015", decodeLTC4015)
	return t
}

// Register installs or replaces the decoder for typ.
func (t *Table) Register(typ string, f Func) {
	t.mu.Lock()
	t.m[typ] = f
	t.mu.Unlock()
}

// Types lists the decodable type names.
func (t *Table) Types() []string {
	t.mu.RLock()
	out := make([]string, 0, len(t.m))
	for k := range t.m {
		out = append(out, k)
	}
	t.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (t *Table) Decode(typ string, data []byte) ([]Field, error) {
	t.mu.RLock()
	f, ok := t.m[typ]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDecoder, typ)
	}
	return f(data)
}

// -----------------------------------------------------------------------------
// Built-in decoders
// -----------------------------------------------------------------------------

func decodeTMP117(data []byte) ([]Field, error) {
	mC, err := tmp117.Milli(data)
	if err != nil {
		return nil, err
	}
	return []Field{{"temperature", mC, "mC"}}, nil
}

func decodeMCP9808(data []byte) ([]Field, error) {
	mC, err := mcp9808.Milli(data)
	if err != nil {
		return nil, err
	}
	return []Field{{"temperature", mC, "mC"}}, nil
}

func decodeAHT20(data []byte) ([]Field, error) {
	s, err := aht20.Parse(data)
	if err != nil {
		return nil, err
	}
	return []Field{
		{"humidity", s.DeciRelHumidity(), "d%RH"},
		{"temperature", s.DeciCelsius(), "dC"},
	}, nil
}

func decodeLTC4015(data []byte) ([]Field, error) {
	tm, err := ltc4015.Parse(data, ltc4015.ChemLithium)
	if err != nil {
		return nil, err
	}
	return []Field{
		{"vbat_cell", tm.VBATCell_mV, "mV"},
		{"vin", tm.VIN_mV, "mV"},
		{"vsys", tm.VSYS_mV, "mV"},
		{"die", tm.Die_mC, "mC"},
	}, nil
}

// VCNL4040 words are little endian: proximity, ambient, white.
func decodeVCNL4040(data []byte) ([]Field, error) {
	return words(data, true, false, "counts", "proximity", "ambient", "white")
}

// LSM6DS3 output registers are little-endian int16: gyro x,y,z then accel x,y,z.
func decodeLSM6DS3(data []byte) ([]Field, error) {
	return words(data, true, true, "lsb", "gyro_x", "gyro_y", "gyro_z", "accel_x", "accel_y", "accel_z")
}

func words(data []byte, le, signed bool, unit string, names ...string) ([]Field, error) {
	if len(data) < 2*len(names) {
		return nil, fmt.Errorf("decode: short frame: %d < %d", len(data), 2*len(names))
	}
	out := make([]Field, len(names))
	for i, n := range names {
		lo, hi := data[2*i], data[2*i+1]
		if !le {
			lo, hi = hi, lo
		}
		u := uint16(lo) | uint16(hi)<<8
		v := int32(u)
		if signed {
			v = int32(int16(u))
		}
		out[i] = Field{Name: n, Value: v, Unit: unit}
	}
	return out, nil
}
