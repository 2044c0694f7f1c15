// Package devtypes is the declarative device-type catalogue: which addresses a
// type may occupy, how to recognise it, how to initialise it and how to poll
// it.
//
// Entries use a compact string grammar:
//
//	addr  "0x48" | "0x48-0x4b" | "0x48,0x49"
//	det   "0x0f=0b0000000100010111&0x07=0b00000100xxxxxxxx"
//	init  "0x0102&0x0300"
//	poll  c: "0x00=0bxxxxxxxxxxxxxxxx", i: interval ms, s: results kept
//
// In a detection pattern 'x' is don't-care, '0' and '1' must match. In a poll
// pattern only the bit count matters (it sets the read length).
package devtypes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"devicebus-go/types"
	"devicebus-go/x/conv"
)

// Entry is the declarative form loaded from YAML or JSON.
type Entry struct {
	Type string         `yaml:"type" json:"type"`
	Addr string         `yaml:"addr" json:"addr"`
	Det  string         `yaml:"det" json:"det"`
	Init string         `yaml:"init" json:"init,omitempty"`
	Poll PollEntry      `yaml:"poll" json:"poll"`
	Info map[string]any `yaml:"info" json:"info,omitempty"`
}

type PollEntry struct {
	C string `yaml:"c" json:"c"`
	I int    `yaml:"i" json:"i"` // interval ms
	S int    `yaml:"s" json:"s"` // results kept
}

// Detection is one write/read fingerprint. The read length is len(Check).
type Detection struct {
	Write []byte
	Mask  []byte
	Check []byte
}

// Match reports whether resp satisfies d: same length and every masked
// byte equal to the check byte.
func (d Detection) Match(resp []byte) bool {
	if len(resp) != len(d.Check) {
		return false
	}
	for i := range resp {
		if resp[i]&d.Mask[i] != d.Check[i] {
			return false
		}
	}
	return true
}

type PollReq struct {
	Write   []byte
	ReadLen int
}

type Poll struct {
	Requests []PollReq
	Interval time.Duration
	Store    int
}

// ResultLen is the byte count of one stored poll result.
func (p Poll) ResultLen() int {
	n := 0
	for _, r := range p.Requests {
		n += r.ReadLen
	}
	return n
}

// Type is one parsed registry entry. Immutable after New.
type Type struct {
	Name   string
	Addrs  []uint16
	Detect []Detection
	Init   [][]byte
	Poll   Poll
	entry  Entry
}

// Polled reports whether the type has a usable poll descriptor.
func (t *Type) Polled() bool {
	return len(t.Poll.Requests) > 0 && t.Poll.Interval > 0 && t.Poll.Store > 0
}

// HasAddr reports whether addr is in the type's address set.
func (t *Type) HasAddr(addr uint16) bool {
	for _, a := range t.Addrs {
		if a == addr {
			return true
		}
	}
	return false
}

// Descriptor is the structured view returned by type lookups.
type Descriptor struct {
	Type string         `json:"type"`
	Addr string         `json:"addr"`
	Det  string         `json:"det"`
	Init string         `json:"init"`
	Poll PollEntry      `json:"poll"`
	Info map[string]any `json:"info,omitempty"`
}

func (t *Type) Descriptor() Descriptor {
	e := t.entry
	return Descriptor{Type: e.Type, Addr: e.Addr, Det: e.Det, Init: e.Init, Poll: e.Poll, Info: e.Info}
}

// Registry holds types in declaration order.
type Registry struct {
	types  []*Type
	byName map[string]*Type
}

// New parses every entry. Any malformed entry fails the whole registry.
func New(entries []Entry) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Type, len(entries))}
	for i, e := range entries {
		t, err := Parse(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, e.Type, err)
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("entry %d: duplicate type %q", i, t.Name)
		}
		r.types = append(r.types, t)
		r.byName[t.Name] = t
	}
	return r, nil
}

// Parse converts one Entry.
func Parse(e Entry) (*Type, error) {
	if e.Type == "" {
		return nil, fmt.Errorf("missing type name")
	}
	t := &Type{Name: e.Type, entry: e}
	var err error
	if t.Addrs, err = ParseAddrs(e.Addr); err != nil {
		return nil, err
	}
	if t.Detect, err = ParseDetection(e.Det); err != nil {
		return nil, err
	}
	if t.Init, err = ParseInit(e.Init); err != nil {
		return nil, err
	}
	if e.Poll.C != "" {
		if t.Poll.Requests, err = ParsePoll(e.Poll.C); err != nil {
			return nil, err
		}
		t.Poll.Interval = time.Duration(e.Poll.I) * time.Millisecond
		t.Poll.Store = e.Poll.S
	}
	return t, nil
}

// Candidates returns the types whose address set contains addr, in
// declaration order.
func (r *Registry) Candidates(addr uint16) []*Type {
	var out []*Type
	for _, t := range r.types {
		if t.HasAddr(addr) {
			out = append(out, t)
		}
	}
	return out
}

// ByName looks a type up by name.
func (r *Registry) ByName(name string) (*Type, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Types returns all types in declaration order.
func (r *Registry) Types() []*Type { return append([]*Type(nil), r.types...) }

// Addresses is the sorted union of every type's addresses.
func (r *Registry) Addresses() []uint16 {
	seen := map[uint16]bool{}
	var out []uint16
	for _, t := range r.types {
		for _, a := range t.Addrs {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// -----------------------------------------------------------------------------
// Grammar
// -----------------------------------------------------------------------------

// ParseAddrs parses "0x48", "0x48-0x4b" or a comma list of either.
func ParseAddrs(s string) ([]uint16, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty address set")
	}
	var out []uint16
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := parseAddr(lo)
		if err != nil {
			return nil, err
		}
		b := a
		if isRange {
			if b, err = parseAddr(hi); err != nil {
				return nil, err
			}
		}
		if b < a {
			return nil, fmt.Errorf("address range %q reversed", part)
		}
		for v := a; v <= b; v++ {
			out = append(out, v)
		}
	}
	return out, nil
}

func parseAddr(s string) (uint16, error) {
	n, ok := conv.ParseUint(strings.TrimSpace(s))
	if !ok || n > types.AddrMax {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return uint16(n), nil
}

// pairs splits "a=b&c=d;e" into name/value pairs.
func pairs(s string) [][2]string {
	var out [][2]string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == '&' || r == ';' }) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		name, val, _ := strings.Cut(p, "=")
		out = append(out, [2]string{strings.TrimSpace(name), strings.TrimSpace(val)})
	}
	return out
}

// ParseDetection parses detection records. Empty input means no records:
// such a type matches on address alone.
func ParseDetection(s string) ([]Detection, error) {
	var out []Detection
	for _, p := range pairs(s) {
		w, ok := conv.HexBytes(p[0])
		if !ok {
			return nil, fmt.Errorf("bad detection write %q", p[0])
		}
		mask, check, err := parsePattern(p[1])
		if err != nil {
			return nil, err
		}
		out = append(out, Detection{Write: w, Mask: mask, Check: check})
	}
	return out, nil
}

// ParseInit parses initialisation writes; any "=value" part is ignored.
func ParseInit(s string) ([][]byte, error) {
	var out [][]byte
	for _, p := range pairs(s) {
		w, ok := conv.HexBytes(p[0])
		if !ok {
			return nil, fmt.Errorf("bad init write %q", p[0])
		}
		out = append(out, w)
	}
	return out, nil
}

// ParsePoll parses poll transactions.
func ParsePoll(s string) ([]PollReq, error) {
	var out []PollReq
	for _, p := range pairs(s) {
		w, ok := conv.HexBytes(p[0])
		if !ok {
			return nil, fmt.Errorf("bad poll write %q", p[0])
		}
		_, check, err := parsePattern(p[1])
		if err != nil {
			return nil, err
		}
		out = append(out, PollReq{Write: w, ReadLen: len(check)})
	}
	return out, nil
}

// parsePattern turns "0b0101xxxx..." into mask and check bytes, MSB first.
func parsePattern(s string) (mask, check []byte, err error) {
	if len(s) < 2 || s[0] != '0' || (s[1] != 'b' && s[1] != 'B') {
		return nil, nil, fmt.Errorf("pattern %q must start with 0b", s)
	}
	bits := strings.ToLower(s[2:])
	if len(bits) == 0 || len(bits)%8 != 0 {
		return nil, nil, fmt.Errorf("pattern %q is not a whole number of bytes", s)
	}
	n := len(bits) / 8
	mask, check = make([]byte, n), make([]byte, n)
	for i := 0; i < len(bits); i++ {
		bit := byte(0x80) >> (i % 8)
		switch bits[i] {
		case 'x':
		case '1':
			mask[i/8] |= bit
			check[i/8] |= bit
		case '0':
			mask[i/8] |= bit
		default:
			return nil, nil, fmt.Errorf("pattern %q has bad digit %q", s, bits[i])
		}
	}
	return mask, check, nil
}
