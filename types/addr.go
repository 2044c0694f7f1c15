package types

import (
	"devicebus-go/errcode"
	"devicebus-go/x/conv"
)

// Address and slot domain.
const (
	AddrBits = 7
	AddrMax  = 1<<AddrBits - 1
	SlotMax  = 63   // packed form keeps 6 bits of slot
	ScanMin  = 0x04 // below this are reserved addresses
	ScanMax  = 0x77 // above this are reserved addresses
	addrSep  = '@'
	addrMask = 0x3FF
)

// Addr is a composite bus address. Slot 0 is the root bus; slots 1.. are
// extender channels.
type Addr struct {
	Addr uint16
	Slot uint8
}

// Valid reports whether a is inside the address and slot domain.
func (a Addr) Valid() bool { return a.Addr <= AddrMax && a.Slot <= SlotMax }

// String is the canonical text form, e.g. "0x48@0" or "0x1d@12".
func (a Addr) String() string {
	buf := make([]byte, 0, 10)
	buf = append(buf, '0', 'x')
	buf = conv.AppendHex(buf, uint64(a.Addr))
	buf = append(buf, addrSep)
	return string(conv.AppendUint(buf, uint64(a.Slot)))
}

// Composite packs a into the 16-bit-safe uint32 form used on the wire:
// address in bits 0..9 and slot in bits 10..15.
func (a Addr) Composite() uint32 {
	return uint32(a.Addr)&addrMask | (uint32(a.Slot)&0x3F)<<10
}

// AddrFromComposite is the inverse of Addr.Composite.
func AddrFromComposite(v uint32) Addr {
	return Addr{Addr: uint16(v & addrMask), Slot: uint8((v >> 10) & 0x3F)}
}

// ParseAddr decodes the canonical text form. A bare "0x48" means slot 0.
func ParseAddr(s string) (Addr, error) {
	addrPart, slotPart := s, ""
	for i := 0; i < len(s); i++ {
		if s[i] == addrSep {
			addrPart, slotPart = s[:i], s[i+1:]
			if slotPart == "" {
				return Addr{}, errcode.New(errcode.InvalidAddr, "parse_addr", s)
			}
			break
		}
	}
	if len(addrPart) < 3 || addrPart[0] != '0' || (addrPart[1] != 'x' && addrPart[1] != 'X') {
		return Addr{}, errcode.New(errcode.InvalidAddr, "parse_addr", s)
	}
	n, ok := conv.ParseUint(addrPart)
	if !ok || n > AddrMax {
		return Addr{}, errcode.New(errcode.InvalidAddr, "parse_addr", s)
	}
	a := Addr{Addr: uint16(n)}
	if slotPart != "" {
		for i := 0; i < len(slotPart); i++ {
			if slotPart[i] < '0' || slotPart[i] > '9' {
				return Addr{}, errcode.New(errcode.InvalidAddr, "parse_addr", s)
			}
		}
		sl, ok := conv.ParseUint(slotPart)
		if !ok || sl > SlotMax {
			return Addr{}, errcode.New(errcode.InvalidAddr, "parse_addr", s)
		}
		a.Slot = uint8(sl)
	}
	return a, nil
}

// MarshalText makes Addr usable as a JSON map key and YAML scalar.
func (a Addr) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText accepts anything ParseAddr accepts.
func (a *Addr) UnmarshalText(b []byte) error {
	v, err := ParseAddr(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// AddrToString is Addr.String as a function.
func AddrToString(a Addr) string { return a.String() }

// StringToAddr is ParseAddr.
func StringToAddr(s string) (Addr, error) { return ParseAddr(s) }
