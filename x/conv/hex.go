package conv

const hexd = "0123456789abcdef"

// AppendHex appends n as lowercase hex, no prefix, no padding.
func AppendHex(dst []byte, n uint64) []byte {
	var buf [16]byte
	i := len(buf)
	for {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
		if n == 0 {
			break
		}
	}
	return append(dst, buf[i:]...)
}

// AppendUint appends n in decimal.
func AppendUint(dst []byte, n uint64) []byte {
	var buf [20]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return append(dst, buf[i:]...)
}

// AppendHexBytes appends each byte of b as two lowercase hex digits.
func AppendHexBytes(dst []byte, b []byte) []byte {
	for _, c := range b {
		dst = append(dst, hexd[c>>4], hexd[c&0xF])
	}
	return dst
}

// HexBytes decodes "0xAABB" or "AABB" into bytes. An odd digit count is
// treated as having a leading zero. Empty input (after the prefix) fails.
func HexBytes(s string) ([]byte, bool) {
	s = trimPrefix(s, 'x')
	if len(s) == 0 {
		return nil, false
	}
	out := make([]byte, 0, (len(s)+1)/2)
	if len(s)%2 == 1 {
		v, ok := nibble(s[0])
		if !ok {
			return nil, false
		}
		out = append(out, v)
		s = s[1:]
	}
	for i := 0; i+1 < len(s); i += 2 {
		hi, ok1 := nibble(s[i])
		lo, ok2 := nibble(s[i+1])
		if !ok1 || !ok2 {
			return nil, false
		}
		out = append(out, hi<<4|lo)
	}
	return out, true
}

// ParseUint parses a decimal number, or hex with a 0x prefix, or binary
// with a 0b prefix. No fmt/strconv dependency.
func ParseUint(s string) (uint64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	base := uint64(10)
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			base, s = 16, s[2:]
		case 'b', 'B':
			base, s = 2, s[2:]
		}
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		d, ok := nibble(s[i])
		if !ok || uint64(d) >= base {
			return 0, false
		}
		if n > (^uint64(0)-uint64(d))/base {
			return 0, false
		}
		n = n*base + uint64(d)
	}
	return n, true
}

func trimPrefix(s string, kind byte) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == kind || s[1] == kind-('a'-'A')) {
		return s[2:]
	}
	return s
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
