// Package mathx holds the generic numeric helpers used when applying config
// defaults and address ranges.
package mathx

import "golang.org/x/exp/constraints"

func ordered[T constraints.Ordered](lo, hi T) (T, T) {
	if hi < lo {
		return hi, lo
	}
	return lo, hi
}

// Clamp limits v to the closed range between lo and hi, in either order.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	lo, hi = ordered(lo, hi)
	return min(max(v, lo), hi)
}

// Between reports whether v lies in the closed range between lo and hi.
func Between[T constraints.Ordered](v, lo, hi T) bool {
	lo, hi = ordered(lo, hi)
	return lo <= v && v <= hi
}

// OrDefault returns d when v is zero or negative. Config fields use zero for
// "unset".
func OrDefault[T constraints.Integer | constraints.Float](v, d T) T {
	if v <= 0 {
		return d
	}
	return v
}
