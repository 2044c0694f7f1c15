package timex

import "time"

// Expired reports whether at least d has elapsed since start.
// A zero start is always expired.
func Expired(now, start time.Time, d time.Duration) bool {
	return start.IsZero() || now.Sub(start) >= d
}

// ResetTimer stops, drains and re-arms t. Negative d fires immediately.
func ResetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Stop() {
		DrainTimer(t)
	}
	t.Reset(d)
}

// DrainTimer discards a pending fire without blocking.
func DrainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
