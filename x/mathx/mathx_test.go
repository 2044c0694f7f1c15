package mathx

import (
	"testing"
	"time"
)

func TestClamp(t *testing.T) {
	if got := Clamp(12, 0, 7); got != 7 {
		t.Fatalf("Clamp high = %d", got)
	}
	if got := Clamp(-1, 7, 0); got != 0 {
		t.Fatalf("Clamp swapped bounds = %d", got)
	}
	if !Between(uint16(0x72), 0x70, 0x77) || Between(uint16(0x78), 0x77, 0x70) {
		t.Fatalf("Between mismatch")
	}
}

func TestOrDefault(t *testing.T) {
	if got := OrDefault(0, 3); got != 3 {
		t.Fatalf("OrDefault(0) = %d", got)
	}
	if got := OrDefault(-5*time.Millisecond, time.Second); got != time.Second {
		t.Fatalf("OrDefault(neg duration) = %v", got)
	}
	if got := OrDefault(uint8(9), 1); got != 9 {
		t.Fatalf("OrDefault(9) = %d", got)
	}
}
