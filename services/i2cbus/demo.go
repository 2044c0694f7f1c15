package i2cbus

import (
	"devicebus-go/services/i2cbus/internal/platform"
	"devicebus-go/types"
)

// DemoFactory returns a simulated platform for host runs of the tooling.
// Port 0 carries one device of each built-in type, with the proximity
// sensor behind a channel multiplexer at 0x70. Other ports are empty.
func DemoFactory() Factory {
	f := platform.NewHostFactory()
	sb := platform.NewSimBus()
	sb.AddDevice(types.Addr{Addr: 0x48}, &platform.SimDevice{Regs: map[byte][]byte{
		0x0f: {0x01, 0x17},
		0x00: {0x0c, 0x80},
	}})
	sb.AddDevice(types.Addr{Addr: 0x18}, &platform.SimDevice{Regs: map[byte][]byte{
		0x06: {0x00, 0x54},
		0x07: {0x04, 0x00},
		0x05: {0xc1, 0x90},
	}})
	sb.AddDevice(types.Addr{Addr: 0x38}, &platform.SimDevice{Regs: map[byte][]byte{
		0x71: {0x1c},
		0xac: {0x1c, 0x80, 0x00, 0x06, 0x00, 0x00},
	}})
	sb.AddDevice(types.Addr{Addr: 0x68}, &platform.SimDevice{Regs: map[byte][]byte{
		0x43: {0x23, 0x00},
		0x3a: {0x44, 0x51},
		0x3b: {0x71, 0x1c},
		0x3c: {0x3c, 0x1c},
		0x3f: {0x5e, 0x33},
	}})
	sb.AddMux(0x70, 1)
	sb.AddDevice(types.Addr{Addr: 0x60, Slot: 2}, &platform.SimDevice{Regs: map[byte][]byte{
		0x0c: {0x86, 0x01},
		0x08: {0x10, 0x00},
		0x09: {0x20, 0x01},
		0x0a: {0x30, 0x02},
	}})
	f.Attach(0, sb)
	return f
}
