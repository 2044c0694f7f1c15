package types

import (
	"time"

	"devicebus-go/errcode"
)

// RequestKind categorises a bus request. Client kinds are served ahead of
// internally generated ones.
type RequestKind uint8

const (
	KindStd          RequestKind = iota // explicit client request
	KindFirmware                        // client firmware transfer chunk
	KindSendIfPaused                    // client request allowed while paused
	KindPoll                            // scheduled device poll
	KindFastScan                        // discovery probe
	KindSlowScan                        // background re-validation probe
	KindIdent                           // detection record probe
	KindInit                            // device initialisation write
)

// IsClient reports whether k originates outside the engine.
func (k RequestKind) IsClient() bool { return k <= KindSendIfPaused }

// IsScan reports whether k is a presence probe.
func (k RequestKind) IsScan() bool { return k == KindFastScan || k == KindSlowScan }

func (k RequestKind) String() string {
	switch k {
	case KindStd:
		return "std"
	case KindFirmware:
		return "firmware"
	case KindSendIfPaused:
		return "send_if_paused"
	case KindPoll:
		return "poll"
	case KindFastScan:
		return "fast_scan"
	case KindSlowScan:
		return "slow_scan"
	case KindIdent:
		return "ident"
	case KindInit:
		return "init"
	default:
		return "unknown"
	}
}

// Request describes one transaction: write Write, then read ReadLen bytes.
// Both may be empty (a presence probe).
type Request struct {
	Addr    Addr
	Write   []byte
	ReadLen int
	Kind    RequestKind
	CmdID   uint32

	// BarAfterSend suppresses further access to Addr for this long after the
	// request is sent (devices busy after a write, e.g. EEPROM commit).
	BarAfterSend time.Duration

	// Done is called from the bus goroutine with the outcome. It must not
	// block. Ctx is handed back untouched.
	Done func(Result)
	Ctx  any
}

// Result is the outcome of one Request.
type Result struct {
	Addr   Addr
	CmdID  uint32
	Code   errcode.Code
	Read   []byte
	TimeMs int64
	Ctx    any
}

// OK reports success.
func (r Result) OK() bool { return r.Code == errcode.OK }
