package types

import "github.com/fxamacker/cbor/v2"

// ---- Element (address) status ----

// Presence tags a status transition.
type Presence uint8

const (
	// Online: offline or unknown to online.
	Online Presence = iota + 1
	// Offline: was online, now failed enough probes.
	Offline
	// StillOffline: responded at least once but never reached online.
	StillOffline
)

func (p Presence) String() string {
	switch p {
	case Online:
		return "online"
	case Offline:
		return "offline"
	case StillOffline:
		return "still_offline"
	default:
		return "unknown"
	}
}

// StatusEvent reports one presence transition of one address.
type StatusEvent struct {
	Bus      string   `json:"bus"`
	Addr     Addr     `json:"addr"`
	Presence Presence `json:"presence"`
	DevType  string   `json:"type,omitempty"`
	TS       int64    `json:"ts_ms"`
}

// ---- Bus operational status ----

type BusStatus uint8

const (
	BusUnknown BusStatus = iota
	BusOK
	BusFailing
)

func (s BusStatus) String() string {
	switch s {
	case BusOK:
		return "ok"
	case BusFailing:
		return "failing"
	default:
		return "unknown"
	}
}

// BusStatusEvent reports a change of bus operational status.
type BusStatusEvent struct {
	Bus    string    `json:"bus"`
	Status BusStatus `json:"status"`
	TS     int64     `json:"ts_ms"`
}

// ---- Poll data ----

// PollResult is one stored poll: the concatenated read bytes of every poll
// transaction of the device.
type PollResult struct {
	TS   int64  `json:"ts_ms" cbor:"1,keyasint"`
	Data []byte `json:"data" cbor:"2,keyasint"`
}

// DeviceState is one address entry of a bus snapshot.
type DeviceState struct {
	Addr    Addr         `json:"addr" cbor:"-"`
	Packed  uint32       `json:"-" cbor:"1,keyasint"`
	Online  bool         `json:"online" cbor:"2,keyasint"`
	DevType string       `json:"type,omitempty" cbor:"3,keyasint,omitempty"`
	Polls   []PollResult `json:"polls,omitempty" cbor:"4,keyasint,omitempty"`
}

// BusSnapshot aggregates the state of one bus.
type BusSnapshot struct {
	Bus     string        `json:"bus" cbor:"1,keyasint"`
	Session string        `json:"session" cbor:"2,keyasint"`
	Status  BusStatus     `json:"status" cbor:"3,keyasint"`
	TS      int64         `json:"ts_ms" cbor:"4,keyasint"`
	Devices []DeviceState `json:"devices" cbor:"5,keyasint"`
}

// MarshalCBOR encodes s with integer keys and the packed address form.
func (s BusSnapshot) MarshalCBOR() ([]byte, error) {
	type plain BusSnapshot
	p := plain(s)
	p.Devices = make([]DeviceState, len(s.Devices))
	for i, d := range s.Devices {
		d.Packed = d.Addr.Composite()
		p.Devices[i] = d
	}
	return cbor.Marshal(p)
}

// UnmarshalCBOR is the inverse of MarshalCBOR.
func (s *BusSnapshot) UnmarshalCBOR(b []byte) error {
	type plain BusSnapshot
	var p plain
	if err := cbor.Unmarshal(b, &p); err != nil {
		return err
	}
	for i := range p.Devices {
		p.Devices[i].Addr = AddrFromComposite(p.Devices[i].Packed)
	}
	*s = BusSnapshot(p)
	return nil
}
