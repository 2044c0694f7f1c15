package errcode

import "errors"

// Code is a stable, bus-facing result identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Busy          Code = "busy"
	InvalidParams Code = "invalid_params"
	InvalidConfig Code = "invalid_config"

	// Addressing
	UnknownBus      Code = "unknown_bus"
	InvalidAddr     Code = "invalid_addr"
	SlotUnreachable Code = "slot_unreachable"
	Barred          Code = "barred"

	// Transaction outcome
	Nack     Code = "nack"
	Timeout  Code = "timeout"
	BusStuck Code = "bus_stuck"
	NotInit  Code = "not_init"

	// Admission
	QueueFull Code = "queue_full"
	Closed    Code = "closed"
	Paused    Code = "paused"

	Error Code = "error" // generic fallback
)

// E wraps a Code with the operation, a message and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.Barred) match a wrapped *E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// New builds an *E.
func New(c Code, op, msg string) *E { return &E{C: c, Op: op, Msg: msg} }

// Wrap builds an *E around a cause.
func Wrap(c Code, op string, err error) *E {
	e := &E{C: c, Op: op, Err: err}
	if err != nil {
		e.Msg = err.Error()
	}
	return e
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}

// MapDriverErr maps errors returned by a drivers.I2C Tx to a Code.
// Drivers differ; anything unrecognised is treated as a missing acknowledge.
func MapDriverErr(err error) Code {
	if err == nil {
		return OK
	}
	switch c := Of(err); c {
	case Timeout, Busy, BusStuck, Nack:
		return c
	}
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if errors.As(err, &t) && t.Timeout() {
		return Timeout
	}
	return Nack
}
