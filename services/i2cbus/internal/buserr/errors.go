package buserr

import "errors"

var (
	// Build/config
	ErrMissingName   = errors.New("missing_name")
	ErrUnknownType   = errors.New("unknown_bus_type")
	ErrDuplicateBus  = errors.New("duplicate_bus")
	ErrInvalidPin    = errors.New("invalid_pin")
	ErrInvalidFreq   = errors.New("invalid_frequency")
	ErrInvalidFilter = errors.New("invalid_filter_level")
	ErrInvalidPower  = errors.New("invalid_power_ctrl")
	ErrAddrMode      = errors.New("unsupported_addr_mode")

	// Runtime
	ErrUnknownBus = errors.New("unknown_bus")
	ErrNotStarted = errors.New("not_started")
)
