// Package ident matches a newly responding address against the device-type
// registry and initialises whatever it finds.
package ident

import (
	"log/slog"

	"devicebus-go/errcode"
	"devicebus-go/services/i2cbus/internal/devtypes"
	"devicebus-go/types"
)

// Exec performs one transaction on the owning bus goroutine.
type Exec func(a types.Addr, w []byte, readLen int, kind types.RequestKind) ([]byte, errcode.Code)

type Matcher struct {
	reg     *devtypes.Registry
	enabled bool
	log     *slog.Logger
}

func New(reg *devtypes.Registry, enabled bool, log *slog.Logger) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	return &Matcher{reg: reg, enabled: enabled && reg != nil, log: log}
}

func (m *Matcher) Enabled() bool { return m.enabled }

// Identify tries each candidate type for a.Addr in registry order and returns
// the first whose detection records all pass, or nil. On a match the type's
// init writes are sent in order before returning.
func (m *Matcher) Identify(a types.Addr, exec Exec) *devtypes.Type {
	if !m.enabled {
		return nil
	}
	for _, t := range m.reg.Candidates(a.Addr) {
		if m.detect(a, t, exec) {
			m.log.Debug("identified", "addr", a.String(), "type", t.Name)
			m.initialise(a, t, exec)
			return t
		}
	}
	m.log.Debug("no type matched", "addr", a.String())
	return nil
}

func (m *Matcher) detect(a types.Addr, t *devtypes.Type, exec Exec) bool {
	for _, d := range t.Detect {
		resp, code := exec(a, d.Write, len(d.Check), types.KindIdent)
		if code != errcode.OK || !d.Match(resp) {
			return false
		}
	}
	return true
}

// initialise sends every init write; failures are logged and otherwise
// ignored.
func (m *Matcher) initialise(a types.Addr, t *devtypes.Type, exec Exec) {
	for _, w := range t.Init {
		if _, code := exec(a, w, 0, types.KindInit); code != errcode.OK {
			m.log.Debug("init write failed", "addr", a.String(), "type", t.Name, "code", string(code))
		}
	}
}
