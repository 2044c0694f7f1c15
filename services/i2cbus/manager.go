package i2cbus

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"devicebus-go/errcode"
	"devicebus-go/events"
	"devicebus-go/services/i2cbus/internal/buserr"
	"devicebus-go/services/i2cbus/internal/devtypes"
	"devicebus-go/services/i2cbus/internal/platform"
	"devicebus-go/types"
)

// ManagerOptions configures a Manager. Zero values are usable.
type ManagerOptions struct {
	Factory    Factory
	Types      *Registry          // bus constructors; DefaultRegistry when nil
	Devices    *devtypes.Registry // device types; nil disables identification
	Hub        *events.Hub        // created when nil
	Log        *slog.Logger
	PollJitter time.Duration
}

// Manager owns every configured bus and the cross-bus query surface.
type Manager struct {
	buses   []*Bus // sorted by name
	byName  map[string]*Bus
	devices *devtypes.Registry
	hub     *events.Hub
	log     *slog.Logger
}

// NewManager builds one bus per entry. Entries that fail are logged and
// skipped; the rest still come up.
func NewManager(cfg types.BusesConfig, opts ManagerOptions) *Manager {
	if opts.Types == nil {
		opts.Types = DefaultRegistry()
	}
	if opts.Hub == nil {
		opts.Hub = events.NewHub(0)
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Factory == nil {
		opts.Factory = platform.DefaultFactory()
	}
	m := &Manager{
		byName:  make(map[string]*Bus),
		devices: opts.Devices,
		hub:     opts.Hub,
		log:     opts.Log,
	}
	for i, bc := range cfg.Buses {
		if bc.IdentEnable == nil {
			bc.IdentEnable = cfg.IdentEnable
		}
		if err := m.add(bc, opts); err != nil {
			m.log.Warn("bus config skipped", "index", i, "name", bc.Name, "err", err)
		}
	}
	sort.Slice(m.buses, func(i, j int) bool { return m.buses[i].Name() < m.buses[j].Name() })
	return m
}

func (m *Manager) add(bc types.BusConfig, opts ManagerOptions) error {
	typ := strings.ToLower(bc.Type)
	if typ == "" {
		typ = TypeI2C
	}
	ctor, ok := opts.Types.Lookup(typ)
	if !ok {
		return fmt.Errorf("%w: %q", buserr.ErrUnknownType, bc.Type)
	}
	if _, dup := m.byName[bc.Name]; dup {
		return fmt.Errorf("%w: %q", buserr.ErrDuplicateBus, bc.Name)
	}
	b, err := ctor(bc, Options{
		Factory:    opts.Factory,
		Registry:   opts.Devices,
		Listener:   m.hub,
		Log:        opts.Log,
		PollJitter: opts.PollJitter,
	})
	if err != nil {
		return err
	}
	m.buses = append(m.buses, b)
	m.byName[b.Name()] = b
	return nil
}

// Start starts every bus.
func (m *Manager) Start(ctx context.Context) {
	for _, b := range m.buses {
		b.Start(ctx)
	}
}

// Close stops every bus.
func (m *Manager) Close() {
	for _, b := range m.buses {
		b.Close()
	}
}

// Events is the hub carrying presence and bus-status changes of all buses.
func (m *Manager) Events() *events.Hub { return m.hub }

// Names lists bus names in order.
func (m *Manager) Names() []string {
	out := make([]string, len(m.buses))
	for i, b := range m.buses {
		out[i] = b.Name()
	}
	return out
}

// Bus looks a bus up by name.
func (m *Manager) Bus(name string) (*Bus, error) {
	if b, ok := m.byName[name]; ok {
		return b, nil
	}
	return nil, errcode.Wrap(errcode.UnknownBus, "bus", fmt.Errorf("%w: %q", buserr.ErrUnknownBus, name))
}

// Raw sends one transaction to addr ("0x48@0" or "0x48") on the named bus.
func (m *Manager) Raw(ctx context.Context, bus, addr string, w []byte, readLen int) ([]byte, error) {
	b, err := m.Bus(bus)
	if err != nil {
		return nil, err
	}
	a, err := types.ParseAddr(addr)
	if err != nil {
		return nil, err
	}
	return b.Raw(ctx, a, w, readLen)
}

// -----------------------------------------------------------------------------
// Device types
// -----------------------------------------------------------------------------

// DeviceTypeByName returns the registry descriptor of a type.
func (m *Manager) DeviceTypeByName(name string) (devtypes.Descriptor, error) {
	if m.devices == nil {
		return devtypes.Descriptor{}, errcode.New(errcode.NotInit, "devtype", "no device registry")
	}
	t, ok := m.devices.ByName(name)
	if !ok {
		return devtypes.Descriptor{}, errcode.New(errcode.InvalidParams, "devtype", "unknown type "+name)
	}
	return t.Descriptor(), nil
}

// DeviceTypeAt returns the descriptor of the device identified at addr on
// the named bus.
func (m *Manager) DeviceTypeAt(bus, addr string) (devtypes.Descriptor, error) {
	b, err := m.Bus(bus)
	if err != nil {
		return devtypes.Descriptor{}, err
	}
	a, err := types.ParseAddr(addr)
	if err != nil {
		return devtypes.Descriptor{}, err
	}
	name := b.DeviceType(a)
	if name == "" {
		return devtypes.Descriptor{}, errcode.New(errcode.InvalidAddr, "devtype", "no identified device at "+a.String())
	}
	return m.DeviceTypeByName(name)
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

// Snapshot returns every bus's state keyed by bus name.
func (m *Manager) Snapshot(maxPolls int) map[string]types.BusSnapshot {
	out := make(map[string]types.BusSnapshot, len(m.buses))
	for _, b := range m.buses {
		out[b.Name()] = b.Snapshot(maxPolls)
	}
	return out
}

func (m *Manager) SnapshotJSON(maxPolls int) ([]byte, error) {
	return json.Marshal(m.Snapshot(maxPolls))
}

// SnapshotCBOR is the compact encoding: integer keys and packed addresses.
func (m *Manager) SnapshotCBOR(maxPolls int) ([]byte, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(m.Snapshot(maxPolls))
}

// Fingerprint changes whenever any bus reports new presence or poll data:
// per bus in name order, the low 16 bits of its last update in ms, little
// endian.
func (m *Manager) Fingerprint() []byte {
	out := make([]byte, 0, 2*len(m.buses))
	for _, b := range m.buses {
		out = binary.LittleEndian.AppendUint16(out, uint16(b.LastStatusUpdate(true, true)))
	}
	return out
}
