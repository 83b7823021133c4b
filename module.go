package x10drv

import (
	"math"
	"sync"

	"x10drv/internal/wire"
)

// Module mirrors the last known state of one addressable X10 unit. Its
// lifetime is tied to the Registry that created it; mutation only ever
// comes from the protocol engine (decoded inbound frames) or from command
// handlers on successful outbound commands (§3).
type Module struct {
	mu sync.Mutex

	house       wire.HouseCode
	unit        wire.UnitCode
	address     string
	description string
	level       float64

	onChange func(*Module)
}

func newModule(house wire.HouseCode, unit wire.UnitCode) *Module {
	return &Module{
		house:   house,
		unit:    unit,
		address: wire.Address(house, unit),
	}
}

// Address returns the module's "<House><UnitNumber>" identifier, e.g. "C7".
func (m *Module) Address() string { return m.address }

// House returns the module's house code.
func (m *Module) House() wire.HouseCode { return m.house }

// Unit returns the module's unit code.
func (m *Module) Unit() wire.UnitCode { return m.unit }

// Level returns the module's current level in [0, 1].
func (m *Module) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Description returns the module's optional free-text label.
func (m *Module) Description() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.description
}

// SetDescription sets the module's free-text label.
func (m *Module) SetDescription(desc string) {
	m.mu.Lock()
	m.description = desc
	m.mu.Unlock()
}

// setLevel clamps level to [0, 1] and, if it differs from the prior
// value, invokes onChange (the Registry's forwarding hook to Manager's
// ModuleChanged event).
func (m *Module) setLevel(level float64) {
	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}
	m.mu.Lock()
	changed := level != m.level
	m.level = level
	onChange := m.onChange
	m.mu.Unlock()
	if changed && onChange != nil {
		onChange(m)
	}
}

// adjustLevel adds delta to the current level, rounds to 2 decimals, and
// clamps to [0, 1] (Dim/Bright step application, §4.3).
func (m *Module) adjustLevel(delta float64) {
	m.mu.Lock()
	next := math.Round((m.level+delta)*100) / 100
	m.mu.Unlock()
	m.setLevel(next)
}
