package x10drv

import (
	"sync"

	"x10drv/internal/wire"
)

// Registry is a keyed map of Modules, addressed by their "<House><UnitNumber>"
// string, with event fan-out when a module's Level changes (§4.4).
type Registry struct {
	mu       sync.RWMutex
	modules  map[string]*Module
	onChange func(*Module)
}

func newRegistry() *Registry {
	return &Registry{modules: make(map[string]*Module)}
}

// setOnChange installs the callback forwarded to every module created
// from this point on, and to every module already present.
func (r *Registry) setOnChange(fn func(*Module)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
	for _, m := range r.modules {
		m.mu.Lock()
		m.onChange = fn
		m.mu.Unlock()
	}
}

// Get looks up a module by address ("C7"); ok is false if absent.
func (r *Registry) Get(address string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[address]
	return m, ok
}

// All returns every registered module, in no particular order.
func (r *Registry) All() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	return out
}

// InHouse returns every registered module under the given house letter.
func (r *Registry) InHouse(house wire.HouseCode) []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Module, 0)
	for _, m := range r.modules {
		if m.house == house {
			out = append(out, m)
		}
	}
	return out
}

// getOrCreate returns the module at (house, unit), auto-creating it with
// Level=0.0 if a decoded address refers to a module not yet registered
// (§4.4).
func (r *Registry) getOrCreate(house wire.HouseCode, unit wire.UnitCode) *Module {
	address := wire.Address(house, unit)

	r.mu.RLock()
	m, ok := r.modules[address]
	r.mu.RUnlock()
	if ok {
		return m
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.modules[address]; ok {
		return m
	}
	m = newModule(house, unit)
	m.onChange = r.onChange
	r.modules[address] = m
	return m
}

// setHouseCodes clears the registry and repopulates it with 16 modules
// (Unit_1..Unit_16, Level=0.0) per listed house letter.
func (r *Registry) setHouseCodes(houses []wire.HouseCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = make(map[string]*Module, len(houses)*16)
	for _, h := range houses {
		for n := 1; n <= 16; n++ {
			unit, _ := wire.UnitFromNumber(n)
			m := newModule(h, unit)
			m.onChange = r.onChange
			r.modules[m.address] = m
		}
	}
}
