package x10drv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x10drv/internal/wire"
)

func TestSetHouseCodesCreatesSixteenModulesAtZero(t *testing.T) {
	r := newRegistry()
	r.setHouseCodes([]wire.HouseCode{wire.HouseA})

	all := r.All()
	require.Len(t, all, 16)
	for _, m := range all {
		assert.Equal(t, 0.0, m.Level())
		assert.Equal(t, wire.HouseA, m.House())
	}
	_, ok := r.Get("A1")
	assert.True(t, ok)
	_, ok = r.Get("A16")
	assert.True(t, ok)
}

func TestGetOrCreateAutoCreatesAtZero(t *testing.T) {
	r := newRegistry()
	m := r.getOrCreate(wire.HouseC, wire.Unit7)
	assert.Equal(t, "C7", m.Address())
	assert.Equal(t, 0.0, m.Level())

	again := r.getOrCreate(wire.HouseC, wire.Unit7)
	assert.Same(t, m, again, "a second getOrCreate for the same address must return the same module")
}

func TestModuleLevelChangeNotifiesOnDiffOnly(t *testing.T) {
	r := newRegistry()
	var notified int
	r.setOnChange(func(m *Module) { notified++ })

	m := r.getOrCreate(wire.HouseA, wire.Unit1)
	m.setLevel(1.0)
	m.setLevel(1.0) // no-op, same value
	m.setLevel(0.5)

	assert.Equal(t, 2, notified, "only the two actual level changes should notify")
}

func TestModuleLevelClamped(t *testing.T) {
	m := newModule(wire.HouseA, wire.Unit1)
	m.setLevel(5.0)
	assert.Equal(t, 1.0, m.Level())
	m.setLevel(-5.0)
	assert.Equal(t, 0.0, m.Level())
}

func TestModuleAdjustLevelRoundsAndClamps(t *testing.T) {
	m := newModule(wire.HouseA, wire.Unit1)
	m.setLevel(0.9)
	m.adjustLevel(0.2)
	assert.Equal(t, 1.0, m.Level())
	m.setLevel(0.1)
	m.adjustLevel(-0.2)
	assert.Equal(t, 0.0, m.Level())
}
