package x10drv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x10drv/internal/wire"
)

func TestNewManagerHouseCodeBuildsSixteenModules(t *testing.T) {
	m, err := NewManager(NewConfig("/dev/ttyUSB0", "A"))
	require.NoError(t, err)
	assert.Len(t, m.Modules().All(), 16)
	assert.Equal(t, wire.HouseA, m.PrimaryHouse())
}

func TestNewManagerRejectsMissingPortName(t *testing.T) {
	_, err := NewManager(Config{HouseCode: "A"})
	assert.Error(t, err)
}

func TestNewManagerRejectsBadHouseCode(t *testing.T) {
	_, err := NewManager(NewConfig("/dev/ttyUSB0", "Z"))
	assert.Error(t, err)
}

func TestConnectMissingSerialDeviceReturnsFalse(t *testing.T) {
	m, err := NewManager(NewConfig("/dev/ttyUSB-does-not-exist", "A"))
	require.NoError(t, err)
	assert.False(t, m.Connect())
	assert.False(t, m.IsConnected())
}

func TestManagerSinkSetLevelMirrorsIntoRegistry(t *testing.T) {
	m, err := NewManager(NewConfig("/dev/ttyUSB0", "A"))
	require.NoError(t, err)

	m.SetLevel(wire.HouseA, wire.Unit1, 1.0)
	mod, ok := m.Modules().Get("A1")
	require.True(t, ok)
	assert.Equal(t, 1.0, mod.Level())
}

func TestManagerSinkSetLevelForHouseAppliesToAll(t *testing.T) {
	m, err := NewManager(NewConfig("/dev/ttyUSB0", "A,B"))
	require.NoError(t, err)

	m.SetLevelForHouse(wire.HouseA, 1.0)
	for _, mod := range m.Modules().InHouse(wire.HouseA) {
		assert.Equal(t, 1.0, mod.Level())
	}
	for _, mod := range m.Modules().InHouse(wire.HouseB) {
		assert.Equal(t, 0.0, mod.Level())
	}
}

func TestManagerModuleChangedEventFires(t *testing.T) {
	m, err := NewManager(NewConfig("/dev/ttyUSB0", "A"))
	require.NoError(t, err)

	var got *Module
	m.OnModuleChanged(func(mod *Module, property string) {
		got = mod
		assert.Equal(t, "Level", property)
	})

	m.SetLevel(wire.HouseA, wire.Unit1, 1.0)
	require.NotNil(t, got)
	assert.Equal(t, "A1", got.Address())
}

func TestManagerConnectionStatusEventFires(t *testing.T) {
	m, err := NewManager(NewConfig("/dev/ttyUSB0", "A"))
	require.NoError(t, err)

	var states []bool
	m.OnConnectionStatusChanged(func(connected bool) { states = append(states, connected) })

	m.ConnectionStatusChanged(true)
	m.ConnectionStatusChanged(false)

	assert.Equal(t, []bool{true, false}, states)
	assert.False(t, m.IsConnected())
}
