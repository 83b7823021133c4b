package proto

import "x10drv/internal/wire"

// Sink is the callback surface the Engine drives to mutate module state
// and notify subscribers. The root package's Manager implements it, so
// this package never imports the root package back.
type Sink interface {
	// SetLevel sets an addressed module's level directly (On/Off),
	// creating the module if it does not already exist in the registry.
	SetLevel(house wire.HouseCode, unit wire.UnitCode, level float64)
	// AdjustLevel adds delta to an addressed module's level, clamped to
	// [0, 1] and rounded to 2 decimals (Dim/Bright).
	AdjustLevel(house wire.HouseCode, unit wire.UnitCode, delta float64)
	// SetLevelForHouse applies level to every module currently registered
	// under house (AllLightsOn/AllUnitsOff mass commands).
	SetLevelForHouse(house wire.HouseCode, level float64)
	// PrimaryHouse returns the house nibble used to address the time-set
	// frame; the first letter of Config.HouseCode, or HouseNotSet.
	PrimaryHouse() wire.HouseCode

	ConnectionStatusChanged(connected bool)
	PlcAddressReceived(house wire.HouseCode, unit wire.UnitCode)
	PlcFunctionReceived(cmd wire.Command, house wire.HouseCode)
	RfDataReceived(data []byte)
	RfCommandReceived(cmd wire.Command, house wire.HouseCode, unit wire.UnitCode)
	RfSecurityReceived(event wire.SecurityEvent, address uint32)
}
