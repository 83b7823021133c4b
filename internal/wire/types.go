// Package wire implements the X10 byte-level data model: house/unit
// addressing, logical commands, frame shapes, and the nibble tables that
// map between them and the physical wire encoding.
package wire

import "fmt"

// HouseCode is one of the 16 X10 house letters, A through P, or NotSet.
type HouseCode byte

const (
	HouseNotSet HouseCode = iota
	HouseA
	HouseB
	HouseC
	HouseD
	HouseE
	HouseF
	HouseG
	HouseH
	HouseI
	HouseJ
	HouseK
	HouseL
	HouseM
	HouseN
	HouseO
	HouseP
)

// houseNibble is the X10 wire-nibble value per house letter. The encoding
// is not alphabetic or sequential.
var houseNibble = map[HouseCode]byte{
	HouseA: 6, HouseB: 14, HouseC: 2, HouseD: 10,
	HouseE: 1, HouseF: 9, HouseG: 5, HouseH: 13,
	HouseI: 7, HouseJ: 15, HouseK: 3, HouseL: 11,
	HouseM: 0, HouseN: 8, HouseO: 4, HouseP: 12,
	HouseNotSet: 0xFF,
}

var nibbleHouse = func() map[byte]HouseCode {
	m := make(map[byte]HouseCode, len(houseNibble))
	for h, n := range houseNibble {
		if h == HouseNotSet {
			continue
		}
		m[n] = h
	}
	return m
}()

// Nibble returns the wire-nibble value for h.
func (h HouseCode) Nibble() byte {
	if n, ok := houseNibble[h]; ok {
		return n
	}
	return 0xFF
}

// HouseFromNibble maps a wire nibble back to a HouseCode, ok=false if the
// nibble has no assigned house.
func HouseFromNibble(n byte) (HouseCode, bool) {
	h, ok := nibbleHouse[n&0x0F]
	return h, ok
}

// Letter returns the single-letter name ("A".."P"), or "" for NotSet.
func (h HouseCode) Letter() string {
	if h < HouseA || h > HouseP {
		return ""
	}
	return string(rune('A' + int(h-HouseA)))
}

func (h HouseCode) String() string {
	if l := h.Letter(); l != "" {
		return l
	}
	return "NotSet"
}

// HouseFromLetter parses a single uppercase letter A-P.
func HouseFromLetter(l byte) (HouseCode, bool) {
	if l < 'A' || l > 'P' {
		return HouseNotSet, false
	}
	return HouseA + HouseCode(l-'A'), true
}

// UnitCode is one of the 16 X10 unit numbers, 1 through 16, or NotSet.
type UnitCode byte

const (
	UnitNotSet UnitCode = iota
	Unit1
	Unit2
	Unit3
	Unit4
	Unit5
	Unit6
	Unit7
	Unit8
	Unit9
	Unit10
	Unit11
	Unit12
	Unit13
	Unit14
	Unit15
	Unit16
)

// unitNibble mirrors houseNibble's permutation: Unit_1=6 .. Unit_16=12.
var unitNibble = map[UnitCode]byte{
	Unit1: 6, Unit2: 14, Unit3: 2, Unit4: 10,
	Unit5: 1, Unit6: 9, Unit7: 5, Unit8: 13,
	Unit9: 7, Unit10: 15, Unit11: 3, Unit12: 11,
	Unit13: 0, Unit14: 8, Unit15: 4, Unit16: 12,
	UnitNotSet: 0xFF,
}

var nibbleUnit = func() map[byte]UnitCode {
	m := make(map[byte]UnitCode, len(unitNibble))
	for u, n := range unitNibble {
		if u == UnitNotSet {
			continue
		}
		m[n] = u
	}
	return m
}()

// Nibble returns the wire-nibble value for u.
func (u UnitCode) Nibble() byte {
	if n, ok := unitNibble[u]; ok {
		return n
	}
	return 0xFF
}

// UnitFromNibble maps a wire nibble back to a UnitCode.
func UnitFromNibble(n byte) (UnitCode, bool) {
	u, ok := nibbleUnit[n&0x0F]
	return u, ok
}

// Number returns 1..16, or 0 for NotSet.
func (u UnitCode) Number() int {
	if u < Unit1 || u > Unit16 {
		return 0
	}
	return int(u)
}

// UnitFromNumber parses 1..16.
func UnitFromNumber(n int) (UnitCode, bool) {
	if n < 1 || n > 16 {
		return UnitNotSet, false
	}
	return UnitCode(n), true
}

func (u UnitCode) String() string {
	if n := u.Number(); n != 0 {
		return fmt.Sprintf("%d", n)
	}
	return "NotSet"
}

// Address formats a module address string "<House><UnitNumber>", e.g. "C7".
func Address(h HouseCode, u UnitCode) string {
	return h.Letter() + u.String()
}

// Command is the logical X10 function, independent of wire shape.
type Command int

const (
	CmdAllUnitsOff Command = iota
	CmdAllLightsOn
	CmdAllLightsOff
	CmdOn
	CmdOff
	CmdDim
	CmdBright
	CmdExtended
	CmdHailRequest
	CmdHailAck
	CmdPresetDim1
	CmdPresetDim2
	CmdExtendedDataTransfer
	CmdStatusOn
	CmdStatusOff
	CmdStatusRequest
)

// funcNibble is the standard X10 function-field nibble for each command
// that appears as a bare function frame.
var funcNibble = map[Command]byte{
	CmdAllUnitsOff:          0x0,
	CmdAllLightsOn:          0x1,
	CmdOn:                   0x2,
	CmdOff:                  0x3,
	CmdDim:                  0x4,
	CmdBright:               0x5,
	CmdAllLightsOff:         0x6,
	CmdExtended:             0x7,
	CmdHailRequest:          0x8,
	CmdHailAck:              0x9,
	CmdPresetDim1:           0xA,
	CmdPresetDim2:           0xB,
	CmdExtendedDataTransfer: 0xC,
	CmdStatusOn:             0xD,
	CmdStatusOff:            0xE,
	CmdStatusRequest:        0xF,
}

// FuncNibble returns the wire function nibble for c.
func (c Command) FuncNibble() byte {
	return funcNibble[c]
}

// CommandFromNibble maps a function nibble back to a Command.
func CommandFromNibble(n byte) (Command, bool) {
	n &= 0x0F
	for c, fn := range funcNibble {
		if fn == n {
			return c, true
		}
	}
	return 0, false
}

func (c Command) String() string {
	switch c {
	case CmdAllUnitsOff:
		return "AllUnitsOff"
	case CmdAllLightsOn:
		return "AllLightsOn"
	case CmdAllLightsOff:
		return "AllLightsOff"
	case CmdOn:
		return "On"
	case CmdOff:
		return "Off"
	case CmdDim:
		return "Dim"
	case CmdBright:
		return "Bright"
	case CmdExtended:
		return "Extended"
	case CmdHailRequest:
		return "HailRequest"
	case CmdHailAck:
		return "HailAck"
	case CmdPresetDim1:
		return "PresetDim1"
	case CmdPresetDim2:
		return "PresetDim2"
	case CmdExtendedDataTransfer:
		return "ExtendedDataTransfer"
	case CmdStatusOn:
		return "StatusOn"
	case CmdStatusOff:
		return "StatusOff"
	case CmdStatusRequest:
		return "StatusRequest"
	default:
		return "Unknown"
	}
}

// FrameType enumerates inbound frame shapes by their leading byte, or by
// context for the poll/ack/checksum replies that have no fixed header.
type FrameType int

const (
	FrameUnknown FrameType = iota
	FrameAddress
	FrameFunction
	FramePLCReady
	FramePLCPoll
	FramePLCFilterFailPoll
	FrameMacro
	FrameRF
	FramePLCTimeRequest
	FramePLCReplyToPoll
)

// Leading byte values for inbound classification (§3, FrameType table).
const (
	ByteAddress            = 0x04
	ByteFunction            = 0x06
	BytePLCReady            = 0x55
	BytePLCPoll             = 0x5A
	BytePLCFilterFailPoll   = 0xF3
	ByteMacro               = 0x5B
	ByteRF                  = 0x5D
	BytePLCTimeRequest      = 0xA5
	BytePLCReplyToPoll      = 0xC3
	ByteTimeSet             = 0x9B
	ByteStatusRequestWire   = 0x8B
	ByteAck                 = 0x00
)

// RF prefix bytes (second byte of a 0x5D-leading frame).
const (
	RFPrefixStandard = 0x20
	RFPrefixSecurity = 0x29
)

// SecurityEvent enumerates RF security-device events. Some names preserve
// apparent typos present in the original driver lineage; they are treated
// as opaque identifiers of their byte values, not corrected.
type SecurityEvent byte

const (
	SecMotionAlert             SecurityEvent = 0x04
	SecMotionNormal            SecurityEvent = 0x84
	SecMotionLowBatteryAlert   SecurityEvent = 0x84 // low-battery variant shares the normal-motion byte in practice
	SecDoorSensor1AlertTarmper SecurityEvent = 0x44 // preserved typo, see §9
	SecDoorSensor1NormalTamper SecurityEvent = 0xC4 // preserved typo, see §9
	SecRemoteArm               SecurityEvent = 0x06
	SecRemoteDisarm            SecurityEvent = 0x86
	SecRemotePanic             SecurityEvent = 0xA6
)
