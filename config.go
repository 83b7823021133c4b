package x10drv

import (
	"fmt"
	"log"
)

// Config configures a Manager. It is a plain struct validated and
// normalized by NewManager, in the style of guiperry-HASHER's
// internal/config.DeviceConfig rather than a flag/env framework.
type Config struct {
	// PortName selects the transport: the literal "USB" opens a
	// CM15Pro-style USBTransport; anything else is treated as a serial
	// device path and opens a CM11-style SerialTransport (§6).
	PortName string

	// HouseCode is a comma-separated list of uppercase house letters
	// ("A".."P", e.g. "A,C"). The Registry is built with modules 1..16 for
	// each listed letter; the first letter addresses the time-set frame.
	HouseCode string

	// Logger receives connect/disconnect, resend, and parse-failure
	// diagnostics. Defaults to log.Default() when nil.
	Logger *log.Logger

	// StrictChecksum, when true, causes a serial checksum reply that does
	// not match the computed checksum to be logged and dropped without an
	// acknowledgement, so the command times out and is resent. See
	// SPEC_FULL.md, Supplemented Features 1: the reference behavior never
	// verifies the checksum byte, so the default is false.
	StrictChecksum bool

	// ZeroChecksumDisconnectThreshold is the number of consecutive
	// all-zero checksum replies tolerated before the Supervisor treats the
	// link as dead and forces a reconnect. See SPEC_FULL.md, Supplemented
	// Features 2; default 10
	// when left at zero (use NewConfig to get the default applied).
	ZeroChecksumDisconnectThreshold int
}

// NewConfig returns a Config with defaults applied: no StrictChecksum, a
// ZeroChecksumDisconnectThreshold of 10, and Logger set to log.Default().
func NewConfig(portName, houseCode string) Config {
	return Config{
		PortName:                        portName,
		HouseCode:                       houseCode,
		Logger:                          log.Default(),
		ZeroChecksumDisconnectThreshold: 10,
	}
}

// normalize fills in defaults left zero and validates the fields that
// must be well-formed before a Manager can connect.
func (c *Config) normalize() error {
	if c.PortName == "" {
		return fmt.Errorf("x10drv: Config.PortName is required")
	}
	if c.HouseCode != "" {
		if _, err := parseHouseCodes(c.HouseCode); err != nil {
			return err
		}
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.ZeroChecksumDisconnectThreshold == 0 {
		c.ZeroChecksumDisconnectThreshold = 10
	}
	return nil
}

func (c Config) isUSB() bool {
	return c.PortName == "USB"
}
