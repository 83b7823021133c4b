// Package proto implements the protocol engine: the bidirectional
// transmit/ACK/resend state machine, RX frame dispatch, and the
// correlation between outbound commands and the inbound echoes that
// close them out. It knows nothing about how modules are stored or how
// events reach the caller; it drives those through the Sink interface so
// this package never imports the root package.
package proto

import (
	"time"

	"x10drv/internal/wire"
)

// ProtocolState is the engine's TX/ACK state.
type ProtocolState int

const (
	StateReady ProtocolState = iota
	StateWaitingChecksum
	StateWaitingAck
	StateWaitingPollReply
)

func (s ProtocolState) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateWaitingChecksum:
		return "WaitingChecksum"
	case StateWaitingAck:
		return "WaitingAck"
	case StateWaitingPollReply:
		return "WaitingPollReply"
	default:
		return "Unknown"
	}
}

const (
	ackTimeout        = 5 * time.Second
	commandResendMax  = 1
	interMessageGap   = 500 * time.Millisecond
	rfDupWindow       = 500 * time.Millisecond
	defaultZeroChksum = 10
)

// addressed identifies one module in the session's accumulator of
// modules that pending Function frames will apply to.
type addressed struct {
	house wire.HouseCode
	unit  wire.UnitCode
}

// session is the in-memory state for one connection attempt (§3,
// "Session"). All fields are only touched while holding Engine.waitMu;
// lastSent, expectedSum and waitStart are written only by Send, which
// also holds Engine.cmdMu (the single writer).
type session struct {
	state ProtocolState

	lastSent    []byte
	expectedSum byte
	waitStart   time.Time
	resendCount int

	lastReceived time.Time

	lastRFFrame []byte
	lastRFAt    time.Time

	addressedSet    []addressed
	newAddressData  bool

	readyDeclared bool
	zeroChecksums int
}

func newSession() *session {
	return &session{state: StateReady}
}
