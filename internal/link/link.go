// Package link implements the byte-level Transport abstraction for the two
// supported X10 controllers: a serial CM11-style interface and a USB
// CM15Pro-style interface. Transport is the only thing that touches the
// operating system; everything above it speaks in byte slices.
package link

import (
	"errors"
	"log"
)

// Transport is the capability set the protocol engine drives: open, close,
// read (possibly empty, may block up to a short timeout), write.
type Transport interface {
	Open() error
	Close() error
	Read() ([]byte, error)
	Write(data []byte) error
}

// Error wraps a transport failure with context, in the style of
// Daedaluz-goserial's error type, so callers can errors.Is/As against the
// sentinels below.
type Error struct {
	msg string
	err error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func wrapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{msg: msg, err: err}
}

var (
	// ErrClosed is returned by Read/Write on a transport that has been closed.
	ErrClosed = errors.New("link: transport closed")
	// ErrDeviceNotFound is returned by Open when the device path or USB
	// device is not present.
	ErrDeviceNotFound = errors.New("link: device not found")
	// ErrTimeout is returned by USBTransport.Read when no data arrived
	// within the transport's read timeout (SerialTransport.Read returns an
	// empty result instead); this is not a failure, callers should treat
	// it as "no data this tick".
	ErrTimeout = errors.New("link: read timeout")
)

// IsTransient reports whether err represents a condition the Supervisor
// should treat as "nothing happened" rather than "reconnect". Only
// ErrTimeout counts as transient; every other error does not.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Logger is the package-level sink used by transports when no per-instance
// logger is supplied, matching the teacher's log.Printf-at-call-site idiom.
var Logger = log.Default()

const (
	// StatusRequestByte is written immediately after a successful open on
	// both backends (§4.1).
	StatusRequestByte = 0x8B
)

func writeStatusRequest(w func([]byte) error) error {
	return w([]byte{StatusRequestByte})
}
