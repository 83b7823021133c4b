package proto

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"x10drv/internal/link"
	"x10drv/internal/wire"
)

// EngineConfig parameterizes an Engine for one of the two backends.
type EngineConfig struct {
	// IsUSB selects the USB (CM15Pro) TX transition and time-set framing;
	// false selects the serial (CM11) checksum handshake.
	IsUSB bool
	// StrictChecksum, when true, requires the serial checksum reply's
	// first byte to actually match the computed checksum (§9).
	StrictChecksum bool
	// ZeroChecksumDisconnectThreshold bounds how many consecutive 0x00
	// leading bytes are tolerated before the I/O error flag is raised.
	// Zero means use the default of 10.
	ZeroChecksumDisconnectThreshold int
	Logger                          *log.Logger
}

func (c EngineConfig) threshold() int {
	if c.ZeroChecksumDisconnectThreshold > 0 {
		return c.ZeroChecksumDisconnectThreshold
	}
	return defaultZeroChksum
}

// Engine is the protocol engine: it serializes outbound command sequences,
// drives the ACK/checksum state machine, and dispatches decoded inbound
// frames to a Sink. One Engine is bound to one open Transport for the
// lifetime of a connection; the Supervisor builds a fresh Engine on each
// reconnect (§4.3, §5).
type Engine struct {
	transport link.Transport
	sink      Sink
	cfg       EngineConfig

	cmdMu sync.Mutex // serializes Send callers (commandLock)

	waitMu sync.Mutex // guards sess (waitAckMonitor)
	cond   *sync.Cond
	sess   *session

	ioError atomic.Bool
}

// NewEngine builds an Engine bound to transport, reporting decoded events
// and module mutations through sink.
func NewEngine(transport link.Transport, sink Sink, cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	e := &Engine{transport: transport, sink: sink, cfg: cfg, sess: newSession()}
	e.cond = sync.NewCond(&e.waitMu)
	return e
}

// IOError reports whether the Reader or a previous Send observed a
// non-transient transport failure (gotReadWriteError, §5).
func (e *Engine) IOError() bool { return e.ioError.Load() }

// SetIOError sets or clears the I/O error flag; the Supervisor clears it
// after a successful reconnect.
func (e *Engine) SetIOError(v bool) { e.ioError.Store(v) }

func (e *Engine) write(data []byte) error {
	if err := e.transport.Write(data); err != nil {
		if !link.IsTransient(err) {
			e.SetIOError(true)
		}
		return err
	}
	return nil
}

// Send issues one outbound frame under the command lock, running the
// rate-limit/ACK/resend transmit path of §4.3. Frames of length ≤1 (bare
// control bytes) bypass the ACK wait entirely.
func (e *Engine) Send(frame []byte) error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	if len(frame) <= 1 {
		return e.write(frame)
	}

	e.waitForRateLimit()

	attempt := 0
	for {
		if err := e.write(frame); err != nil {
			return err
		}

		e.waitMu.Lock()
		e.sess.lastSent = frame
		e.sess.waitStart = time.Now()
		if e.cfg.IsUSB {
			e.sess.state = StateWaitingAck
		} else {
			e.sess.expectedSum = (frame[0] + frame[1]) & 0xFF
			e.sess.state = StateWaitingChecksum
		}
		e.waitMu.Unlock()

		if e.waitForReady(ackTimeout) {
			return nil
		}

		if attempt >= commandResendMax {
			e.waitMu.Lock()
			e.sess.lastSent = nil
			e.sess.state = StateReady
			e.waitMu.Unlock()
			return nil
		}
		attempt++
		e.cfg.Logger.Printf("proto: ACK timeout waiting on %s, resending (attempt %d)", frame, attempt)
	}
}

func (e *Engine) waitForRateLimit() {
	for {
		e.waitMu.Lock()
		elapsed := time.Since(e.sess.lastReceived)
		e.waitMu.Unlock()
		if elapsed >= interMessageGap {
			return
		}
		time.Sleep(interMessageGap - elapsed)
	}
}

// waitForReady blocks until the session returns to StateReady or timeout
// elapses, using the condition variable HandleInbound signals on every
// state transition rather than a busy-wait (§9).
func (e *Engine) waitForReady(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	e.waitMu.Lock()
	defer e.waitMu.Unlock()
	for e.sess.state != StateReady {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		e.condWaitTimed(remaining)
	}
	return true
}

// condWaitTimed waits on e.cond for at most d. Must be called with
// waitMu held; releases and reacquires it like a normal Cond.Wait.
func (e *Engine) condWaitTimed(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		e.waitMu.Lock()
		e.cond.Broadcast()
		e.waitMu.Unlock()
	})
	defer timer.Stop()
	e.cond.Wait()
}

func (e *Engine) setState(s ProtocolState) {
	e.waitMu.Lock()
	e.sess.state = s
	e.waitMu.Unlock()
	e.cond.Broadcast()
}

func (e *Engine) stateIs(s ProtocolState) bool {
	e.waitMu.Lock()
	defer e.waitMu.Unlock()
	return e.sess.state == s
}

func (e *Engine) touchReceived() {
	e.waitMu.Lock()
	e.sess.lastReceived = time.Now()
	e.waitMu.Unlock()
}

func (e *Engine) checksumMatches(b0 byte) bool {
	if !e.cfg.StrictChecksum {
		return true
	}
	e.waitMu.Lock()
	defer e.waitMu.Unlock()
	return b0 == e.sess.expectedSum
}

func (e *Engine) readyDeclared() bool {
	e.waitMu.Lock()
	defer e.waitMu.Unlock()
	return e.sess.readyDeclared
}

func (e *Engine) declareReadyIfNeeded() {
	e.waitMu.Lock()
	already := e.sess.readyDeclared
	e.sess.readyDeclared = true
	e.waitMu.Unlock()
	if !already {
		e.sink.ConnectionStatusChanged(true)
	}
}

// SendTimeSet builds and sends the time-set frame stamped with the
// current local time, addressed with the sink's primary house.
func (e *Engine) SendTimeSet(battClear bool) error {
	now := time.Now()
	frame := wire.TimeSetFrame(now.Second(), now.Minute(), now.Hour(), now.YearDay(), int(now.Weekday()), e.sink.PrimaryHouse(), battClear, e.cfg.IsUSB)
	return e.Send(frame)
}

// SendMonitoredCodes sends the USB vendor monitored-codes frame for the
// given houses, part of the CM15 initialization sequence (§4.6).
func (e *Engine) SendMonitoredCodes(houses []wire.HouseCode) error {
	return e.Send(wire.EncodeMonitoredCodesUSB(houses))
}

// HandleInbound applies the 11 ordered RX rules of §4.3 to one inbound
// chunk, mutating session state and calling back into the Sink.
func (e *Engine) HandleInbound(data []byte) {
	if len(data) == 0 {
		return
	}

	// Rule 1: forced-Ready on stale wait.
	e.waitMu.Lock()
	stale := e.sess.state != StateReady && time.Since(e.sess.waitStart) >= ackTimeout
	if stale {
		e.cfg.Logger.Printf("proto: ack timeout forced Ready from %s", e.sess.state)
		e.sess.state = StateReady
	}
	e.waitMu.Unlock()
	if stale {
		e.cond.Broadcast()
	}

	b0 := data[0]

	// Rule 2: ACK of last command.
	if e.stateIs(StateWaitingAck) && b0 == wire.BytePLCReady && len(data) <= 2 {
		e.setState(StateReady)
		e.touchReceived()
		return
	}

	// Rule 3: interface-ready indication.
	if wire.IsInterfaceReady(data) && !e.readyDeclared() {
		e.declareReadyIfNeeded()
		e.touchReceived()
		if err := e.SendTimeSet(false); err != nil {
			e.cfg.Logger.Printf("proto: send time-set on ready: %v", err)
		}
		e.setState(StateReady)
		return
	}

	// Rule 4: serial checksum reply.
	if e.stateIs(StateWaitingChecksum) && len(data) == 2 && data[1] == 0x00 {
		if !e.checksumMatches(data[0]) {
			e.cfg.Logger.Printf("proto: checksum mismatch, got %#02x; reply dropped", data[0])
			return
		}
		e.write([]byte{0x00})
		e.setState(StateWaitingAck)
		e.touchReceived()
		return
	}

	// Rule 5: macro frame, timestamp only.
	if b0 == wire.ByteMacro {
		e.touchReceived()
		return
	}

	// Rule 6: RF frame.
	if b0 == wire.ByteRF {
		e.touchReceived()
		e.handleRF(data)
		return
	}

	// Rule 7: PLC poll.
	if b0 == wire.BytePLCPoll && len(data) <= 2 {
		e.declareReadyIfNeeded()
		e.write([]byte{wire.BytePLCReplyToPoll})
		e.touchReceived()
		return
	}

	// Rule 8: PLC filter-fail poll.
	if b0 == wire.BytePLCFilterFailPoll && len(data) <= 2 {
		e.declareReadyIfNeeded()
		e.write([]byte{wire.BytePLCFilterFailPoll})
		e.touchReceived()
		return
	}

	// Rule 9: PLC extended poll.
	if b0 == wire.BytePLCPoll && len(data) > 3 {
		e.touchReceived()
		e.handleExtendedPoll(data)
		return
	}

	// Rule 10: time request.
	if b0 == wire.BytePLCTimeRequest {
		e.touchReceived()
		if err := e.SendTimeSet(false); err != nil {
			e.cfg.Logger.Printf("proto: send time-set on request: %v", err)
		}
		return
	}

	// Rule 11: zero-checksum counting / plain ACK.
	e.touchReceived()
	if b0 == 0x00 {
		e.waitMu.Lock()
		e.sess.zeroChecksums++
		n := e.sess.zeroChecksums
		e.waitMu.Unlock()
		if n > e.cfg.threshold() {
			e.cfg.Logger.Printf("proto: %d consecutive zero-checksum replies, forcing reconnect", n)
			e.SetIOError(true)
		}
		return
	}
	e.write([]byte{0x00})
	e.waitMu.Lock()
	e.sess.zeroChecksums = 0
	e.waitMu.Unlock()
}

func (e *Engine) handleRF(data []byte) {
	e.waitMu.Lock()
	dup := len(e.sess.lastRFFrame) == len(data) && bytesEqual(e.sess.lastRFFrame, data) && time.Since(e.sess.lastRFAt) < rfDupWindow
	if !dup {
		e.sess.lastRFFrame = append([]byte(nil), data...)
		e.sess.lastRFAt = time.Now()
	}
	e.waitMu.Unlock()
	if dup {
		return
	}

	sec, secOK := wire.DecodeRFSecurity(data)
	std, stdOK := wire.DecodeRFStandard(data)
	if !secOK && !stdOK {
		return
	}

	e.sink.RfDataReceived(data)

	if secOK {
		e.sink.RfSecurityReceived(sec.Event, sec.Address)
		return
	}
	e.sink.RfCommandReceived(std.Command, std.House, std.Unit)
	e.applyRFEffect(std)
}

func (e *Engine) applyRFEffect(std wire.RFStandard) {
	switch std.Command {
	case wire.CmdOn:
		e.replaceAddressed(std.House, std.Unit)
		e.sink.SetLevel(std.House, std.Unit, 1.0)
	case wire.CmdOff:
		e.replaceAddressed(std.House, std.Unit)
		e.sink.SetLevel(std.House, std.Unit, 0.0)
	case wire.CmdAllLightsOn:
		e.sink.SetLevelForHouse(std.House, 1.0)
	case wire.CmdAllUnitsOff:
		e.sink.SetLevelForHouse(std.House, 0.0)
	case wire.CmdDim:
		e.applyStepToAddressed(-float64(std.Step) / 210)
	case wire.CmdBright:
		e.applyStepToAddressed(float64(std.Step) / 210)
	}
}

func (e *Engine) handleExtendedPoll(data []byte) {
	if len(data) < 3 {
		return
	}
	msgLen := data[1]
	bitmapLen := (int(msgLen) + 7) / 8
	if len(data) < 2+bitmapLen+int(msgLen) {
		e.cfg.Logger.Printf("proto: truncated extended poll frame %x", data)
		return
	}
	bitmap := data[2 : 2+bitmapLen]
	payload := data[2+bitmapLen : 2+bitmapLen+int(msgLen)]
	if e.cfg.IsUSB {
		bitmap = wire.ReverseBytes(bitmap)
		payload = wire.ReverseBytes(payload)
	}
	entries, err := wire.DecodeExtendedPoll(msgLen, bitmap, payload)
	if err != nil {
		e.cfg.Logger.Printf("proto: extended poll: %v", err)
		return
	}
	for _, ent := range entries {
		if ent.Kind == wire.DataAddress {
			e.addAddressed(ent.House, ent.Unit)
			e.sink.PlcAddressReceived(ent.House, ent.Unit)
			continue
		}
		e.sink.PlcFunctionReceived(ent.Command, ent.House)
		e.applyFunction(ent.Command, ent.House, ent.Magnitude)
		e.waitMu.Lock()
		e.sess.newAddressData = true
		e.waitMu.Unlock()
	}
}

func (e *Engine) applyFunction(cmd wire.Command, house wire.HouseCode, magnitude byte) {
	switch cmd {
	case wire.CmdOn:
		e.forEachAddressed(func(a addressed) { e.sink.SetLevel(a.house, a.unit, 1.0) })
	case wire.CmdOff:
		e.forEachAddressed(func(a addressed) { e.sink.SetLevel(a.house, a.unit, 0.0) })
	case wire.CmdDim:
		delta := -float64(magnitude) / 210
		e.forEachAddressed(func(a addressed) { e.sink.AdjustLevel(a.house, a.unit, delta) })
	case wire.CmdBright:
		delta := float64(magnitude) / 210
		e.forEachAddressed(func(a addressed) { e.sink.AdjustLevel(a.house, a.unit, delta) })
	case wire.CmdAllLightsOn:
		e.sink.SetLevelForHouse(house, 1.0)
	case wire.CmdAllUnitsOff:
		e.sink.SetLevelForHouse(house, 0.0)
	}
}

func (e *Engine) addAddressed(house wire.HouseCode, unit wire.UnitCode) {
	e.waitMu.Lock()
	if e.sess.newAddressData {
		e.sess.addressedSet = nil
		e.sess.newAddressData = false
	}
	e.sess.addressedSet = append(e.sess.addressedSet, addressed{house: house, unit: unit})
	e.waitMu.Unlock()
}

func (e *Engine) replaceAddressed(house wire.HouseCode, unit wire.UnitCode) {
	e.waitMu.Lock()
	e.sess.addressedSet = []addressed{{house: house, unit: unit}}
	e.waitMu.Unlock()
}

func (e *Engine) forEachAddressed(fn func(addressed)) {
	e.waitMu.Lock()
	set := append([]addressed(nil), e.sess.addressedSet...)
	e.waitMu.Unlock()
	for _, a := range set {
		fn(a)
	}
}

func (e *Engine) applyStepToAddressed(delta float64) {
	e.forEachAddressed(func(a addressed) { e.sink.AdjustLevel(a.house, a.unit, delta) })
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
