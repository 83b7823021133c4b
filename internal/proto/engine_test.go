package proto

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x10drv/internal/wire"
)

// fakeTransport is an in-memory link.Transport driven entirely from the
// test goroutine: Write records outbound frames, Read drains a queue of
// canned inbound frames. It plays the same role as the channel-backed
// pipes in seedhammer-seedhammer's Engrave tests.
type fakeTransport struct {
	mu      sync.Mutex
	written [][]byte
	inbound chan []byte
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan []byte, 16)}
}

func (f *fakeTransport) Open() error  { return nil }
func (f *fakeTransport) Close() error { f.closed = true; return nil }

func (f *fakeTransport) Write(data []byte) error {
	f.mu.Lock()
	cp := append([]byte(nil), data...)
	f.written = append(f.written, cp)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Read() ([]byte, error) {
	select {
	case b := <-f.inbound:
		return b, nil
	case <-time.After(50 * time.Millisecond):
		return nil, nil
	}
}

func (f *fakeTransport) writtenFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

func (f *fakeTransport) push(frame []byte) { f.inbound <- frame }

// fakeSink records every callback the engine makes, for assertions.
type fakeSink struct {
	mu sync.Mutex

	levels       map[string]float64
	connected    []bool
	rfCommands   []wire.Command
	rfSecurities []wire.SecurityEvent
	plcAddresses int
	plcFunctions int
}

func newFakeSink() *fakeSink {
	return &fakeSink{levels: make(map[string]float64)}
}

func (s *fakeSink) key(house wire.HouseCode, unit wire.UnitCode) string {
	return wire.Address(house, unit)
}

func (s *fakeSink) SetLevel(house wire.HouseCode, unit wire.UnitCode, level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[s.key(house, unit)] = level
}

func (s *fakeSink) AdjustLevel(house wire.HouseCode, unit wire.UnitCode, delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[s.key(house, unit)] += delta
}

func (s *fakeSink) SetLevelForHouse(house wire.HouseCode, level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n := 1; n <= 16; n++ {
		unit, _ := wire.UnitFromNumber(n)
		s.levels[s.key(house, unit)] = level
	}
}

func (s *fakeSink) PrimaryHouse() wire.HouseCode { return wire.HouseA }

func (s *fakeSink) ConnectionStatusChanged(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = append(s.connected, connected)
}

func (s *fakeSink) PlcAddressReceived(wire.HouseCode, wire.UnitCode) {
	s.mu.Lock()
	s.plcAddresses++
	s.mu.Unlock()
}

func (s *fakeSink) PlcFunctionReceived(wire.Command, wire.HouseCode) {
	s.mu.Lock()
	s.plcFunctions++
	s.mu.Unlock()
}

func (s *fakeSink) RfDataReceived([]byte) {}

func (s *fakeSink) RfCommandReceived(cmd wire.Command, house wire.HouseCode, unit wire.UnitCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rfCommands = append(s.rfCommands, cmd)
}

func (s *fakeSink) RfSecurityReceived(event wire.SecurityEvent, address uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rfSecurities = append(s.rfSecurities, event)
}

func (s *fakeSink) level(house wire.HouseCode, unit wire.UnitCode) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[s.key(house, unit)]
}

func TestEngineSerialChecksumHandshakeReachesReady(t *testing.T) {
	transport := newFakeTransport()
	sink := newFakeSink()
	engine := NewEngine(transport, sink, EngineConfig{IsUSB: false})

	done := make(chan error, 1)
	go func() { done <- engine.Send(wire.EncodeAddress(wire.HouseC, wire.Unit7)) }()

	// Give Send a moment to reach the checksum-wait state, then feed it
	// the replies a Reader would have delivered from HandleInbound.
	time.Sleep(10 * time.Millisecond)
	engine.HandleInbound([]byte{0x29, 0x00}) // (0x04+0x25)&0xFF == 0x29
	engine.HandleInbound([]byte{0x55})

	require.NoError(t, <-done)
	frames := transport.writtenFrames()
	require.Len(t, frames, 2) // the command frame, then the 0x00 ack reply
	assert.Equal(t, []byte{0x04, 0x25}, frames[0])
	assert.Equal(t, []byte{0x00}, frames[1])
}

func TestEngineRFOnUpdatesLevel(t *testing.T) {
	transport := newFakeTransport()
	sink := newFakeSink()
	engine := NewEngine(transport, sink, EngineConfig{IsUSB: true})

	engine.HandleInbound([]byte{0x5D, 0x20, 0x60, 0x9F, 0x00, 0xFF})

	require.Len(t, sink.rfCommands, 1)
	assert.Equal(t, wire.CmdOn, sink.rfCommands[0])
	assert.Equal(t, 1.0, sink.level(wire.HouseA, wire.Unit1))
}

func TestEngineRFDuplicateSuppressedWithin500ms(t *testing.T) {
	transport := newFakeTransport()
	sink := newFakeSink()
	engine := NewEngine(transport, sink, EngineConfig{IsUSB: true})

	frame := []byte{0x5D, 0x20, 0x60, 0x9F, 0x00, 0xFF}
	engine.HandleInbound(frame)
	engine.HandleInbound(frame)

	assert.Len(t, sink.rfCommands, 1, "two identical frames within 500ms must yield one event")
}

func TestEngineRFInvalidFrameDoesNothing(t *testing.T) {
	transport := newFakeTransport()
	sink := newFakeSink()
	engine := NewEngine(transport, sink, EngineConfig{IsUSB: true})

	engine.HandleInbound([]byte{0x5D, 0x20, 0x60, 0xFF, 0x00, 0xFF})

	assert.Empty(t, sink.rfCommands)
}

func TestEnginePLCPollRepliesWithReplyToPoll(t *testing.T) {
	transport := newFakeTransport()
	sink := newFakeSink()
	engine := NewEngine(transport, sink, EngineConfig{IsUSB: false})

	engine.HandleInbound([]byte{0x5A})

	frames := transport.writtenFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0xC3}, frames[0])
	assert.True(t, sink.connected[0], "first poll should raise connection-ready")
}
