// Package x10drv drives X10 home-automation controllers: a serial
// CM11-style interface and a USB CM15Pro-style interface. Manager is the
// public entry point; Registry and Module track the last known state of
// each addressable unit.
package x10drv

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"x10drv/internal/link"
	"x10drv/internal/proto"
	"x10drv/internal/wire"
)

// Stats is a point-in-time snapshot of a Manager's activity, in the style
// of guiperry-HASHER's DeviceStats: a small plain struct refreshed under a
// lock and returned by value.
type Stats struct {
	Connected      bool
	ModuleCount    int
	CommandsSent   uint64
	FramesReceived uint64
	RfEvents       uint64
	Reconnects     uint64
	LastReceivedAt time.Time
}

// Manager is the public facade: Connect/Disconnect, the command methods,
// the Registry accessor, and event subscriptions (§4.5). It owns the
// Registry, the Session (via the protocol engine), and the active
// Transport; it implements proto.Sink so the engine can drive it without
// an import cycle.
type Manager struct {
	mu sync.Mutex

	cfg      Config
	houses   []wire.HouseCode
	registry *Registry
	events   *events

	transport link.Transport
	engine    *proto.Engine

	supervisorCancel context.CancelFunc
	readerDone       chan struct{}

	teardown  atomic.Bool
	connected atomic.Bool

	statsMu        sync.Mutex
	commandsSent   uint64
	framesReceived uint64
	rfEvents       uint64
	reconnects     uint64
	lastReceivedAt time.Time
}

// NewManager builds a Manager from cfg. Connect must be called before any
// command method will have effect.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	houses, err := parseHouseCodes(cfg.HouseCode)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:      cfg,
		houses:   houses,
		registry: newRegistry(),
		events:   &events{},
	}
	m.registry.setOnChange(func(mod *Module) {
		m.events.emitModuleChanged(m.cfg.Logger, mod, "Level")
	})
	m.registry.setHouseCodes(houses)
	return m, nil
}

func parseHouseCodes(spec string) ([]wire.HouseCode, error) {
	if spec == "" {
		return nil, nil
	}
	parts := strings.Split(spec, ",")
	houses := make([]wire.HouseCode, 0, len(parts))
	for _, p := range parts {
		if len(p) != 1 {
			return nil, fmt.Errorf("x10drv: invalid house code %q", p)
		}
		h, ok := wire.HouseFromLetter(p[0])
		if !ok {
			return nil, fmt.Errorf("x10drv: invalid house code %q", p)
		}
		houses = append(houses, h)
	}
	return houses, nil
}

// Modules returns the module registry (read-only accessor, §4.5).
func (m *Manager) Modules() *Registry { return m.registry }

// IsConnected reports whether the underlying transport is currently open
// and the engine has observed the controller's ready indication.
func (m *Manager) IsConnected() bool { return m.connected.Load() }

// Stats returns a snapshot of the Manager's counters.
func (m *Manager) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return Stats{
		Connected:      m.connected.Load(),
		ModuleCount:    len(m.registry.All()),
		CommandsSent:   m.commandsSent,
		FramesReceived: m.framesReceived,
		RfEvents:       m.rfEvents,
		Reconnects:     m.reconnects,
		LastReceivedAt: m.lastReceivedAt,
	}
}

func (m *Manager) isUSB() bool { return m.cfg.isUSB() }

func (m *Manager) newTransport() link.Transport {
	if m.isUSB() {
		return link.NewUSBTransport()
	}
	return link.NewSerialTransport(m.cfg.PortName)
}

func (m *Manager) newEngine(transport link.Transport) *proto.Engine {
	return proto.NewEngine(transport, m, proto.EngineConfig{
		IsUSB:                           m.isUSB(),
		StrictChecksum:                  m.cfg.StrictChecksum,
		ZeroChecksumDisconnectThreshold: m.cfg.ZeroChecksumDisconnectThreshold,
		Logger:                          m.cfg.Logger,
	})
}

// Connect opens the configured transport and starts the Reader and
// Supervisor. Idempotent: an existing session is torn down first (§4.5).
func (m *Manager) Connect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()
	m.teardown.Store(false)

	transport := m.newTransport()
	if err := transport.Open(); err != nil {
		m.cfg.Logger.Printf("x10drv: connect: %v", err)
		return false
	}

	engine := m.newEngine(transport)

	m.transport = transport
	m.engine = engine
	m.readerDone = make(chan struct{})

	go m.readLoop(transport, engine, m.readerDone)

	ctx, cancel := context.WithCancel(context.Background())
	m.supervisorCancel = cancel
	go m.superviseLoop(ctx)

	return true
}

// Disconnect cancels the Supervisor and Reader (5 s join deadline), closes
// the transport, and emits ConnectionStatusChanged(false).
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

func (m *Manager) teardownLocked() {
	m.teardown.Store(true)
	if m.supervisorCancel != nil {
		m.supervisorCancel()
		m.supervisorCancel = nil
	}
	if m.transport != nil {
		done := m.readerDone
		m.transport.Close()
		if done != nil {
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				m.cfg.Logger.Printf("x10drv: reader did not exit within join deadline")
			}
		}
		m.transport = nil
		m.engine = nil
	}
	if m.connected.Swap(false) {
		m.ConnectionStatusChanged(false)
	}
}

func (m *Manager) readLoop(transport link.Transport, engine *proto.Engine, done chan struct{}) {
	defer close(done)
	for !m.teardown.Load() {
		data, err := transport.Read()
		if err != nil {
			if link.IsTransient(err) {
				continue
			}
			engine.SetIOError(true)
			return
		}
		if len(data) == 0 {
			continue
		}
		m.statsMu.Lock()
		m.framesReceived++
		m.lastReceivedAt = time.Now()
		m.statsMu.Unlock()
		engine.HandleInbound(data)
	}
}

func (m *Manager) currentEngine() *proto.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine
}

func (m *Manager) send(frame []byte) error {
	engine := m.currentEngine()
	if engine == nil {
		return fmt.Errorf("x10drv: not connected")
	}
	err := engine.Send(frame)
	m.statsMu.Lock()
	m.commandsSent++
	m.statsMu.Unlock()
	return err
}

// Dim reduces unit's level by percent (clamped [0,100]) and mirrors the
// effect locally regardless of whether the controller acknowledges it.
func (m *Manager) Dim(house wire.HouseCode, unit wire.UnitCode, percent float64) error {
	frame := m.dimFrame(house, unit, wire.CmdDim, percent)
	if err := m.sendAddressed(house, unit, frame); err != nil {
		return err
	}
	m.AdjustLevel(house, unit, -wire.ClampPercent(percent)/100)
	return nil
}

// Bright increases unit's level by percent, mirroring Dim.
func (m *Manager) Bright(house wire.HouseCode, unit wire.UnitCode, percent float64) error {
	frame := m.dimFrame(house, unit, wire.CmdBright, percent)
	if err := m.sendAddressed(house, unit, frame); err != nil {
		return err
	}
	m.AdjustLevel(house, unit, wire.ClampPercent(percent)/100)
	return nil
}

func (m *Manager) dimFrame(house wire.HouseCode, unit wire.UnitCode, cmd wire.Command, percent float64) []byte {
	if m.isUSB() {
		return wire.EncodeFunctionDimUSB(house, cmd, percent)
	}
	return wire.EncodeFunctionDimSerial(house, cmd, percent)
}

// UnitOn turns unit fully on and mirrors Level=1.0.
func (m *Manager) UnitOn(house wire.HouseCode, unit wire.UnitCode) error {
	if err := m.sendAddressed(house, unit, wire.EncodeFunction(house, wire.CmdOn)); err != nil {
		return err
	}
	m.SetLevel(house, unit, 1.0)
	return nil
}

// UnitOff turns unit fully off and mirrors Level=0.0.
func (m *Manager) UnitOff(house wire.HouseCode, unit wire.UnitCode) error {
	if err := m.sendAddressed(house, unit, wire.EncodeFunction(house, wire.CmdOff)); err != nil {
		return err
	}
	m.SetLevel(house, unit, 0.0)
	return nil
}

// sendAddressed delivers the standard address+function frame pair as one
// atomic unit (both frames are issued while holding the engine's command
// lock for the duration of each individual Send, which is sufficient
// since Manager serializes callers at the Send layer).
func (m *Manager) sendAddressed(house wire.HouseCode, unit wire.UnitCode, function []byte) error {
	if err := m.send(wire.EncodeAddress(house, unit)); err != nil {
		return err
	}
	return m.send(function)
}

// AllLightsOn addresses the house as a whole and applies the mass effect
// locally to every registered module of that house (§4.5).
func (m *Manager) AllLightsOn(house wire.HouseCode) error {
	if err := m.sendHouse(house, wire.CmdAllLightsOn); err != nil {
		return err
	}
	m.SetLevelForHouse(house, 1.0)
	return nil
}

// AllUnitsOff mirrors AllLightsOn for the all-units-off function.
func (m *Manager) AllUnitsOff(house wire.HouseCode) error {
	if err := m.sendHouse(house, wire.CmdAllUnitsOff); err != nil {
		return err
	}
	m.SetLevelForHouse(house, 0.0)
	return nil
}

func (m *Manager) sendHouse(house wire.HouseCode, cmd wire.Command) error {
	address := []byte{wire.ByteAddress, house.Nibble() << 4}
	if err := m.send(address); err != nil {
		return err
	}
	return m.send(wire.EncodeFunction(house, cmd))
}

// StatusRequest addresses unit then issues the Status_Request function.
func (m *Manager) StatusRequest(house wire.HouseCode, unit wire.UnitCode) error {
	return m.sendAddressed(house, unit, wire.EncodeFunction(house, wire.CmdStatusRequest))
}

// OnConnectionStatusChanged subscribes fn to connect/disconnect events.
func (m *Manager) OnConnectionStatusChanged(fn ConnectionStatusHandler) {
	m.events.onConnectionStatusChanged(fn)
}

// OnModuleChanged subscribes fn to Level-changed events on any module.
func (m *Manager) OnModuleChanged(fn ModuleChangedHandler) { m.events.onModuleChanged(fn) }

// OnPlcAddressReceived subscribes fn to decoded PLC address bytes.
func (m *Manager) OnPlcAddressReceived(fn PlcAddressHandler) { m.events.onPlcAddressReceived(fn) }

// OnPlcFunctionReceived subscribes fn to decoded PLC function bytes.
func (m *Manager) OnPlcFunctionReceived(fn PlcFunctionHandler) { m.events.onPlcFunctionReceived(fn) }

// OnRfDataReceived subscribes fn to every validated inbound RF frame.
func (m *Manager) OnRfDataReceived(fn RfDataHandler) { m.events.onRfDataReceived(fn) }

// OnRfCommandReceived subscribes fn to decoded RF standard commands.
func (m *Manager) OnRfCommandReceived(fn RfCommandHandler) { m.events.onRfCommandReceived(fn) }

// OnRfSecurityReceived subscribes fn to decoded RF security events.
func (m *Manager) OnRfSecurityReceived(fn RfSecurityHandler) { m.events.onRfSecurityReceived(fn) }

// --- proto.Sink ---

func (m *Manager) SetLevel(house wire.HouseCode, unit wire.UnitCode, level float64) {
	m.registry.getOrCreate(house, unit).setLevel(level)
}

func (m *Manager) AdjustLevel(house wire.HouseCode, unit wire.UnitCode, delta float64) {
	m.registry.getOrCreate(house, unit).adjustLevel(delta)
}

func (m *Manager) SetLevelForHouse(house wire.HouseCode, level float64) {
	for _, mod := range m.registry.InHouse(house) {
		mod.setLevel(level)
	}
}

func (m *Manager) PrimaryHouse() wire.HouseCode {
	if len(m.houses) == 0 {
		return wire.HouseNotSet
	}
	return m.houses[0]
}

func (m *Manager) ConnectionStatusChanged(connected bool) {
	m.connected.Store(connected)
	m.events.emitConnectionStatusChanged(m.cfg.Logger, connected)
}

func (m *Manager) PlcAddressReceived(house wire.HouseCode, unit wire.UnitCode) {
	m.events.emitPlcAddressReceived(m.cfg.Logger, house, unit)
}

func (m *Manager) PlcFunctionReceived(cmd wire.Command, house wire.HouseCode) {
	m.events.emitPlcFunctionReceived(m.cfg.Logger, cmd, house)
}

func (m *Manager) RfDataReceived(data []byte) {
	m.statsMu.Lock()
	m.rfEvents++
	m.statsMu.Unlock()
	m.events.emitRfDataReceived(m.cfg.Logger, data)
}

func (m *Manager) RfCommandReceived(cmd wire.Command, house wire.HouseCode, unit wire.UnitCode) {
	m.events.emitRfCommandReceived(m.cfg.Logger, cmd, house, unit)
}

func (m *Manager) RfSecurityReceived(event wire.SecurityEvent, address uint32) {
	m.events.emitRfSecurityReceived(m.cfg.Logger, event, address)
}
