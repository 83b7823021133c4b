package x10drv

import (
	"context"
	"time"

	"x10drv/internal/link"
)

const (
	supervisorTick      = 1 * time.Second
	reconnectBackoff    = 3 * time.Second
	reconnectJoinWindow = 5 * time.Second
)

// superviseLoop is the Supervisor: it ticks every second, and when the
// engine's I/O error flag is set, tears down the broken session, backs
// off, and rebuilds the transport and engine (§4.6).
func (m *Manager) superviseLoop(ctx context.Context) {
	ticker := time.NewTicker(supervisorTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if m.teardown.Load() {
			return
		}
		engine := m.currentEngine()
		if engine == nil || !engine.IOError() {
			continue
		}
		m.reconnect(ctx)
	}
}

// reconnect closes the broken session, waits out the backoff, then opens
// a fresh transport and engine. On the USB backend it replays the CM15
// initialization sequence: monitored-codes, time-set, then a status
// request.
func (m *Manager) reconnect(ctx context.Context) {
	m.mu.Lock()
	transport := m.transport
	done := m.readerDone
	m.transport = nil
	m.engine = nil
	m.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(reconnectJoinWindow):
			m.cfg.Logger.Printf("x10drv: supervisor: reader did not exit within join deadline")
		}
	}
	if m.connected.Swap(false) {
		m.ConnectionStatusChanged(false)
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(reconnectBackoff):
	}
	if m.teardown.Load() {
		return
	}

	if m.isUSB() && !m.waitForUSBDevice(ctx) {
		return
	}

	newTransport := m.newTransport()
	if err := newTransport.Open(); err != nil {
		m.cfg.Logger.Printf("x10drv: supervisor: reconnect failed: %v", err)
		return
	}

	engine := m.newEngine(newTransport)
	readerDone := make(chan struct{})

	m.mu.Lock()
	m.transport = newTransport
	m.engine = engine
	m.readerDone = readerDone
	m.mu.Unlock()

	m.statsMu.Lock()
	m.reconnects++
	m.statsMu.Unlock()

	go m.readLoop(newTransport, engine, readerDone)

	if m.isUSB() {
		if err := engine.SendMonitoredCodes(m.houses); err != nil {
			m.cfg.Logger.Printf("x10drv: supervisor: cm15 monitored-codes: %v", err)
		}
		if err := engine.SendTimeSet(false); err != nil {
			m.cfg.Logger.Printf("x10drv: supervisor: cm15 time-set: %v", err)
		}
		if err := newTransport.Write([]byte{link.StatusRequestByte}); err != nil {
			m.cfg.Logger.Printf("x10drv: supervisor: cm15 status request: %v", err)
		}
	}
}

// waitForUSBDevice blocks until the CM15Pro re-enumerates on the bus,
// polling at supervisorTick. Reports false if ctx is cancelled or
// Disconnect is called first (connection-hotplug support, §5).
func (m *Manager) waitForUSBDevice(ctx context.Context) bool {
	if link.IsUSBDeviceAvailable() {
		return true
	}
	ticker := time.NewTicker(supervisorTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		if m.teardown.Load() {
			return false
		}
		if link.IsUSBDeviceAvailable() {
			return true
		}
	}
}
