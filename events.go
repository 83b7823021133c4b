package x10drv

import (
	"sync"

	"x10drv/internal/wire"
)

// Event handler signatures for Manager's public event surface (§4.5).
type (
	ConnectionStatusHandler func(connected bool)
	ModuleChangedHandler    func(m *Module, property string)
	PlcAddressHandler       func(house wire.HouseCode, unit wire.UnitCode)
	PlcFunctionHandler      func(cmd wire.Command, house wire.HouseCode)
	RfDataHandler           func(data []byte)
	RfCommandHandler        func(cmd wire.Command, house wire.HouseCode, unit wire.UnitCode)
	RfSecurityHandler       func(event wire.SecurityEvent, address uint32)
)

// events holds the process-local subscriber lists for a Manager.
// Handlers are invoked on the Reader's goroutine (§6); a panicking
// handler is recovered and logged, never propagated (HandlerError, §7).
type events struct {
	mu sync.Mutex

	connectionStatus []ConnectionStatusHandler
	moduleChanged    []ModuleChangedHandler
	plcAddress       []PlcAddressHandler
	plcFunction      []PlcFunctionHandler
	rfData           []RfDataHandler
	rfCommand        []RfCommandHandler
	rfSecurity       []RfSecurityHandler
}

func (e *events) onConnectionStatusChanged(fn ConnectionStatusHandler) {
	e.mu.Lock()
	e.connectionStatus = append(e.connectionStatus, fn)
	e.mu.Unlock()
}

func (e *events) onModuleChanged(fn ModuleChangedHandler) {
	e.mu.Lock()
	e.moduleChanged = append(e.moduleChanged, fn)
	e.mu.Unlock()
}

func (e *events) onPlcAddressReceived(fn PlcAddressHandler) {
	e.mu.Lock()
	e.plcAddress = append(e.plcAddress, fn)
	e.mu.Unlock()
}

func (e *events) onPlcFunctionReceived(fn PlcFunctionHandler) {
	e.mu.Lock()
	e.plcFunction = append(e.plcFunction, fn)
	e.mu.Unlock()
}

func (e *events) onRfDataReceived(fn RfDataHandler) {
	e.mu.Lock()
	e.rfData = append(e.rfData, fn)
	e.mu.Unlock()
}

func (e *events) onRfCommandReceived(fn RfCommandHandler) {
	e.mu.Lock()
	e.rfCommand = append(e.rfCommand, fn)
	e.mu.Unlock()
}

func (e *events) onRfSecurityReceived(fn RfSecurityHandler) {
	e.mu.Lock()
	e.rfSecurity = append(e.rfSecurity, fn)
	e.mu.Unlock()
}

func emit(logger interface{ Printf(string, ...any) }, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Printf("x10drv: event handler panic: %v", r)
		}
	}()
	fn()
}

func (e *events) emitConnectionStatusChanged(logger interface{ Printf(string, ...any) }, connected bool) {
	e.mu.Lock()
	handlers := append([]ConnectionStatusHandler(nil), e.connectionStatus...)
	e.mu.Unlock()
	for _, h := range handlers {
		h := h
		emit(logger, func() { h(connected) })
	}
}

func (e *events) emitModuleChanged(logger interface{ Printf(string, ...any) }, m *Module, property string) {
	e.mu.Lock()
	handlers := append([]ModuleChangedHandler(nil), e.moduleChanged...)
	e.mu.Unlock()
	for _, h := range handlers {
		h := h
		emit(logger, func() { h(m, property) })
	}
}

func (e *events) emitPlcAddressReceived(logger interface{ Printf(string, ...any) }, house wire.HouseCode, unit wire.UnitCode) {
	e.mu.Lock()
	handlers := append([]PlcAddressHandler(nil), e.plcAddress...)
	e.mu.Unlock()
	for _, h := range handlers {
		h := h
		emit(logger, func() { h(house, unit) })
	}
}

func (e *events) emitPlcFunctionReceived(logger interface{ Printf(string, ...any) }, cmd wire.Command, house wire.HouseCode) {
	e.mu.Lock()
	handlers := append([]PlcFunctionHandler(nil), e.plcFunction...)
	e.mu.Unlock()
	for _, h := range handlers {
		h := h
		emit(logger, func() { h(cmd, house) })
	}
}

func (e *events) emitRfDataReceived(logger interface{ Printf(string, ...any) }, data []byte) {
	e.mu.Lock()
	handlers := append([]RfDataHandler(nil), e.rfData...)
	e.mu.Unlock()
	for _, h := range handlers {
		h := h
		emit(logger, func() { h(data) })
	}
}

func (e *events) emitRfCommandReceived(logger interface{ Printf(string, ...any) }, cmd wire.Command, house wire.HouseCode, unit wire.UnitCode) {
	e.mu.Lock()
	handlers := append([]RfCommandHandler(nil), e.rfCommand...)
	e.mu.Unlock()
	for _, h := range handlers {
		h := h
		emit(logger, func() { h(cmd, house, unit) })
	}
}

func (e *events) emitRfSecurityReceived(logger interface{ Printf(string, ...any) }, event wire.SecurityEvent, address uint32) {
	e.mu.Lock()
	handlers := append([]RfSecurityHandler(nil), e.rfSecurity...)
	e.mu.Unlock()
	for _, h := range handlers {
		h := h
		emit(logger, func() { h(event, address) })
	}
}
