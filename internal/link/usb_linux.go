//go:build !mips && !mipsle
// +build !mips,!mipsle

// USB-based communication with a CM15Pro-style controller.
// NOTE: excluded on MIPS builds due to the gousb/libusb dependency.

package link

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	usbVendorID  gousb.ID = 0x0BC7
	usbProductID gousb.ID = 0x0001

	usbEndpointIn  = 0x81
	usbEndpointOut = 0x02

	usbPacketSize    = 8
	usbTransferLimit = 1 * time.Second
)

// USBTransport drives a CM15Pro-style controller over direct USB bulk
// transfers, bypassing any kernel serial emulation. Adapted from
// guiperry-HASHER's usb_device.go, with the Bitmain-specific framing
// stripped and endpoints/timeouts swapped for the CM15Pro (§4.1).
type USBTransport struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epIn   *gousb.InEndpoint
	epOut  *gousb.OutEndpoint
}

// NewUSBTransport builds a transport bound to the CM15Pro vendor/product ID.
func NewUSBTransport() *USBTransport {
	return &USBTransport{}
}

func (d *USBTransport) Open() error {
	ctx := gousb.NewContext()

	device, err := ctx.OpenDeviceWithVIDPID(usbVendorID, usbProductID)
	if err != nil {
		ctx.Close()
		return wrapErr("link/usb: open device", err)
	}
	if device == nil {
		ctx.Close()
		return fmt.Errorf("%w: usb %04x:%04x", ErrDeviceNotFound, uint16(usbVendorID), uint16(usbProductID))
	}

	config, err := device.Config(1)
	if err != nil {
		device.Close()
		ctx.Close()
		return wrapErr("link/usb: set config", err)
	}

	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		device.Close()
		ctx.Close()
		return wrapErr("link/usb: claim interface", err)
	}

	epOut, err := intf.OutEndpoint(usbEndpointOut)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return wrapErr("link/usb: open OUT endpoint", err)
	}

	epIn, err := intf.InEndpoint(usbEndpointIn)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return wrapErr("link/usb: open IN endpoint", err)
	}

	d.ctx = ctx
	d.device = device
	d.config = config
	d.intf = intf
	d.epIn = epIn
	d.epOut = epOut

	Logger.Printf("link/usb: opened %04x:%04x", uint16(usbVendorID), uint16(usbProductID))
	return writeStatusRequest(d.Write)
}

func (d *USBTransport) Close() error {
	if d.intf != nil {
		d.intf.Close()
	}
	if d.config != nil {
		d.config.Close()
	}
	if d.device != nil {
		d.device.Close()
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
	d.intf, d.config, d.device, d.ctx = nil, nil, nil, nil
	return nil
}

func (d *USBTransport) Write(data []byte) error {
	if d.epOut == nil {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), usbTransferLimit)
	defer cancel()
	_, err := d.epOut.WriteContext(ctx, data)
	if err != nil {
		return wrapErr("link/usb: write", err)
	}
	return nil
}

// Read performs one bulk IN transfer of up to usbPacketSize bytes with a
// 1s timeout. If that transfer doesn't fill the packet, a second 8-byte
// transfer is issued into the remaining buffer space (max 16 bytes total,
// §4.1) to pick up replies the controller split across two packets, such
// as the interface-ready indication.
func (d *USBTransport) Read() ([]byte, error) {
	if d.epIn == nil {
		return nil, ErrClosed
	}
	buf := make([]byte, 2*usbPacketSize)
	ctx, cancel := context.WithTimeout(context.Background(), usbTransferLimit)
	defer cancel()
	n, err := d.epIn.ReadContext(ctx, buf[:usbPacketSize])
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrTimeout
		}
		return nil, wrapErr("link/usb: read", err)
	}
	if n == usbPacketSize {
		return buf[:n], nil
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), usbTransferLimit)
	defer cancel2()
	n2, err := d.epIn.ReadContext(ctx2, buf[n:n+usbPacketSize])
	if err != nil {
		return buf[:n], nil
	}
	return buf[:n+n2], nil
}

// IsUSBDeviceAvailable reports whether a CM15Pro is currently enumerated,
// without claiming it. Used by the Supervisor's reconnect loop to avoid
// attempting Open on a USB backend before the controller re-enumerates.
func IsUSBDeviceAvailable() bool {
	ctx := gousb.NewContext()
	defer ctx.Close()
	device, err := ctx.OpenDeviceWithVIDPID(usbVendorID, usbProductID)
	if err != nil || device == nil {
		return false
	}
	device.Close()
	return true
}
