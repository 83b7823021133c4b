package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeAddressC7(t *testing.T) {
	frame := EncodeAddress(HouseC, Unit7)
	assert.Equal(t, []byte{0x04, 0x25}, frame, "Address(C,7) should be [0x04, 0x25]")
}

func TestEncodeFunctionOnC(t *testing.T) {
	frame := EncodeFunction(HouseC, CmdOn)
	assert.Equal(t, []byte{0x06, 0x22}, frame)
}

func TestDimByteUSBHalf(t *testing.T) {
	assert.Equal(t, byte(105), DimByteUSB(50), "floor(0.5*210) should be 105")
}

func TestDimByteUSBClampsPercent(t *testing.T) {
	assert.Equal(t, byte(210), DimByteUSB(150), "percent above 100 should clamp")
	assert.Equal(t, byte(0), DimByteUSB(-10), "percent below 0 should clamp")
}

func TestDimRoundTripSerial(t *testing.T) {
	for p := 0.0; p <= 100; p += 5 {
		nibble := DimNibbleSerial(p)
		got := PercentFromDimNibbleSerial(nibble)
		want := p / 100
		assert.InDelta(t, want, got, 1.0/22, "round trip should stay within one serial step")
	}
}

func TestReverseByteInvolution(t *testing.T) {
	for b := 0; b < 256; b++ {
		assert.Equal(t, byte(b), ReverseByte(ReverseByte(byte(b))))
	}
}

func TestEncodeMonitoredCodesUSB(t *testing.T) {
	frame := EncodeMonitoredCodesUSB([]HouseCode{HouseA})
	assert.Equal(t, byte(0xBB), frame[0])
	bitmap := uint16(frame[1])<<8 | uint16(frame[2])
	assert.Equal(t, uint16(1<<14), bitmap, "house A should set bit 14")
}

func TestTimeSetFrameUSBHasTrailingByte(t *testing.T) {
	serial := TimeSetFrame(0, 0, 0, 0, 0, HouseA, false, false)
	usb := TimeSetFrame(0, 0, 0, 0, 0, HouseA, false, true)
	assert.Len(t, serial, len(usb)-1)
	assert.Equal(t, byte(0x02), usb[len(usb)-1])
}
