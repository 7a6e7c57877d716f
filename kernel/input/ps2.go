// Package input implements the legacy 8042 PS/2 controller: keyboard
// scancode (Set 1) translation and standard 3-byte mouse packet decoding,
// polled the same way the teacher's soc/intel/uart and soc/intel/rtc
// drivers poll their status registers before touching data ports.
package input

import (
	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
	"github.com/dmorton63/qaiosplus-sub000/kernel/event"
)

const (
	ps2DataPort   = 0x60
	ps2StatusPort = 0x64
	ps2CmdPort    = 0x64

	statusOutputFull uint8 = 1 << 0
	statusAuxData    uint8 = 1 << 5

	cmdEnableAux = 0xA8
)

// Controller polls the 8042's output buffer and dispatches completed
// keyboard scancodes and mouse packets onto an event bus.
type Controller struct {
	bus *event.Bus

	mousePacket [3]byte
	mouseIndex  int
	mouseX, mouseY int32
	screenW, screenH int32
}

// New returns a controller posting decoded input events onto bus, and
// enables the auxiliary (mouse) port.
func New(bus *event.Bus) *Controller {
	reg.Out8(ps2CmdPort, cmdEnableAux)
	return &Controller{bus: bus}
}

// SetScreenBounds configures the clamp target for accumulated mouse
// position, mirroring usb/xhci.Device.SetScreenBounds.
func (c *Controller) SetScreenBounds(w, h int32) {
	c.screenW, c.screenH = w, h
}

// Poll drains any bytes currently available in the 8042 output buffer,
// routing each to the keyboard or mouse decoder by the aux-data status
// bit. It never blocks: called once per main-loop iteration.
func (c *Controller) Poll() {
	for reg.In8(ps2StatusPort)&statusOutputFull != 0 {
		status := reg.In8(ps2StatusPort)
		data := reg.In8(ps2DataPort)

		if status&statusAuxData != 0 {
			c.feedMouse(data)
		} else {
			c.feedKeyboard(data)
		}
	}
}

// feedKeyboard translates a single Set 1 scancode into a KeyDown/KeyUp
// event. Bit 7 of the scancode marks a release (break code); the make
// code is the same byte with bit 7 clear.
func (c *Controller) feedKeyboard(scancode uint8) {
	if c.bus == nil {
		return
	}

	released := scancode&0x80 != 0
	code := scancode &^ 0x80

	eventType := event.KeyDown
	if released {
		eventType = event.KeyUp
	}

	c.bus.Post(event.Event{
		Type:     eventType,
		Category: event.Input,
		Priority: event.Normal,
		Key: event.KeyData{
			Scancode:  code,
			Character: scancodeSet1ToASCII(code),
		},
	})
}

// feedMouse accumulates the standard 3-byte PS/2 mouse packet (byte 0:
// buttons + sign/overflow bits, byte 1: signed dx, byte 2: signed dy) and
// posts a MouseMove event once a full packet is assembled.
func (c *Controller) feedMouse(b uint8) {
	if c.mouseIndex == 0 && b&0x08 == 0 {
		// first byte always has bit 3 set; resync on garbage
		return
	}

	c.mousePacket[c.mouseIndex] = b
	c.mouseIndex++

	if c.mouseIndex < 3 {
		return
	}
	c.mouseIndex = 0

	buttons := c.mousePacket[0] & 0x7
	dx := int32(int8(c.mousePacket[1]))
	dy := -int32(int8(c.mousePacket[2])) // PS/2 Y is inverted relative to screen coordinates

	c.mouseX = clamp(c.mouseX+dx, 0, c.screenW-1)
	c.mouseY = clamp(c.mouseY+dy, 0, c.screenH-1)

	if c.bus == nil {
		return
	}

	var button event.MouseButton
	switch {
	case buttons&0x01 != 0:
		button = event.ButtonLeft
	case buttons&0x02 != 0:
		button = event.ButtonRight
	case buttons&0x04 != 0:
		button = event.ButtonMiddle
	}

	c.bus.Post(event.Event{
		Type:     event.MouseMove,
		Category: event.Input,
		Priority: event.Normal,
		Mouse: event.MouseData{
			X: c.mouseX, Y: c.mouseY,
			DeltaX: dx, DeltaY: dy,
			Button:     button,
			IsAbsolute: false, // PS/2 packets are always relative deltas
		},
	})
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// scancodeSet1ToASCII covers the printable main-block keys of a US QWERTY
// Set 1 map; anything else (function keys, modifiers, extended E0 codes)
// is left to the caller to interpret from the raw scancode.
func scancodeSet1ToASCII(code uint8) byte {
	const table = "\x00\x1b1234567890-=\x08\tqwertyuiop[]\r\x00asdfghjkl;'`\x00\\zxcvbnm,./\x00*\x00 "
	if int(code) < len(table) {
		return table[code]
	}
	return 0
}
