package xhci

// HIDKind distinguishes the pointer devices this driver understands.
type HIDKind int

const (
	HIDNone HIDKind = iota
	HIDBootMouse
	HIDTablet
)

// PointerEvent is delivered to the input-driver callback on every
// completed interrupt-IN transfer from a mouse or tablet device.
type PointerEvent struct {
	Buttons uint8

	// Relative deltas, populated for HIDBootMouse.
	DX, DY, Wheel int8

	// Absolute position, populated for HIDTablet (already scaled to
	// screen bounds) and maintained (clamped) for HIDBootMouse.
	X, Y int32

	// IsAbsolute reports whether X/Y are a native absolute report
	// (HIDTablet) rather than accumulated from relative deltas
	// (HIDBootMouse).
	IsAbsolute bool
}

// Device is a single enumerated USB device attached to this controller:
// its slot, port, negotiated speed, and (if it is a supported HID
// pointer) the interrupt endpoint state needed to keep re-arming
// transfers.
type Device struct {
	Slot  uint8
	Port  int
	Speed Speed

	Kind HIDKind

	ep0 *ring

	hidDCI      int
	hidRing     *ring
	hidMaxPkt   uint16
	hidBuf      uint64
	logicalMaxX int32
	logicalMaxY int32

	screenW, screenH int32
	posX, posY       int32

	OnPointer func(PointerEvent)
}

// SetScreenBounds configures the clamp/scale target used when decoding
// boot-mouse relative motion and tablet absolute coordinates.
func (d *Device) SetScreenBounds(w, h int32) {
	d.screenW, d.screenH = w, h
}
