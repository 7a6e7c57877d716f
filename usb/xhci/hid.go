package xhci

// decodeHIDReport interprets a completed interrupt-IN report according to
// the device's classified kind, updating its accumulated/clamped
// position and returning the event to deliver to the input listener.
func decodeHIDReport(dev *Device, report []byte) PointerEvent {
	switch dev.Kind {
	case HIDBootMouse:
		return decodeBootMouse(dev, report)
	case HIDTablet:
		return decodeTablet(dev, report)
	default:
		return PointerEvent{}
	}
}

// decodeBootMouse follows the boot mouse report layout (HID 1.11
// Appendix B): byte 0 buttons (low 3 bits), byte 1 signed dx, byte 2
// signed dy, byte 3 (if present) signed wheel. Position accumulates and
// clamps to the configured screen bounds.
func decodeBootMouse(dev *Device, report []byte) PointerEvent {
	var ev PointerEvent
	if len(report) < 3 {
		return ev
	}

	ev.Buttons = report[0] & 0x7
	ev.DX = int8(report[1])
	ev.DY = int8(report[2])
	if len(report) > 3 {
		ev.Wheel = int8(report[3])
	}

	dev.posX = clamp32(dev.posX+int32(ev.DX), 0, dev.screenW-1)
	dev.posY = clamp32(dev.posY+int32(ev.DY), 0, dev.screenH-1)
	ev.X, ev.Y = dev.posX, dev.posY
	ev.IsAbsolute = false

	return ev
}

// decodeTablet follows a typical absolute-position tablet report: byte 0
// buttons, bytes 1-2 absolute X (little-endian), bytes 3-4 absolute Y,
// byte 5 wheel. Absolute coordinates are scaled from the device's
// logical maxima (from the HID Report Descriptor) to screen bounds.
func decodeTablet(dev *Device, report []byte) PointerEvent {
	var ev PointerEvent
	if len(report) < 5 {
		return ev
	}

	ev.Buttons = report[0]
	rawX := int32(report[1]) | int32(report[2])<<8
	rawY := int32(report[3]) | int32(report[4])<<8
	if len(report) > 5 {
		ev.Wheel = int8(report[5])
	}

	ev.X = scaleAxis(rawX, dev.logicalMaxX, dev.screenW)
	ev.Y = scaleAxis(rawY, dev.logicalMaxY, dev.screenH)
	ev.IsAbsolute = true

	dev.posX, dev.posY = ev.X, ev.Y

	return ev
}

func scaleAxis(raw, logicalMax, screenSize int32) int32 {
	if logicalMax <= 0 || screenSize <= 0 {
		return 0
	}

	return clamp32(raw*(screenSize-1)/logicalMax, 0, screenSize-1)
}

func clamp32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
