package xhci

import "testing"

func TestDecodeBootMouseIsRelative(t *testing.T) {
	dev := &Device{Kind: HIDBootMouse}
	dev.SetScreenBounds(1024, 768)

	ev := decodeBootMouse(dev, []byte{0x01, 5, 0xfb})
	if ev.IsAbsolute {
		t.Fatalf("boot mouse report must not be marked absolute")
	}
	if ev.Buttons != 0x01 {
		t.Fatalf("buttons = %#x, want 0x01", ev.Buttons)
	}
}

// TestDecodeTabletMatchesCoordinateMappingScenario reproduces spec.md §8
// Scenario 6 verbatim: logicalMax 32767x32767, screen 1024x768, report
// {buttons=0x01, absX=16384, absY=8192} -> x~=511, y~=191, isAbsolute=true.
func TestDecodeTabletMatchesCoordinateMappingScenario(t *testing.T) {
	dev := &Device{Kind: HIDTablet, logicalMaxX: 32767, logicalMaxY: 32767}
	dev.SetScreenBounds(1024, 768)

	report := []byte{
		0x01,
		byte(16384), byte(16384 >> 8),
		byte(8192), byte(8192 >> 8),
	}

	ev := decodeTablet(dev, report)

	if !ev.IsAbsolute {
		t.Fatalf("tablet report must be marked absolute")
	}
	if ev.Buttons != 0x01 {
		t.Fatalf("buttons = %#x, want 0x01", ev.Buttons)
	}
	if ev.X != 511 {
		t.Fatalf("x = %d, want 511", ev.X)
	}
	if ev.Y != 191 {
		t.Fatalf("y = %d, want 191", ev.Y)
	}
}
