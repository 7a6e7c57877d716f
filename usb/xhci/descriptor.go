package xhci

import "encoding/binary"

// Speed mirrors the xHCI PORTSC speed field (xHCI 1.2 Table 7-13).
type Speed uint8

const (
	SpeedUnknown Speed = iota
	SpeedFull
	SpeedLow
	SpeedHigh
	SpeedSuper
	SpeedSuperPlus
)

// defaultMaxPacket returns EP0's default max packet size for a given
// link speed, used before the real Device Descriptor has been read.
func defaultMaxPacket(s Speed) uint16 {
	switch s {
	case SpeedLow:
		return 8
	case SpeedSuper, SpeedSuperPlus:
		return 512
	default:
		return 64
	}
}

// Standard request codes (USB 2.0 Table 9-4), issued by the host driver
// rather than answered by it.
const (
	reqGetStatus        = 0
	reqClearFeature     = 1
	reqSetFeature       = 3
	reqSetAddress       = 5
	reqGetDescriptor    = 6
	reqGetConfiguration = 8
	reqSetConfiguration = 9
	reqSetInterface     = 11
)

// HID class-specific requests (HID 1.11 §7.2).
const (
	hidReqGetReport   = 1
	hidReqSetProtocol = 11
)

// Descriptor types (USB 2.0 Table 9-5).
const (
	descDevice        = 1
	descConfiguration = 2
	descString        = 3
	descInterface     = 4
	descEndpoint      = 5
	descHIDReport     = 0x22
)

const classHID = 0x03

// bootInterfaceSubclass/protocol (HID 1.11 §4.2/§4.3).
const (
	hidSubclassBoot    = 0x01
	hidProtocolKeyboard = 0x01
	hidProtocolMouse    = 0x02
)

// SetupData is the 8-byte control-transfer setup packet (USB 2.0 Table
// 9-2), built by the host for EP0 Setup Stage TRBs.
type SetupData struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

func (s SetupData) bytes() []byte {
	buf := make([]byte, 8)
	buf[0] = s.RequestType
	buf[1] = s.Request
	binary.LittleEndian.PutUint16(buf[2:], s.Value)
	binary.LittleEndian.PutUint16(buf[4:], s.Index)
	binary.LittleEndian.PutUint16(buf[6:], s.Length)
	return buf
}

// DeviceDescriptor is the fixed 18-byte Device Descriptor (USB 2.0 Table
// 9-8), only the fields this driver inspects.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	USB               uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceRelease     uint16
	NumConfigurations uint8
}

func parseDeviceDescriptor(buf []byte) DeviceDescriptor {
	var d DeviceDescriptor
	if len(buf) < 18 {
		return d
	}

	d.Length = buf[0]
	d.DescriptorType = buf[1]
	d.USB = binary.LittleEndian.Uint16(buf[2:])
	d.DeviceClass = buf[4]
	d.DeviceSubClass = buf[5]
	d.DeviceProtocol = buf[6]
	d.MaxPacketSize0 = buf[7]
	d.VendorID = binary.LittleEndian.Uint16(buf[8:])
	d.ProductID = binary.LittleEndian.Uint16(buf[10:])
	d.DeviceRelease = binary.LittleEndian.Uint16(buf[12:])
	d.NumConfigurations = buf[17]

	return d
}

// interfaceInfo summarises the HID interface and interrupt-IN endpoint a
// Configuration Descriptor walk found, if any.
type interfaceInfo struct {
	found           bool
	interfaceNumber uint8
	subClass        uint8
	protocol        uint8
	epAddress       uint8
	epMaxPacket     uint16
	epInterval      uint8
}

// findHIDInterface walks a Configuration Descriptor's sub-descriptors
// (USB 2.0 §9.6.3) looking for the first class-0x03 interface and its
// interrupt-IN endpoint.
func findHIDInterface(buf []byte) interfaceInfo {
	var info interfaceInfo
	var inHID bool

	for i := 0; i+2 <= len(buf); {
		length := int(buf[i])
		if length == 0 || i+length > len(buf) {
			break
		}

		descType := buf[i+1]

		switch {
		case descType == descInterface && length >= 9:
			if buf[i+5] == classHID {
				inHID = true
				info.found = true
				info.interfaceNumber = buf[i+2]
				info.subClass = buf[i+6]
				info.protocol = buf[i+7]
			} else {
				inHID = false
			}
		case descType == descEndpoint && length >= 7 && inHID:
			attrs := buf[i+3]
			if attrs&0x3 == 3 && buf[i+2]&0x80 != 0 { // interrupt, IN
				info.epAddress = buf[i+2]
				info.epMaxPacket = binary.LittleEndian.Uint16(buf[i+4:])
				info.epInterval = buf[i+6]
				return info
			}
		}

		i += length
	}

	return info
}

// hidLogicalMaxima extracts the logical-maximum values for Generic
// Desktop X (usage 0x30) and Y (usage 0x31) out of a HID Report
// Descriptor, for absolute-position (tablet) devices. This is a minimal
// walk of the short-item stream, not a full HID parser.
func hidLogicalMaxima(report []byte) (maxX, maxY int32) {
	var usageX, usageY bool
	var logicalMax int32

	for i := 0; i < len(report); {
		item := report[i]
		size := int(item & 0x3)
		if size == 3 {
			size = 4
		}
		prefix := item & 0xFC // tag (bits 7:4) and type (bits 3:2)
		i++

		if i+size > len(report) {
			break
		}

		var val int32
		for b := 0; b < size; b++ {
			val |= int32(report[i+b]) << (8 * b)
		}

		switch {
		case prefix == 0x08: // Usage (tag 0b0000, type local)
			usageX = usageX || val == 0x30
			usageY = usageY || val == 0x31
		case prefix == 0x24: // Logical Maximum (tag 0b0010, type global)
			logicalMax = val
		case item&0x0C == 0: // main item: Input applies the current state
			if prefix == 0x80 && usageX {
				maxX = logicalMax
			}
			if prefix == 0x80 && usageY {
				maxY = logicalMax
			}
			usageX, usageY = false, false // local items end at a main item
		}

		i += size
	}

	return maxX, maxY
}
