// Package xhci implements a driver for the USB xHCI host controller:
// capability/operational/runtime/doorbell register access, command and
// event ring management, port enumeration, and HID boot-mouse/tablet
// transfer decoding.
package xhci

import (
	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
)

// Capability register offsets (xHCI 1.2, §5.3), relative to the MMIO
// base (BAR0).
const (
	capLength  = 0x00 // CAPLENGTH / HCIVERSION
	capHCSPARAMS1 = 0x04
	capHCSPARAMS2 = 0x08
	capHCCPARAMS1 = 0x10
	capDBOFF      = 0x14
	capRTSOFF     = 0x18
)

// Operational register offsets, relative to opBase = MMIO base + CAPLENGTH.
const (
	opUSBCMD  = 0x00
	opUSBSTS  = 0x04
	opPAGESIZE = 0x08
	opDNCTRL  = 0x14
	opCRCR    = 0x18
	opDCBAAP  = 0x30
	opCONFIG  = 0x38
	opPortBase = 0x400
	opPortStride = 0x10
)

// USBCMD bits.
const (
	cmdRun      uint32 = 1 << 0
	cmdHCRST    uint32 = 1 << 1
	cmdINTE     uint32 = 1 << 2
)

// USBSTS bits.
const (
	stsHCHalted uint32 = 1 << 0
	stsCNR      uint32 = 1 << 11
)

// Port register offsets, relative to a port's base (opPortBase +
// n*opPortStride).
const (
	portSC  = 0x00
	portPMSC = 0x04
)

// PORTSC bits.
const (
	portCCS uint32 = 1 << 0 // Current Connect Status
	portPR  uint32 = 1 << 4 // Port Reset
	portPRC uint32 = 1 << 21 // Port Reset Change
	portCSC uint32 = 1 << 17 // Connect Status Change
)

func portSpeed(portsc uint32) Speed {
	switch (portsc >> 10) & 0xF {
	case 2:
		return SpeedLow
	case 1:
		return SpeedFull
	case 3:
		return SpeedHigh
	case 4:
		return SpeedSuper
	case 5:
		return SpeedSuperPlus
	default:
		return SpeedUnknown
	}
}

// Runtime register offsets, relative to the runtime base (MMIO base +
// RTSOFF). Interrupter 0 only is used.
const (
	rtIR0          = 0x20
	ir0IMAN        = 0x00
	ir0ERSTSZ      = 0x08
	ir0ERSTBA      = 0x10
	ir0ERDP        = 0x18
)

const (
	imanIP uint32 = 1 << 0
	imanIE uint32 = 1 << 1

	erdpEHB uint64 = 1 << 3
)

// Doorbell register offset (MMIO base + DBOFF), one uint32 per slot
// (slot 0 is the command doorbell).
const doorbellStride = 4

// regs is the set of absolute MMIO base addresses a Controller derives
// once from BAR0, CAPLENGTH, DBOFF and RTSOFF.
type regs struct {
	base    uint64 // BAR0, HHDM-adjusted
	opBase  uint64
	dbBase  uint64
	rtBase  uint64
	maxPorts uint8
	maxSlots uint8
}

func newRegs(base uint64) *regs {
	capLen := uint64(reg.Read32(base+capLength) & 0xFF)
	dboff := uint64(reg.Read32(base + capDBOFF))
	rtsoff := uint64(reg.Read32(base + capRTSOFF))

	hcs1 := reg.Read32(base + capHCSPARAMS1)

	return &regs{
		base:     base,
		opBase:   base + capLen,
		dbBase:   base + dboff,
		rtBase:   base + rtsoff,
		maxPorts: uint8(hcs1 >> 24),
		maxSlots: uint8(hcs1 & 0xFF),
	}
}

func (r *regs) usbcmd() uint64  { return r.opBase + opUSBCMD }
func (r *regs) usbsts() uint64  { return r.opBase + opUSBSTS }
func (r *regs) crcr() uint64    { return r.opBase + opCRCR }
func (r *regs) dcbaap() uint64  { return r.opBase + opDCBAAP }
func (r *regs) config() uint64  { return r.opBase + opCONFIG }

func (r *regs) portBase(n int) uint64 {
	return r.opBase + opPortBase + uint64(n)*opPortStride
}

func (r *regs) ir0() uint64 {
	return r.rtBase + rtIR0
}

func (r *regs) doorbell(slot uint8) uint64 {
	return r.dbBase + uint64(slot)*doorbellStride
}
