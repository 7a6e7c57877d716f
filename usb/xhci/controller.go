package xhci

import (
	"github.com/dmorton63/qaiosplus-sub000/dma"
	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/dmorton63/qaiosplus-sub000/soc/intel/pci"
)

const spinLimit = 1_000_000

// PCI config-space Command register bits (PCI 3.0 §6.2.2).
const (
	pciCmdIOSpace     uint32 = 1 << 0
	pciCmdMemSpace    uint32 = 1 << 1
	pciCmdBusMaster   uint32 = 1 << 2
)

// USB Legacy Support Capability (xHCI 1.2 §7.2.1), an extended capability
// living in MMIO space, walked separately from the PCI capability list.
const (
	xcapIDUSBLegacy = 1

	xcapIDMask  = 0xFF
	xcapNextShift = 8
	xcapNextMask  = 0xFF

	legacyBIOSOwned uint32 = 1 << 16
	legacyOSOwned   uint32 = 1 << 24
)

// Controller is a single xHCI host controller instance.
type Controller struct {
	dev *pci.Device
	r   *regs

	cmdRing   *ring
	eventRing *eventRing
	dcbaa     *dcbaa

	pendingCommand bool
	lastCompletion int
	lastSlot       uint8

	transferPending     bool
	transferPendingSlot uint8
	transferPendingDCI  int
	transferCompletion  int

	devices [256]*Device

	enumerating [256]bool

	// OnHID is called once a port has finished HID enumeration and
	// classified its device as a supported boot mouse or tablet; it is
	// the hook a driver manager uses to set Device.OnPointer and screen
	// bounds before the first interrupt IN is armed.
	OnHID func(*Device)
}

// Open locates the xHCI controller (class 0x0C, subclass 0x03, prog-if
// 0x30) on bus, enables it as a PCI bus master with memory space access,
// maps BAR0, and brings the controller through reset into a running
// state ready to accept port status-change events.
func Open(bus int) (*Controller, status.Status) {
	dev := findXHCI(bus)
	if dev == nil {
		return nil, status.NotFound
	}

	cmd := dev.Read(0, pci.Command)
	dev.Write(0, pci.Command, cmd|pciCmdMemSpace|pciCmdIOSpace|pciCmdBusMaster)

	base := uint64(dev.BaseAddress(0))
	r := newRegs(base)

	c := &Controller{dev: dev, r: r}

	if st := c.takeLegacyOwnership(); st != status.Success {
		return nil, st
	}

	if st := c.reset(); st != status.Success {
		return nil, st
	}

	c.allocate()
	c.program()

	return c, status.Success
}

// findXHCI scans the bus for the first controller reporting the xHCI
// programming interface (PCI 3.0 §D, class 0x0C0330).
func findXHCI(bus int) *pci.Device {
	for _, d := range pci.Devices(bus) {
		classReg := d.Read(0, 0x08)
		class := byte(classReg >> 24)
		subclass := byte(classReg >> 16)
		progIF := byte(classReg >> 8)

		if class == 0x0C && subclass == 0x03 && progIF == 0x30 {
			return d
		}
	}

	return nil
}

// takeLegacyOwnership walks the xHCI extended capabilities list (distinct
// from the PCI capability list) looking for USB Legacy Support, setting
// the OS-owned bit and waiting for BIOS to release ownership.
func (c *Controller) takeLegacyOwnership() status.Status {
	hccparams1 := reg.Read32(c.r.base + 0x10)
	off := uint64(hccparams1>>16) * 4
	if off == 0 {
		return status.Success
	}

	addr := c.r.base + off
	for {
		header := reg.Read32(addr)
		id := header & xcapIDMask
		next := (header >> xcapNextShift) & xcapNextMask

		if id == xcapIDUSBLegacy {
			reg.SetBits32(addr, legacyOSOwned)

			for i := 0; i < spinLimit; i++ {
				if reg.Read32(addr)&legacyBIOSOwned == 0 {
					return status.Success
				}
			}

			return status.Timeout
		}

		if next == 0 {
			break
		}
		addr += uint64(next) * 4
	}

	return status.Success
}

// reset halts the controller (if running), asserts HCRST, and waits for
// both HCRST and CNR to clear.
func (c *Controller) reset() status.Status {
	if reg.Read32(c.r.usbsts())&stsHCHalted == 0 {
		reg.ClearBits32(c.r.usbcmd(), cmdRun)

		for i := 0; i < spinLimit; i++ {
			if reg.Read32(c.r.usbsts())&stsHCHalted != 0 {
				break
			}
		}
	}

	reg.SetBits32(c.r.usbcmd(), cmdHCRST)

	for i := 0; i < spinLimit; i++ {
		sts := reg.Read32(c.r.usbsts())
		cmd := reg.Read32(c.r.usbcmd())
		if cmd&cmdHCRST == 0 && sts&stsCNR == 0 {
			return status.Success
		}
	}

	return status.Timeout
}

// allocate sets up the DCBAA, command ring, event ring, ERST, and
// scratchpad buffers (count from HCSPARAMS2 max and hi bits).
func (c *Controller) allocate() {
	c.dcbaa = newDCBAA(c.r.maxSlots)

	hcs2 := reg.Read32(c.r.base + capHCSPARAMS2)
	maxScratchHi := (hcs2 >> 21) & 0x1F
	maxScratchLo := (hcs2 >> 27) & 0x1F
	scratchpadCount := int(maxScratchHi<<5 | maxScratchLo)
	c.dcbaa.setScratchpad(scratchpadCount)

	c.cmdRing = newRing()
	c.eventRing = newEventRing()
}

// erstEntrySize is the 16-byte Event Ring Segment Table Entry (xHCI 1.2
// §6.5): ring segment base address and segment size.
const erstEntrySize = 16

// program writes CRCR, the single-entry ERST, ERDP, IMAN, CONFIG, and
// finally sets RUN|INTE.
func (c *Controller) program() {
	reg.Write64(c.r.crcr(), c.cmdRing.crcrValue())
	reg.Write64(c.r.dcbaap(), c.dcbaa.base)

	erst := dma.Alloc(make([]byte, erstEntrySize), 64)
	reg.Write64(uint64(erst), c.eventRing.base)
	reg.Write32(uint64(erst)+8, ringSlots)

	reg.Write32(c.r.ir0()+ir0ERSTSZ, 1)
	reg.Write64(c.r.ir0()+ir0ERSTBA, uint64(erst))
	reg.Write64(c.r.ir0()+ir0ERDP, c.eventRing.slotAddr(0))

	reg.SetBits32(c.r.ir0()+ir0IMAN, imanIE)

	reg.Write32(c.r.config(), uint32(c.r.maxSlots))

	reg.SetBits32(c.r.usbcmd(), cmdRun|cmdINTE)
}

// PortCount returns the number of root-hub ports this controller exposes.
func (c *Controller) PortCount() int {
	return int(c.r.maxPorts)
}
