package xhci

import (
	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

// handlePortStatusChange acknowledges the status-change bits on the
// affected port and, if it now reports a device connected and the port
// isn't already mid-enumeration, enumerates it before returning. The enumerating
// flag is a per-port reentrancy guard: repeated status-change events for
// a port already being enumerated are ignored until enumeration
// completes or fails.
func (c *Controller) handlePortStatusChange(t TRB) {
	port := int(t.Parameter>>24) - 1
	if port < 0 || port >= len(c.enumerating) {
		return
	}

	addr := c.r.portBase(port) + portSC
	portsc := reg.Read32(addr)

	// PORTSC change bits are RW1C; writing the read value back acks them
	// without otherwise disturbing port state.
	reg.Write32(addr, portsc)

	if portsc&portCCS == 0 || c.enumerating[port] {
		return
	}

	c.enumerating[port] = true
	c.enumeratePort(port)
	c.enumerating[port] = false
}

// enumeratePort resets the port, reads its negotiated speed, enables a
// slot, allocates the per-slot device context and EP0 transfer ring,
// issues Address Device, then proceeds to HID enumeration.
func (c *Controller) enumeratePort(port int) {
	if st := c.resetPort(port); st != status.Success {
		return
	}

	portsc := reg.Read32(c.r.portBase(port) + portSC)
	speed := portSpeed(portsc)

	slot, st := c.enableSlot()
	if st != status.Success {
		return
	}

	dev := &Device{
		Slot:  slot,
		Port:  port,
		Speed: speed,
	}
	dev.ep0 = newRing()

	devCtx := allocDeviceContext()
	c.dcbaa.set(slot, devCtx)

	inputCtx := allocInputContext()
	inputControlAddAdd(inputCtx, 0) // slot context
	inputControlAddAdd(inputCtx, 1) // EP0 context (DCI 1)

	writeSlotContext(inputSlotContextAddr(inputCtx), 0, speed, 1, uint8(port+1))
	writeEndpointContext(inputEndpointContextAddr(inputCtx, 1), epTypeControl, defaultMaxPacket(speed), dev.ep0, 0, 3)

	if st := c.addressDevice(slot, inputCtx); st != status.Success {
		return
	}

	c.devices[slot] = dev

	c.enumerateHID(dev)
}

// resetPort asserts Port Reset and waits for the Port Reset Change bit,
// then clears it.
func (c *Controller) resetPort(port int) status.Status {
	addr := c.r.portBase(port) + portSC

	reg.SetBits32(addr, portPR)

	for i := 0; i < spinLimit; i++ {
		if reg.Read32(addr)&portPRC != 0 {
			reg.SetBits32(addr, portPRC)
			return status.Success
		}
	}

	return status.Timeout
}
