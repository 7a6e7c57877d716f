package xhci

import (
	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

const commandDoorbell = 0

// submitCommand enqueues t on the command ring, rings the command
// doorbell, and spins (bounded) draining events until the matching
// Command Completion event clears the pending flag. It returns the
// completion code and, for commands that allocate a slot, the slot id.
func (c *Controller) submitCommand(t TRB) (completionCode int, slotID uint8, st status.Status) {
	c.cmdRing.enqueueTRB(t)
	c.pendingCommand = true

	reg.Write32(c.r.doorbell(commandDoorbell), 0)

	for i := 0; i < spinLimit; i++ {
		c.ProcessEvents()
		if !c.pendingCommand {
			return c.lastCompletion, c.lastSlot, status.Success
		}
	}

	return 0, 0, status.Timeout
}

// enableSlot issues the Enable Slot command and returns the allocated
// slot id.
func (c *Controller) enableSlot() (uint8, status.Status) {
	code, slot, st := c.submitCommand(TRB{Control: makeControl(trbEnableSlot, 0, 0)})
	if st != status.Success {
		return 0, st
	}
	if code != cmplSuccess {
		return 0, status.Error
	}

	return slot, status.Success
}

// addressDevice issues Address Device with the given input context
// physical address for slot.
func (c *Controller) addressDevice(slot uint8, inputCtx uint64) status.Status {
	t := TRB{
		Parameter: inputCtx,
		Control:   makeControl(trbAddressDevice, 0, uint32(slot)<<24),
	}

	code, _, st := c.submitCommand(t)
	if st != status.Success {
		return st
	}
	if code != cmplSuccess {
		return status.Error
	}

	return status.Success
}

// configureEndpoint issues Configure Endpoint with the given input
// context physical address for slot.
func (c *Controller) configureEndpoint(slot uint8, inputCtx uint64) status.Status {
	t := TRB{
		Parameter: inputCtx,
		Control:   makeControl(trbConfigureEndpoint, 0, uint32(slot)<<24),
	}

	code, _, st := c.submitCommand(t)
	if st != status.Success {
		return st
	}
	if code != cmplSuccess {
		return status.Error
	}

	return status.Success
}

// ProcessEvents drains the event ring until it finds a TRB whose cycle
// bit no longer matches the driver's expected cycle (i.e. the consumer
// has caught up with the producer). Each event is consumed (the dequeue
// pointer advanced) before it is dispatched by type. Port Status Change
// events run port enumeration inline, and enumeration re-enters
// ProcessEvents through submitCommand, so a call can last as long as
// enumerating a newly connected device takes.
func (c *Controller) ProcessEvents() {
	for {
		t, ready := c.eventRing.peek()
		if !ready {
			return
		}

		erdp := c.eventRing.advance()
		reg.Write64(c.r.ir0()+ir0ERDP, erdp|erdpEHB)

		switch trbType(t.Control) {
		case trbCommandCompletion:
			c.lastCompletion = completionCode(t.Status)
			c.lastSlot = uint8(t.Control >> 24)
			c.pendingCommand = false

		case trbTransferEvent:
			c.handleTransferEvent(t)

		case trbPortStatusChange:
			c.handlePortStatusChange(t)
		}
	}
}
