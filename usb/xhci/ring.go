package xhci

import (
	"github.com/dmorton63/qaiosplus-sub000/dma"
)

// ringSlots is the number of 16-byte TRB slots per ring, including the
// trailing Link TRB on producer rings.
const ringSlots = 256

// ring is a producer ring (command ring, or a device's transfer ring): a
// fixed array of TRB slots with a Link TRB in the last slot pointing back
// to the ring base. Enqueue wraps through the Link TRB, toggling both the
// enqueue index and the producer cycle state.
type ring struct {
	base    uint64
	enqueue int
	cycle   uint32
}

func newRing() *ring {
	addr := dma.Alloc(make([]byte, ringSlots*16), 64)
	r := &ring{base: uint64(addr), cycle: 1}

	link := TRB{
		Parameter: r.base,
		Control:   makeControl(trbLink, 0, trbToggleCycle),
	}
	writeTRB(r.slotAddr(ringSlots-1), link)

	return r
}

func (r *ring) slotAddr(i int) uint64 {
	return r.base + uint64(i)*16
}

// enqueueTRB writes t (with the ring's current cycle bit) at the enqueue
// pointer, advances it, and transparently follows the Link TRB on wrap,
// refreshing its cycle bit to match and toggling the producer cycle
// state. It returns the physical address the TRB was written at, which
// callers needing a queued-trb correlation (none here) could use.
func (r *ring) enqueueTRB(t TRB) uint64 {
	if r.enqueue == ringSlots-1 {
		link := readTRB(r.slotAddr(ringSlots - 1))
		link.Control = makeControl(trbLink, r.cycle, trbToggleCycle)
		writeTRB(r.slotAddr(ringSlots-1), link)

		r.enqueue = 0
		r.cycle ^= 1
	}

	t.Control = (t.Control &^ trbCycle) | (r.cycle & trbCycle)
	addr := r.slotAddr(r.enqueue)
	writeTRB(addr, t)
	r.enqueue++

	return addr
}

// crcrValue is the 64-bit value programmed into CRCR/the command-ring
// field of a device's Configure Endpoint input context: the ring base
// physical address with the initial cycle bit set in bit 0.
func (r *ring) crcrValue() uint64 {
	return r.base | uint64(r.cycle&trbCycle)
}

// eventRing is the consumer ring written by the controller; the driver
// tracks the dequeue index and its expected cycle bit, which flips every
// time the ring wraps (there is no Link TRB on a consumer ring).
type eventRing struct {
	base    uint64
	dequeue int
	cycle   uint32
}

func newEventRing() *eventRing {
	addr := dma.Alloc(make([]byte, ringSlots*16), 64)
	return &eventRing{base: uint64(addr), cycle: 1}
}

func (e *eventRing) slotAddr(i int) uint64 {
	return e.base + uint64(i)*16
}

// peek returns the TRB at the dequeue pointer and whether its cycle bit
// matches the driver's expected cycle (i.e. whether it is a new event the
// controller has produced, not a stale or not-yet-written slot).
func (e *eventRing) peek() (TRB, bool) {
	t := readTRB(e.slotAddr(e.dequeue))
	return t, t.Control&trbCycle == e.cycle&trbCycle
}

// advance moves the dequeue pointer forward, wrapping and toggling cycle
// at the end of the ring, and returns the new dequeue pointer's physical
// address for ERDP.
func (e *eventRing) advance() uint64 {
	e.dequeue++
	if e.dequeue == ringSlots {
		e.dequeue = 0
		e.cycle ^= 1
	}

	return e.slotAddr(e.dequeue)
}
