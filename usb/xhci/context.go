package xhci

import (
	"github.com/dmorton63/qaiosplus-sub000/dma"
	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
)

// deviceContextSize is the 32-byte-context form (CSZ=0): slot context
// plus up to 31 endpoint contexts, 32 bytes each.
const (
	contextSize       = 32
	maxEndpoints      = 31
	deviceContextSize = contextSize * (1 + maxEndpoints)
)

// dcbaa is the slot-indexed array of physical pointers to per-slot device
// contexts; dcbaa[0] holds the scratchpad buffer array pointer when the
// controller requires scratchpad buffers.
type dcbaa struct {
	base     uint64
	maxSlots uint8
}

func newDCBAA(maxSlots uint8) *dcbaa {
	addr := dma.Alloc(make([]byte, (uint(maxSlots)+1)*8), 64)
	return &dcbaa{base: uint64(addr), maxSlots: maxSlots}
}

func (d *dcbaa) set(slot uint8, contextAddr uint64) {
	reg.Write64(d.base+uint64(slot)*8, contextAddr)
}

// setScratchpad allocates the scratchpad buffer array HCSPARAMS2 requires
// and records its pointer in DCBAA[0].
func (d *dcbaa) setScratchpad(count int) {
	if count == 0 {
		return
	}

	table := dma.Alloc(make([]byte, count*8), 64)
	for i := 0; i < count; i++ {
		buf := dma.Alloc(make([]byte, 4096), 4096)
		reg.Write64(uint64(table)+uint64(i)*8, uint64(buf))
	}

	d.set(0, uint64(table))
}

// allocDeviceContext allocates a zeroed 32-byte-context device context
// for a freshly enabled slot.
func allocDeviceContext() uint64 {
	return uint64(dma.Alloc(make([]byte, deviceContextSize), 64))
}

// Input context layout: a 32-byte (CSZ=0) control context (drop bitmap at
// offset 0, add bitmap at offset 4), followed by a slot context and up to
// 31 endpoint contexts at the same per-entry stride as the device
// context.
const inputControlSize = contextSize

func allocInputContext() uint64 {
	return uint64(dma.Alloc(make([]byte, inputControlSize+deviceContextSize), 64))
}

func inputControlAddAdd(ctx uint64, bit uint) {
	addr := ctx + 4
	reg.Write32(addr, reg.Read32(addr)|(1<<bit))
}

func inputSlotContextAddr(ctx uint64) uint64 {
	return ctx + inputControlSize
}

func inputEndpointContextAddr(ctx uint64, dci int) uint64 {
	return ctx + inputControlSize + uint64(dci)*contextSize
}

// Slot context fields (xHCI 1.2 Table 6-6), written into the first
// 32-byte block of a slot+endpoint context region.
func writeSlotContext(addr uint64, routeString uint32, speed Speed, contextEntries uint8, rootHubPort uint8) {
	dword0 := routeString&0xFFFFF | uint32(speed)<<20 | uint32(contextEntries)<<27
	reg.Write32(addr+0, dword0)
	reg.Write32(addr+4, uint32(rootHubPort)<<16)
}

func readSlotContext(addr uint64) (state uint8) {
	dword3 := reg.Read32(addr + 12)
	return uint8(dword3 >> 27)
}

// Endpoint context fields (xHCI 1.2 Table 6-9) for a single endpoint
// entry at dci (1 = EP0, 2 = EP1 OUT, 3 = EP1 IN, ...).
func writeEndpointContext(addr uint64, epType uint8, maxPacketSize uint16, ring *ring, interval uint8, errorCount uint8) {
	dword1 := uint32(errorCount&0x3)<<1 | uint32(epType&0x7)<<3 | uint32(maxPacketSize)<<16
	reg.Write32(addr+4, dword1)
	reg.Write64(addr+8, ring.crcrValue())
	reg.Write32(addr+0, uint32(interval)<<16)
}

// Endpoint types (xHCI 1.2 Table 6-9).
const (
	epTypeControl     uint8 = 4
	epTypeInterruptIN uint8 = 7
)
