package xhci

import "github.com/dmorton63/qaiosplus-sub000/internal/reg"

// TRB is the 16-byte Transfer Request Block common to every producer and
// consumer ring.
type TRB struct {
	Parameter uint64
	Status    uint32
	Control   uint32
}

// TRB types (control word bits 15:10), xHCI 1.2 Table 6-91.
const (
	trbNormal            = 1
	trbSetupStage        = 2
	trbDataStage         = 3
	trbStatusStage       = 4
	trbLink              = 6
	trbEnableSlot        = 9
	trbAddressDevice     = 11
	trbConfigureEndpoint = 12
	trbNoOp              = 23

	trbTransferEvent        = 32
	trbCommandCompletion    = 33
	trbPortStatusChange     = 34
)

const (
	trbCycle      uint32 = 1 << 0
	trbToggleCycle uint32 = 1 << 1
	trbIOC        uint32 = 1 << 5
	trbIDT        uint32 = 1 << 6

	trbTypeShift = 10
	trbTypeMask  = 0x3F
)

func trbType(control uint32) int {
	return int((control >> trbTypeShift) & trbTypeMask)
}

func makeControl(trbType int, cycle uint32, flags uint32) uint32 {
	return uint32(trbType&trbTypeMask)<<trbTypeShift | flags | (cycle & trbCycle)
}

// Completion codes, xHCI 1.2 Table 6-90 (the subset this driver inspects).
const (
	cmplSuccess      = 1
	cmplShortPacket  = 13
)

func completionCode(status uint32) int {
	return int(status >> 24)
}

func writeTRB(addr uint64, t TRB) {
	reg.Write64(addr, t.Parameter)
	reg.Write32(addr+8, t.Status)
	reg.Write32(addr+12, t.Control)
}

func readTRB(addr uint64) TRB {
	return TRB{
		Parameter: reg.Read64(addr),
		Status:    reg.Read32(addr + 8),
		Control:   reg.Read32(addr + 12),
	}
}
