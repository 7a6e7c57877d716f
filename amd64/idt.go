// x86-64 processor support
// https://github.com/dmorton63/qaiosplus-sub000
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amd64

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/dmorton63/qaiosplus-sub000/dma"
)

// Interrupt Gate Descriptor Attributes (Intel SDM Vol 3A, 6.14.1).
const (
	InterruptGate = 0b10001110
	TrapGate      = 0b10001111
)

// IDT handling jump table constants: each vector gets a callSize-byte
// trampoline entry that pushes its own vector number and jumps to the
// shared irqHandler stub (see irq.s).
const (
	callSize = 5
	vectors  = 256
)

// IST indices. NMI and double-fault use a dedicated stack (IST1) so a
// fault that occurs with a corrupted kernel stack can still be serviced.
const (
	ISTDoubleFault = 1
	ISTNMI         = 1
)

var (
	idtAddr        uintptr
	irqHandlerAddr uintptr
)

// InterruptFrame mirrors the register file pushed by the assembly ISR/IRQ
// stubs before the common dispatcher is invoked: general purpose registers
// first (pushed in reverse so the struct reads in push order), then the
// vector number, an optional hardware error code (zero when the exception
// has none), and finally the processor-pushed return frame.
type InterruptFrame struct {
	R15, R14, R13, R12, R11, R10, R9, R8 uint64
	RDI, RSI, RBP, RBX, RDX, RCX, RAX    uint64

	Vector    uint64
	ErrorCode uint64

	RIP    uint64
	CS     uint64
	RFLAGS uint64
	RSP    uint64
	SS     uint64
}

// Handler is a vector dispatch function, invoked synchronously from
// interrupt context with the saved register frame.
type Handler func(frame *InterruptFrame)

// vectorTable is the fixed-size 256 entry vector -> handler table (spec
// Data Model, "Vector table").
var vectorTable [vectors]Handler

// hasErrorCode reports whether the processor pushes a hardware error code
// for the given exception vector (Intel SDM Vol 3A, 6.15).
func hasErrorCode(vector int) bool {
	switch vector {
	case 8, 10, 11, 12, 13, 14, 17, 21, 29, 30:
		return true
	default:
		return false
	}
}

// defined in irq.s
func load_idt() (idt uintptr, irqHandler uintptr)
func irq_enable()
func irq_disable()
func lidt(addr uintptr, size uint16)

// sharedHandlerAddr returns the code address of the irqHandler trampoline
// target, used to compute the CALL rel32 written into each per-vector stub.
func sharedHandlerAddr() uintptr

//go:nosplit
func irqHandler()

// activeCPU is the BSP instance reached from interrupt context; set once by
// EnableExceptions. There is exactly one of these (no SMP, see spec
// Non-goals) so a package-level pointer is simpler than threading it through
// the assembly trampoline.
var activeCPU *CPU

// handleInterrupt is called from irqHandler (irq.s) with the address of the
// 15 saved general-purpose registers and the trampoline's own return
// address (used only to recover the vector number via currentVector). It
// reconstructs the InterruptFrame, accounting for the hardware error code
// that some exceptions push and others don't, and dispatches it.
//
//go:nosplit
func handleInterrupt(savedRegs uintptr, trampRet uintptr) {
	vector := currentVector(trampRet)

	regs := (*[15]uint64)(unsafe.Pointer(savedRegs))
	tail := savedRegs + 15*8 + 8 // skip past the trampoline return address slot

	var errCode uint64
	if hasErrorCode(vector) {
		errCode = *(*uint64)(unsafe.Pointer(tail))
		tail += 8
	}

	frame := &InterruptFrame{
		R15: regs[0], R14: regs[1], R13: regs[2], R12: regs[3],
		R11: regs[4], R10: regs[5], R9: regs[6], R8: regs[7],
		RDI: regs[8], RSI: regs[9], RBP: regs[10], RBX: regs[11],
		RDX: regs[12], RCX: regs[13], RAX: regs[14],

		Vector:    uint64(vector),
		ErrorCode: errCode,

		RIP:    *(*uint64)(unsafe.Pointer(tail)),
		CS:     *(*uint64)(unsafe.Pointer(tail + 8)),
		RFLAGS: *(*uint64)(unsafe.Pointer(tail + 16)),
		RSP:    *(*uint64)(unsafe.Pointer(tail + 24)),
		SS:     *(*uint64)(unsafe.Pointer(tail + 32)),
	}

	Dispatch(activeCPU, frame)
}

// GateDescriptor represents an IDT Gate descriptor.
type GateDescriptor struct {
	Offset1         uint16
	SegmentSelector uint16
	IST             uint8
	Attributes      uint8
	Offset2         uint16
	Offset3         uint32
	Reserved        uint32
}

// Bytes converts the descriptor structure to byte array format.
func (d *GateDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}

// SetOffset sets the address of the handling procedure entry point.
func (d *GateDescriptor) SetOffset(addr uintptr) {
	d.Offset1 = uint16(addr & 0xffff)
	d.Offset2 = uint16(addr >> 16 & 0xffff)
	d.Offset3 = uint32(addr >> 32)
}

// EnableExceptions builds the 256-entry IDT, generates the per-vector
// trampoline stubs (each a 5-byte CALL into the shared irqHandler), and
// loads the table with LIDT.
func (cpu *CPU) EnableExceptions() {
	activeCPU = cpu

	idtAddr, irqHandlerAddr = load_idt()

	desc := &GateDescriptor{
		SegmentSelector: SEL_KERNEL_CODE,
		Attributes:      InterruptGate,
	}

	gateSize := len(desc.Bytes())
	idtSize := gateSize * vectors

	r, err := dma.NewRegion(uint(idtAddr), idtSize, true)
	if err != nil {
		panic(err)
	}

	_, idt := r.Reserve(idtSize, 0)

	shared := sharedHandlerAddr()
	tramp := (*[vectors * callSize]byte)(unsafe.Pointer(irqHandlerAddr))

	for i := 0; i < vectors; i++ {
		off := irqHandlerAddr + uintptr(i*callSize)

		// CALL rel32: E8 followed by the displacement from the
		// instruction after the CALL to the shared handler.
		rel := int32(int64(shared) - int64(off+callSize))
		tramp[i*callSize] = 0xe8
		binary.LittleEndian.PutUint32(tramp[i*callSize+1:], uint32(rel))

		d := *desc
		d.SetOffset(off)

		if i == 2 {
			d.IST = ISTNMI
		} else if i == 8 {
			d.IST = ISTDoubleFault
		}

		copy(idt[i*gateSize:], d.Bytes())
	}

	lidt(idtAddr, uint16(idtSize-1))
}

// RegisterHandler installs a handler for the given vector (0-255),
// replacing whatever was previously registered. Passing nil clears the
// slot.
func (cpu *CPU) RegisterHandler(vector int, h Handler) {
	vectorTable[vector] = h
}

// currentVector recovers the vector number from the trampoline return
// address captured by the assembly stub: each vector's stub is a single
// callSize-byte CALL instruction, so the return address sits callSize bytes
// past that vector's slot in the trampoline buffer.
func currentVector(isr uintptr) int {
	id := int((isr-irqHandlerAddr)/callSize) - 1

	if id < 0 || id >= vectors {
		return -1
	}

	return id
}

// Dispatch is called by the assembly trampoline (irqHandler) with the
// saved frame. It looks up the registered handler for frame.Vector and
// calls it; unregistered processor exceptions fall through to
// DefaultExceptionHandler. IRQ vectors (>= IRQVectorBase) are always
// EOI'd after the handler returns, even if none was registered, so a
// spurious interrupt cannot wedge the PIC.
//
//go:nosplit
func Dispatch(cpu *CPU, frame *InterruptFrame) {
	vector := int(frame.Vector)

	handler := vectorTable[vector]

	switch {
	case handler != nil:
		handler(frame)
	case vector < IRQVectorBase:
		DefaultExceptionHandler(frame)
	}

	if vector >= IRQVectorBase && vector < IRQVectorBase+16 && cpu.PIC != nil {
		cpu.PIC.EOI(vector - IRQVectorBase)
	}
}

// DefaultExceptionHandler handles an unregistered processor exception by
// printing its vector and halting (spec §7: "Unhandled exceptions halt").
func DefaultExceptionHandler(frame *InterruptFrame) {
	print("exception: vector ", frame.Vector, " error ", frame.ErrorCode, " rip ", frame.RIP, "\n")
	DisableInterrupts()
	halt()
}

// EnableInterrupts unmasks maskable hardware interrupts (STI).
func (cpu *CPU) EnableInterrupts() {
	irq_enable()
}

// DisableInterrupts masks maskable hardware interrupts (CLI).
func (cpu *CPU) DisableInterrupts() {
	irq_disable()
}

// DisableInterrupts is a package-level convenience used by the default
// exception handler, which runs before any CPU instance may be reachable.
func DisableInterrupts() {
	irq_disable()
}
