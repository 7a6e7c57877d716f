// 8259 Programmable Interrupt Controller driver
// https://github.com/dmorton63/qaiosplus-sub000
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amd64

import (
	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
)

// Legacy 8259 PIC I/O ports.
const (
	PIC1_CMD  = 0x20
	PIC1_DATA = 0x21
	PIC2_CMD  = 0xa0
	PIC2_DATA = 0xa1

	icw1Init = 0x11
	icw4_8086 = 0x01

	picEOI = 0x20

	// cascadeIRQ is the master-PIC line the slave is wired to.
	cascadeIRQ = 2
)

// IRQVectorBase is the vector the master PIC is remapped to; IRQ N is
// delivered at vector IRQVectorBase+N, occupying 32-47 so it never
// collides with the 0-31 processor exception range.
const IRQVectorBase = 32

// PIC represents the cascaded master/slave 8259 pair remapped to the
// [IRQVectorBase..IRQVectorBase+15] vector range. All 16 lines start
// masked; [PIC.Enable] unmasks individually, taking care of the cascade
// line so slave-sourced IRQs actually reach the CPU.
type PIC struct {
	masterMask uint8
	slaveMask  uint8
}

// Init remaps the master PIC to vector base 32 and the slave to 40, masking
// every line.
func (p *PIC) Init() {
	// ICW1: start initialization sequence, ICW4 needed.
	reg.Out8(PIC1_CMD, icw1Init)
	reg.Out8(PIC2_CMD, icw1Init)

	// ICW2: vector offsets.
	reg.Out8(PIC1_DATA, IRQVectorBase)
	reg.Out8(PIC2_DATA, IRQVectorBase+8)

	// ICW3: master has a slave on IRQ2, slave has cascade identity 2.
	reg.Out8(PIC1_DATA, 1<<cascadeIRQ)
	reg.Out8(PIC2_DATA, cascadeIRQ)

	// ICW4: 8086 mode.
	reg.Out8(PIC1_DATA, icw4_8086)
	reg.Out8(PIC2_DATA, icw4_8086)

	p.masterMask = 0xff
	p.slaveMask = 0xff

	reg.Out8(PIC1_DATA, p.masterMask)
	reg.Out8(PIC2_DATA, p.slaveMask)
}

// Enable unmasks IRQ n (0-15). IRQs 8-15 additionally unmask the master's
// cascade line (IRQ2) so the slave-sourced interrupt is relayed.
func (p *PIC) Enable(n int) {
	if n < 8 {
		p.masterMask &^= 1 << uint(n)
		reg.Out8(PIC1_DATA, p.masterMask)
		return
	}

	p.slaveMask &^= 1 << uint(n-8)
	reg.Out8(PIC2_DATA, p.slaveMask)

	p.masterMask &^= 1 << cascadeIRQ
	reg.Out8(PIC1_DATA, p.masterMask)
}

// Disable masks IRQ n (0-15).
func (p *PIC) Disable(n int) {
	if n < 8 {
		p.masterMask |= 1 << uint(n)
		reg.Out8(PIC1_DATA, p.masterMask)
		return
	}

	p.slaveMask |= 1 << uint(n-8)
	reg.Out8(PIC2_DATA, p.slaveMask)
}

// EOI acknowledges IRQ n, signalling the slave PIC first if the IRQ
// originated there and always signalling the master.
func (p *PIC) EOI(n int) {
	if n >= 8 {
		reg.Out8(PIC2_CMD, picEOI)
	}

	reg.Out8(PIC1_CMD, picEOI)
}
