// x86-64 processor support
// https://github.com/dmorton63/qaiosplus-sub000
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package amd64 provides support for AMD64 architecture specific operations:
// CPU feature detection, GDT/TSS setup, the legacy IDT with processor
// exception and IRQ stubs, the 8259 PIC, and PIT-based timekeeping.
//
// The following architectures/cores are supported/tested:
//   - AMD64 (single bootstrap processor, no SMP)
//
// This package is only meant to be used with `GOOS=tamago GOARCH=amd64` as
// supported by the TamaGo framework for bare metal Go, see
// https://github.com/dmorton63/qaiosplus-sub000.
package amd64

import (
	"math"
	"runtime"
	_ "unsafe"

	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
)

// Peripheral registers
const (
	// Keyboard controller port, used to pulse the CPU reset pin.
	KBD_PORT = 0x64
)

//go:linkname ramStackOffset runtime.ramStackOffset
var ramStackOffset uint64 = 0x100000 // 1 MB

// CPU represents the Bootstrap Processor (BSP) instance. This kernel runs a
// single hardware thread: interrupts are the only source of preemption and
// there is no AP bring-up (SMP is out of scope, see spec Non-goals).
type CPU struct {
	// Timer multiplier used to turn TSC ticks into nanoseconds.
	TimerMultiplier float64
	// Timer offset in nanoseconds.
	TimerOffset int64

	// PIC is the legacy interrupt controller, assigned by the board package
	// once [PIC.Init] has remapped it; Dispatch uses it to acknowledge IRQs.
	PIC *PIC

	// features holds the CPUID-detected processor capabilities.
	features Features

	// core frequency in Hz, as estimated against the PIT (see initTimers).
	freq uint32
}

// defined in amd64.s
func exit(int32)
func halt()

// Fault generates a triple fault by loading a zero-length IDT and issuing a
// software interrupt, used to request a guest-initiated shutdown when no
// ACPI power-off path is available.
func Fault()

// Init performs initialization of the AMD64 bootstrap processor instance:
// CPU feature detection and PIT-derived TSC calibration. GDT, IDT and PIC
// bring-up are performed separately (see [CPU.EnableSegmentation],
// [CPU.EnableExceptions], [PIC.Init], and [CPU.EnableInterrupts], which
// only sets the interrupt flag) so callers can control ordering against
// the memory and event subsystems.
func (cpu *CPU) Init() {
	runtime.Exit = exit
	runtime.Idle = func(pollUntil int64) {
		if pollUntil == math.MaxInt64 {
			halt()
		}
	}

	cpu.initFeatures()
	cpu.initTimers()
}

// Name returns the CPU identifier.
func (cpu *CPU) Name() string {
	return runtime.CPU()
}

// Halt suspends execution until an interrupt is received.
func (cpu *CPU) Halt() {
	halt()
}

// Reset resets the CPU via an 8042 keyboard controller pulse.
func (cpu *CPU) Reset() {
	reg.Out8(KBD_PORT, 0xfe)
}
