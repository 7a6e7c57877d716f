// QAIOS+ PC platform support for tamago/amd64
// https://github.com/dmorton63/qaiosplus-sub000
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pc provides hardware initialization, automatically on import, for
// a legacy-PC-compatible x86_64 target booted through a Limine-compatible
// loader: CPU bring-up, GDT/TSS, IDT with the 8259 PIC remapped to vectors
// 32-47, PIT-derived timekeeping and the 16550A serial console. Higher
// layers (memory, event bus, VFS, drivers) are brought up separately by the
// kernel entry point once these primitives are in place.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=amd64` as
// supported by the TamaGo framework for bare metal Go, see
// https://github.com/dmorton63/qaiosplus-sub000.
package pc

import (
	"runtime"
	"unsafe"

	"github.com/dmorton63/qaiosplus-sub000/amd64"
	"github.com/dmorton63/qaiosplus-sub000/dma"
	"github.com/dmorton63/qaiosplus-sub000/soc/intel/rtc"
	"github.com/dmorton63/qaiosplus-sub000/soc/intel/uart"
)

const (
	dmaStart = 0x50000000
	dmaSize  = 0x10000000 // 256MB, reclaimed from bootloader-identity space once HHDM is known

	// COM1 is the legacy 16550A serial port used for the debug console.
	COM1 = 0x3f8

	// timerHz is the default PIT tick rate (spec §4.5 typical range
	// 100-1000 Hz); the kernel entry point may reprogram it.
	timerHz = 1000
)

// Peripheral instances.
var (
	// AMD64 is the bootstrap processor instance.
	AMD64 = &amd64.CPU{
		TimerMultiplier: 1,
	}

	// PIC is the legacy 8259 interrupt controller pair.
	PIC = &amd64.PIC{}

	// Tick is the PIT channel-0 tick source, wired to IRQ0.
	Tick = &amd64.Timer{}

	// RTC is the MC146818A real-time clock.
	RTC = &rtc.RTC{}

	// UART0 is the primary serial console.
	UART0 = &uart.UART{
		Index: 1,
		Base:  COM1,
	}

	gdt amd64.GDT
)

// kernelStackTop is a placeholder RSP0/IST1 target until the memory manager
// hands out a real page for it; a static buffer is sufficient for the
// earliest fault handlers (double fault, NMI) to have a known-good stack.
var kernelStackTop [16384]byte

//go:linkname nanotime1 runtime.nanotime1
func nanotime1() int64 {
	return AMD64.GetTime()
}

// Init takes care of the lower level initialization triggered early in
// runtime setup (post World start): CPU features, segmentation, the IDT and
// the legacy PIC, matching the "serial debug, CPU features, GDT, IDT,
// interrupt manager" prefix of the kernel entry order.
//
//go:linkname Init runtime.hwinit1
func Init() {
	AMD64.Init()

	stackTop := uintptr(unsafe.Pointer(&kernelStackTop[len(kernelStackTop)-1]))
	AMD64.EnableSegmentation(&gdt, uintptr(unsafe.Pointer(&gdt)), uint64(stackTop))

	AMD64.EnableExceptions()

	PIC.Init()
	AMD64.PIC = PIC

	UART0.Init()

	runtime.Exit = func(_ int32) {
		// There is no ACPI power-off path on a plain legacy PC target;
		// a guest-initiated shutdown is requested via triple fault.
		amd64.Fault()
	}
}

func init() {
	// allocate the global DMA region used later for xHCI rings, contexts
	// and transfer buffers (the IDT keeps its own region).
	dma.Init(dmaStart, dmaSize)

	Tick.Init(timerHz, nil)
	AMD64.RegisterHandler(amd64.IRQVectorBase, Tick.HandleTick)
	AMD64.EnableInterrupts()
	PIC.Enable(0)
}
