// AMD64 processor support
// https://github.com/dmorton63/qaiosplus-sub000
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amd64

import (
	"time"

	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
)

// nanoseconds
const refFreq uint32 = 1e9

// PIT (8254) ports and constants.
const (
	PIT_CH0      = 0x40
	PIT_CH2      = 0x42
	PIT_CMD      = 0x43
	PIT_INPUT_HZ = 1193182

	pitModeRateGenerator = 0x34 // channel 0, lobyte/hibyte, mode 2
	pitModeOneShot       = 0x30 // channel 0, lobyte/hibyte, mode 0

	// calibrationMillis is the window used to estimate the TSC
	// frequency against the PIT (spec §4.5: "~10 ms").
	calibrationMillis = 10
	// approximation factor: 100 * 10ms sample == 1 second.
	calibrationFactor = 1000 / calibrationMillis
)

// defined in timer.s
func read_tsc() uint64
func pause()

// Timer represents the PIT channel-0 tick source. It is independent from
// [CPU] TSC calibration: Init programs the hardware divisor and
// [Timer.HandleTick] is meant to be wired as the IRQ0 handler.
type Timer struct {
	// Hz is the configured tick frequency.
	Hz uint32

	ticks    uint64
	callback func()
}

// clampDivisor bounds the PIT reload value to the 16-bit counter range,
// per spec §4.5 ("clamped to [1, 65535]").
func clampDivisor(hz uint32) uint16 {
	if hz == 0 {
		return 65535
	}

	div := PIT_INPUT_HZ / hz

	switch {
	case div < 1:
		return 1
	case div > 65535:
		return 65535
	default:
		return uint16(div)
	}
}

// Init programs PIT channel 0 in rate-generator mode at the requested
// frequency (typical range 100-1000 Hz).
func (t *Timer) Init(hz uint32, callback func()) {
	t.Hz = hz
	t.callback = callback

	div := clampDivisor(hz)

	reg.Out8(PIT_CMD, pitModeRateGenerator)
	reg.Out8(PIT_CH0, uint8(div&0xff))
	reg.Out8(PIT_CH0, uint8(div>>8))
}

// HandleTick increments the tick counter and invokes the optional
// callback; it is meant to be called from the IRQ0 dispatch handler, which
// is responsible for the PIC EOI.
func (t *Timer) HandleTick(_ *InterruptFrame) {
	t.ticks++

	if t.callback != nil {
		t.callback()
	}
}

// Ticks returns the number of elapsed timer interrupts.
func (t *Timer) Ticks() uint64 {
	return t.ticks
}

// Sleep spins on HLT until at least ms milliseconds of ticks have elapsed.
func (t *Timer) Sleep(ms uint64) {
	if t.Hz == 0 {
		return
	}

	deadline := t.ticks + (ms*uint64(t.Hz))/1000

	for t.ticks < deadline {
		halt()
	}
}

// Usleep spins on PAUSE for approximately us microseconds, calibrated
// against the CPU's measured TSC frequency.
func (cpu *CPU) Usleep(us uint64) {
	if cpu.freq == 0 {
		return
	}

	target := read_tsc() + (us*uint64(cpu.freq))/1e6

	for read_tsc() < target {
		pause()
	}
}

// calibrateByPIT programs PIT channel 0 as a one-shot at the maximum
// count, polls the readback until approximately calibrationMillis have
// elapsed, and derives the TSC frequency from the elapsed cycle count
// (spec §4.5). This is approximate: the result carries the PIT's own
// jitter amplified by calibrationFactor, and callers of
// [CPU.GetTime]/Nanoseconds must tolerate several-percent error (see
// spec §9 Open Questions).
func (cpu *CPU) calibrateByPIT() {
	const maxCount = 0 // programming 0 selects the full 16-bit range

	tscA := read_tsc()

	reg.Out8(PIT_CMD, pitModeOneShot)
	reg.Out8(PIT_CH0, uint8(maxCount))
	reg.Out8(PIT_CH0, uint8(maxCount))

	target := PIT_INPUT_HZ * calibrationMillis / 1000

	for {
		// latch and read back the current count (channel 0, counter
		// latch command then two byte read).
		reg.Out8(PIT_CMD, 0x00)
		lo := reg.In8(PIT_CH0)
		hi := reg.In8(PIT_CH0)
		count := uint32(hi)<<8 | uint32(lo)

		elapsed := uint32(65536) - count

		if elapsed >= target {
			break
		}
	}

	tscB := read_tsc()

	cpu.freq = uint32((tscB - tscA) * uint64(calibrationFactor))
}

func (cpu *CPU) initTimers() {
	cpu.calibrateByPIT()

	if cpu.freq == 0 {
		print("WARNING: TSC frequency is unavailable\n")
		cpu.freq = 1
	}

	cpu.TimerMultiplier = float64(refFreq) / float64(cpu.freq)
}

// Freq returns the AMD64 core frequency as measured against the PIT.
func (cpu *CPU) Freq() (hz uint32) {
	return cpu.freq
}

// Counter returns the CPU Time Stamp Counter (TSC).
func (cpu *CPU) Counter() uint64 {
	return read_tsc()
}

// GetTime returns the system time in nanoseconds, approximated from the
// TSC and the PIT-derived multiplier.
func (cpu *CPU) GetTime() int64 {
	return int64(float64(cpu.Counter())*cpu.TimerMultiplier) + cpu.TimerOffset
}

// SetTime adjusts the system time to the argument nanoseconds value.
func (cpu *CPU) SetTime(ns int64) {
	if cpu.TimerMultiplier == 0 {
		return
	}

	cpu.TimerOffset = ns - int64(float64(read_tsc())*cpu.TimerMultiplier)
}

// Nanoseconds is a convenience wrapper matching spec terminology.
func (cpu *CPU) Nanoseconds() time.Duration {
	return time.Duration(cpu.GetTime())
}
