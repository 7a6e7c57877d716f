// AMD64 processor support
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
)

// Segment selectors, fixed by the layout built in newGDT.
const (
	SEL_NULL       = 0x00
	SEL_KERNEL_CODE = 0x08
	SEL_KERNEL_DATA = 0x10
	SEL_USER_CODE   = 0x18 | 3
	SEL_USER_DATA   = 0x20 | 3
	SEL_TSS         = 0x28
)

// Access byte flags (Intel SDM Vol 3A, 3.4.5).
const (
	segPresent  = 1 << 7
	segUser     = 1 << 4
	segExec     = 1 << 3
	segRW       = 1 << 1
	segDPL3     = 3 << 5
	tssAvail64  = 0x9
)

// Granularity/size flags.
const (
	flagLong = 1 << 5
	flagGran = 1 << 7
)

// segmentDescriptor is a classic 8-byte GDT entry, used for the code/data
// segments (AMD64 ignores base/limit for these but the fields remain for
// descriptor-table shape compatibility).
type segmentDescriptor struct {
	LimitLow  uint16
	BaseLow   uint16
	BaseMid   uint8
	Access    uint8
	Flags     uint8
	BaseHigh  uint8
}

// tssDescriptor is the 16-byte System Segment Descriptor used by the TSS in
// 64-bit mode (Intel SDM Vol 3A, 7.2.3).
type tssDescriptor struct {
	LimitLow  uint16
	BaseLow   uint16
	BaseMid   uint8
	Access    uint8
	FlagsLimitHigh uint8
	BaseHigh  uint8
	BaseUpper uint32
	Reserved  uint32
}

// TaskStateSegment is the 64-bit TSS: only the interrupt stack table and the
// privileged stack pointers are meaningful without user-mode tasks (spec
// Non-goals exclude process isolation/scheduling); RSP0 and IST1 are used to
// give the double-fault/NMI stubs a known-good stack.
type TaskStateSegment struct {
	reserved0 uint32
	RSP0      uint64
	RSP1      uint64
	RSP2      uint64
	reserved1 uint64
	IST1      uint64
	IST2      uint64
	IST3      uint64
	IST4      uint64
	IST5      uint64
	IST6      uint64
	IST7      uint64
	reserved2 uint64
	reserved3 uint16
	IOMapBase uint16
}

// GDT holds the flat kernel/user code and data segments plus the TSS used
// to supply a known stack on fault entry.
type GDT struct {
	tss TaskStateSegment
}

func codeSeg(long bool, dpl uint8) segmentDescriptor {
	access := uint8(segPresent | segUser | segExec | segRW)
	access |= dpl << 5
	flags := uint8(0)
	if long {
		flags |= flagLong
	}
	return segmentDescriptor{LimitLow: 0xffff, Flags: flags | 0x0f, Access: access}
}

func dataSeg(dpl uint8) segmentDescriptor {
	access := uint8(segPresent | segUser | segRW)
	access |= dpl << 5
	return segmentDescriptor{LimitLow: 0xffff, Flags: 0x0f, Access: access}
}

// Bytes serialises the GDT (code/data/user segments + TSS descriptor) ready
// for LGDT.
func (g *GDT) Bytes(tssAddr uint64) []byte {
	buf := new(bytes.Buffer)

	null := segmentDescriptor{}
	kcode := codeSeg(true, 0)
	kdata := dataSeg(0)
	ucode := codeSeg(true, 3)
	udata := dataSeg(3)

	for _, d := range []segmentDescriptor{null, kcode, kdata, ucode, udata} {
		binary.Write(buf, binary.LittleEndian, d)
	}

	tssLimit := uint32(binary.Size(TaskStateSegment{})) - 1
	tssd := tssDescriptor{
		LimitLow:       uint16(tssLimit & 0xffff),
		BaseLow:        uint16(tssAddr & 0xffff),
		BaseMid:        uint8((tssAddr >> 16) & 0xff),
		Access:         segPresent | tssAvail64,
		FlagsLimitHigh: uint8((tssLimit >> 16) & 0x0f),
		BaseHigh:       uint8((tssAddr >> 24) & 0xff),
		BaseUpper:      uint32(tssAddr >> 32),
	}
	binary.Write(buf, binary.LittleEndian, tssd)

	return buf.Bytes()
}

// defined in gdt.s
func load_gdt(addr uintptr, size uint16)
func load_tss(selector uint16)

// EnableSegmentation installs the flat GDT and TSS and reloads the segment
// registers plus the task register (LTR), giving interrupt entry a known
// RSP0/IST stack independently of whatever the bootloader left behind.
func (cpu *CPU) EnableSegmentation(gdt *GDT, gdtAddr uintptr, kernelStack uint64) {
	gdt.tss.RSP0 = kernelStack
	gdt.tss.IST1 = kernelStack

	tssAddr := gdtAddr + 8*8 // GDT table followed immediately by the TSS structure
	table := gdt.Bytes(uint64(tssAddr))

	buf := (*[4096]byte)(unsafe.Pointer(gdtAddr))[:len(table)]
	copy(buf, table)

	tssBytes := new(bytes.Buffer)
	binary.Write(tssBytes, binary.LittleEndian, gdt.tss)
	tssBuf := (*[4096]byte)(unsafe.Pointer(tssAddr))[:tssBytes.Len()]
	copy(tssBuf, tssBytes.Bytes())

	load_gdt(gdtAddr, uint16(len(table)-1))
	load_tss(SEL_TSS)
}
