// https://github.com/dmorton63/qaiosplus-sub000
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package reg

import (
	"sync/atomic"
	"unsafe"
)

// Read32 reads a 32-bit memory-mapped register at the given (already
// HHDM-adjusted) virtual address. This accessor carries no architecture
// build constraint: xHCI, TPM CRB and similar amd64 MMIO consumers call it
// directly.
func Read32(addr uint64) uint32 {
	r := (*uint32)(unsafe.Pointer(uintptr(addr)))
	return atomic.LoadUint32(r)
}

// Write32 writes a 32-bit memory-mapped register.
func Write32(addr uint64, val uint32) {
	r := (*uint32)(unsafe.Pointer(uintptr(addr)))
	atomic.StoreUint32(r, val)
}

// SetBits32 ORs the given mask into a 32-bit memory-mapped register.
func SetBits32(addr uint64, mask uint32) {
	Write32(addr, Read32(addr)|mask)
}

// ClearBits32 ANDs out the given mask from a 32-bit memory-mapped register.
func ClearBits32(addr uint64, mask uint32) {
	Write32(addr, Read32(addr)&^mask)
}
