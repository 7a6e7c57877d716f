// https://github.com/dmorton63/qaiosplus-sub000
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package reg

import (
	"unsafe"
)

// Read8 reads a single byte from a memory-mapped address, for consumers
// (the TPM CRB command/response buffers) that move data finer than
// register granularity.
func Read8(addr uint64) uint8 {
	r := (*uint8)(unsafe.Pointer(uintptr(addr)))
	return *r
}

// Write8 writes a single byte to a memory-mapped address.
func Write8(addr uint64, val uint8) {
	r := (*uint8)(unsafe.Pointer(uintptr(addr)))
	*r = val
}
