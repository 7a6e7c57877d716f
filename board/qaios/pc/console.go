// QAIOS+ PC platform support for tamago/amd64
// https://github.com/dmorton63/qaiosplus-sub000
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build !linkprintk

package pc

import (
	_ "unsafe"

	"github.com/dmorton63/qaiosplus-sub000/internal/reg"
)

//go:linkname printk runtime.printk
func printk(c byte) {
	reg.Out8(COM1, c)
}
