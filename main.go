// QAIOS+ kernel entry point
// https://github.com/dmorton63/qaiosplus-sub000
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// +build tamago,amd64

// Package main is the kernel binary booted by a Limine-compatible loader on
// a legacy-PC-compatible x86_64 target. Importing board/qaios/pc for its
// init side effects brings up CPU/GDT/IDT/PIC/UART/timer before World
// start; boot.Run then brings up the memory core, storage stack, drivers
// and secure store, and MainLoop takes over from there.
package main

import (
	"log"

	"github.com/dmorton63/qaiosplus-sub000/board/qaios/pc"
	"github.com/dmorton63/qaiosplus-sub000/kernel/boot"
	"github.com/dmorton63/qaiosplus-sub000/kernel/klog"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

// limineInfo is populated by the loader-protocol adapter (outside this
// repository's scope, see DESIGN.md's Open Question decision on
// kernel/boot.Info) before main runs.
var limineInfo boot.Info

func main() {
	_ = pc.AMD64 // board/qaios/pc.Init runs via go:linkname runtime.hwinit1 before main is ever reached

	k, s := boot.Run(limineInfo)
	if s != status.Success {
		log.Fatalf("boot: lifecycle failed: %v", s)
	}

	k.OnFrame = func(dirty bool) {
		if dirty {
			klog.Infof("frame: dirty")
		}
	}

	k.MainLoop(0)
}
