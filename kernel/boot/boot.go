// Package boot implements the kernel's process-wide lifecycle: bringing up
// the memory core, event bus, storage stack, drivers, and secure store in
// the fixed order the platform requires, then handing control to the
// out-of-scope desktop/console layer through a pair of hooks. It is the
// one place that wires every other package in this repository together,
// the way the teacher's board Init() functions wire CPU/GDT/IDT/UART but
// one layer up, above hardware bring-up.
package boot

import (
	"github.com/dmorton63/qaiosplus-sub000/crypto/chacha20drbg"
	"github.com/dmorton63/qaiosplus-sub000/kernel/block"
	"github.com/dmorton63/qaiosplus-sub000/kernel/cache"
	"github.com/dmorton63/qaiosplus-sub000/kernel/config"
	"github.com/dmorton63/qaiosplus-sub000/kernel/event"
	"github.com/dmorton63/qaiosplus-sub000/kernel/input"
	"github.com/dmorton63/qaiosplus-sub000/kernel/klog"
	"github.com/dmorton63/qaiosplus-sub000/kernel/memory"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/dmorton63/qaiosplus-sub000/kernel/vfs"
	"github.com/dmorton63/qaiosplus-sub000/kernel/volume"
	"github.com/dmorton63/qaiosplus-sub000/securestore"
	"github.com/dmorton63/qaiosplus-sub000/tpm"
	"github.com/dmorton63/qaiosplus-sub000/usb/xhci"
)

// Framebuffer is the loader-provided display surface, handed to the
// out-of-scope compositor rather than drawn to directly by this package.
type Framebuffer struct {
	PhysAddr uint64
	Width    uint32
	Height   uint32
	Pitch    uint32
	BPP      uint8
}

// Module is one loader-provided boot module: its cmdline tag and its
// contents, already resolved to an addressable byte slice through the
// higher-half direct map by the loader-protocol adapter upstream of this
// package (spec.md's Boot protocol; decoding the wire request/response
// structs themselves is that adapter's job, not this one's).
type Module struct {
	Cmdline string
	Data    []byte
}

// Info is everything the loader hands the kernel at well-known request
// addresses.
type Info struct {
	Framebuffer    Framebuffer
	HHDMOffset     uint64
	KernelPhysBase uint64
	KernelVirtBase uint64
	MemoryRegions  []memory.Region
	Modules        []Module

	// PCIBus is which PCI bus to scan for the xHCI controller; 0 on every
	// platform this kernel targets.
	PCIBus int

	// TPMCRBBase is the physical MMIO base of the TPM CRB control area,
	// zero if no TPM is present (TPM bring-up is then skipped entirely).
	TPMCRBBase uint64
}

// Kernel holds every subsystem brought up by Run, for the main loop and
// for tests that want to inspect the wired state without rebuilding it.
type Kernel struct {
	Memory memory.PMM
	Heap   memory.Heap
	Bus    *event.Bus
	VFS    *vfs.VFS
	Volumes *volume.Manager

	XHCI  *xhci.Controller
	PS2   *input.Controller
	TPM   *tpm.Device
	Store *securestore.Store

	Config *config.Config

	// OnFrame is called once per main-loop iteration after the event bus
	// has been drained, the hook through which the out-of-scope
	// compositor would repaint.
	OnFrame func(dirty bool)
}

const (
	mainQueueCapacity      = 256
	immediateQueueCapacity = 32

	defaultHeapSize = 64 << 20 // 64 MiB, sized generously for a desktop session
)

// Run executes the fixed lifecycle spec.md §6 describes, up to the point
// where desktop/console take over: memory core, event bus, storage stack
// (ramdisk + declared volumes + optional shared IDE volume), startup
// config, driver manager (PS/2 + xHCI), TPM bring-up and secure-store
// self-test. Serial debug, CPU features, GDT, IDT, interrupt manager, and
// the timer are brought up earlier by the board package's own Init, before
// Run is ever called.
func Run(info Info) (*Kernel, status.Status) {
	k := &Kernel{}

	k.Memory.Init(info.MemoryRegions)
	klog.Infof("memory: %d frames total, %d free", k.Memory.TotalFrames(), k.Memory.FreeFrames())

	heapBase, s := k.Memory.AllocContiguous(int(defaultHeapSize / 4096))
	if s != status.Success {
		return k, s
	}
	k.Heap.Init(uintptr(info.HHDMOffset+heapBase), defaultHeapSize)

	k.Bus = event.New(mainQueueCapacity, immediateQueueCapacity)

	k.VFS = vfs.New()
	k.Volumes = volume.New(k.VFS)

	if s := mountRamdisk(k, info.Modules); s != status.Success {
		klog.Warnf("boot: no ramdisk module mounted at /: %v", s)
	}

	mountDeclaredVolumes(k, info.Modules)

	k.Config = loadStartupConfig(k.VFS)

	if k.Config.IDEShared {
		if s := probeSharedIDEVolume(k); s != status.Success {
			klog.Warnf("boot: legacy IDE shared volume probe failed: %v", s)
		}
	}

	if s := bringUpDrivers(k, info); s != status.Success {
		klog.Warnf("boot: driver manager init incomplete: %v", s)
	}

	bringUpSecureStore(k, info)

	klog.Infof("boot: lifecycle complete, mode=%v", k.Config.Mode)

	return k, status.Success
}

// mountRamdisk finds the module tagged exactly "ramdisk" and mounts it at
// "/", the boot FAT image spec.md's Boot protocol names.
func mountRamdisk(k *Kernel, modules []Module) status.Status {
	for _, m := range modules {
		if m.Cmdline != "ramdisk" {
			continue
		}

		dev := block.NewMemoryDevice(m.Data, 512)
		return k.Volumes.Register("QFS_ROOT", "/", volume.FATAuto, dev, true)
	}

	return status.NotFound
}

// mountDeclaredVolumes mounts every "volume:<NAME>:<MOUNTPATH>[:<fs>]"
// module against a sector cache in front of a memory-backed device built
// from the module's own bytes.
func mountDeclaredVolumes(k *Kernel, modules []Module) {
	for _, m := range modules {
		name, mountPath, kind, ok := parseVolumeCmdline(m.Cmdline)
		if !ok {
			continue
		}

		dev := block.NewMemoryDevice(m.Data, 512)
		c := cache.New(dev, 256*512) // 256 sectors

		if s := k.Volumes.Register(name, mountPath, kind, c, true); s != status.Success {
			klog.Warnf("boot: volume %s at %s failed to mount: %v", name, mountPath, s)
		}
	}
}

func loadStartupConfig(v *vfs.VFS) *config.Config {
	handle, s := v.Open("/startup.cfg", vfs.ReadOnly)
	if s != status.Success {
		cfg, _ := config.ParseString("")
		return cfg
	}
	defer v.Close(handle)

	var buf []byte
	chunk := make([]byte, 512)
	for {
		n, s := v.Read(handle, chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if s != status.Success || n == 0 {
			break
		}
	}

	cfg, err := config.ParseString(string(buf))
	if err != nil {
		klog.Warnf("boot: startup.cfg parse error: %v", err)
	}
	return cfg
}

// bringUpDrivers starts the PCI-resident xHCI host controller and the
// legacy 8042 PS/2 controller, wiring both to the shared event bus.
func bringUpDrivers(k *Kernel, info Info) status.Status {
	k.PS2 = input.New(k.Bus)
	k.PS2.SetScreenBounds(int32(info.Framebuffer.Width), int32(info.Framebuffer.Height))

	controller, s := xhci.Open(info.PCIBus)
	if s != status.Success {
		return s
	}

	controller.OnHID = func(dev *xhci.Device) {
		dev.SetScreenBounds(int32(info.Framebuffer.Width), int32(info.Framebuffer.Height))
		dev.OnPointer = func(ev xhci.PointerEvent) {
			k.Bus.Post(event.Event{
				Type:     event.MouseMove,
				Category: event.Input,
				Priority: event.Normal,
				Mouse: event.MouseData{
					X: ev.X, Y: ev.Y,
					DeltaX: int32(ev.DX), DeltaY: int32(ev.DY),
					ScrollDelta: int32(ev.Wheel),
					IsAbsolute:  ev.IsAbsolute,
				},
			})
		}
	}

	k.XHCI = controller
	return status.Success
}

// bringUpSecureStore constructs the entropy pool and secure store, wiring
// TPM sealing when a CRB control area was reported, and runs the
// self-test spec.md's lifecycle names: a write/read round trip against a
// throwaway key, logged but never fatal to boot.
func bringUpSecureStore(k *Kernel, info Info) {
	pool := chacha20drbg.New(nil)

	var opts []securestore.Option
	if info.TPMCRBBase != 0 {
		crb := tpm.NewCRB(info.TPMCRBBase)
		dev := tpm.NewDevice(crb)
		k.TPM = dev
		opts = append(opts, securestore.WithTPM(dev.Seal, dev.Unseal))
	}

	k.Store = securestore.New(k.VFS, pool, opts...)

	const selfTestKey = "SELFTST.BIN"
	payload := []byte("qaios-securestore-selftest")

	if s := k.Store.Write(selfTestKey, payload); s != status.Success {
		klog.Warnf("securestore self-test: write failed: %v", s)
		return
	}

	got, s := k.Store.Read(selfTestKey)
	if s != status.Success || string(got) != string(payload) {
		klog.Warnf("securestore self-test: round trip mismatch (status=%v)", s)
		return
	}

	klog.Infof("securestore self-test: ok")
}

// MainLoop polls active input drivers, drains the event bus, and invokes
// OnFrame once per iteration, per spec.md's "main loop polls active input
// drivers, drains the event bus, repaints" description. It returns after
// max iterations (0 means run forever), for tests driving a bounded
// number of turns.
func (k *Kernel) MainLoop(max int) {
	for i := 0; max == 0 || i < max; i++ {
		if k.PS2 != nil {
			k.PS2.Poll()
		}
		if k.XHCI != nil {
			k.XHCI.ProcessEvents()
		}

		dispatched := k.Bus.ProcessEvents(mainQueueCapacity)

		if k.OnFrame != nil {
			k.OnFrame(dispatched > 0)
		}
	}
}
