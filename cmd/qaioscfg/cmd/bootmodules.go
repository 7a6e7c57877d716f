package cmd

import (
	"fmt"
	"strings"
)

// moduleAction describes what the kernel would do with one loader-provided
// module cmdline (spec "Boot protocol"): either mount it at "/" as the boot
// ramdisk, or mount it as a named volume at an explicit path.
type moduleAction struct {
	Cmdline  string
	Ramdisk  bool
	Name     string
	MountAt  string
	FS       string
	Unparsed bool
}

// parseModuleCmdline mirrors the kernel's own module-cmdline grammar: a
// cmdline exactly "ramdisk" is the boot FAT image mounted at "/"; a cmdline
// "volume:<NAME>:<MOUNTPATH>[:<fs>]" mounts NAME (expected to match the
// QFS_... naming convention) at MOUNTPATH, with fs defaulting to fat32.
// Anything else is passed straight through to the desktop/console layer
// untouched, so it isn't an error here either.
func parseModuleCmdline(cmdline string) moduleAction {
	if cmdline == "ramdisk" {
		return moduleAction{Cmdline: cmdline, Ramdisk: true}
	}

	if rest, ok := strings.CutPrefix(cmdline, "volume:"); ok {
		parts := strings.Split(rest, ":")
		if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
			fs := "fat32"
			if len(parts) >= 3 && parts[2] != "" {
				fs = parts[2]
			}

			return moduleAction{
				Cmdline: cmdline,
				Name:    parts[0],
				MountAt: parts[1],
				FS:      fs,
			}
		}
	}

	return moduleAction{Cmdline: cmdline, Unparsed: true}
}

func describeModuleAction(a moduleAction) string {
	switch {
	case a.Ramdisk:
		return "mount boot ramdisk at /"
	case a.Unparsed:
		return "not a mount directive, passed through as-is"
	default:
		name := a.Name
		if !strings.HasPrefix(strings.ToUpper(name), "QFS_") {
			return fmt.Sprintf("mount %s at %s as %s (warning: name doesn't match QFS_... convention)", name, a.MountAt, a.FS)
		}
		return fmt.Sprintf("mount %s at %s as %s", name, a.MountAt, a.FS)
	}
}
