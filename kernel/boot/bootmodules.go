package boot

import (
	"strings"

	"github.com/dmorton63/qaiosplus-sub000/kernel/volume"
)

// parseVolumeCmdline mirrors cmd/qaioscfg's parseModuleCmdline grammar for
// "volume:<NAME>:<MOUNTPATH>[:<fs>]", resolving the trailing fs tag to a
// volume.Kind rather than just describing it: an absent or empty tag and
// "fat32" select FAT32, "fat16" selects FAT16, and any other tag falls back
// to FATAuto so the volume manager probes the boot sector itself.
func parseVolumeCmdline(cmdline string) (name, mountPath string, kind volume.Kind, ok bool) {
	rest, ok := strings.CutPrefix(cmdline, "volume:")
	if !ok {
		return "", "", volume.FATAuto, false
	}

	parts := strings.Split(rest, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", volume.FATAuto, false
	}

	kind = volume.FAT32
	if len(parts) >= 3 && parts[2] != "" {
		switch strings.ToLower(parts[2]) {
		case "fat16":
			kind = volume.FAT16
		case "fat32":
			kind = volume.FAT32
		default:
			kind = volume.FATAuto
		}
	}

	return parts[0], parts[1], kind, true
}
