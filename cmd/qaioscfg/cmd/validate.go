package cmd

import (
	"fmt"
	"os"

	"github.com/dmorton63/qaiosplus-sub000/kernel/config"
	"github.com/spf13/cobra"
)

func defineValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "validate <startup.cfg>",
		Short:        "Parse a startup.cfg and report the configuration the kernel would boot with",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         runValidate,
	}

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	cfg, err := config.Parse(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}

	fmt.Printf("mode:                   %s\n", modeName(cfg.Mode))
	fmt.Printf("secure store mode:      %s\n", scModeName(cfg.SCMode))
	fmt.Printf("secure store bypass:    %v\n", cfg.SCBypass)
	fmt.Printf("IDE shared volume:      %v\n", cfg.IDEShared)
	fmt.Printf("save terminal:          %s\n", saveTermDescription(cfg.SaveTerm))
	fmt.Printf("poweroff after saveterm: %v\n", cfg.PoweroffAfterSaveterm)

	unrecognised := unrecognisedKeys(cfg.Raw)
	if len(unrecognised) > 0 {
		fmt.Printf("unrecognised keys (passed through as raw): %v\n", unrecognised)
	}

	return nil
}

func modeName(m config.Mode) string {
	switch m {
	case config.ModeDesktop:
		return "DESKTOP"
	case config.ModeTerminal:
		return "TERMINAL"
	case config.ModeSafe:
		return "SAFE"
	case config.ModeRecovery:
		return "RECOVERY"
	case config.ModeInstaller:
		return "INSTALLER"
	case config.ModeNetwork:
		return "NETWORK"
	default:
		return "UNKNOWN"
	}
}

func scModeName(m config.SCMode) string {
	if m == config.SCEnforce {
		return "ENFORCE"
	}
	return "BYPASS"
}

func saveTermDescription(s config.SaveTerm) string {
	if !s.Enabled {
		return "disabled"
	}
	if s.Filename == "" {
		return "enabled, default location"
	}
	return "enabled, " + s.Filename
}

// unrecognisedKeys lists the keys startup.cfg carried that kernel/config
// doesn't interpret itself, for visibility before they're silently ignored
// by the kernel's line scanner.
func unrecognisedKeys(raw map[string]string) []string {
	known := map[string]bool{
		"MODE": true, "SC_MODE": true, "SC_BYPASS": true,
		"IDE_SHARED": true, "SAVETERM": true, "POWEROFF_AFTER_SAVETERM": true,
	}

	var out []string
	for k := range raw {
		if !known[k] {
			out = append(out, k)
		}
	}

	return out
}
