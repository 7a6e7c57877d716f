package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func defineModulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "modules <cmdline...>",
		Short:        "Show what the kernel would mount for each loader module cmdline",
		Long:         "Each argument is a module cmdline exactly as it would be passed by the loader. With -f, cmdlines are read one per line from a file instead.",
		SilenceUsage: true,
		RunE:         runModules,
	}

	cmd.Flags().StringP("file", "f", "", "read cmdlines one per line from a manifest file instead of arguments")
	return cmd
}

func runModules(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")

	cmdlines := args
	if file != "" {
		fromFile, err := readCmdlines(file)
		if err != nil {
			return err
		}
		cmdlines = append(cmdlines, fromFile...)
	}

	if len(cmdlines) == 0 {
		return fmt.Errorf("no module cmdlines given (pass them as arguments or with -f)")
	}

	seenRamdisk := false
	for _, c := range cmdlines {
		action := parseModuleCmdline(c)
		if action.Ramdisk {
			seenRamdisk = true
		}
		fmt.Printf("%-40s %s\n", c, describeModuleAction(action))
	}

	if !seenRamdisk {
		fmt.Println("warning: no \"ramdisk\" module present; the kernel has nothing to mount at /")
	}

	return nil
}

func readCmdlines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		out = append(out, line)
	}

	return out, scanner.Err()
}
