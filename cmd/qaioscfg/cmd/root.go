package cmd

import (
	"github.com/spf13/cobra"
)

const appName = "qaioscfg"

// Execute builds and runs the root command.
func Execute() error {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: appName + " - validate QAIOS+ boot configuration before it ships in an image",
	}

	rootCmd.AddCommand(defineValidateCommand())
	rootCmd.AddCommand(defineModulesCommand())

	return rootCmd.Execute()
}
