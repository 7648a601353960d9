package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "typechanctl",
		Short:         "Inspect type documents and drive typed channels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newSchemaCommand(),
		newFormatCommand(),
		newConfigCommand(),
		newChannelsCommand(),
		newServeCommand(),
		newCallCommand(),
	)
	return cmd
}
