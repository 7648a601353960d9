package main

import (
	"fmt"

	"github.com/danmuck/typechan/internal/config"
	"github.com/danmuck/typechan/internal/transport"
	"github.com/spf13/cobra"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate and validate config files",
	}

	var (
		kind   string
		output string
		force  bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := output
			if target == "" {
				target = kind + ".toml"
			}
			if err := config.WriteTemplate(target, kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", kind, target)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&kind, "kind", "k", "registry", "config kind: registry|server")
	initCmd.Flags().StringVarP(&output, "output", "o", "", "output path (default <kind>.toml)")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	var validateKind string
	validateCmd := &cobra.Command{
		Use:   "validate file",
		Short: "Validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			switch validateKind {
			case "registry":
				_, err = config.LoadRegistryConfig(args[0])
			case "server":
				_, err = config.LoadServerConfig(args[0])
			default:
				err = fmt.Errorf("unknown config kind: %s", validateKind)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s config at %s\n", validateKind, args[0])
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&validateKind, "kind", "k", "registry", "config kind: registry|server")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}

func newChannelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "channels registry.toml",
		Short: "List the channels a registry file provisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := transport.OpenFileRegistry(args[0])
			if err != nil {
				return err
			}
			defer reg.Close()
			for _, name := range reg.Names() {
				ep, err := reg.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, ep)
			}
			return nil
		},
	}
}
