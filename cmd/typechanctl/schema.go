package main

import (
	"fmt"

	"github.com/danmuck/typechan/internal/protocol/codec"
	"github.com/danmuck/typechan/internal/protocol/schema"
	"github.com/spf13/cobra"
)

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Work with type documents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate file...",
		Short: "Validate, normalize and resolve JSON or YAML type documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				d, err := schema.LoadFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
				for i, field := range schema.Fields(d) {
					fmt.Fprintf(cmd.OutOrStdout(), "  field %d: %s\n", i, field)
				}
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "compare a b",
		Short: "Check that two type documents are wire compatible",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := schema.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			b, err := schema.LoadFile(args[1])
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			if !schema.Equivalent(a, b) {
				return fmt.Errorf("%s (%s) and %s (%s) differ", args[0], a, args[1], b)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s and %s are equivalent: %s\n", args[0], args[1], a)
			return nil
		},
	})
	return cmd
}

func newFormatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "format pattern",
		Short: "Compile a printf/scanf pattern and show its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := codec.CompileFormat(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, field := range f.Fields() {
				fmt.Fprintf(out, "field %d: %s\n", i, field)
			}
			fmt.Fprintf(out, "send:    %q\n", f.GoPattern())
			fmt.Fprintf(out, "receive: %q\n", f.ReceivePattern())
			return nil
		},
	}
}
