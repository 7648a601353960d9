package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/typechan/internal/ascii"
	"github.com/danmuck/typechan/internal/protocol/codec"
	"github.com/danmuck/typechan/internal/rpc"
	"github.com/danmuck/typechan/internal/transport"
	"github.com/spf13/cobra"
)

func newCallCommand() *cobra.Command {
	var (
		registryPath string
		name         string
		request      string
		reply        string
	)
	cmd := &cobra.Command{
		Use:   "call value...",
		Short: "Send one request and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := codec.CompileFormat(request)
			if err != nil {
				return err
			}
			values, err := ascii.Parse(f, strings.Join(args, " "))
			if err != nil {
				return err
			}

			var reg transport.Registry = transport.NewEnvRegistry()
			if registryPath != "" {
				fileReg, err := transport.OpenFileRegistry(registryPath)
				if err != nil {
					return err
				}
				defer fileReg.Close()
				reg = transport.Chain{fileReg, reg}
			}

			client, err := rpc.BindClientFormat(reg, name, request, reply)
			if err != nil {
				return err
			}
			defer client.Close()
			defer client.SendEOF()

			out, err := client.CallValues(values)
			if err != nil {
				return err
			}
			for i, v := range out {
				if b, ok := v.([]byte); ok {
					v = string(b)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d: %v\n", i, v)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&registryPath, "registry", "", "registry file (environment lookup when empty)")
	cmd.Flags().StringVar(&name, "name", "echo", "rpc name")
	cmd.Flags().StringVar(&request, "request", "%d", "request format")
	cmd.Flags().StringVar(&reply, "reply", "%d", "reply format")
	return cmd
}
