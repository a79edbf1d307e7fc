package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/husseinmohab/radical-faas/pkg/client"

	"github.com/spf13/cobra"
)

func newDeployCmd(c func() *client.Client) *cobra.Command {
	var (
		file    string
		handler string
		runtime string
		deps    []string
	)

	cmd := &cobra.Command{
		Use:   "deploy <name>",
		Short: "Build and register a function from a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}
			if handler == "" {
				handler = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)) + ".handle"
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "deploying %s (%s)\n", args[0], handler)
			fn, err := c().Deploy(cmd.Context(), client.FunctionCreate{
				Name:         args[0],
				Runtime:      runtime,
				Handler:      handler,
				Code:         string(code),
				Dependencies: deps,
			})
			if err != nil {
				return fmt.Errorf("deploy failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), fn)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "function source file")
	cmd.Flags().StringVar(&handler, "handler", "", "handler as module.function (default <file>.handle)")
	cmd.Flags().StringVar(&runtime, "runtime", "python:3.9-slim", "base image")
	cmd.Flags().StringSliceVar(&deps, "dep", nil, "pip requirement, repeatable")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
