package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/husseinmohab/radical-faas/pkg/client"

	"github.com/spf13/cobra"
)

func newInvokeCmd(c func() *client.Client) *cobra.Command {
	var payload string

	cmd := &cobra.Command{
		Use:   "invoke <name>",
		Short: "Run a function once and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readArg(payload)
			if err != nil {
				return err
			}
			if len(body) > 0 && !json.Valid(body) {
				return fmt.Errorf("payload is not valid JSON")
			}

			res, err := c().Invoke(cmd.Context(), args[0], body)
			if err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) && len(apiErr.Response.Details) > 0 {
					_ = printJSON(cmd.ErrOrStderr(), apiErr.Response.Details)
				}
				return fmt.Errorf("invoke failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&payload, "payload", "p", "", "JSON payload (string or @file)")
	return cmd
}
