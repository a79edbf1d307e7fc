package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/husseinmohab/radical-faas/pkg/client"

	"github.com/spf13/cobra"
)

func newListCmd(c func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List deployed functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fns, err := c().List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tHANDLER\tIMAGE\tCREATED")
			for _, fn := range fns {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", fn.Name, fn.Handler, fn.ImageRef, fn.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}

func newGetCmd(c func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show a deployed function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, err := c().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), fn)
		},
	}
}

func newDeleteCmd(c func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a function from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
