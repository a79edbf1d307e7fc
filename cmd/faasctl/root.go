package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/husseinmohab/radical-faas/pkg/client"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var apiURL string
	var c *client.Client

	root := &cobra.Command{
		Use:   "faasctl",
		Short: "Deploy and invoke functions on radical-faas",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c = client.New(apiURL)
		},
		SilenceUsage: true,
	}

	defaultURL := os.Getenv("FAAS_URL")
	if defaultURL == "" {
		defaultURL = "http://127.0.0.1:8000"
	}
	root.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "radical-faas API URL")

	get := func() *client.Client { return c }
	root.AddCommand(
		newDeployCmd(get),
		newInvokeCmd(get),
		newListCmd(get),
		newGetCmd(get),
		newDeleteCmd(get),
	)
	return root
}

// readArg returns s, or the contents of the file when s is "@path".
func readArg(s string) ([]byte, error) {
	if len(s) > 0 && s[0] == '@' {
		data, err := os.ReadFile(s[1:])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s[1:], err)
		}
		return data, nil
	}
	return []byte(s), nil
}

func printJSON(w io.Writer, v any) error {
	var b []byte
	var err error
	if raw, ok := v.(json.RawMessage); ok {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return err
		}
		b = buf.Bytes()
	} else if b, err = json.MarshalIndent(v, "", "  "); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
