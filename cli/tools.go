package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolstream/client"
	"github.com/petal-labs/toolstream/server"
)

// NewToolsCmd creates the "tools" subcommand, which lists the tools a
// running server offers.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered by a running server",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}
	addClientFlags(cmd)
	cmd.Flags().String("format", "json", "Output format: json | table")
	return cmd
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", defaultURL, "Base URL of the toolstream server")
	cmd.Flags().Duration("timeout", 30*time.Second, "Request timeout for single-result calls")
	cmd.Flags().Int("retries", 0, "Retry discovery this many times while the server is unavailable")
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	baseURL, _ := cmd.Flags().GetString("url")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	retries, _ := cmd.Flags().GetInt("retries")
	c, err := client.New(client.Config{
		BaseURL: baseURL,
		Timeout: timeout,
		Retry:   client.RetryPolicy{MaxAttempts: retries + 1, Backoff: 500 * time.Millisecond},
	})
	if err != nil {
		return nil, exitError(exitUsage, "%v", err)
	}
	return c, nil
}

func runTools(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "json" && format != "table" {
		return exitError(exitUsage, "unknown format %q (use json or table)", format)
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	tools, err := c.Discover(cmd.Context())
	if err != nil {
		return clientError(err)
	}

	if format == "table" {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tDESCRIPTION")
		for _, info := range tools {
			fmt.Fprintf(tw, "%s\t%s\n", info.Name, info.Description)
		}
		return tw.Flush()
	}

	raw, err := json.Marshal(server.ToolList{Tools: tools})
	if err != nil {
		return exitError(exitRuntime, "encoding tools: %v", err)
	}
	return writeJSON(cmd, raw)
}

// clientError maps a client failure to an exit code: rejections reported
// by the server are tool errors, anything else is a runtime failure.
func clientError(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return exitError(exitTool, "%s: %s", apiErr.ErrorKind, apiErr.Message)
	}
	var streamErr *client.StreamError
	if errors.As(err, &streamErr) {
		return exitError(exitTool, "%s: %s", streamErr.ErrorKind, streamErr.ErrorPayload.Error)
	}
	return exitError(exitRuntime, "%v", err)
}
