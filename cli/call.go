package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolstream/client"
	"github.com/petal-labs/toolstream/sse"
)

// NewCallCmd creates the "call" subcommand.
func NewCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke a tool on a running server",
		Long: "Invoke a tool and print its result. With --stream the tool is called on the\n" +
			"streaming endpoint and each event is printed on its own line as it arrives.",
		Args: cobra.ExactArgs(1),
		RunE: runCall,
	}
	addClientFlags(cmd)
	cmd.Flags().StringP("data", "d", "", "Input payload as JSON (default: {})")
	cmd.Flags().String("data-file", "", "Read the input payload from a file (- for stdin)")
	cmd.Flags().Bool("stream", false, "Use the streaming endpoint")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	payload, err := readCallPayload(cmd)
	if err != nil {
		return err
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	if stream, _ := cmd.Flags().GetBool("stream"); stream {
		return streamCall(cmd, c, name, payload)
	}

	item, err := c.Invoke(cmd.Context(), name, payload)
	if err != nil {
		return clientError(err)
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return exitError(exitRuntime, "encoding result: %v", err)
	}
	return writeJSON(cmd, raw)
}

func readCallPayload(cmd *cobra.Command) (json.RawMessage, error) {
	data, _ := cmd.Flags().GetString("data")
	dataFile, _ := cmd.Flags().GetString("data-file")
	if data != "" && dataFile != "" {
		return nil, exitError(exitUsage, "--data and --data-file are mutually exclusive")
	}

	raw := []byte(data)
	if dataFile != "" {
		var err error
		if dataFile == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			// #nosec G304 -- path supplied by the operator on the command line.
			raw, err = os.ReadFile(dataFile)
		}
		if err != nil {
			return nil, exitError(exitUsage, "reading payload: %v", err)
		}
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, exitError(exitUsage, "payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

// streamCall prints one line per event: sequence, kind and the compact
// event data.
func streamCall(cmd *cobra.Command, c *client.Client, name string, payload json.RawMessage) error {
	stream, err := c.Stream(cmd.Context(), name, payload)
	if err != nil {
		return clientError(err)
	}
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return clientError(err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d %s ", ev.Seq, ev.Kind)
		if err := writeLine(cmd, ev.Data); err != nil {
			return exitError(exitRuntime, "writing output: %v", err)
		}

		if ev.Kind == sse.EventError {
			var failure sse.ErrorPayload
			if err := json.Unmarshal(ev.Data, &failure); err != nil {
				return exitError(exitTool, "tool %q failed", name)
			}
			return clientError(&client.StreamError{ErrorPayload: failure})
		}
	}
}
