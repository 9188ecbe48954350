// Package cli implements the toolstream command-line interface.
package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/petal-labs/toolstream/config"
)

const defaultURL = "http://127.0.0.1:8080"

// NewRootCmd builds the toolstream command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "toolstream",
		Short: "Tool registry and invocation server",
		Long:  "toolstream serves registered tools over HTTP, as single results or Server-Sent Event streams.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
	}
	root.PersistentFlags().Bool("verbose", false, "Enable verbose/debug logging")
	root.PersistentFlags().Bool("quiet", false, "Suppress all output except errors")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	root.Version = version
	root.SetVersionTemplate("toolstream version " + version + "\n")

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewToolsCmd())
	root.AddCommand(NewCallCmd())
	root.AddCommand(NewSchemaCmd())
	return root
}

// newLogger builds the process logger from the log config, with --verbose
// and --quiet taking precedence over the configured level.
func newLogger(cmd *cobra.Command, w io.Writer, cfg config.LogConfig) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// writeJSON writes raw JSON indented. Output to a terminal is colored
// unless --no-color is set.
func writeJSON(cmd *cobra.Command, raw []byte) error {
	out := pretty.Pretty(raw)
	if noColor, _ := cmd.Flags().GetBool("no-color"); !noColor && isTerminal(cmd.OutOrStdout()) {
		out = pretty.Color(out, nil)
	}
	_, err := cmd.OutOrStdout().Write(out)
	return err
}

// writeLine writes raw JSON on a single line.
func writeLine(cmd *cobra.Command, raw []byte) error {
	_, err := cmd.OutOrStdout().Write(append(pretty.Ugly(raw), '\n'))
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
