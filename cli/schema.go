package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolstream/builtin"
	"github.com/petal-labs/toolstream/schema"
	"github.com/petal-labs/toolstream/tool"
)

// NewSchemaCmd creates the "schema" subcommand, which prints the input
// schemas of the built-in tools without contacting a server.
func NewSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [tool]",
		Short: "Print built-in tool schemas and example payloads",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSchema,
	}
	cmd.Flags().Bool("fields", false, "Print a flat field table instead of JSON")
	return cmd
}

type schemaOutput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Kind        tool.Kind       `json:"kind"`
	InputSchema any             `json:"input_schema"`
	Example     json.RawMessage `json:"example"`
}

func runSchema(cmd *cobra.Command, args []string) error {
	regs := builtin.All()
	if len(args) == 1 {
		name := strings.TrimSpace(args[0])
		regs = builtin.Filter(func(n string) bool { return n == name })
		if len(regs) == 0 {
			return exitError(exitUsage, "unknown built-in tool %q", name)
		}
	}

	if fields, _ := cmd.Flags().GetBool("fields"); fields {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TOOL\tFIELD\tTYPE\tREQUIRED\tDEFAULT")
		for _, reg := range regs {
			for _, f := range schema.Describe(reg.InputSchema) {
				def := "-"
				if f.Default != nil {
					def = fmt.Sprint(f.Default)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", reg.Name, f.Name, f.Type, f.Required, def)
			}
		}
		return tw.Flush()
	}

	outputs := make([]schemaOutput, 0, len(regs))
	for _, reg := range regs {
		outputs = append(outputs, schemaOutput{
			Name:        reg.Name,
			Description: reg.Description,
			Kind:        reg.Handler.Kind(),
			InputSchema: reg.InputSchema,
			Example:     schema.Example(reg.InputSchema),
		})
	}
	raw, err := json.Marshal(outputs)
	if err != nil {
		return exitError(exitRuntime, "encoding schemas: %v", err)
	}
	return writeJSON(cmd, raw)
}
