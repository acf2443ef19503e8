package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DoyleJ11/liars-table/pkg/protocol"
)

func newSchemaCmd() *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print JSON schemas of the wire messages.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			schemas := protocol.Schemas()
			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")

			if only != "" {
				s, ok := schemas[only]
				if !ok {
					return fmt.Errorf("unknown message type %q (known: %v)", only, protocol.SchemaNames())
				}
				return enc.Encode(s)
			}
			ordered := make([]any, 0, len(schemas))
			for _, name := range protocol.SchemaNames() {
				ordered = append(ordered, map[string]any{"type": name, "schema": schemas[name]})
			}
			return enc.Encode(ordered)
		},
	}
	cmd.Flags().StringVar(&only, "type", "", "print only this message type")
	return cmd
}
