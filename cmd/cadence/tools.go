package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fentz26/cadence/internal/controlplane"
	"github.com/fentz26/cadence/internal/mcp"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the control API as a tool manifest",
	Long: `Prints every control method with its description and JSON Schema input,
in a form agent frameworks can register as tools.`,
	RunE: runTools,
}

var toolsFormat string

func init() {
	toolsCmd.Flags().StringVarP(&toolsFormat, "format", "f", "yaml", "manifest format: yaml or json")
}

func runTools(cmd *cobra.Command, args []string) error {
	registry, err := mcp.NewDefaultRegistry()
	if err != nil {
		return err
	}
	if registry.Count() != len(controlplane.Methods()) {
		return fmt.Errorf("tool registry has %d tools, control API has %d methods", registry.Count(), len(controlplane.Methods()))
	}
	format := toolsFormat
	if jsonOut {
		format = "json"
	}
	return registry.WriteManifest(os.Stdout, format)
}
