package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/impactgate/internal/mcptools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the impact tools over MCP (stdio)",
	Long: `Run an MCP server on stdin/stdout exposing impact_analyze,
impact_gate_status, impact_gate_approve and impact_should_analyze, so coding
agents can check a change before implementing it.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().String("graph", "", "knowledge graph YAML file")
	mcpCmd.Flags().String("repo", "", "repository to scan for imports")
}

func runMCP(cmd *cobra.Command, args []string) error {
	applyGraphFlags(cmd)

	svc, store, err := newService(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer store.Close()

	return server.ServeStdio(mcptools.NewServer(svc, version))
}
