package mcptools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sprite-ai/impactgate/internal/model"
)

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// describeGate renders a gate as short markdown for agents.
func describeGate(analysisID string, g model.ImplementationGate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Gate: %s\n\nAnalysis ID: %s\n", strings.ToUpper(string(g.Status)), analysisID)

	if len(g.Blockers) > 0 {
		b.WriteString("\n### Blockers\n")
		for _, bl := range g.Blockers {
			fmt.Fprintf(&b, "- `%s` %s: %s\n", bl.ItemID, bl.Title, bl.Reason)
		}
	}
	if len(g.Warnings) > 0 {
		b.WriteString("\n### Warnings\n")
		for _, w := range g.Warnings {
			fmt.Fprintf(&b, "- %s\n", w.Message)
		}
	}
	if g.Approval != nil && len(g.Approval.ApprovedBlockers) > 0 {
		fmt.Fprintf(&b, "\nApproved by %s: %s\n", g.Approval.Approver, strings.Join(g.Approval.ApprovedBlockers, ", "))
	}
	return b.String()
}
