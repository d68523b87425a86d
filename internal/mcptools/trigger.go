package mcptools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sprite-ai/impactgate/internal/impact"
)

// ShouldAnalyzeTool handles the impact_should_analyze MCP tool.
type ShouldAnalyzeTool struct {
	svc *impact.Service
}

// NewShouldAnalyzeTool creates a ShouldAnalyzeTool.
func NewShouldAnalyzeTool(svc *impact.Service) *ShouldAnalyzeTool {
	return &ShouldAnalyzeTool{svc: svc}
}

// Definition returns the MCP tool definition for impact_should_analyze.
func (t *ShouldAnalyzeTool) Definition() mcp.Tool {
	return mcp.NewTool("impact_should_analyze",
		mcp.WithDescription(
			"Cheap check, run before starting a task: decides whether the task is risky "+
				"enough to warrant impact_analyze and returns the suggested input for it.",
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("Task description"),
		),
		mcp.WithArray("files",
			mcp.Description("Files the task is expected to touch"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("modules",
			mcp.Description("Modules the task is expected to touch"),
			mcp.WithStringItems(),
		),
		mcp.WithString("spec_id", mcp.Description("Optional spec id")),
		mcp.WithString("task_id", mcp.Description("Optional task id")),
	)
}

// Handle processes the impact_should_analyze tool call.
func (t *ShouldAnalyzeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	desc := strings.TrimSpace(req.GetString("description", ""))
	if desc == "" {
		return mcp.NewToolResultError("'description' is required"), nil
	}
	return jsonResult(t.svc.ShouldAnalyze(impact.TriggerInput{
		Description: desc,
		Files:       req.GetStringSlice("files", nil),
		Modules:     req.GetStringSlice("modules", nil),
		SpecID:      req.GetString("spec_id", ""),
		TaskID:      req.GetString("task_id", ""),
	}))
}
