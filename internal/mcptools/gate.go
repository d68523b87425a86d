package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sprite-ai/impactgate/internal/gate"
	"github.com/sprite-ai/impactgate/internal/impact"
)

// GateStatusTool handles the impact_gate_status MCP tool.
type GateStatusTool struct {
	svc *impact.Service
}

// NewGateStatusTool creates a GateStatusTool.
func NewGateStatusTool(svc *impact.Service) *GateStatusTool {
	return &GateStatusTool{svc: svc}
}

// Definition returns the MCP tool definition for impact_gate_status.
func (t *GateStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("impact_gate_status",
		mcp.WithDescription("Return the current implementation gate of an earlier analysis."),
		mcp.WithString("analysis_id",
			mcp.Required(),
			mcp.Description("ID returned by impact_analyze"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: markdown (default) or json"),
			mcp.Enum("markdown", "json"),
		),
	)
}

// Handle processes the impact_gate_status tool call.
func (t *GateStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("analysis_id", "")
	if id == "" {
		return mcp.NewToolResultError("'analysis_id' is required"), nil
	}
	a, err := t.svc.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetString("format", "markdown") == "json" {
		return jsonResult(a.Gate)
	}
	return mcp.NewToolResultText(describeGate(a.ID, a.Gate)), nil
}

// GateApproveTool handles the impact_gate_approve MCP tool.
type GateApproveTool struct {
	svc *impact.Service
}

// NewGateApproveTool creates a GateApproveTool.
func NewGateApproveTool(svc *impact.Service) *GateApproveTool {
	return &GateApproveTool{svc: svc}
}

// Definition returns the MCP tool definition for impact_gate_approve.
func (t *GateApproveTool) Definition() mcp.Tool {
	return mcp.NewTool("impact_gate_approve",
		mcp.WithDescription(
			"Record a human approval of specific gate blockers. Only call this when the user "+
				"has explicitly approved the named blockers. The approval is audited.",
		),
		mcp.WithString("analysis_id",
			mcp.Required(),
			mcp.Description("ID returned by impact_analyze"),
		),
		mcp.WithString("approver",
			mcp.Required(),
			mcp.Description("Name of the person approving"),
		),
		mcp.WithString("reason",
			mcp.Required(),
			mcp.Description("Why the blockers are acceptable"),
		),
		mcp.WithArray("blocker_ids",
			mcp.Required(),
			mcp.Description("Blocker item IDs to approve, as listed by impact_gate_status"),
			mcp.WithStringItems(),
		),
	)
}

// Handle processes the impact_gate_approve tool call.
func (t *GateApproveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("analysis_id", "")
	if id == "" {
		return mcp.NewToolResultError("'analysis_id' is required"), nil
	}

	a, err := t.svc.Approve(ctx, id, gate.ApprovalRequest{
		Approver:   req.GetString("approver", ""),
		Reason:     req.GetString("reason", ""),
		BlockerIDs: req.GetStringSlice("blocker_ids", nil),
	})
	if err != nil {
		var invalid *gate.InvalidBlockerError
		if errors.As(err, &invalid) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown blocker ids: %s", strings.Join(invalid.IDs, ", "))), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("approval failed: %v", err)), nil
	}
	return mcp.NewToolResultText(describeGate(a.ID, a.Gate)), nil
}
