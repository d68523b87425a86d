package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sprite-ai/impactgate/internal/impact"
	"github.com/sprite-ai/impactgate/internal/model"
)

// AnalyzeTool handles the impact_analyze MCP tool.
type AnalyzeTool struct {
	svc *impact.Service
}

// NewAnalyzeTool creates an AnalyzeTool.
func NewAnalyzeTool(svc *impact.Service) *AnalyzeTool {
	return &AnalyzeTool{svc: svc}
}

// Definition returns the MCP tool definition for impact_analyze.
func (t *AnalyzeTool) Definition() mcp.Tool {
	return mcp.NewTool("impact_analyze",
		mcp.WithDescription(
			"Analyze a planned change before implementing it. Returns the affected modules, "+
				"identified risks, required validations and the implementation gate "+
				"(clear, warning or blocked).",
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("Natural-language description of the planned change"),
		),
		mcp.WithArray("target_files",
			mcp.Description("Files the change is expected to touch"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("target_modules",
			mcp.Description("Modules the change is expected to touch"),
			mcp.WithStringItems(),
		),
		mcp.WithString("spec_id",
			mcp.Description("Optional spec the change implements"),
		),
		mcp.WithString("task_id",
			mcp.Description("Optional task the change belongs to"),
		),
		mcp.WithString("change_type",
			mcp.Description("Optional change type; inferred from the description when omitted"),
			mcp.Enum("feature", "bugfix", "enhancement", "refactor", "migration", "deletion", "security", "performance"),
		),
	)
}

// Handle processes the impact_analyze tool call.
func (t *AnalyzeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	desc := strings.TrimSpace(req.GetString("description", ""))
	if desc == "" {
		return mcp.NewToolResultError("'description' is required"), nil
	}

	in := model.ChangeInput{
		Description:   desc,
		TargetFiles:   req.GetStringSlice("target_files", nil),
		TargetModules: req.GetStringSlice("target_modules", nil),
		SpecID:        req.GetString("spec_id", ""),
		TaskID:        req.GetString("task_id", ""),
		ChangeType:    model.ChangeType(req.GetString("change_type", "")),
	}
	if in.ChangeType != "" && !in.ChangeType.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown change_type %q", in.ChangeType)), nil
	}

	a, err := t.svc.Analyze(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
	}
	return mcp.NewToolResultText(report(a)), nil
}

func report(a *model.ImpactAnalysis) string {
	var b strings.Builder
	b.WriteString(describeGate(a.ID, a.Gate))

	fmt.Fprintf(&b, "\n### Scope\nChange type: %s\n", a.Parsed.ChangeType)
	if len(a.Scope.PrimaryModules) > 0 {
		fmt.Fprintf(&b, "Primary modules: %s\n", strings.Join(a.Scope.PrimaryModules, ", "))
	}
	for _, d := range a.Scope.DependentModules {
		fmt.Fprintf(&b, "- %s (%s): %s\n", d.ID, d.ImpactLevel, d.Reason)
	}

	if len(a.Risks) > 0 {
		b.WriteString("\n### Risks\n")
		for _, r := range a.Risks {
			fmt.Fprintf(&b, "- [%s] %s: %s Mitigation: %s\n", r.Severity, r.Name, r.Description, r.Mitigation)
		}
	}

	if len(a.Validations) > 0 {
		b.WriteString("\n### Validations\n")
		for _, v := range a.Validations {
			line := v.Title
			if v.VerifyCommand != "" {
				line += fmt.Sprintf(" (`%s`)", v.VerifyCommand)
			}
			if v.IsBlocking {
				line += " [blocking]"
			}
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	return b.String()
}
