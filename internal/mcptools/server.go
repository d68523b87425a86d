// Package mcptools exposes the impact pipeline and gate as MCP tools.
//
// Each tool is a struct holding the shared impact.Service, with
// Definition() returning the mcp.Tool schema and Handle() serving calls.
package mcptools

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/sprite-ai/impactgate/internal/impact"
)

// NewServer creates an MCP server with every impact tool registered.
func NewServer(svc *impact.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"impactgate",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	analyze := NewAnalyzeTool(svc)
	s.AddTool(analyze.Definition(), analyze.Handle)

	status := NewGateStatusTool(svc)
	s.AddTool(status.Definition(), status.Handle)

	approve := NewGateApproveTool(svc)
	s.AddTool(approve.Definition(), approve.Handle)

	trigger := NewShouldAnalyzeTool(svc)
	s.AddTool(trigger.Definition(), trigger.Handle)

	return s
}

const instructions = `impactgate analyzes a planned code change before it is implemented.

Before starting non-trivial work, call impact_should_analyze with the task
description and the files or modules you expect to touch. When it answers
yes, call impact_analyze and read the gate:

- clear: proceed.
- warning: proceed, and keep the listed warnings in mind.
- blocked: do not implement. Report the blockers to the user. Only a human
  may approve blockers (impact_gate_approve) and you must never approve on
  your own initiative.

Use impact_gate_status to re-read the gate of an earlier analysis.`
