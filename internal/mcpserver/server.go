// Package mcpserver exposes context resolution and phase submission as MCP
// tools over stdio.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/example/episteme/internal/identity"
	"github.com/example/episteme/internal/ports/primary"
)

// New creates the MCP server with every tool registered. src is the identity
// of the process that launched the server; every call resolves against it.
func New(contextSvc primary.ContextService, workflowSvc primary.WorkflowService, src identity.Source, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"episteme",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)

	resolveTool := NewResolveTool(contextSvc, src)
	s.AddTool(resolveTool.Definition(), resolveTool.Handle)

	advanceTool := NewAdvanceTool(contextSvc, workflowSvc, src)
	s.AddTool(advanceTool.Definition(), advanceTool.Handle)

	return s
}

// Serve runs s on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const serverInstructions = `episteme tracks what you know while you work.

Start every unit of work with episteme_advance phase=PREFLIGHT, scoring each
vector in [0,1]. Follow the returned next_phase: INVESTIGATE and CHECK until
the gate says proceed, then ACT, then POSTFLIGHT. A clarify decision means the
task is not understood well enough to start; ask the user.

Call episteme_resolve to see which project, session and transaction you are in.`
