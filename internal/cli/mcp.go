package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/episteme/internal/mcpserver"
	"github.com/example/episteme/internal/version"
	"github.com/example/episteme/internal/wire"
)

// McpCmd returns the mcp command
func McpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve episteme tools over MCP (stdio)",
		Long: `Run an MCP server on stdin/stdout exposing:

  episteme_resolve   resolve project, session and open transaction
  episteme_advance   submit a phase self-assessment

The identity of the launching process is captured once at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := detectIdentity(cmd)
			ctxSvc, err := wire.ContextService()
			if err != nil {
				return err
			}
			wfSvc, err := wire.WorkflowService()
			if err != nil {
				return err
			}
			return mcpserver.Serve(mcpserver.New(ctxSvc, wfSvc, src, version.String()))
		},
	}
}
