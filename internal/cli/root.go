package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/episteme/internal/ctxutil"
	"github.com/example/episteme/internal/logging"
	"github.com/example/episteme/internal/version"
	"github.com/example/episteme/internal/wire"
)

// RootCmd returns the episteme root command with every subcommand attached.
func RootCmd() *cobra.Command {
	var logger *zap.Logger

	rootCmd := &cobra.Command{
		Use:     "episteme",
		Short:   "Track what an agent knows while it works",
		Version: version.String(),
		Long: `episteme resolves which project, session and transaction an invocation
belongs to, and walks each unit of work through
PREFLIGHT → (INVESTIGATE ⇄ CHECK)* → ACT → POSTFLIGHT.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, jsonLogs := "warn", false
			if cfg, err := wire.Config(); err == nil {
				level, jsonLogs = cfg.Log.Level, cfg.Log.JSON
			}
			if verbose, _ := cmd.Flags().GetBool(FlagVerbose); verbose {
				level = "debug"
			}

			l, err := logging.New(level, jsonLogs)
			if err != nil {
				return err
			}
			logger = l
			wire.SetLogger(logger)
			cmd.SetContext(ctxutil.WithLogger(cmd.Context(), logger))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
			_ = wire.Close()
		},
	}

	rootCmd.PersistentFlags().Bool(FlagVerbose, false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool(FlagJSON, false, "Output JSON")
	rootCmd.PersistentFlags().String(FlagConversation, "", "Conversation id (default: $EPISTEME_CONVERSATION_ID)")

	// Context binding
	rootCmd.AddCommand(InitCmd())
	rootCmd.AddCommand(SessionCmd())
	rootCmd.AddCommand(ProjectCmd())
	rootCmd.AddCommand(ResolveCmd())
	rootCmd.AddCommand(WhoamiCmd())

	// Workflow
	rootCmd.AddCommand(PhaseCmds()...)
	rootCmd.AddCommand(TxCmd())

	// Integrations
	rootCmd.AddCommand(HookCmd())
	rootCmd.AddCommand(McpCmd())

	return rootCmd
}
