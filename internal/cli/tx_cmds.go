package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/episteme/internal/wire"
)

// TxCmd returns the tx command
func TxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Inspect and close transactions",
		Long: `Inspect and close transactions.

Without an id, show/close/history act on this instance's transaction in the
resolved project.`,
	}

	cmd.AddCommand(txShowCmd())
	cmd.AddCommand(txCloseCmd())
	cmd.AddCommand(txHistoryCmd())
	cmd.AddCommand(txListCmd())

	return cmd
}

func optionalID(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

func txShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [transaction-id]",
		Short: "Show a transaction",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := detectIdentity(cmd)
			adapter, err := wire.WorkflowAdapterWithOutput(cmd.OutOrStdout(), jsonOutput(cmd))
			if err != nil {
				return err
			}
			return adapter.Show(cmd.Context(), src, optionalID(args))
		},
	}
}

func txCloseCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "close [transaction-id]",
		Short: "Close a transaction without finishing it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := detectIdentity(cmd)
			adapter, err := wire.WorkflowAdapterWithOutput(cmd.OutOrStdout(), jsonOutput(cmd))
			if err != nil {
				return err
			}
			return adapter.Close(cmd.Context(), src, optionalID(args), reason)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Close reason (default: abandoned)")
	return cmd
}

func txHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [transaction-id]",
		Short: "List the accepted assessments of a transaction",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := detectIdentity(cmd)
			adapter, err := wire.WorkflowAdapterWithOutput(cmd.OutOrStdout(), jsonOutput(cmd))
			if err != nil {
				return err
			}
			return adapter.History(cmd.Context(), src, optionalID(args))
		},
	}
}

func txListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every open transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := wire.WorkflowAdapterWithOutput(cmd.OutOrStdout(), jsonOutput(cmd))
			if err != nil {
				return err
			}
			return adapter.List(cmd.Context())
		},
	}
}
