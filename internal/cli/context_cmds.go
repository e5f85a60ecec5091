package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/episteme/internal/wire"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Mark a directory as a project root",
		Long: `Write .episteme/project.yaml in the given directory (default: current directory).

Any directory at or below a marked root resolves to that project.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			adapter, err := wire.ContextAdapterWithOutput(cmd.OutOrStdout(), jsonOutput(cmd))
			if err != nil {
				return err
			}
			return adapter.Init(cmd.Context(), dir, name)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Project name (default: directory name)")
	return cmd
}

// SessionCmd returns the session command
func SessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the session bound to this terminal or conversation",
	}
	cmd.AddCommand(sessionStartCmd())
	return cmd
}

func sessionStartCmd() *cobra.Command {
	var projectDir, sessionID string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a session and bind every identity key to it",
		Long: `Create a session in the project containing --project (default: the current
directory) and write a pointer for every detected identity key.

Examples:
  episteme session start
  episteme session start --project ~/src/api
  episteme --conversation abc123 session start --id sess-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := detectIdentity(cmd)
			adapter, err := wire.ContextAdapterWithOutput(cmd.OutOrStdout(), jsonOutput(cmd))
			if err != nil {
				return err
			}
			return adapter.StartSession(cmd.Context(), src, projectDir, sessionID)
		},
	}

	cmd.Flags().StringVarP(&projectDir, "project", "p", "", "Project directory (default: current directory)")
	cmd.Flags().StringVar(&sessionID, "id", "", "Session id (default: generated)")
	return cmd
}

// ProjectCmd returns the project command
func ProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Switch the project this terminal or conversation works in",
	}
	cmd.AddCommand(projectSwitchCmd())
	return cmd
}

func projectSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <dir>",
		Short: "Repoint every identity key at another project",
		Long: `Repoint every identity key at the project containing <dir>.

The session carries over. An open transaction this instance holds in the
project it leaves is closed with reason "superseded by project switch".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := detectIdentity(cmd)
			adapter, err := wire.ContextAdapterWithOutput(cmd.OutOrStdout(), jsonOutput(cmd))
			if err != nil {
				return err
			}
			return adapter.SwitchProject(cmd.Context(), src, args[0])
		},
	}
}

// ResolveCmd returns the resolve command
func ResolveCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the current project, session and transaction",
		Long: `Walk the resolution chain for this invocation:

  1. open transaction for (project, instance)
  2. identity pointers, most specific key first
  3. working directory (skipped with --strict)

Fails, listing every candidate tried, when nothing resolves.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := detectIdentity(cmd)
			adapter, err := wire.ContextAdapterWithOutput(cmd.OutOrStdout(), jsonOutput(cmd))
			if err != nil {
				return err
			}
			_, err = adapter.Resolve(cmd.Context(), src, strict)
			return err
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Disable the working-directory fallback")
	return cmd
}

// WhoamiCmd returns the whoami command
func WhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show detected identity keys and what they point at",
		RunE: func(cmd *cobra.Command, args []string) error {
			src := detectIdentity(cmd)
			if src.Cwd == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: working directory unavailable")
			}
			adapter, err := wire.ContextAdapterWithOutput(cmd.OutOrStdout(), jsonOutput(cmd))
			if err != nil {
				return err
			}
			return adapter.Whoami(cmd.Context(), src)
		},
	}
}
