package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/episteme/internal/ctxutil"
	"github.com/example/episteme/internal/identity"
	"github.com/example/episteme/internal/ports/primary"
	"github.com/example/episteme/internal/wire"
)

// HookCmd returns the hook command - entrypoint for agent hook events
func HookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hook <event>",
		Short: "Handle agent hook events",
		Long: `Process an agent hook event read as JSON from stdin.

The payload's session_id is bound as the conversation identity key and the
context is resolved without the working-directory fallback. An unresolvable
context never blocks the agent: it is reported on stderr and the hook exits 0.

Example:
  echo '{"session_id":"abc","cwd":"/src/api"}' | episteme hook SessionStart`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := wire.ContextService()
			if err != nil {
				// No usable configuration - allow (fail open)
				fmt.Fprintf(cmd.ErrOrStderr(), "episteme: %v\n", err)
				return nil
			}
			return runHook(cmd.Context(), hookIO{
				event:  args[0],
				in:     cmd.InOrStdin(),
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
				detect: func(opts identity.Options) identity.Source { return detectWith(cmd, opts) },
			}, svc)
		},
	}
}

// HookEvent is the JSON payload an agent passes to a hook.
type HookEvent struct {
	SessionID      string `json:"session_id"`
	Cwd            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`
	TranscriptPath string `json:"transcript_path"`
}

type hookIO struct {
	event  string
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	detect func(identity.Options) identity.Source
}

func runHook(ctx context.Context, h hookIO, svc primary.ContextService) error {
	logger := ctxutil.Logger(ctx)

	// 1. Read stdin JSON
	data, err := io.ReadAll(h.in)
	if err != nil {
		return nil //nolint:nilerr // intentional fail-open design
	}

	// 2. Parse hook event; an empty payload still resolves from the environment
	var event HookEvent
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &event); err != nil {
			fmt.Fprintf(h.errOut, "episteme: ignoring invalid hook payload: %v\n", err)
			return nil
		}
	}
	name := event.HookEventName
	if name == "" {
		name = h.event
	}

	// 3. Identity, with the payload's session as the conversation key
	src := h.detect(identity.Options{ConversationID: event.SessionID})
	if event.Cwd != "" {
		src.Cwd = event.Cwd
	}

	// 4. Strict resolution: the hook's working directory is not trusted
	resolved, err := svc.Resolve(ctx, primary.ResolveRequest{Identity: src, Strict: true})
	if err != nil {
		logger.Debug("hook context unresolved", zap.String("event", name), zap.Error(err))
		fmt.Fprintf(h.errOut, "episteme: %v\n", err)
		return nil
	}

	// 5. Bind the conversation key when it was not what resolved
	if event.SessionID != "" {
		conv := identity.Key{Kind: identity.KindConversation, Value: event.SessionID}.String()
		if resolved.Key != conv {
			binding, err := svc.StartSession(ctx, primary.StartSessionRequest{
				Identity:   src,
				ProjectDir: resolved.ProjectPath,
				SessionID:  resolved.SessionID,
			})
			if err != nil {
				fmt.Fprintf(h.errOut, "episteme: failed to bind conversation: %v\n", err)
			} else {
				resolved.SessionID = binding.SessionID
				logger.Debug("conversation bound",
					zap.String("event", name),
					zap.String("key", conv),
					zap.String("session_id", binding.SessionID))
			}
		}
	}

	for _, w := range resolved.Warnings {
		fmt.Fprintf(h.errOut, "episteme: stale pointer %s: %s\n", w.Key, w.Reason)
	}

	// 6. Report the context to the agent
	line := fmt.Sprintf("episteme: project %s", resolved.ProjectPath)
	if resolved.TransactionID != "" {
		line += fmt.Sprintf(", transaction %s (%s)", resolved.TransactionID, resolved.Phase)
	}
	fmt.Fprintln(h.out, line)
	return nil
}
