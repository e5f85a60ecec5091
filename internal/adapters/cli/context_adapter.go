// Package cli provides thin CLI adapters that translate between CLI concerns
// and application services. Adapters handle output formatting but delegate
// business logic to services.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/example/episteme/internal/identity"
	"github.com/example/episteme/internal/ports/primary"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("!")
)

// ContextAdapter translates context commands to ContextService calls.
type ContextAdapter struct {
	service    primary.ContextService
	out        io.Writer
	jsonOutput bool
}

// NewContextAdapter creates a new ContextAdapter with the given service.
func NewContextAdapter(service primary.ContextService, out io.Writer, jsonOutput bool) *ContextAdapter {
	return &ContextAdapter{
		service:    service,
		out:        out,
		jsonOutput: jsonOutput,
	}
}

// Resolve prints the resolved context for src.
func (a *ContextAdapter) Resolve(ctx context.Context, src identity.Source, strict bool) (*primary.ResolvedContext, error) {
	resolved, err := a.service.Resolve(ctx, primary.ResolveRequest{Identity: src, Strict: strict})
	if err != nil {
		return nil, err
	}
	if a.jsonOutput {
		return resolved, writeJSON(a.out, resolved)
	}

	fmt.Fprintf(a.out, "Project:     %s\n", resolved.ProjectPath)
	if resolved.SessionID != "" {
		fmt.Fprintf(a.out, "Session:     %s\n", resolved.SessionID)
	}
	if resolved.TransactionID != "" {
		fmt.Fprintf(a.out, "Transaction: %s (%s)\n", resolved.TransactionID, resolved.Phase)
	}
	fmt.Fprintf(a.out, "Instance:    %s\n", resolved.InstanceID)
	source := resolved.Source
	if resolved.Key != "" {
		source += " " + resolved.Key
	}
	fmt.Fprintf(a.out, "Source:      %s\n", source)
	for _, w := range resolved.Warnings {
		fmt.Fprintf(a.out, "%s stale pointer %s: %s\n", warnMark, w.Key, w.Reason)
	}
	if len(resolved.Attempts) > 0 {
		fmt.Fprintln(a.out, "Attempts:")
		for _, at := range resolved.Attempts {
			fmt.Fprintf(a.out, "  - %s\n", formatAttempt(at))
		}
	}
	return resolved, nil
}

// StartSession binds every identity key to a session in the project at dir.
func (a *ContextAdapter) StartSession(ctx context.Context, src identity.Source, dir, sessionID string) error {
	binding, err := a.service.StartSession(ctx, primary.StartSessionRequest{
		Identity:   src,
		ProjectDir: dir,
		SessionID:  sessionID,
	})
	if err != nil {
		return err
	}
	if a.jsonOutput {
		return writeJSON(a.out, binding)
	}

	fmt.Fprintf(a.out, "%s Started session %s in %s\n", okMark, binding.SessionID, binding.ProjectPath)
	fmt.Fprintf(a.out, "  instance: %s\n", binding.InstanceID)
	fmt.Fprintf(a.out, "  keys:     %s\n", strings.Join(binding.Keys, ", "))
	return nil
}

// SwitchProject repoints every identity key at the project at dir.
func (a *ContextAdapter) SwitchProject(ctx context.Context, src identity.Source, dir string) error {
	resp, err := a.service.SwitchProject(ctx, primary.SwitchProjectRequest{Identity: src, ProjectDir: dir})
	if err != nil {
		return err
	}
	if a.jsonOutput {
		return writeJSON(a.out, resp)
	}

	if resp.PreviousProject != "" && resp.PreviousProject != resp.ProjectPath {
		fmt.Fprintf(a.out, "%s Switched from %s to %s\n", okMark, resp.PreviousProject, resp.ProjectPath)
	} else {
		fmt.Fprintf(a.out, "%s Switched to %s\n", okMark, resp.ProjectPath)
	}
	fmt.Fprintf(a.out, "  session: %s\n", resp.SessionID)
	if resp.ClosedTransactionID != "" {
		fmt.Fprintf(a.out, "  closed transaction %s in %s\n", resp.ClosedTransactionID, resp.PreviousProject)
	}
	return nil
}

// Whoami prints the detected identity and the pointer behind each key.
func (a *ContextAdapter) Whoami(ctx context.Context, src identity.Source) error {
	report, err := a.service.Whoami(ctx, src)
	if err != nil {
		return err
	}
	if a.jsonOutput {
		return writeJSON(a.out, report)
	}

	fmt.Fprintf(a.out, "Instance: %s\n", report.InstanceID)
	fmt.Fprintf(a.out, "Owner:    pid %d\n", report.OwnerPID)
	fmt.Fprintf(a.out, "Cwd:      %s\n", report.Cwd)
	if report.ProjectRoot != "" {
		fmt.Fprintf(a.out, "Project:  %s\n", report.ProjectRoot)
	}
	if report.Pane != nil {
		fmt.Fprintf(a.out, "Pane:     %s (%s:%s)\n", report.Pane.PaneID, report.Pane.Session, report.Pane.Window)
	}

	if len(report.Keys) == 0 {
		fmt.Fprintln(a.out, "\nNo identity keys detected")
		return nil
	}
	fmt.Fprintln(a.out)
	for _, kb := range report.Keys {
		if kb.ProjectPath == "" {
			fmt.Fprintf(a.out, "  %s  %s\n", kb.Key, color.New(color.FgHiBlack).Sprint("(unbound)"))
			continue
		}
		line := fmt.Sprintf("  %s  → %s session %s", kb.Key, kb.ProjectPath, kb.SessionID)
		if kb.UpdatedAt != nil {
			line += fmt.Sprintf(" (%s)", humanize.Time(*kb.UpdatedAt))
		}
		if kb.Stale {
			line += " " + color.New(color.FgYellow).Sprintf("[stale: %s]", kb.StaleReason)
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

// Init marks dir as a project root.
func (a *ContextAdapter) Init(ctx context.Context, dir, name string) error {
	resp, err := a.service.InitProject(ctx, primary.InitProjectRequest{Dir: dir, Name: name})
	if err != nil {
		return err
	}
	if a.jsonOutput {
		return writeJSON(a.out, resp)
	}

	fmt.Fprintf(a.out, "%s Initialized project %s at %s\n", okMark, resp.Name, resp.ProjectPath)
	return nil
}

func formatAttempt(at primary.ResolveAttempt) string {
	var subject string
	switch at.Step {
	case "transaction":
		subject = fmt.Sprintf("transaction %s@%s", at.InstanceID, at.ProjectPath)
	case "pointer":
		subject = "pointer " + at.Key
	default:
		subject = at.Step
		if at.ProjectPath != "" {
			subject += " " + at.ProjectPath
		}
	}
	if at.Detail == "" {
		return fmt.Sprintf("%s: %s", subject, at.Result)
	}
	return fmt.Sprintf("%s: %s (%s)", subject, at.Result, at.Detail)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
