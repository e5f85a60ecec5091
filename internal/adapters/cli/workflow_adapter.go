package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/example/episteme/internal/identity"
	"github.com/example/episteme/internal/ports/primary"
)

// ErrNoOpenTransaction is returned when a phase is submitted without a
// transaction id and the resolved context carries no open transaction.
var ErrNoOpenTransaction = errors.New("no open transaction for this instance; submit preflight first")

// WorkflowAdapter translates phase and transaction commands to service calls.
// It resolves the invocation's context when no transaction id is given.
type WorkflowAdapter struct {
	context    primary.ContextService
	workflow   primary.WorkflowService
	out        io.Writer
	jsonOutput bool
}

// NewWorkflowAdapter creates a new WorkflowAdapter.
func NewWorkflowAdapter(contextSvc primary.ContextService, workflowSvc primary.WorkflowService, out io.Writer, jsonOutput bool) *WorkflowAdapter {
	return &WorkflowAdapter{
		context:    contextSvc,
		workflow:   workflowSvc,
		out:        out,
		jsonOutput: jsonOutput,
	}
}

// SubmitRequest carries one phase submission from the command line.
type SubmitRequest struct {
	Identity      identity.Source
	Phase         string
	Vectors       map[string]float64
	Rationale     string
	TransactionID string
	Supersede     bool
	Strict        bool
}

// Submit sends a phase assessment. PREFLIGHT opens a transaction in the
// resolved project; later phases go to the resolved open transaction.
func (a *WorkflowAdapter) Submit(ctx context.Context, req SubmitRequest) (*primary.AdvanceResponse, error) {
	var (
		resp *primary.AdvanceResponse
		err  error
	)
	if strings.EqualFold(req.Phase, "preflight") {
		resp, err = a.begin(ctx, req)
	} else {
		resp, err = a.advance(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if a.jsonOutput {
		return resp, writeJSON(a.out, resp)
	}
	a.printAdvance(resp)
	return resp, nil
}

func (a *WorkflowAdapter) begin(ctx context.Context, req SubmitRequest) (*primary.AdvanceResponse, error) {
	resolved, err := a.context.Resolve(ctx, primary.ResolveRequest{Identity: req.Identity, Strict: req.Strict})
	if err != nil {
		return nil, err
	}
	return a.workflow.Begin(ctx, primary.BeginRequest{
		OpenTransactionRequest: primary.OpenTransactionRequest{
			ProjectPath: resolved.ProjectPath,
			InstanceID:  resolved.InstanceID,
			SessionID:   resolved.SessionID,
			Supersede:   req.Supersede,
		},
		Vectors:   req.Vectors,
		Rationale: req.Rationale,
	})
}

func (a *WorkflowAdapter) advance(ctx context.Context, req SubmitRequest) (*primary.AdvanceResponse, error) {
	txID := req.TransactionID
	if txID == "" {
		resolved, err := a.context.Resolve(ctx, primary.ResolveRequest{Identity: req.Identity, Strict: req.Strict})
		if err != nil {
			return nil, err
		}
		if resolved.TransactionID == "" {
			return nil, ErrNoOpenTransaction
		}
		txID = resolved.TransactionID
	}
	return a.workflow.Advance(ctx, primary.AdvanceRequest{
		TransactionID: txID,
		Phase:         req.Phase,
		Vectors:       req.Vectors,
		Rationale:     req.Rationale,
	})
}

func (a *WorkflowAdapter) printAdvance(resp *primary.AdvanceResponse) {
	tx := resp.Transaction
	as := resp.Assessment
	if resp.Superseded != nil {
		fmt.Fprintf(a.out, "%s Superseded transaction %s (%s)\n", warnMark, resp.Superseded.ID, resp.Superseded.CloseReason)
	}
	if resp.Replayed {
		fmt.Fprintf(a.out, "%s %s already recorded for transaction %s\n", okMark, strings.ToUpper(as.Phase), tx.ID)
	} else {
		fmt.Fprintf(a.out, "%s %s accepted for transaction %s\n", okMark, strings.ToUpper(as.Phase), tx.ID)
	}

	fmt.Fprintf(a.out, "  decision: %s\n", decisionLabel(as.Decision))
	if as.Round > 0 {
		fmt.Fprintf(a.out, "  round:    %d\n", as.Round)
	}
	if as.ForcedProceed {
		fmt.Fprintf(a.out, "  %s round limit reached; proceeding with unresolved uncertainty\n", warnMark)
	}
	if tx.Status == "open" {
		fmt.Fprintf(a.out, "  next:     %s\n", strings.ToUpper(tx.NextPhase))
	} else {
		fmt.Fprintf(a.out, "  closed:   %s\n", tx.CloseReason)
	}
	if len(as.Delta) > 0 {
		fmt.Fprintf(a.out, "  delta:    %s\n", formatVectors(as.Delta, true))
	}
	if as.Calibration != "" {
		fmt.Fprintf(a.out, "  calibration: %s\n", as.Calibration)
	}
}

// Show prints a transaction. With no id it shows the latest transaction of
// the resolved (project, instance), open or closed.
func (a *WorkflowAdapter) Show(ctx context.Context, src identity.Source, txID string) error {
	tx, err := a.transactionFor(ctx, src, txID)
	if err != nil {
		return err
	}
	if a.jsonOutput {
		return writeJSON(a.out, tx)
	}

	fmt.Fprintf(a.out, "\nTransaction: %s\n", tx.ID)
	fmt.Fprintf(a.out, "Project:     %s\n", tx.ProjectPath)
	fmt.Fprintf(a.out, "Instance:    %s\n", tx.InstanceID)
	if tx.SessionID != "" {
		fmt.Fprintf(a.out, "Session:     %s\n", tx.SessionID)
	}
	fmt.Fprintf(a.out, "Status:      %s\n", tx.Status)
	fmt.Fprintf(a.out, "State:       %s\n", tx.State)
	if tx.NextPhase != "" {
		fmt.Fprintf(a.out, "Next:        %s\n", strings.ToUpper(tx.NextPhase))
	}
	fmt.Fprintf(a.out, "Rounds:      %d check, %d investigate\n", tx.CheckRounds, tx.InvestigateRounds)
	fmt.Fprintf(a.out, "Opened:      %s\n", humanize.Time(tx.OpenedAt))
	if tx.ClosedAt != nil {
		fmt.Fprintf(a.out, "Closed:      %s (%s)\n", humanize.Time(*tx.ClosedAt), tx.CloseReason)
	}
	fmt.Fprintln(a.out)
	return nil
}

// Close closes a transaction, by id or the resolved one.
func (a *WorkflowAdapter) Close(ctx context.Context, src identity.Source, txID, reason string) error {
	if txID == "" {
		tx, err := a.transactionFor(ctx, src, "")
		if err != nil {
			return err
		}
		txID = tx.ID
	}
	tx, err := a.workflow.Close(ctx, primary.CloseTransactionRequest{TransactionID: txID, Reason: reason})
	if err != nil {
		return err
	}
	if a.jsonOutput {
		return writeJSON(a.out, tx)
	}

	fmt.Fprintf(a.out, "%s Transaction %s closed (%s)\n", okMark, tx.ID, tx.CloseReason)
	return nil
}

// History prints the accepted assessments of a transaction in order.
func (a *WorkflowAdapter) History(ctx context.Context, src identity.Source, txID string) error {
	if txID == "" {
		tx, err := a.transactionFor(ctx, src, "")
		if err != nil {
			return err
		}
		txID = tx.ID
	}
	history, err := a.workflow.History(ctx, txID)
	if err != nil {
		return err
	}
	if a.jsonOutput {
		return writeJSON(a.out, history)
	}

	if len(history) == 0 {
		fmt.Fprintln(a.out, "No assessments recorded")
		return nil
	}
	fmt.Fprintf(a.out, "\n%-4s %-12s %-10s %s\n", "SEQ", "PHASE", "DECISION", "VECTORS")
	fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────")
	for _, h := range history {
		fmt.Fprintf(a.out, "%-4d %-12s %-10s %s\n", h.Sequence, strings.ToUpper(h.Phase), h.Decision, formatVectors(h.Vectors, false))
	}
	fmt.Fprintln(a.out)
	return nil
}

// List prints every open transaction.
func (a *WorkflowAdapter) List(ctx context.Context) error {
	txs, err := a.workflow.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to list transactions: %w", err)
	}
	if a.jsonOutput {
		if txs == nil {
			txs = []*primary.Transaction{}
		}
		return writeJSON(a.out, txs)
	}

	if len(txs) == 0 {
		fmt.Fprintln(a.out, "No open transactions")
		return nil
	}
	fmt.Fprintf(a.out, "\n%-38s %-12s %-12s %-14s %s\n", "ID", "INSTANCE", "STATE", "OPENED", "PROJECT")
	fmt.Fprintln(a.out, "────────────────────────────────────────────────────────────────")
	for _, tx := range txs {
		fmt.Fprintf(a.out, "%-38s %-12s %-12s %-14s %s\n", tx.ID, tx.InstanceID, tx.State, humanize.Time(tx.OpenedAt), tx.ProjectPath)
	}
	fmt.Fprintln(a.out)
	return nil
}

func (a *WorkflowAdapter) transactionFor(ctx context.Context, src identity.Source, txID string) (*primary.Transaction, error) {
	if txID != "" {
		return a.workflow.GetTransaction(ctx, txID)
	}
	resolved, err := a.context.Resolve(ctx, primary.ResolveRequest{Identity: src})
	if err != nil {
		return nil, err
	}
	if resolved.TransactionID != "" {
		return a.workflow.GetTransaction(ctx, resolved.TransactionID)
	}
	return a.workflow.CurrentTransaction(ctx, resolved.ProjectPath, resolved.InstanceID)
}

func decisionLabel(d string) string {
	switch d {
	case "proceed", "complete":
		return color.New(color.FgGreen).Sprint(d)
	case "clarify":
		return color.New(color.FgRed).Sprint(d)
	default:
		return color.New(color.FgYellow).Sprint(d)
	}
}

func formatVectors(v map[string]float64, signed bool) string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		if signed {
			parts[i] = fmt.Sprintf("%s=%+.2f", name, v[name])
		} else {
			parts[i] = fmt.Sprintf("%s=%.2f", name, v[name])
		}
	}
	return strings.Join(parts, " ")
}
