package workflow

import "fmt"

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string // Human-readable reason (populated when not allowed)
}

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// OpenContext provides context for transaction open guards.
// Populated by the caller with the latest record for the (project, instance) key.
type OpenContext struct {
	ProjectPath    string
	InstanceID     string
	HasExisting    bool
	ExistingOpen   bool
	ExistingTxID   string
	SupersedeAsked bool
}

// CanOpenTransaction evaluates whether a new transaction may be opened.
// Rules:
// - Project path and instance id are required
// - An open transaction blocks unless the caller explicitly supersedes it
func CanOpenTransaction(ctx OpenContext) GuardResult {
	if ctx.ProjectPath == "" {
		return GuardResult{Allowed: false, Reason: "project path is required to open a transaction"}
	}
	if ctx.InstanceID == "" {
		return GuardResult{Allowed: false, Reason: "instance id is required to open a transaction"}
	}
	if ctx.HasExisting && ctx.ExistingOpen && !ctx.SupersedeAsked {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("transaction %s is still open for %s (%s); close it or supersede", ctx.ExistingTxID, ctx.ProjectPath, ctx.InstanceID),
		}
	}
	return GuardResult{Allowed: true}
}

// SubmitContext provides context for phase submission guards.
type SubmitContext struct {
	TransactionID string
	State         State
	Phase         Phase
	Closed        bool
}

// CanSubmitPhase evaluates whether a phase is accepted from the current state.
// Rules:
// - Closed transactions accept nothing
// - Each non-terminal state accepts exactly one phase; nothing is ever inferred
func CanSubmitPhase(ctx SubmitContext) GuardResult {
	switch {
	case ctx.State == StateClarify:
		return GuardResult{
			Allowed: false,
			Reason:  "transaction was gated to CLARIFY; open a new transaction with a clearer task",
		}
	case ctx.State == StateComplete:
		return GuardResult{
			Allowed: false,
			Reason:  "workflow already completed POSTFLIGHT",
		}
	case ctx.Closed:
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("transaction %s is closed", ctx.TransactionID),
		}
	}

	want, ok := ctx.State.Expects()
	if !ok {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("unknown state %q", ctx.State)}
	}
	if ctx.Phase != want {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("expected %s next", want),
		}
	}
	return GuardResult{Allowed: true}
}

// CloseContext provides context for transaction close guards.
type CloseContext struct {
	TransactionID string
	Exists        bool
}

// CanCloseTransaction evaluates whether a transaction can be closed.
// Closing an already closed transaction is a no-op, not an error.
func CanCloseTransaction(ctx CloseContext) GuardResult {
	if !ctx.Exists {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("transaction %s not found", ctx.TransactionID)}
	}
	return GuardResult{Allowed: true}
}
