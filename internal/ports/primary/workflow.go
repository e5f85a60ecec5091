package primary

import (
	"context"
	"time"
)

// WorkflowService defines the primary port for transaction lifecycle and
// phase submission.
type WorkflowService interface {
	// Open creates a transaction for (project, instance). An open one
	// blocks it with a conflicting-open error unless Supersede is set.
	Open(ctx context.Context, req OpenTransactionRequest) (*OpenTransactionResponse, error)

	// Begin validates a PREFLIGHT assessment, opens a transaction and
	// submits the assessment to it. Retrying an accepted Begin is a no-op.
	Begin(ctx context.Context, req BeginRequest) (*AdvanceResponse, error)

	// Advance submits one phase assessment to an open transaction.
	// Resubmitting the last accepted assessment is a no-op.
	Advance(ctx context.Context, req AdvanceRequest) (*AdvanceResponse, error)

	// Close marks a transaction closed. Closing a closed transaction is a no-op.
	Close(ctx context.Context, req CloseTransactionRequest) (*Transaction, error)

	// GetTransaction retrieves a transaction by ID.
	GetTransaction(ctx context.Context, transactionID string) (*Transaction, error)

	// CurrentTransaction returns the latest transaction for (project, instance),
	// open or closed. A replacement process uses it to resume.
	CurrentTransaction(ctx context.Context, projectPath, instanceID string) (*Transaction, error)

	// ListOpen lists every open transaction.
	ListOpen(ctx context.Context) ([]*Transaction, error)

	// History returns the accepted assessments of a transaction in order.
	History(ctx context.Context, transactionID string) ([]*PhaseAssessment, error)
}

// OpenTransactionRequest contains parameters for opening a transaction.
type OpenTransactionRequest struct {
	ProjectPath string
	InstanceID  string
	SessionID   string
	Supersede   bool
	Reason      string // close reason written to a superseded transaction
}

// OpenTransactionResponse contains the result of opening a transaction.
type OpenTransactionResponse struct {
	Transaction *Transaction `json:"transaction"`
	Superseded  *Transaction `json:"superseded,omitempty"`
}

// BeginRequest contains parameters for opening a transaction with its
// PREFLIGHT assessment.
type BeginRequest struct {
	OpenTransactionRequest
	Vectors   map[string]float64
	Rationale string
}

// AdvanceRequest contains parameters for submitting a phase.
type AdvanceRequest struct {
	TransactionID string
	Phase         string
	Vectors       map[string]float64
	Rationale     string
}

// AdvanceResponse contains the result of a phase submission.
type AdvanceResponse struct {
	Transaction *Transaction     `json:"transaction"`
	Assessment  *PhaseAssessment `json:"assessment"`
	Superseded  *Transaction     `json:"superseded,omitempty"`
	// Replayed is true when the submission matched the last accepted
	// assessment and nothing was written.
	Replayed bool `json:"replayed,omitempty"`
}

// CloseTransactionRequest contains parameters for closing a transaction.
type CloseTransactionRequest struct {
	TransactionID string
	Reason        string
}

// Transaction represents a transaction at the port boundary.
type Transaction struct {
	ID                string     `json:"transaction_id"`
	SessionID         string     `json:"session_id,omitempty"`
	ProjectPath       string     `json:"project_path"`
	InstanceID        string     `json:"instance_id"`
	PhaseReached      string     `json:"phase_reached,omitempty"`
	State             string     `json:"state"`
	NextPhase         string     `json:"next_phase,omitempty"`
	Status            string     `json:"status"`
	CheckRounds       int        `json:"check_rounds"`
	InvestigateRounds int        `json:"investigate_rounds"`
	CloseReason       string     `json:"close_reason,omitempty"`
	OpenedAt          time.Time  `json:"opened_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

// PhaseAssessment represents one accepted assessment at the port boundary.
type PhaseAssessment struct {
	Sequence      int                `json:"sequence"`
	Phase         string             `json:"phase"`
	Vectors       map[string]float64 `json:"vectors"`
	Rationale     string             `json:"rationale,omitempty"`
	Decision      string             `json:"decision"`
	NextState     string             `json:"next_state"`
	Round         int                `json:"round,omitempty"`
	ForcedProceed bool               `json:"forced_proceed,omitempty"`
	Delta         map[string]float64 `json:"delta,omitempty"`
	Calibration   string             `json:"calibration,omitempty"`
	RecordedAt    time.Time          `json:"recorded_at"`
}
