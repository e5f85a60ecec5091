package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/episteme/internal/core/effects"
	"github.com/example/episteme/internal/core/workflow"
	"github.com/example/episteme/internal/ctxutil"
	"github.com/example/episteme/internal/ports/primary"
	"github.com/example/episteme/internal/ports/secondary"
)

// ReasonAbandoned is the close reason used when the caller gives none.
const ReasonAbandoned = "abandoned"

// WorkflowServiceImpl implements the WorkflowService interface.
type WorkflowServiceImpl struct {
	transactions secondary.TransactionStore
	history      secondary.AssessmentLog
	executor     EffectExecutor
	policy       workflow.Policy
	newID        func() string
}

// NewWorkflowService creates a new WorkflowService with injected dependencies.
func NewWorkflowService(
	transactions secondary.TransactionStore,
	history secondary.AssessmentLog,
	executor EffectExecutor,
	policy workflow.Policy,
) *WorkflowServiceImpl {
	return &WorkflowServiceImpl{
		transactions: transactions,
		history:      history,
		executor:     executor,
		policy:       policy,
		newID:        uuid.NewString,
	}
}

var _ primary.WorkflowService = (*WorkflowServiceImpl)(nil)

// Open creates a transaction for (project, instance).
func (s *WorkflowServiceImpl) Open(ctx context.Context, req primary.OpenTransactionRequest) (*primary.OpenTransactionResponse, error) {
	existing, err := s.transactions.Read(ctx, req.ProjectPath, req.InstanceID)
	if err != nil && !errors.Is(err, secondary.ErrNotFound) {
		return nil, fmt.Errorf("failed to read current transaction: %w", err)
	}

	guard := workflow.CanOpenTransaction(workflow.OpenContext{
		ProjectPath:    req.ProjectPath,
		InstanceID:     req.InstanceID,
		HasExisting:    existing != nil,
		ExistingOpen:   existing.IsOpen(),
		ExistingTxID:   transactionIDOf(existing),
		SupersedeAsked: req.Supersede,
	})
	if !guard.Allowed {
		if existing.IsOpen() {
			return nil, conflictingOpen(req, existing)
		}
		return nil, guard.Error()
	}

	rec := &secondary.TransactionRecord{
		TransactionID: s.newID(),
		SessionID:     req.SessionID,
		ProjectPath:   req.ProjectPath,
		InstanceID:    req.InstanceID,
		State:         string(workflow.InitialState()),
	}
	superseded, err := s.transactions.Open(ctx, rec, secondary.OpenOptions{Supersede: req.Supersede, Reason: req.Reason})
	if err != nil {
		var conflict *secondary.OpenConflictError
		if errors.As(err, &conflict) {
			return nil, conflictingOpen(req, conflict.Existing)
		}
		return nil, fmt.Errorf("failed to open transaction: %w", err)
	}

	logger := ctxutil.Logger(ctx)
	logger.Info("transaction opened",
		zap.String("transaction_id", rec.TransactionID),
		zap.String("project", rec.ProjectPath),
		zap.String("instance", rec.InstanceID))
	if superseded != nil {
		logger.Warn("transaction superseded",
			zap.String("transaction_id", superseded.TransactionID),
			zap.String("reason", superseded.CloseReason))
	}

	return &primary.OpenTransactionResponse{
		Transaction: toTransaction(rec),
		Superseded:  toTransaction(superseded),
	}, nil
}

// Begin opens a transaction and submits its PREFLIGHT assessment.
func (s *WorkflowServiceImpl) Begin(ctx context.Context, req primary.BeginRequest) (*primary.AdvanceResponse, error) {
	assessment, err := buildAssessment(string(workflow.PhasePreflight), req.Vectors, req.Rationale)
	if err != nil {
		return nil, err
	}

	existing, err := s.transactions.Read(ctx, req.ProjectPath, req.InstanceID)
	if err != nil && !errors.Is(err, secondary.ErrNotFound) {
		return nil, fmt.Errorf("failed to read current transaction: %w", err)
	}
	if existing != nil && existing.SessionID == req.SessionID {
		// A retried Begin finds its own transaction with only this PREFLIGHT recorded
		if replay := s.replayPreflight(ctx, existing, assessment); replay != nil {
			return replay, nil
		}
		// An earlier Begin opened the transaction but never recorded its PREFLIGHT
		if existing.IsOpen() && existing.Sequence == 0 {
			return s.Advance(ctx, primary.AdvanceRequest{
				TransactionID: existing.TransactionID,
				Phase:         string(workflow.PhasePreflight),
				Vectors:       req.Vectors,
				Rationale:     req.Rationale,
			})
		}
	}

	opened, err := s.Open(ctx, req.OpenTransactionRequest)
	if err != nil {
		return nil, err
	}

	resp, err := s.Advance(ctx, primary.AdvanceRequest{
		TransactionID: opened.Transaction.ID,
		Phase:         string(workflow.PhasePreflight),
		Vectors:       req.Vectors,
		Rationale:     req.Rationale,
	})
	if err != nil {
		return nil, err
	}
	resp.Superseded = opened.Superseded
	return resp, nil
}

func (s *WorkflowServiceImpl) replayPreflight(ctx context.Context, existing *secondary.TransactionRecord, a workflow.Assessment) *primary.AdvanceResponse {
	if existing.Sequence != 1 {
		return nil
	}
	last, err := s.history.Last(ctx, existing.TransactionID)
	if err != nil {
		return nil
	}
	// A closed transaction replays only when its own PREFLIGHT closed it
	// (CLARIFY); one closed by hand or by a switch takes a fresh Open.
	if !existing.IsOpen() && (last.CloseReason == "" || last.CloseReason != existing.CloseReason) {
		return nil
	}
	prev, ok := assessmentOf(last)
	if !ok || !prev.SameAs(a) {
		return nil
	}

	ctxutil.Logger(ctx).Debug("preflight replayed", zap.String("transaction_id", existing.TransactionID))
	return &primary.AdvanceResponse{
		Transaction: toTransaction(existing),
		Assessment:  toPhaseAssessment(last),
		Replayed:    true,
	}
}

// Advance submits one phase assessment.
func (s *WorkflowServiceImpl) Advance(ctx context.Context, req primary.AdvanceRequest) (*primary.AdvanceResponse, error) {
	assessment, err := buildAssessment(req.Phase, req.Vectors, req.Rationale)
	if err != nil {
		return nil, err
	}

	rec, err := s.transactions.Get(ctx, req.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	// Resubmitting the last accepted assessment is a no-op
	last, err := s.history.Last(ctx, rec.TransactionID)
	switch {
	case err == nil:
		if prev, ok := assessmentOf(last); ok && last.Sequence == rec.Sequence && prev.SameAs(assessment) {
			ctxutil.Logger(ctx).Debug("assessment replayed",
				zap.String("transaction_id", rec.TransactionID),
				zap.String("phase", last.Phase))
			return &primary.AdvanceResponse{
				Transaction: toTransaction(rec),
				Assessment:  toPhaseAssessment(last),
				Replayed:    true,
			}, nil
		}
	case !errors.Is(err, secondary.ErrNotFound):
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	machine, err := machineOf(rec)
	if err != nil {
		return nil, err
	}

	outcome, err := workflow.Transition(machine, assessment, s.policy)
	if err != nil {
		return nil, err
	}

	if err := s.executor.Execute(ctx, outcome.Effects); err != nil {
		return nil, err
	}

	updated, err := s.transactions.Get(ctx, rec.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload transaction: %w", err)
	}
	accepted, err := s.history.Last(ctx, rec.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read accepted assessment: %w", err)
	}

	return &primary.AdvanceResponse{
		Transaction: toTransaction(updated),
		Assessment:  toPhaseAssessment(accepted),
	}, nil
}

// Close marks a transaction closed.
func (s *WorkflowServiceImpl) Close(ctx context.Context, req primary.CloseTransactionRequest) (*primary.Transaction, error) {
	_, err := s.transactions.Get(ctx, req.TransactionID)
	if err != nil && !errors.Is(err, secondary.ErrNotFound) {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	guard := workflow.CanCloseTransaction(workflow.CloseContext{
		TransactionID: req.TransactionID,
		Exists:        err == nil,
	})
	if !guard.Allowed {
		return nil, fmt.Errorf("%s: %w", guard.Reason, secondary.ErrNotFound)
	}

	reason := req.Reason
	if reason == "" {
		reason = ReasonAbandoned
	}

	effs := []effects.Effect{
		effects.PersistEffect{
			Entity:    effects.EntityTransaction,
			Operation: effects.OpClose,
			Key:       req.TransactionID,
			Data:      reason,
		},
		effects.LogEffect{
			Level:   "info",
			Message: "transaction closed",
			Fields:  map[string]any{"transaction_id": req.TransactionID, "reason": reason},
		},
	}
	if err := s.executor.Execute(ctx, effs); err != nil {
		return nil, err
	}

	return s.GetTransaction(ctx, req.TransactionID)
}

// GetTransaction retrieves a transaction by ID.
func (s *WorkflowServiceImpl) GetTransaction(ctx context.Context, transactionID string) (*primary.Transaction, error) {
	rec, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return toTransaction(rec), nil
}

// CurrentTransaction returns the latest transaction for (project, instance).
func (s *WorkflowServiceImpl) CurrentTransaction(ctx context.Context, projectPath, instanceID string) (*primary.Transaction, error) {
	rec, err := s.transactions.Read(ctx, projectPath, instanceID)
	if err != nil {
		return nil, err
	}
	return toTransaction(rec), nil
}

// ListOpen lists every open transaction.
func (s *WorkflowServiceImpl) ListOpen(ctx context.Context) ([]*primary.Transaction, error) {
	records, err := s.transactions.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	txs := make([]*primary.Transaction, len(records))
	for i, r := range records {
		txs[i] = toTransaction(r)
	}
	return txs, nil
}

// History returns the accepted assessments of a transaction in order.
func (s *WorkflowServiceImpl) History(ctx context.Context, transactionID string) ([]*primary.PhaseAssessment, error) {
	if _, err := s.transactions.Get(ctx, transactionID); err != nil {
		return nil, err
	}
	records, err := s.history.List(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	out := make([]*primary.PhaseAssessment, len(records))
	for i, r := range records {
		out[i] = toPhaseAssessment(r)
	}
	return out, nil
}

// Helper functions

func buildAssessment(phase string, vectors map[string]float64, rationale string) (workflow.Assessment, error) {
	p, err := workflow.ParsePhase(phase)
	if err != nil {
		return workflow.Assessment{}, fmt.Errorf("%w: %v", workflow.ErrInvalidAssessment, err)
	}
	v, err := workflow.VectorsFromMap(vectors)
	if err != nil {
		return workflow.Assessment{}, fmt.Errorf("%w: %v", workflow.ErrInvalidAssessment, err)
	}
	a := workflow.Assessment{Phase: p, Vectors: v, Rationale: rationale}
	if err := a.Validate(); err != nil {
		return workflow.Assessment{}, err
	}
	return a, nil
}

func assessmentOf(rec *secondary.PhaseRecord) (workflow.Assessment, bool) {
	v, err := workflow.VectorsFromMap(rec.Vectors)
	if err != nil {
		return workflow.Assessment{}, false
	}
	return workflow.Assessment{Phase: workflow.Phase(rec.Phase), Vectors: v, Rationale: rec.Rationale}, true
}

func machineOf(rec *secondary.TransactionRecord) (workflow.Machine, error) {
	m := workflow.Machine{
		TransactionID:     rec.TransactionID,
		State:             workflow.State(rec.State),
		CheckRounds:       rec.CheckRounds,
		InvestigateRounds: rec.InvestigateRounds,
		Closed:            !rec.IsOpen(),
	}
	if rec.Baseline != nil {
		baseline, err := workflow.VectorsFromMap(rec.Baseline)
		if err != nil {
			return workflow.Machine{}, fmt.Errorf("corrupt baseline for %s: %w", rec.TransactionID, err)
		}
		m.Baseline = &baseline
	}
	return m, nil
}

func conflictingOpen(req primary.OpenTransactionRequest, existing *secondary.TransactionRecord) error {
	err := &workflow.ConflictingOpenError{
		ProjectPath: req.ProjectPath,
		InstanceID:  req.InstanceID,
	}
	if existing != nil {
		err.ExistingTransactionID = existing.TransactionID
		err.ExistingPhase = existing.State
		err.OpenedAt = existing.OpenedAt
	}
	return err
}

func transactionIDOf(rec *secondary.TransactionRecord) string {
	if rec == nil {
		return ""
	}
	return rec.TransactionID
}

func toTransaction(rec *secondary.TransactionRecord) *primary.Transaction {
	if rec == nil {
		return nil
	}
	tx := &primary.Transaction{
		ID:                rec.TransactionID,
		SessionID:         rec.SessionID,
		ProjectPath:       rec.ProjectPath,
		InstanceID:        rec.InstanceID,
		PhaseReached:      rec.PhaseReached,
		State:             rec.State,
		Status:            rec.Status,
		CheckRounds:       rec.CheckRounds,
		InvestigateRounds: rec.InvestigateRounds,
		CloseReason:       rec.CloseReason,
		OpenedAt:          rec.OpenedAt,
		UpdatedAt:         rec.UpdatedAt,
		ClosedAt:          rec.ClosedAt,
	}
	if rec.IsOpen() {
		if next, ok := workflow.State(rec.State).Expects(); ok {
			tx.NextPhase = string(next)
		}
	}
	return tx
}

func toPhaseAssessment(rec *secondary.PhaseRecord) *primary.PhaseAssessment {
	return &primary.PhaseAssessment{
		Sequence:      rec.Sequence,
		Phase:         rec.Phase,
		Vectors:       rec.Vectors,
		Rationale:     rec.Rationale,
		Decision:      rec.Decision,
		NextState:     rec.NextState,
		Round:         rec.Round,
		ForcedProceed: rec.ForcedProceed,
		Delta:         rec.Delta,
		Calibration:   rec.Calibration,
		RecordedAt:    rec.RecordedAt,
	}
}
