package workflow

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStructuralPhaseViolation is matched by every StructuralPhaseViolationError.
	ErrStructuralPhaseViolation = errors.New("structural phase violation")
	// ErrConflictingOpen is matched by every ConflictingOpenError.
	ErrConflictingOpen = errors.New("conflicting open transaction")
	// ErrInvalidAssessment wraps malformed assessment input.
	ErrInvalidAssessment = errors.New("invalid assessment")
)

// StructuralPhaseViolationError is returned when a phase is submitted that the
// state machine does not allow from its current state.
type StructuralPhaseViolationError struct {
	TransactionID string
	State         State
	Phase         Phase
	Reason        string
}

func (e *StructuralPhaseViolationError) Error() string {
	msg := fmt.Sprintf("structural phase violation: %s not allowed in state %s", e.Phase, e.State)
	if e.TransactionID != "" {
		msg += fmt.Sprintf(" (transaction %s)", e.TransactionID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *StructuralPhaseViolationError) Is(target error) bool {
	return target == ErrStructuralPhaseViolation
}

// ConflictingOpenError is returned when an open transaction already exists for
// the (project, instance) pair and the caller did not ask to supersede it.
type ConflictingOpenError struct {
	ProjectPath           string
	InstanceID            string
	ExistingTransactionID string
	ExistingPhase         string
	OpenedAt              time.Time
}

func (e *ConflictingOpenError) Error() string {
	return fmt.Sprintf("conflicting open transaction %s for project %s instance %s (phase %s, opened %s); close it or open with supersede",
		e.ExistingTransactionID, e.ProjectPath, e.InstanceID, e.ExistingPhase, e.OpenedAt.Format(time.RFC3339))
}

func (e *ConflictingOpenError) Is(target error) bool {
	return target == ErrConflictingOpen
}
