// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a key or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned by create-or-fail operations that lost.
	ErrExists = errors.New("already exists")
)

// KeyValueStore is the storage collaborator every coordination record is
// kept in. Keys are slash-separated paths; values are opaque bytes.
type KeyValueStore interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put atomically replaces the value under key. Readers see either the
	// old value or the new one, never a partial write.
	Put(ctx context.Context, key string, value []byte) error

	// Create stores value only if key does not exist yet, else ErrExists.
	// Exactly one of several concurrent creators of the same key succeeds.
	Create(ctx context.Context, key string, value []byte) error

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// PointerRecord maps one identity key to the project and session it is bound to.
type PointerRecord struct {
	Key         string    `json:"key"`
	ProjectPath string    `json:"project_path"`
	SessionID   string    `json:"session_id"`
	InstanceID  string    `json:"instance_id,omitempty"`
	OwnerPID    int       `json:"originating_process_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PointerStore defines the secondary port for identity pointers.
// Last writer wins; records are never deleted.
type PointerStore interface {
	// Get retrieves the pointer for an identity key, or ErrNotFound.
	Get(ctx context.Context, key string) (*PointerRecord, error)

	// Put overwrites the pointer for rec.Key, stamping UpdatedAt.
	Put(ctx context.Context, rec *PointerRecord) error

	// List returns every pointer, ordered by key.
	List(ctx context.Context) ([]*PointerRecord, error)

	// IsStale evaluates the age threshold and, when enabled, the liveness of
	// the originating process or pane. Stale records are still valid results.
	IsStale(ctx context.Context, rec *PointerRecord, now time.Time) Staleness
}

// Staleness is the advisory verdict on a pointer record.
type Staleness struct {
	Stale  bool
	Reason string
}

// Transaction status values.
const (
	TransactionOpen   = "open"
	TransactionClosed = "closed"
)

// TransactionRecord is one unit of work for a (project, instance) pair.
type TransactionRecord struct {
	TransactionID     string             `json:"transaction_id"`
	SessionID         string             `json:"session_id"`
	ProjectPath       string             `json:"project_path"`
	InstanceID        string             `json:"instance_id"`
	PhaseReached      string             `json:"phase_reached,omitempty"`
	State             string             `json:"state"`
	CheckRounds       int                `json:"check_rounds"`
	InvestigateRounds int                `json:"investigate_rounds"`
	Baseline          map[string]float64 `json:"baseline,omitempty"` // PREFLIGHT vectors
	Sequence          int                `json:"sequence"`           // last accepted phase record
	Status            string             `json:"status"`
	CloseReason       string             `json:"close_reason,omitempty"`
	Generation        int                `json:"generation"`
	OpenedAt          time.Time          `json:"opened_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	ClosedAt          *time.Time         `json:"closed_at,omitempty"`
}

// IsOpen reports whether the record is the open unit of work for its key.
func (r *TransactionRecord) IsOpen() bool {
	return r != nil && r.Status == TransactionOpen
}

// OpenOptions controls TransactionStore.Open.
type OpenOptions struct {
	// Supersede closes an existing open record instead of failing.
	Supersede bool
	// Reason is written to the superseded record.
	Reason string
}

// OpenConflictError is returned by Open when an open record already exists
// for the key and supersede was not requested, or a concurrent Open won.
type OpenConflictError struct {
	Existing *TransactionRecord
}

func (e *OpenConflictError) Error() string {
	if e.Existing == nil {
		return "transaction already open"
	}
	return fmt.Sprintf("transaction %s already open for %s (%s)",
		e.Existing.TransactionID, e.Existing.ProjectPath, e.Existing.InstanceID)
}

func (e *OpenConflictError) Is(target error) bool {
	return target == ErrExists
}

// TransactionStore defines the secondary port for transaction records.
type TransactionStore interface {
	// Open creates rec as the open record for (rec.ProjectPath, rec.InstanceID).
	// Returns the record it superseded, if any.
	Open(ctx context.Context, rec *TransactionRecord, opts OpenOptions) (superseded *TransactionRecord, err error)

	// Read returns the current record for a (project, instance) pair, open or
	// closed, or ErrNotFound.
	Read(ctx context.Context, projectPath, instanceID string) (*TransactionRecord, error)

	// Get retrieves a record by transaction id, or ErrNotFound.
	Get(ctx context.Context, transactionID string) (*TransactionRecord, error)

	// Advance appends phase as the next record of the transaction's history
	// and applies it to the transaction record. The history entry is the
	// commit point: ErrExists means another caller advanced first.
	Advance(ctx context.Context, transactionID string, phase *PhaseRecord) (*TransactionRecord, error)

	// Close marks a record closed with a reason. Closing a closed record is a no-op.
	Close(ctx context.Context, transactionID, reason string) (*TransactionRecord, error)

	// ListOpen returns every open record, ordered by project then instance.
	ListOpen(ctx context.Context) ([]*TransactionRecord, error)
}

// PhaseRecord is one accepted phase of a transaction. Records are append-only.
type PhaseRecord struct {
	TransactionID string             `json:"transaction_id"`
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
	CloseReason   string             `json:"close_reason,omitempty"`
	RecordedAt    time.Time          `json:"recorded_at"`

	// Machine snapshot after this phase, so a transaction record can be
	// rolled forward from its history.
	CheckRounds       int `json:"check_rounds"`
	InvestigateRounds int `json:"investigate_rounds"`
}

// AssessmentLog defines the secondary port for the per-transaction phase history.
type AssessmentLog interface {
	// Append stores rec at rec.Sequence. It fails with ErrExists if that
	// sequence is already taken.
	Append(ctx context.Context, rec *PhaseRecord) error

	// List returns the records of a transaction in sequence order.
	List(ctx context.Context, transactionID string) ([]*PhaseRecord, error)

	// Last returns the latest record of a transaction, or ErrNotFound.
	Last(ctx context.Context, transactionID string) (*PhaseRecord, error)
}
