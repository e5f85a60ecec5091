package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/episteme/internal/ports/secondary"
)

// ReasonSuperseded is written to a record closed by a superseding Open when
// the caller gives no reason.
const ReasonSuperseded = "superseded"

// closure is the write-once record of a close that did not come from the
// phase history. load applies it, so a writer holding an older copy of the
// record cannot reopen the transaction.
type closure struct {
	Reason   string    `json:"reason"`
	ClosedAt time.Time `json:"closed_at"`
}

type indexEntry struct {
	Key         string `json:"key"`
	ProjectPath string `json:"project_path"`
	InstanceID  string `json:"instance_id"`
}

// TransactionStore implements secondary.TransactionStore over a key-value store.
type TransactionStore struct {
	kv  secondary.KeyValueStore
	log secondary.AssessmentLog
	now func() time.Time
}

// NewTransactionStore creates a transaction store whose phase history lives in log.
func NewTransactionStore(kv secondary.KeyValueStore, log secondary.AssessmentLog) *TransactionStore {
	return &TransactionStore{kv: kv, log: log, now: time.Now}
}

var _ secondary.TransactionStore = (*TransactionStore)(nil)

// Open creates the next generation for (project, instance). An open current
// generation blocks it unless opts.Supersede is set, in which case that
// record is closed first.
func (s *TransactionStore) Open(ctx context.Context, rec *secondary.TransactionRecord, opts secondary.OpenOptions) (*secondary.TransactionRecord, error) {
	if rec.TransactionID == "" || rec.ProjectPath == "" || rec.InstanceID == "" {
		return nil, fmt.Errorf("transaction id, project path and instance id are required")
	}

	existing, gen, err := s.current(ctx, rec.ProjectPath, rec.InstanceID)
	if err != nil {
		return nil, err
	}

	var superseded *secondary.TransactionRecord
	if existing.IsOpen() {
		if !opts.Supersede {
			return nil, &secondary.OpenConflictError{Existing: existing}
		}
		reason := opts.Reason
		if reason == "" {
			reason = ReasonSuperseded
		}
		if err := s.closeRecord(ctx, existing, reason); err != nil {
			return nil, fmt.Errorf("failed to supersede %s: %w", existing.TransactionID, err)
		}
		superseded = existing
	}

	now := s.now().UTC()
	rec.Generation = gen + 1
	rec.Status = secondary.TransactionOpen
	rec.Sequence = 0
	rec.OpenedAt = now
	rec.UpdatedAt = now
	rec.ClosedAt = nil
	rec.CloseReason = ""

	key := generationKey(rec.ProjectPath, rec.InstanceID, rec.Generation)
	if err := s.writeIndex(ctx, rec.TransactionID, indexEntry{Key: key, ProjectPath: rec.ProjectPath, InstanceID: rec.InstanceID}); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	if err := s.kv.Create(ctx, key, data); err != nil {
		if errors.Is(err, secondary.ErrExists) {
			winner, _, _ := s.current(ctx, rec.ProjectPath, rec.InstanceID)
			return nil, &secondary.OpenConflictError{Existing: winner}
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return superseded, nil
}

// Read returns the current generation for (project, instance).
func (s *TransactionStore) Read(ctx context.Context, projectPath, instanceID string) (*secondary.TransactionRecord, error) {
	rec, _, err := s.current(ctx, projectPath, instanceID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("transaction for %s (%s): %w", projectPath, instanceID, secondary.ErrNotFound)
	}
	return rec, nil
}

// Get retrieves a record by transaction id through the index.
func (s *TransactionStore) Get(ctx context.Context, transactionID string) (*secondary.TransactionRecord, error) {
	data, err := s.kv.Get(ctx, indexKey(transactionID))
	if errors.Is(err, secondary.ErrNotFound) {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var entry indexEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt index for %s: %w", transactionID, err)
	}

	rec, err := s.load(ctx, entry.Key)
	if errors.Is(err, secondary.ErrNotFound) || (err == nil && rec.TransactionID != transactionID) {
		// The index was written by an Open that lost its create race.
		return nil, fmt.Errorf("transaction %s: %w", transactionID, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Advance appends phase to the history, then applies it to a fresh copy of
// the record. The append is the commit point.
func (s *TransactionStore) Advance(ctx context.Context, transactionID string, phase *secondary.PhaseRecord) (*secondary.TransactionRecord, error) {
	rec, err := s.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !rec.IsOpen() {
		return nil, fmt.Errorf("transaction %s is %s", transactionID, rec.Status)
	}
	key := generationKey(rec.ProjectPath, rec.InstanceID, rec.Generation)

	phase.TransactionID = transactionID
	phase.Sequence = rec.Sequence + 1
	if phase.RecordedAt.IsZero() {
		phase.RecordedAt = s.now().UTC()
	}
	if err := s.log.Append(ctx, phase); err != nil {
		if errors.Is(err, secondary.ErrExists) {
			return nil, fmt.Errorf("transaction %s advanced concurrently: %w", transactionID, secondary.ErrExists)
		}
		return nil, fmt.Errorf("failed to append phase: %w", err)
	}

	// Reload: a close may have landed since the read above. load rolls the
	// new entry forward and keeps any close it finds.
	fresh, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.write(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Close marks the record closed. Closing a closed record returns it unchanged.
func (s *TransactionStore) Close(ctx context.Context, transactionID, reason string) (*secondary.TransactionRecord, error) {
	rec, err := s.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !rec.IsOpen() {
		return rec, nil
	}
	if err := s.closeRecord(ctx, rec, reason); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListOpen returns the open current generation of every (project, instance).
func (s *TransactionStore) ListOpen(ctx context.Context) ([]*secondary.TransactionRecord, error) {
	keys, err := s.kv.List(ctx, transactionPrefix)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]string)
	for _, k := range keys {
		if _, ok := sequenceOf(k); !ok {
			continue
		}
		dir := k[:strings.LastIndex(k, "/")+1]
		if k > latest[dir] {
			latest[dir] = k
		}
	}

	var open []*secondary.TransactionRecord
	for _, k := range latest {
		rec, err := s.load(ctx, k)
		if err != nil {
			return nil, err
		}
		if rec.IsOpen() {
			open = append(open, rec)
		}
	}

	sort.Slice(open, func(i, j int) bool {
		if open[i].ProjectPath != open[j].ProjectPath {
			return open[i].ProjectPath < open[j].ProjectPath
		}
		return open[i].InstanceID < open[j].InstanceID
	})
	return open, nil
}

// current returns the highest generation for the pair (nil if none) and its number.
func (s *TransactionStore) current(ctx context.Context, projectPath, instanceID string) (*secondary.TransactionRecord, int, error) {
	keys, err := s.kv.List(ctx, instanceDir(projectPath, instanceID))
	if err != nil {
		return nil, 0, err
	}

	for i := len(keys) - 1; i >= 0; i-- {
		gen, ok := sequenceOf(keys[i])
		if !ok {
			continue
		}
		rec, err := s.load(ctx, keys[i])
		if err != nil {
			return nil, 0, err
		}
		return rec, gen, nil
	}
	return nil, 0, nil
}

// load reads a record and rolls it forward over any history entries
// appended after it was last written.
func (s *TransactionStore) load(ctx context.Context, key string) (*secondary.TransactionRecord, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var rec secondary.TransactionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt transaction record %s: %w", key, err)
	}

	phases, err := s.log.List(ctx, rec.TransactionID)
	if err != nil {
		return nil, err
	}
	for _, ph := range phases {
		if ph.Sequence > rec.Sequence {
			apply(&rec, ph)
		}
	}

	if rec.IsOpen() {
		c, err := s.readClosure(ctx, rec.TransactionID)
		if err != nil {
			return nil, err
		}
		if c != nil {
			closedAt := c.ClosedAt
			rec.Status = secondary.TransactionClosed
			rec.CloseReason = c.Reason
			rec.ClosedAt = &closedAt
		}
	}
	return &rec, nil
}

// closeRecord writes the closure before the record. The first closure for
// a transaction wins; later closes adopt its reason.
func (s *TransactionStore) closeRecord(ctx context.Context, rec *secondary.TransactionRecord, reason string) error {
	c := closure{Reason: reason, ClosedAt: s.now().UTC()}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal closure: %w", err)
	}
	if err := s.kv.Create(ctx, closureKey(rec.TransactionID), data); err != nil {
		if !errors.Is(err, secondary.ErrExists) {
			return fmt.Errorf("failed to close transaction %s: %w", rec.TransactionID, err)
		}
		existing, err := s.readClosure(ctx, rec.TransactionID)
		if err != nil {
			return err
		}
		if existing != nil {
			c = *existing
		}
	}

	rec.Status = secondary.TransactionClosed
	rec.CloseReason = c.Reason
	rec.ClosedAt = &c.ClosedAt
	return s.write(ctx, rec)
}

func (s *TransactionStore) readClosure(ctx context.Context, transactionID string) (*closure, error) {
	data, err := s.kv.Get(ctx, closureKey(transactionID))
	if errors.Is(err, secondary.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read closure for %s: %w", transactionID, err)
	}
	var c closure
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("corrupt closure for %s: %w", transactionID, err)
	}
	return &c, nil
}

func (s *TransactionStore) write(ctx context.Context, rec *secondary.TransactionRecord) error {
	rec.UpdatedAt = s.now().UTC()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}
	if err := s.kv.Put(ctx, generationKey(rec.ProjectPath, rec.InstanceID, rec.Generation), data); err != nil {
		return fmt.Errorf("failed to write transaction %s: %w", rec.TransactionID, err)
	}
	return nil
}

func (s *TransactionStore) writeIndex(ctx context.Context, transactionID string, entry indexEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := s.kv.Put(ctx, indexKey(transactionID), data); err != nil {
		return fmt.Errorf("failed to write index for %s: %w", transactionID, err)
	}
	return nil
}

// apply moves a record to the state recorded by one history entry.
func apply(rec *secondary.TransactionRecord, ph *secondary.PhaseRecord) {
	rec.Sequence = ph.Sequence
	rec.PhaseReached = ph.Phase
	rec.State = ph.NextState
	rec.CheckRounds = ph.CheckRounds
	rec.InvestigateRounds = ph.InvestigateRounds
	rec.UpdatedAt = ph.RecordedAt
	if ph.Phase == "PREFLIGHT" {
		rec.Baseline = make(map[string]float64, len(ph.Vectors))
		for k, v := range ph.Vectors {
			rec.Baseline[k] = v
		}
	}
	if ph.CloseReason != "" && rec.Status != secondary.TransactionClosed {
		closedAt := ph.RecordedAt
		rec.Status = secondary.TransactionClosed
		rec.CloseReason = ph.CloseReason
		rec.ClosedAt = &closedAt
	}
}
