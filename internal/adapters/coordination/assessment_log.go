package coordination

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/episteme/internal/ports/secondary"
)

// AssessmentLog implements secondary.AssessmentLog over a key-value store.
// Each record is created exclusively at its sequence number, so the store
// decides ordering between concurrent writers.
type AssessmentLog struct {
	kv secondary.KeyValueStore
}

// NewAssessmentLog creates an assessment log.
func NewAssessmentLog(kv secondary.KeyValueStore) *AssessmentLog {
	return &AssessmentLog{kv: kv}
}

var _ secondary.AssessmentLog = (*AssessmentLog)(nil)

// Append stores rec at rec.Sequence.
func (l *AssessmentLog) Append(ctx context.Context, rec *secondary.PhaseRecord) error {
	if rec.TransactionID == "" || rec.Sequence < 1 {
		return fmt.Errorf("phase record needs a transaction id and a positive sequence")
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal phase record: %w", err)
	}
	return l.kv.Create(ctx, phaseKey(rec.TransactionID, rec.Sequence), data)
}

// List returns the records of a transaction in sequence order.
func (l *AssessmentLog) List(ctx context.Context, transactionID string) ([]*secondary.PhaseRecord, error) {
	keys, err := l.kv.List(ctx, phaseDir(transactionID))
	if err != nil {
		return nil, err
	}

	records := make([]*secondary.PhaseRecord, 0, len(keys))
	for _, k := range keys {
		rec, err := l.load(ctx, k)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Last returns the latest record of a transaction.
func (l *AssessmentLog) Last(ctx context.Context, transactionID string) (*secondary.PhaseRecord, error) {
	keys, err := l.kv.List(ctx, phaseDir(transactionID))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("history of %s: %w", transactionID, secondary.ErrNotFound)
	}
	return l.load(ctx, keys[len(keys)-1])
}

func (l *AssessmentLog) load(ctx context.Context, key string) (*secondary.PhaseRecord, error) {
	data, err := l.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var rec secondary.PhaseRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt phase record %s: %w", key, err)
	}
	return &rec, nil
}
