package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/example/episteme/internal/identity"
	"github.com/example/episteme/internal/ports/secondary"
)

// StalenessPolicy configures PointerStore.IsStale.
type StalenessPolicy struct {
	MaxAge        time.Duration
	CheckLiveness bool
}

// PointerStore implements secondary.PointerStore over a key-value store.
type PointerStore struct {
	kv        secondary.KeyValueStore
	policy    StalenessPolicy
	processes secondary.ProcessInspector
	panes     secondary.PaneInspector
	now       func() time.Time
}

// NewPointerStore creates a pointer store. processes and panes may be nil,
// which disables the corresponding liveness check.
func NewPointerStore(kv secondary.KeyValueStore, policy StalenessPolicy, processes secondary.ProcessInspector, panes secondary.PaneInspector) *PointerStore {
	return &PointerStore{
		kv:        kv,
		policy:    policy,
		processes: processes,
		panes:     panes,
		now:       time.Now,
	}
}

var _ secondary.PointerStore = (*PointerStore)(nil)

// Get retrieves the pointer for an identity key.
func (s *PointerStore) Get(ctx context.Context, key string) (*secondary.PointerRecord, error) {
	data, err := s.kv.Get(ctx, pointerKey(key))
	if err != nil {
		return nil, err
	}

	var rec secondary.PointerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt pointer for %s: %w", key, err)
	}
	if rec.Key != key {
		return nil, fmt.Errorf("pointer %s (stored for %s): %w", key, rec.Key, secondary.ErrNotFound)
	}
	return &rec, nil
}

// Put overwrites the pointer for rec.Key.
func (s *PointerStore) Put(ctx context.Context, rec *secondary.PointerRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("pointer key is required")
	}
	if rec.ProjectPath == "" {
		return fmt.Errorf("pointer project path is required")
	}
	rec.UpdatedAt = s.now().UTC()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pointer: %w", err)
	}
	if err := s.kv.Put(ctx, pointerKey(rec.Key), data); err != nil {
		return fmt.Errorf("failed to write pointer %s: %w", rec.Key, err)
	}
	return nil
}

// List returns every pointer, ordered by storage key.
func (s *PointerStore) List(ctx context.Context) ([]*secondary.PointerRecord, error) {
	keys, err := s.kv.List(ctx, pointerPrefix)
	if err != nil {
		return nil, err
	}

	records := make([]*secondary.PointerRecord, 0, len(keys))
	for _, k := range keys {
		data, err := s.kv.Get(ctx, k)
		if errors.Is(err, secondary.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec secondary.PointerRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// IsStale reports the first reason found: age, originating process, tmux pane.
func (s *PointerStore) IsStale(ctx context.Context, rec *secondary.PointerRecord, now time.Time) secondary.Staleness {
	if s.policy.MaxAge > 0 && now.Sub(rec.UpdatedAt) > s.policy.MaxAge {
		return secondary.Staleness{
			Stale: true,
			Reason: fmt.Sprintf("updated %s (threshold %s)",
				humanize.RelTime(rec.UpdatedAt, now, "ago", "from now"), s.policy.MaxAge),
		}
	}

	if !s.policy.CheckLiveness {
		return secondary.Staleness{}
	}

	if rec.OwnerPID > 0 && s.processes != nil && !s.processes.ProcessAlive(rec.OwnerPID) {
		return secondary.Staleness{
			Stale:  true,
			Reason: fmt.Sprintf("originating process %d no longer exists", rec.OwnerPID),
		}
	}

	if k, ok := identity.ParseKey(rec.Key); ok && k.Kind == identity.KindTmux && s.panes != nil {
		if alive, known := s.panes.PaneAlive(ctx, k.Value); known && !alive {
			return secondary.Staleness{
				Stale:  true,
				Reason: fmt.Sprintf("tmux pane %s no longer exists", strings.TrimSpace(k.Value)),
			}
		}
	}

	return secondary.Staleness{}
}
