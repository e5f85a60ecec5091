// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/example/episteme/internal/ports/secondary"
)

const busyRetryMaxElapsed = 5 * time.Second

func newBusyBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = busyRetryMaxElapsed
	return bo
}

// isBusyError reports whether another connection holds the write lock.
func isBusyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// KVStore implements secondary.KeyValueStore with SQLite.
type KVStore struct {
	db *sql.DB
}

// NewKVStore creates a new SQLite key-value store.
func NewKVStore(db *sql.DB) *KVStore {
	return &KVStore{db: db}
}

var _ secondary.KeyValueStore = (*KVStore)(nil)

// withRetry retries op while the database is busy or locked.
func (s *KVStore) withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isBusyError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(newBusyBackoff(), ctx))
}

// Get retrieves the value stored under key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.withRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("key %s: %w", key, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

// Put inserts or replaces the value under key.
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO kv_entries (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			key, value,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Create inserts the value only if key is absent; the primary key constraint
// decides the winner of concurrent creators.
func (s *KVStore) Create(ctx context.Context, key string, value []byte) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO kv_entries (key, value) VALUES (?, ?)`, key, value)
		return err
	})
	if isConstraintError(err) {
		return fmt.Errorf("key %s: %w", key, secondary.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
	return nil
}

// List returns keys under the directory-like prefix in lexical order.
func (s *KVStore) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var keys []string
	err := s.withRetry(ctx, func() error {
		keys = keys[:0]
		rows, err := s.db.QueryContext(ctx,
			`SELECT key FROM kv_entries WHERE substr(key, 1, length(?)) = ? ORDER BY key`,
			prefix, prefix,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return err
			}
			keys = append(keys, k)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return keys, nil
}
