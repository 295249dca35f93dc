// Package audit persists the outcome of every bulk action batch.
// Destructive-action failures must stay attributable long after the fact,
// so the per-item report is written through to SQLite rather than held in
// memory.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Batch summarizes one ActionExecutor run.
type Batch struct {
	ID          string     `json:"id"`
	Action      string     `json:"action"`
	ScopePath   string     `json:"scope_path,omitempty"`
	Total       int        `json:"total"`
	Succeeded   int        `json:"succeeded"`
	NotFound    int        `json:"not_found"`
	Protected   int        `json:"protected"`
	Failed      int        `json:"failed"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Entry records the outcome for a single item within a batch, in input
// order.
type Entry struct {
	ID         string    `json:"id"`
	BatchID    string    `json:"batch_id"`
	Position   int       `json:"position"`
	Name       string    `json:"name"`
	UniquePath string    `json:"unique_path,omitempty"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store provides persistence for action batches.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// NewBatchID returns a fresh batch identifier.
func NewBatchID() string { return uuid.New().String() }

// RecordBatch writes a batch and its entries in one transaction.
func (s *Store) RecordBatch(ctx context.Context, batch *Batch, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning audit transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var completedAt *string
	if batch.CompletedAt != nil {
		v := batch.CompletedAt.Format(time.RFC3339)
		completedAt = &v
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO action_batches (id, action, scope_path, total_items,
			succeeded_items, not_found_items, protected_items, failed_items,
			started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, batch.ID, batch.Action, batch.ScopePath, batch.Total,
		batch.Succeeded, batch.NotFound, batch.Protected, batch.Failed,
		batch.StartedAt.Format(time.RFC3339), completedAt)
	if err != nil {
		return fmt.Errorf("inserting action batch: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		e.BatchID = batch.ID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO action_entries (id, batch_id, position, name,
				unique_path, outcome, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.BatchID, e.Position, e.Name, e.UniquePath, e.Outcome,
			e.Reason, e.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("inserting action entry %q: %w", e.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing audit transaction: %w", err)
	}
	return nil
}

// ListBatches returns recent batches ordered by start time descending.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, scope_path, total_items, succeeded_items,
		       not_found_items, protected_items, failed_items,
		       started_at, completed_at
		FROM action_batches ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing action batches: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var batches []Batch
	for rows.Next() {
		var b Batch
		var startedAt string
		var completedAt *string
		if err := rows.Scan(&b.ID, &b.Action, &b.ScopePath, &b.Total,
			&b.Succeeded, &b.NotFound, &b.Protected, &b.Failed,
			&startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scanning action batch: %w", err)
		}
		if b.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at for batch %s: %w", b.ID, err)
		}
		if completedAt != nil {
			t, err := time.Parse(time.RFC3339, *completedAt)
			if err != nil {
				return nil, fmt.Errorf("parsing completed_at for batch %s: %w", b.ID, err)
			}
			b.CompletedAt = &t
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListEntries returns a batch's entries in input order.
func (s *Store) ListEntries(ctx context.Context, batchID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, position, name, unique_path, outcome, reason, created_at
		FROM action_entries WHERE batch_id = ? ORDER BY position
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("listing action entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.BatchID, &e.Position, &e.Name,
			&e.UniquePath, &e.Outcome, &e.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning action entry: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
