// Package importrun persists ImportBatch bookkeeping rows: one
// row per import(kind) invocation, tracking counts and status. Not consumed
// by the matching pipeline itself; it exists so the CLI/RPC surface's
// import(kind) operation has somewhere to record what happened.
package importrun

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kestrelcrm/dedupd/internal/coreerr"
	"github.com/kestrelcrm/dedupd/internal/database"
	"github.com/kestrelcrm/dedupd/internal/logging"
	"github.com/kestrelcrm/dedupd/internal/record"
)

// Status values for import_batches.status.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Batch is one import run's bookkeeping record.
type Batch struct {
	ID           string
	Kind         record.Kind
	Status       Status
	TotalCount   int
	SuccessCount int
	ErrorCount   int
	Metadata     map[string]any
}

// Store persists ImportBatch rows.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates an import batch store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, log: logging.WithComponent("importrun-store")}
}

// Start creates a new running batch for kind and returns its id.
func (s *Store) Start(kind record.Kind) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO import_batches (id, kind, status) VALUES (?, ?, ?)
	`, id, string(kind), string(StatusRunning))
	if err != nil {
		return "", coreerr.Wrap(coreerr.Io, "start import batch", err)
	}
	return id, nil
}

// Finish records the final counts and status for a batch, along with
// free-form metadata.
func (s *Store) Finish(id string, status Status, total, success, errCount int, metadata map[string]any) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "marshal import batch metadata", err)
	}
	_, err = s.db.Exec(`
		UPDATE import_batches
		SET status = ?, total_count = ?, success_count = ?, error_count = ?, metadata = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(status), total, success, errCount, string(meta), id)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "finish import batch", err)
	}
	s.log.Info().Str("batchID", id).Str("status", string(status)).Int("total", total).Msg("import batch finished")
	return nil
}

// Get loads a single batch by id.
func (s *Store) Get(id string) (Batch, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, status, total_count, success_count, error_count, metadata
		FROM import_batches WHERE id = ?
	`, id)
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return Batch{}, coreerr.New(coreerr.NotFound, fmt.Sprintf("import batch %s not found", id))
	}
	if err != nil {
		return Batch{}, coreerr.Wrap(coreerr.Io, "get import batch", err)
	}
	return b, nil
}

// ListByKind returns the most recent batches for a kind, newest first.
func (s *Store) ListByKind(kind record.Kind, limit int) ([]Batch, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, status, total_count, success_count, error_count, metadata
		FROM import_batches WHERE kind = ? ORDER BY started_at DESC LIMIT ?
	`, string(kind), limit)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "list import batches", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Io, "scan import batch", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (Batch, error) {
	var b Batch
	var kindRaw, statusRaw string
	var metadata sql.NullString
	if err := row.Scan(&b.ID, &kindRaw, &statusRaw, &b.TotalCount, &b.SuccessCount, &b.ErrorCount, &metadata); err != nil {
		return Batch{}, err
	}
	b.Kind = record.Kind(kindRaw)
	b.Status = Status(statusRaw)
	if metadata.Valid && metadata.String != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(metadata.String), &m); err == nil {
			b.Metadata = m
		}
	}
	return b, nil
}

// RunImport drives one import run against fetcher, upserting pages into
// records as they arrive and recording bookkeeping via this store. The CRM
// client's pagination/rate-limiting/retry is entirely its own concern; this
// loop only drains next, which yields a finite, non-restartable lazy
// sequence of pages pulled inside a single logical run.
func (s *Store) RunImport(kind record.Kind, records *record.Store, next func() (recs []record.Record, done bool, err error)) (Batch, error) {
	id, err := s.Start(kind)
	if err != nil {
		return Batch{}, err
	}

	total, success, failed := 0, 0, 0
	for {
		page, done, err := next()
		if err != nil {
			_ = s.Finish(id, StatusFailed, total, success, failed, map[string]any{"error": err.Error()})
			return Batch{}, coreerr.Wrap(coreerr.External, "fetch import page", err)
		}

		total += len(page)
		if upErr := records.UpsertBatch(page); upErr != nil {
			failed += len(page)
		} else {
			success += len(page)
		}

		if done {
			break
		}
	}

	if err := s.Finish(id, StatusCompleted, total, success, failed, nil); err != nil {
		return Batch{}, err
	}
	return s.Get(id)
}
