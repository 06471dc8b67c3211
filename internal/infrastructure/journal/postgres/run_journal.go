// Package postgres journals batch and document pipeline state so a
// run can be audited after the fact. The journal is advisory: the
// pipeline keeps going when a write fails.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"questmine/internal/core/domain"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

type RunJournal struct {
	db *sql.DB
}

func NewRunJournal(db *sql.DB) *RunJournal {
	return &RunJournal{db: db}
}

func (r *RunJournal) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS batch_runs (
	id TEXT PRIMARY KEY,
	generation BIGINT NOT NULL,
	subject TEXT NOT NULL,
	category TEXT NOT NULL,
	source_type TEXT NOT NULL,
	documents_total INTEGER NOT NULL,
	state TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS document_runs (
	batch_id TEXT NOT NULL REFERENCES batch_runs(id),
	position INTEGER NOT NULL,
	document_name TEXT NOT NULL,
	state TEXT NOT NULL,
	error_message TEXT,
	exam_accepted INTEGER NOT NULL DEFAULT 0,
	understanding_accepted INTEGER NOT NULL DEFAULT 0,
	rejected INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (batch_id, position)
);

CREATE INDEX IF NOT EXISTS idx_batch_runs_created_at ON batch_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_batch_runs_state ON batch_runs(state);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RunJournal) StartBatch(ctx context.Context, run domain.BatchRun) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.State == "" {
		run.State = domain.StateIdle
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO batch_runs (id, generation, subject, category, source_type, documents_total, state, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
`, run.ID, int64(run.Generation), run.Subject, run.Category, string(run.SourceType), run.DocumentsTotal, string(run.State), nullableString(run.Error), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("start batch run: %w", err)
	}
	return nil
}

func (r *RunJournal) UpdateBatchState(ctx context.Context, batchID string, state domain.BatchState, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE batch_runs
SET state = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, batchID, string(state), nullableString(errMessage), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update batch state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch state rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update batch state", fmt.Errorf("batch run not found: id=%s", batchID))
	}
	return nil
}

func (r *RunJournal) StartDocument(ctx context.Context, run domain.DocumentRun) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.State == "" {
		run.State = domain.StateSyncingContext
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO document_runs (batch_id, position, document_name, state, error_message, exam_accepted, understanding_accepted, rejected, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
ON CONFLICT (batch_id, position) DO UPDATE
SET state = EXCLUDED.state, error_message = EXCLUDED.error_message, updated_at = EXCLUDED.updated_at
`, run.BatchID, run.Position, run.DocumentName, string(run.State), nullableString(run.Error), run.ExamAccepted, run.UnderstandingAccepted, run.Rejected, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("start document run: %w", err)
	}
	return nil
}

func (r *RunJournal) UpdateDocumentState(ctx context.Context, batchID string, position int, state domain.BatchState, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE document_runs
SET state = $3, error_message = $4, updated_at = $5
WHERE batch_id = $1 AND position = $2
`, batchID, position, string(state), nullableString(errMessage), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document state rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update document state", fmt.Errorf("document run not found: batch=%s position=%d", batchID, position))
	}
	return nil
}

func (r *RunJournal) RecordDocumentCounts(ctx context.Context, batchID string, position int, exam, understanding, rejected int) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE document_runs
SET exam_accepted = $3, understanding_accepted = $4, rejected = $5, updated_at = $6
WHERE batch_id = $1 AND position = $2
`, batchID, position, exam, understanding, rejected, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record document counts: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record document counts rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "record document counts", fmt.Errorf("document run not found: batch=%s position=%d", batchID, position))
	}
	return nil
}

func (r *RunJournal) GetBatch(ctx context.Context, batchID string) (*domain.BatchRun, []domain.DocumentRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, generation, subject, category, source_type, documents_total, state, COALESCE(error_message, ''), created_at, updated_at
FROM batch_runs
WHERE id = $1
`, batchID)

	var run domain.BatchRun
	var generation int64
	var sourceType, state string
	if err := row.Scan(
		&run.ID,
		&generation,
		&run.Subject,
		&run.Category,
		&sourceType,
		&run.DocumentsTotal,
		&state,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, domain.WrapError(domain.ErrNotFound, "get batch run", fmt.Errorf("batch run not found: id=%s", batchID))
		}
		return nil, nil, fmt.Errorf("get batch run: %w", err)
	}
	run.Generation = uint64(generation)
	run.SourceType = domain.SourceType(sourceType)
	run.State = domain.BatchState(state)

	rows, err := r.db.QueryContext(ctx, `
SELECT batch_id, position, document_name, state, COALESCE(error_message, ''), exam_accepted, understanding_accepted, rejected, created_at, updated_at
FROM document_runs
WHERE batch_id = $1
ORDER BY position ASC
`, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("list document runs: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.DocumentRun, 0)
	for rows.Next() {
		doc, err := scanDocumentRun(rows)
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate document runs: %w", err)
	}
	return &run, docs, nil
}

type documentRunScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocumentRun(row documentRunScanner) (domain.DocumentRun, error) {
	var doc domain.DocumentRun
	var state string
	err := row.Scan(
		&doc.BatchID,
		&doc.Position,
		&doc.DocumentName,
		&state,
		&doc.Error,
		&doc.ExamAccepted,
		&doc.UnderstandingAccepted,
		&doc.Rejected,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return domain.DocumentRun{}, fmt.Errorf("scan document run: %w", err)
	}
	doc.State = domain.BatchState(state)
	return doc, nil
}

func nullableString(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
