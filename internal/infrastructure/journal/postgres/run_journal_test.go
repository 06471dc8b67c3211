package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"questmine/internal/core/domain"
)

func TestRunJournalStartBatchInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	journal := NewRunJournal(db)
	mock.ExpectExec("INSERT INTO batch_runs").
		WithArgs("b-1", int64(3), "H2 Economics", domain.CanonicalExamCategory, "scraped", 2, string(domain.StateIdle), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = journal.StartBatch(context.Background(), domain.BatchRun{
		ID:             "b-1",
		Generation:     3,
		Subject:        "H2 Economics",
		Category:       domain.CanonicalExamCategory,
		SourceType:     domain.SourceScraped,
		DocumentsTotal: 2,
	})
	if err != nil {
		t.Fatalf("StartBatch() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunJournalUpdateBatchStateMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	journal := NewRunJournal(db)
	mock.ExpectExec("UPDATE batch_runs").
		WithArgs("missing", string(domain.StateFailed), "boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = journal.UpdateBatchState(context.Background(), "missing", domain.StateFailed, "boom")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("error kind = %v, want not found", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunJournalRecordDocumentCounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	journal := NewRunJournal(db)
	mock.ExpectExec("UPDATE document_runs").
		WithArgs("b-1", 0, 5, 2, 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := journal.RecordDocumentCounts(context.Background(), "b-1", 0, 5, 2, 1); err != nil {
		t.Fatalf("RecordDocumentCounts() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunJournalGetBatchJoinsDocuments(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	journal := NewRunJournal(db)
	now := time.Now()

	batchRows := sqlmock.NewRows([]string{"id", "generation", "subject", "category", "source_type", "documents_total", "state", "error_message", "created_at", "updated_at"}).
		AddRow("b-1", int64(1), "H2 Economics", domain.CanonicalExamCategory, "scraped", 1, string(domain.StateDone), "", now, now)
	mock.ExpectQuery("FROM batch_runs").
		WithArgs("b-1").
		WillReturnRows(batchRows)

	docRows := sqlmock.NewRows([]string{"batch_id", "position", "document_name", "state", "error_message", "exam_accepted", "understanding_accepted", "rejected", "created_at", "updated_at"}).
		AddRow("b-1", 0, "paper.pdf", string(domain.StateDone), "", 4, 1, 0, now, now)
	mock.ExpectQuery("FROM document_runs").
		WithArgs("b-1").
		WillReturnRows(docRows)

	run, docs, err := journal.GetBatch(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if run.State != domain.StateDone {
		t.Fatalf("state = %s, want done", run.State)
	}
	if len(docs) != 1 || docs[0].ExamAccepted != 4 {
		t.Fatalf("docs = %+v, want one done document with 4 exam questions", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
