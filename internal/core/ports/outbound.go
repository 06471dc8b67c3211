package ports

import (
	"context"
	"io"
	"time"

	"questmine/internal/core/domain"
)

// Oracle invokes the extraction language model with a single free-form
// prompt and returns its raw text response. Fence stripping and JSON
// parsing happen in the usecase layer.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// TaxonomyStore reads and bulk-upserts subject taxonomies on the
// backend (GET /subjects, GET /subtopics, POST /subtopics/bulk).
type TaxonomyStore interface {
	ListSubjects(ctx context.Context) ([]string, error)
	ListSubtopics(ctx context.Context, subject string) ([]domain.TaxonomyNode, error)
	BulkUpsertSubtopics(ctx context.Context, subject string, nodes []domain.TaxonomyNode) error
}

// ContextSink receives attribution state. Both pushes must complete
// before the document's oracle call is issued.
type ContextSink interface {
	PushScraperConfig(ctx context.Context, cfg domain.ScraperConfig) error
	PushContext(ctx context.Context, ec domain.ExtractionContext) error
}

// DocumentProvider returns raw per-document payloads from the scraping
// collaborator (GET /data), including the legacy single-object shape.
type DocumentProvider interface {
	FetchScrapedDocuments(ctx context.Context) ([]domain.DocumentPayload, error)
}

// ResultSink submits a validated extraction result together with the
// context it is attributed to (POST /ai-result).
type ResultSink interface {
	SubmitResult(ctx context.Context, result domain.ExtractionResult, ec domain.ExtractionContext) error
}

// QuestionReader queries persisted questions and available filters.
type QuestionReader interface {
	QueryQuestions(ctx context.Context, q domain.QuestionQuery) (domain.QuestionSet, error)
	QueryFilters(ctx context.Context) (domain.QuestionFilters, error)
}

// CollectionStore manages collections on the backend. AddDocument is
// idempotent; added reports whether the membership was new.
type CollectionStore interface {
	ListCollections(ctx context.Context, subject string) ([]domain.Collection, error)
	CreateCollection(ctx context.Context, name, subject string) (domain.Collection, error)
	AddDocument(ctx context.Context, doc domain.CollectionDocument) (added bool, err error)
}

// TextExtractor turns an uploaded file into cleaned plain text.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data io.ReaderAt, size int64) (string, error)
}

// UploadSpool keeps the raw uploaded files so a failed batch can be
// re-triggered without re-uploading.
type UploadSpool interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// BatchQueue carries batch-ready events from the API to the worker.
type BatchQueue interface {
	PublishBatch(ctx context.Context, batch domain.Batch) error
	SubscribeBatches(ctx context.Context, handler func(context.Context, domain.Batch) error) error
}

// PipelineObserver receives pipeline measurements. Implementations
// must be cheap and non-blocking.
type PipelineObserver interface {
	DocumentStarted()
	DocumentProcessed(duration time.Duration, err error)
	BatchFinished(err error)
	OracleCall(duration time.Duration, err error)
	ValidationOutcome(rejectionsByRule map[string]int, moved int)
}

// RunJournal audits batch and per-document pipeline state transitions.
type RunJournal interface {
	StartBatch(ctx context.Context, run domain.BatchRun) error
	UpdateBatchState(ctx context.Context, batchID string, state domain.BatchState, errMessage string) error
	StartDocument(ctx context.Context, run domain.DocumentRun) error
	UpdateDocumentState(ctx context.Context, batchID string, position int, state domain.BatchState, errMessage string) error
	RecordDocumentCounts(ctx context.Context, batchID string, position int, exam, understanding, rejected int) error
	GetBatch(ctx context.Context, batchID string) (*domain.BatchRun, []domain.DocumentRun, error)
}
