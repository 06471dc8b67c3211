package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"questmine/internal/core/domain"
	"questmine/internal/core/ports"
)

// ErrBatchSuperseded aborts a run whose generation is no longer
// current. A newer batch has taken over attribution; stale results are
// discarded instead of posted.
var ErrBatchSuperseded = errors.New("batch superseded by a newer run")

const genericFailureMessage = "Extraction failed"

// StatusFunc receives the running status surfaced to the caller.
type StatusFunc func(message string)

// ExtractionOrchestrator drives the per-batch state machine. Documents
// are processed strictly one at a time in array order: the context is
// process-wide attribution state shared with the backend, so document
// i+1 must not begin until document i's persist step completed.
type ExtractionOrchestrator struct {
	contexts *ContextSyncUseCase
	taxonomy *TaxonomyUseCase
	oracle   ports.Oracle
	results  ports.ResultSink
	journal  ports.RunJournal
	observer ports.PipelineObserver
	logger   *slog.Logger
	status   StatusFunc

	defaultSubject string

	// generation guards against late results from an abandoned run:
	// every Run bumps it, and each awaited step re-checks it.
	generation atomic.Uint64
}

func NewExtractionOrchestrator(
	contexts *ContextSyncUseCase,
	taxonomy *TaxonomyUseCase,
	oracle ports.Oracle,
	results ports.ResultSink,
	journal ports.RunJournal,
	defaultSubject string,
	logger *slog.Logger,
	status StatusFunc,
) *ExtractionOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = func(string) {}
	}
	return &ExtractionOrchestrator{
		contexts:       contexts,
		taxonomy:       taxonomy,
		oracle:         oracle,
		results:        results,
		journal:        journal,
		logger:         logger,
		status:         status,
		defaultSubject: defaultSubject,
	}
}

// SetObserver attaches a measurement sink. A nil observer is a no-op;
// call before Run, not concurrently with it.
func (o *ExtractionOrchestrator) SetObserver(obs ports.PipelineObserver) {
	o.observer = obs
}

// Run processes the batch sequentially. Any per-document failure
// aborts the whole batch immediately; there is no skip-and-continue.
func (o *ExtractionOrchestrator) Run(ctx context.Context, batch domain.Batch) error {
	gen := o.generation.Add(1)
	batch.Generation = gen
	total := len(batch.Documents)

	o.journalBatchStart(ctx, batch, total)
	if total == 0 {
		o.journalBatchState(ctx, batch.ID, domain.StateDone, "")
		o.status("No documents to process")
		o.observeBatch(nil)
		return nil
	}

	for i, doc := range batch.Documents {
		o.status(fmt.Sprintf("Processing document %d of %d", i+1, total))

		if o.observer != nil {
			o.observer.DocumentStarted()
		}
		started := time.Now()
		err := o.processDocument(ctx, batch, i, doc)
		o.observeDocument(time.Since(started), err)
		if err != nil {
			message := strings.TrimSpace(err.Error())
			if message == "" {
				message = genericFailureMessage
			}
			o.journalDocumentState(ctx, batch.ID, i, domain.StateFailed, message)
			o.journalBatchState(ctx, batch.ID, domain.StateFailed, message)
			o.status(message)
			o.observeBatch(err)
			return err
		}
	}

	o.journalBatchState(ctx, batch.ID, domain.StateDone, "")
	o.status(fmt.Sprintf("Extraction complete: %d documents processed", total))
	o.observeBatch(nil)
	return nil
}

func (o *ExtractionOrchestrator) processDocument(ctx context.Context, batch domain.Batch, position int, doc domain.DocumentPayload) error {
	ec := o.resolveContext(batch, doc.Context)
	ctx = domain.WithClientSession(ctx, ec.ClientSessionID)

	o.journalDocumentStart(ctx, batch.ID, position, ec.DocumentName)

	if err := o.contexts.PushContext(ctx, ec); err != nil {
		return err
	}
	if err := o.checkpoint(batch); err != nil {
		return err
	}

	o.journalDocumentState(ctx, batch.ID, position, domain.StateFetchingTaxonomy, "")
	nodes, err := o.taxonomy.Nodes(ctx, ec.Subject)
	if err != nil {
		return err
	}
	if err := o.checkpoint(batch); err != nil {
		return err
	}

	o.journalDocumentState(ctx, batch.ID, position, domain.StateAwaitingModel, "")
	oracleStart := time.Now()
	raw, err := o.oracle.Complete(ctx, BuildExtractionPrompt(nodes, doc.Text))
	o.observeOracle(time.Since(oracleStart), err)
	if err != nil {
		return err
	}
	if err := o.checkpoint(batch); err != nil {
		return err
	}

	o.journalDocumentState(ctx, batch.ID, position, domain.StateValidating, "")
	parsed, err := ParseExtractionResult(raw)
	if err != nil {
		return err
	}

	report := NewRuleEngine(nodes).Validate(parsed)
	o.observeValidation(report)
	for _, rej := range report.Rejections {
		o.logger.Warn("item rejected",
			"batch_id", batch.ID,
			"document", ec.DocumentName,
			"rule", rej.Rule,
			"chapter", rej.Item.Chapter,
		)
	}

	o.journalDocumentState(ctx, batch.ID, position, domain.StatePersisting, "")
	if err := o.results.SubmitResult(ctx, report.Result, ec); err != nil {
		return err
	}

	o.journalDocumentCounts(ctx, batch.ID, position, report)
	o.journalDocumentState(ctx, batch.ID, position, domain.StateDone, "")
	return nil
}

// resolveContext fills document-level blanks from the batch: effective
// subject is the explicit context subject, else the batch's selected
// subject, else the configured default.
func (o *ExtractionOrchestrator) resolveContext(batch domain.Batch, ec domain.ExtractionContext) domain.ExtractionContext {
	if strings.TrimSpace(ec.Subject) == "" {
		ec.Subject = batch.Subject
	}
	if strings.TrimSpace(ec.Subject) == "" {
		ec.Subject = o.defaultSubject
	}
	if strings.TrimSpace(ec.Category) == "" {
		ec.Category = batch.Category
	}
	if ec.Year == 0 {
		ec.Year = batch.Year
	}
	if ec.SourceType == "" {
		ec.SourceType = batch.SourceType
	}
	return ec
}

func (o *ExtractionOrchestrator) checkpoint(batch domain.Batch) error {
	if o.generation.Load() != batch.Generation {
		return ErrBatchSuperseded
	}
	return nil
}

func (o *ExtractionOrchestrator) observeDocument(d time.Duration, err error) {
	if o.observer != nil {
		o.observer.DocumentProcessed(d, err)
	}
}

func (o *ExtractionOrchestrator) observeBatch(err error) {
	if o.observer != nil {
		o.observer.BatchFinished(err)
	}
}

func (o *ExtractionOrchestrator) observeOracle(d time.Duration, err error) {
	if o.observer != nil {
		o.observer.OracleCall(d, err)
	}
}

func (o *ExtractionOrchestrator) observeValidation(report ValidationReport) {
	if o.observer == nil {
		return
	}
	byRule := make(map[string]int, len(report.Rejections))
	for _, rej := range report.Rejections {
		byRule[rej.Rule]++
	}
	o.observer.ValidationOutcome(byRule, report.Moved)
}

// Journal writes are audit only and must never break the pipeline.

func (o *ExtractionOrchestrator) journalBatchStart(ctx context.Context, batch domain.Batch, total int) {
	if o.journal == nil {
		return
	}
	now := time.Now().UTC()
	err := o.journal.StartBatch(ctx, domain.BatchRun{
		ID:             batch.ID,
		Generation:     batch.Generation,
		Subject:        batch.Subject,
		Category:       batch.Category,
		SourceType:     batch.SourceType,
		DocumentsTotal: total,
		State:          domain.StateSyncingContext,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		o.logger.Warn("journal batch start failed", "batch_id", batch.ID, "error", err)
	}
}

func (o *ExtractionOrchestrator) journalBatchState(ctx context.Context, batchID string, state domain.BatchState, message string) {
	if o.journal == nil {
		return
	}
	if err := o.journal.UpdateBatchState(ctx, batchID, state, message); err != nil {
		o.logger.Warn("journal batch state failed", "batch_id", batchID, "state", state, "error", err)
	}
}

func (o *ExtractionOrchestrator) journalDocumentStart(ctx context.Context, batchID string, position int, name string) {
	if o.journal == nil {
		return
	}
	now := time.Now().UTC()
	err := o.journal.StartDocument(ctx, domain.DocumentRun{
		BatchID:      batchID,
		Position:     position,
		DocumentName: name,
		State:        domain.StateSyncingContext,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		o.logger.Warn("journal document start failed", "batch_id", batchID, "position", position, "error", err)
	}
}

func (o *ExtractionOrchestrator) journalDocumentState(ctx context.Context, batchID string, position int, state domain.BatchState, message string) {
	if o.journal == nil {
		return
	}
	if err := o.journal.UpdateDocumentState(ctx, batchID, position, state, message); err != nil {
		o.logger.Warn("journal document state failed", "batch_id", batchID, "position", position, "state", state, "error", err)
	}
}

func (o *ExtractionOrchestrator) journalDocumentCounts(ctx context.Context, batchID string, position int, report ValidationReport) {
	if o.journal == nil {
		return
	}
	err := o.journal.RecordDocumentCounts(ctx, batchID, position,
		len(report.Result.Exam), len(report.Result.Understanding), report.Rejected())
	if err != nil {
		o.logger.Warn("journal document counts failed", "batch_id", batchID, "position", position, "error", err)
	}
}
