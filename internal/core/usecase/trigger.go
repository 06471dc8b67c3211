package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"questmine/internal/core/domain"
	"questmine/internal/core/ports"
)

// BatchTriggerUseCase assembles batches and dispatches them: to the
// queue when one is configured, otherwise inline on the caller's
// goroutine. Either way a batch runs sequentially.
type BatchTriggerUseCase struct {
	contexts *ContextSyncUseCase
	provider ports.DocumentProvider
	queue    ports.BatchQueue
	runner   ports.BatchExtractor
	logger   *slog.Logger
}

func NewBatchTriggerUseCase(
	contexts *ContextSyncUseCase,
	provider ports.DocumentProvider,
	queue ports.BatchQueue,
	runner ports.BatchExtractor,
	logger *slog.Logger,
) *BatchTriggerUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchTriggerUseCase{
		contexts: contexts,
		provider: provider,
		queue:    queue,
		runner:   runner,
		logger:   logger,
	}
}

// StartScraped pushes the scraper configuration, fetches the scraped
// document payloads and dispatches them as one batch.
func (uc *BatchTriggerUseCase) StartScraped(ctx context.Context, subject, category string, year, pages int, sessionID string) (domain.Batch, error) {
	if err := requireAttribution(subject, category); err != nil {
		return domain.Batch{}, err
	}

	if err := uc.contexts.PushScraperConfig(ctx, subject, category, year, pages); err != nil {
		return domain.Batch{}, err
	}

	documents, err := uc.provider.FetchScrapedDocuments(ctx)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("fetch scraped documents: %w", err)
	}

	batch := uc.newBatch(subject, category, year, domain.SourceScraped, sessionID, documents)
	return batch, uc.dispatch(ctx, batch)
}

// StartUploaded dispatches locally extracted upload payloads as one
// batch.
func (uc *BatchTriggerUseCase) StartUploaded(ctx context.Context, subject, category string, year int, sessionID string, documents []domain.DocumentPayload) (domain.Batch, error) {
	if err := requireAttribution(subject, category); err != nil {
		return domain.Batch{}, err
	}
	if len(documents) == 0 {
		return domain.Batch{}, domain.WrapError(domain.ErrInvalidInput, "start upload batch", errors.New("no documents supplied"))
	}

	batch := uc.newBatch(subject, category, year, domain.SourceUploaded, sessionID, documents)
	return batch, uc.dispatch(ctx, batch)
}

func (uc *BatchTriggerUseCase) newBatch(subject, category string, year int, source domain.SourceType, sessionID string, documents []domain.DocumentPayload) domain.Batch {
	category = domain.NormalizeCategory(category)

	stamped := make([]domain.DocumentPayload, len(documents))
	for i, doc := range documents {
		if doc.Context.ClientSessionID == "" {
			doc.Context.ClientSessionID = sessionID
		}
		if doc.Context.SourceType == "" {
			doc.Context.SourceType = source
		}
		stamped[i] = doc
	}

	return domain.Batch{
		ID:         uuid.NewString(),
		Subject:    subject,
		Category:   category,
		Year:       year,
		SourceType: source,
		Documents:  stamped,
	}
}

func (uc *BatchTriggerUseCase) dispatch(ctx context.Context, batch domain.Batch) error {
	if uc.queue != nil {
		if err := uc.queue.PublishBatch(ctx, batch); err != nil {
			return fmt.Errorf("publish batch: %w", err)
		}
		uc.logger.Info("batch queued", "batch_id", batch.ID, "documents", len(batch.Documents))
		return nil
	}
	return uc.runner.Run(ctx, batch)
}

func requireAttribution(subject, category string) error {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(category) == "" {
		return domain.WrapError(domain.ErrAttributionMissing, "start batch", errors.New("subject and category must be selected"))
	}
	return nil
}
