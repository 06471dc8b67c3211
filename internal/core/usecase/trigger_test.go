package usecase

import (
	"context"
	"errors"
	"testing"

	"questmine/internal/core/domain"
)

type providerFake struct {
	documents []domain.DocumentPayload
	err       error
}

func (f *providerFake) FetchScrapedDocuments(context.Context) ([]domain.DocumentPayload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.documents, nil
}

type queueFake struct {
	published []domain.Batch
	err       error
}

func (f *queueFake) PublishBatch(_ context.Context, batch domain.Batch) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, batch)
	return nil
}

func (f *queueFake) SubscribeBatches(context.Context, func(context.Context, domain.Batch) error) error {
	return errors.New("not implemented")
}

type runnerFake struct {
	runs []domain.Batch
}

func (f *runnerFake) Run(_ context.Context, batch domain.Batch) error {
	f.runs = append(f.runs, batch)
	return nil
}

func TestStartScrapedPushesConfigAndQueuesBatch(t *testing.T) {
	sink := &scraperSinkFake{}
	provider := &providerFake{documents: []domain.DocumentPayload{
		{Text: "doc", Context: domain.ExtractionContext{DocumentName: "p1.pdf"}},
	}}
	queue := &queueFake{}

	uc := NewBatchTriggerUseCase(NewContextSyncUseCase(sink, 5), provider, queue, nil, nil)
	batch, err := uc.StartScraped(context.Background(), "H2 Economics", "A Levels", 2023, 3, "sess-1")
	if err != nil {
		t.Fatalf("StartScraped() error = %v", err)
	}

	if len(sink.configs) != 1 {
		t.Fatalf("expected scraper config push before fetch")
	}
	if len(queue.published) != 1 {
		t.Fatalf("expected batch published")
	}
	if batch.Category != domain.CanonicalExamCategory {
		t.Fatalf("expected normalized category, got %q", batch.Category)
	}
	doc := queue.published[0].Documents[0]
	if doc.Context.ClientSessionID != "sess-1" || doc.Context.SourceType != domain.SourceScraped {
		t.Fatalf("document context not stamped: %+v", doc.Context)
	}
}

func TestStartUploadedRunsInlineWithoutQueue(t *testing.T) {
	runner := &runnerFake{}
	uc := NewBatchTriggerUseCase(NewContextSyncUseCase(&scraperSinkFake{}, 5), &providerFake{}, nil, runner, nil)

	batch, err := uc.StartUploaded(context.Background(), "H2 Economics", "GCE 'A' Levels", 2022, "sess-9", []domain.DocumentPayload{
		{Text: "paper", Context: domain.ExtractionContext{DocumentName: "upload.pdf"}},
	})
	if err != nil {
		t.Fatalf("StartUploaded() error = %v", err)
	}
	if len(runner.runs) != 1 || runner.runs[0].ID != batch.ID {
		t.Fatalf("expected inline run, got %+v", runner.runs)
	}
	if runner.runs[0].SourceType != domain.SourceUploaded {
		t.Fatalf("expected uploaded source type")
	}
}

func TestStartScrapedRequiresAttribution(t *testing.T) {
	uc := NewBatchTriggerUseCase(NewContextSyncUseCase(&scraperSinkFake{}, 5), &providerFake{}, &queueFake{}, nil, nil)
	_, err := uc.StartScraped(context.Background(), "", "A Levels", 0, 1, "sess")
	if !domain.IsKind(err, domain.ErrAttributionMissing) {
		t.Fatalf("expected attribution missing, got %v", err)
	}
}

func TestStartUploadedRequiresDocuments(t *testing.T) {
	uc := NewBatchTriggerUseCase(NewContextSyncUseCase(&scraperSinkFake{}, 5), &providerFake{}, &queueFake{}, nil, nil)
	_, err := uc.StartUploaded(context.Background(), "H2 Economics", "A Levels", 0, "sess", nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
