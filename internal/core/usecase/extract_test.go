package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"questmine/internal/core/domain"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) index(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.events {
		if e == event {
			return i
		}
	}
	return -1
}

type contextSinkFake struct {
	log     *eventLog
	pushed  []domain.ExtractionContext
	pushErr error
}

func (f *contextSinkFake) PushScraperConfig(context.Context, domain.ScraperConfig) error {
	return nil
}

func (f *contextSinkFake) PushContext(_ context.Context, ec domain.ExtractionContext) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed = append(f.pushed, ec)
	if f.log != nil {
		f.log.add("push:" + ec.DocumentName)
	}
	return nil
}

type taxonomyStoreFake struct {
	nodes []domain.TaxonomyNode
	calls int
	err   error
}

func (f *taxonomyStoreFake) ListSubjects(context.Context) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (f *taxonomyStoreFake) ListSubtopics(context.Context, string) ([]domain.TaxonomyNode, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.TaxonomyNode, len(f.nodes))
	copy(out, f.nodes)
	return out, nil
}

func (f *taxonomyStoreFake) BulkUpsertSubtopics(context.Context, string, []domain.TaxonomyNode) error {
	return nil
}

type oracleFake struct {
	log      *eventLog
	response string
	errAt    int
	calls    int
	onCall   func()
}

func (f *oracleFake) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	if f.log != nil {
		f.log.add(fmt.Sprintf("oracle:%d", f.calls))
	}
	if f.onCall != nil {
		f.onCall()
	}
	if f.errAt > 0 && f.calls == f.errAt {
		return "", domain.WrapError(domain.ErrOracleUnavailable, "invoke oracle", errors.New("connection refused"))
	}
	_ = prompt
	return f.response, nil
}

type resultSinkFake struct {
	log         *eventLog
	submissions []domain.ExtractionContext
	results     []domain.ExtractionResult
}

func (f *resultSinkFake) SubmitResult(_ context.Context, result domain.ExtractionResult, ec domain.ExtractionContext) error {
	f.submissions = append(f.submissions, ec)
	f.results = append(f.results, result)
	if f.log != nil {
		f.log.add("submit:" + ec.DocumentName)
	}
	return nil
}

const validOracleResponse = `{"exam":[{"chapter":"1.1 Demand and Supply","question":"Explain the effect. [10]"}],"understanding":[]}`

func newTestOrchestrator(sink *contextSinkFake, store *taxonomyStoreFake, oracle *oracleFake, results *resultSinkFake, statuses *[]string) *ExtractionOrchestrator {
	var status StatusFunc
	if statuses != nil {
		status = func(msg string) { *statuses = append(*statuses, msg) }
	}
	return NewExtractionOrchestrator(
		NewContextSyncUseCase(sink, 5),
		NewTaxonomyUseCase(store, nil, time.Minute),
		oracle,
		results,
		nil,
		"H2 Economics",
		nil,
		status,
	)
}

func testBatch(names ...string) domain.Batch {
	docs := make([]domain.DocumentPayload, len(names))
	for i, name := range names {
		docs[i] = domain.DocumentPayload{
			Text: "Paper text for " + name,
			Context: domain.ExtractionContext{
				DocumentName:    name,
				ClientSessionID: "sess-1",
			},
		}
	}
	return domain.Batch{
		ID:         "batch-1",
		Subject:    "H2 Economics",
		Category:   "A Levels",
		SourceType: domain.SourceScraped,
		Documents:  docs,
	}
}

func TestRunProcessesDocumentsStrictlySequentially(t *testing.T) {
	log := &eventLog{}
	sink := &contextSinkFake{log: log}
	store := &taxonomyStoreFake{nodes: []domain.TaxonomyNode{{Code: "1.1", Title: "Demand and Supply"}}}
	oracle := &oracleFake{log: log, response: validOracleResponse}
	results := &resultSinkFake{log: log}
	var statuses []string

	orch := newTestOrchestrator(sink, store, oracle, results, &statuses)
	if err := orch.Run(context.Background(), testBatch("doc-1", "doc-2", "doc-3")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(results.submissions) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(results.submissions))
	}
	// context push for document i+1 must not occur before persist of
	// document i completed
	for i := 1; i <= 2; i++ {
		prevSubmit := log.index(fmt.Sprintf("submit:doc-%d", i))
		nextPush := log.index(fmt.Sprintf("push:doc-%d", i+1))
		if prevSubmit < 0 || nextPush < 0 || nextPush < prevSubmit {
			t.Fatalf("ordering violated: %v", log.events)
		}
	}

	if statuses[0] != "Processing document 1 of 3" {
		t.Fatalf("unexpected first status %q", statuses[0])
	}
	last := statuses[len(statuses)-1]
	if !strings.Contains(last, "complete") {
		t.Fatalf("unexpected final status %q", last)
	}
}

func TestRunNormalizesCategoryBeforeContextPush(t *testing.T) {
	sink := &contextSinkFake{}
	store := &taxonomyStoreFake{nodes: []domain.TaxonomyNode{{Code: "1.1", Title: "Demand and Supply"}}}
	oracle := &oracleFake{response: validOracleResponse}
	results := &resultSinkFake{}

	orch := newTestOrchestrator(sink, store, oracle, results, nil)
	if err := orch.Run(context.Background(), testBatch("doc-1")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if sink.pushed[0].Category != domain.CanonicalExamCategory {
		t.Fatalf("expected canonical category, got %q", sink.pushed[0].Category)
	}
	if sink.pushed[0].SourceType != domain.SourceScraped {
		t.Fatalf("expected scraped source type, got %q", sink.pushed[0].SourceType)
	}
}

func TestRunAbortsWholeBatchOnDocumentFailure(t *testing.T) {
	log := &eventLog{}
	sink := &contextSinkFake{log: log}
	store := &taxonomyStoreFake{nodes: []domain.TaxonomyNode{{Code: "1.1", Title: "Demand and Supply"}}}
	oracle := &oracleFake{log: log, response: validOracleResponse, errAt: 2}
	results := &resultSinkFake{log: log}
	var statuses []string

	orch := newTestOrchestrator(sink, store, oracle, results, &statuses)
	err := orch.Run(context.Background(), testBatch("doc-1", "doc-2", "doc-3"))
	if !domain.IsKind(err, domain.ErrOracleUnavailable) {
		t.Fatalf("expected oracle unavailable kind, got %v", err)
	}

	if len(results.submissions) != 1 {
		t.Fatalf("expected exactly 1 submission before abort, got %d", len(results.submissions))
	}
	if got := log.index("push:doc-3"); got >= 0 {
		t.Fatalf("document 3 must never start after abort: %v", log.events)
	}
	last := statuses[len(statuses)-1]
	if !strings.Contains(last, "oracle unavailable") {
		t.Fatalf("failure status must carry the triggering error, got %q", last)
	}
}

func TestRunDiscardsResultsFromSupersededBatch(t *testing.T) {
	sink := &contextSinkFake{}
	store := &taxonomyStoreFake{nodes: []domain.TaxonomyNode{{Code: "1.1", Title: "Demand and Supply"}}}
	results := &resultSinkFake{}
	oracle := &oracleFake{response: validOracleResponse}

	orch := newTestOrchestrator(sink, store, oracle, results, nil)
	// a new run starting mid-flight bumps the generation
	oracle.onCall = func() {
		_ = orch.Run(context.Background(), domain.Batch{ID: "batch-2", Subject: "H2 Economics", Category: "A Levels"})
	}

	err := orch.Run(context.Background(), testBatch("doc-1"))
	if !errors.Is(err, ErrBatchSuperseded) {
		t.Fatalf("expected ErrBatchSuperseded, got %v", err)
	}
	if len(results.submissions) != 0 {
		t.Fatalf("stale results must not be posted, got %d submissions", len(results.submissions))
	}
}

func TestRunFailsWithoutAttribution(t *testing.T) {
	sink := &contextSinkFake{}
	store := &taxonomyStoreFake{}
	oracle := &oracleFake{response: validOracleResponse}
	results := &resultSinkFake{}

	orch := newTestOrchestrator(sink, store, oracle, results, nil)
	batch := testBatch("doc-1")
	batch.Category = ""

	err := orch.Run(context.Background(), batch)
	if !domain.IsKind(err, domain.ErrAttributionMissing) {
		t.Fatalf("expected attribution missing kind, got %v", err)
	}
	if oracle.calls != 0 {
		t.Fatalf("oracle must not be invoked without attribution")
	}
}

func TestRunResolvesSubjectFallbackChain(t *testing.T) {
	sink := &contextSinkFake{}
	store := &taxonomyStoreFake{nodes: []domain.TaxonomyNode{{Code: "1.1", Title: "Demand and Supply"}}}
	oracle := &oracleFake{response: validOracleResponse}
	results := &resultSinkFake{}

	orch := newTestOrchestrator(sink, store, oracle, results, nil)
	batch := testBatch("doc-1")
	batch.Subject = ""

	if err := orch.Run(context.Background(), batch); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sink.pushed[0].Subject != "H2 Economics" {
		t.Fatalf("expected configured default subject, got %q", sink.pushed[0].Subject)
	}
}

func TestRunMalformedOracleOutputIsHardFailure(t *testing.T) {
	sink := &contextSinkFake{}
	store := &taxonomyStoreFake{nodes: []domain.TaxonomyNode{{Code: "1.1", Title: "Demand and Supply"}}}
	oracle := &oracleFake{response: "I could not find any questions, sorry."}
	results := &resultSinkFake{}

	orch := newTestOrchestrator(sink, store, oracle, results, nil)
	err := orch.Run(context.Background(), testBatch("doc-1"))
	if !domain.IsKind(err, domain.ErrMalformedOracleOutput) {
		t.Fatalf("expected malformed oracle output kind, got %v", err)
	}
	if len(results.submissions) != 0 {
		t.Fatalf("malformed output must not reach the sink")
	}
}

type observerFake struct {
	started        int
	documents      int
	documentErrs   int
	batches        int
	batchErrs      int
	oracleCalls    int
	rejectionsRule map[string]int
	moved          int
}

func (f *observerFake) DocumentStarted() { f.started++ }

func (f *observerFake) DocumentProcessed(_ time.Duration, err error) {
	f.documents++
	if err != nil {
		f.documentErrs++
	}
}

func (f *observerFake) BatchFinished(err error) {
	f.batches++
	if err != nil {
		f.batchErrs++
	}
}

func (f *observerFake) OracleCall(time.Duration, error) { f.oracleCalls++ }

func (f *observerFake) ValidationOutcome(byRule map[string]int, moved int) {
	if f.rejectionsRule == nil {
		f.rejectionsRule = map[string]int{}
	}
	for rule, count := range byRule {
		f.rejectionsRule[rule] += count
	}
	f.moved += moved
}

func TestRunReportsMeasurementsToObserver(t *testing.T) {
	sink := &contextSinkFake{}
	store := &taxonomyStoreFake{nodes: []domain.TaxonomyNode{{Code: "1.1", Title: "Demand and Supply"}}}
	oracle := &oracleFake{response: `{"exam":[{"chapter":"1.1 Demand and Supply","question":"Explain. [10]"},{"chapter":"9.9 Nope","question":"Q [4]"}],"understanding":[]}`}
	results := &resultSinkFake{}
	obs := &observerFake{}

	orch := newTestOrchestrator(sink, store, oracle, results, nil)
	orch.SetObserver(obs)
	if err := orch.Run(context.Background(), testBatch("doc-1", "doc-2")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if obs.started != 2 || obs.documents != 2 || obs.documentErrs != 0 {
		t.Fatalf("unexpected document counts: %+v", obs)
	}
	if obs.batches != 1 || obs.batchErrs != 0 {
		t.Fatalf("unexpected batch counts: %+v", obs)
	}
	if obs.oracleCalls != 2 {
		t.Fatalf("expected 2 oracle observations, got %d", obs.oracleCalls)
	}
	if obs.rejectionsRule[RuleChapterMatch] != 2 {
		t.Fatalf("expected 2 chapter_match rejections, got %+v", obs.rejectionsRule)
	}
}

func TestRunObserverSeesDocumentFailure(t *testing.T) {
	sink := &contextSinkFake{}
	store := &taxonomyStoreFake{nodes: []domain.TaxonomyNode{{Code: "1.1", Title: "Demand and Supply"}}}
	oracle := &oracleFake{response: validOracleResponse, errAt: 1}
	results := &resultSinkFake{}
	obs := &observerFake{}

	orch := newTestOrchestrator(sink, store, oracle, results, nil)
	orch.SetObserver(obs)
	if err := orch.Run(context.Background(), testBatch("doc-1", "doc-2")); err == nil {
		t.Fatal("expected error")
	}

	if obs.started != 1 || obs.documents != 1 || obs.documentErrs != 1 {
		t.Fatalf("unexpected document counts: %+v", obs)
	}
	if obs.batches != 1 || obs.batchErrs != 1 {
		t.Fatalf("unexpected batch counts: %+v", obs)
	}
}

func TestRunAllItemsRejectedIsStillSuccess(t *testing.T) {
	sink := &contextSinkFake{}
	store := &taxonomyStoreFake{nodes: []domain.TaxonomyNode{{Code: "1.1", Title: "Demand and Supply"}}}
	oracle := &oracleFake{response: `{"exam":[{"chapter":"9.9 Nope","question":"Q [4]"}],"understanding":[]}`}
	results := &resultSinkFake{}

	orch := newTestOrchestrator(sink, store, oracle, results, nil)
	if err := orch.Run(context.Background(), testBatch("doc-1")); err != nil {
		t.Fatalf("all-rejected result must still succeed, got %v", err)
	}
	if len(results.results) != 1 || !results.results[0].Empty() {
		t.Fatalf("expected one empty submission, got %+v", results.results)
	}
}
