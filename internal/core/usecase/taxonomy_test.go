package usecase

import (
	"context"
	"testing"
	"time"

	"questmine/internal/core/domain"
)

type recordingTaxonomyStore struct {
	taxonomyStoreFake
	upserted map[string][]domain.TaxonomyNode
}

func (f *recordingTaxonomyStore) BulkUpsertSubtopics(_ context.Context, subject string, nodes []domain.TaxonomyNode) error {
	if f.upserted == nil {
		f.upserted = make(map[string][]domain.TaxonomyNode)
	}
	f.upserted[subject] = nodes
	return nil
}

func TestNodesAreSortedAndCached(t *testing.T) {
	store := &recordingTaxonomyStore{}
	store.nodes = []domain.TaxonomyNode{
		{Code: "1.10", Title: "Later"},
		{Code: "1.2", Title: "Earlier"},
	}
	uc := NewTaxonomyUseCase(store, nil, time.Minute)

	nodes, err := uc.Nodes(context.Background(), "H2 Economics")
	if err != nil {
		t.Fatalf("Nodes() error = %v", err)
	}
	if nodes[0].Code != "1.2" || nodes[1].Code != "1.10" {
		t.Fatalf("nodes not sorted by code comparator: %+v", nodes)
	}

	if _, err := uc.Nodes(context.Background(), "H2 Economics"); err != nil {
		t.Fatalf("Nodes() error = %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected second fetch served from cache, got %d store calls", store.calls)
	}
}

func TestImportDedupesAndInvalidatesCache(t *testing.T) {
	store := &recordingTaxonomyStore{}
	store.nodes = []domain.TaxonomyNode{{Code: "1", Title: "Old"}}
	uc := NewTaxonomyUseCase(store, nil, time.Minute)

	if _, err := uc.Nodes(context.Background(), "H2 Economics"); err != nil {
		t.Fatalf("Nodes() error = %v", err)
	}

	count, err := uc.Import(context.Background(), "H2 Economics", []domain.TaxonomyNode{
		{Code: "1", Title: "Stale"},
		{Code: "1.1", Title: "Sub"},
		{Code: "1", Title: "Fresh"},
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 deduped nodes, got %d", count)
	}
	if got := store.upserted["H2 Economics"]; got[0].Title != "Fresh" {
		t.Fatalf("expected latest title to win, got %+v", got)
	}

	if _, err := uc.Nodes(context.Background(), "H2 Economics"); err != nil {
		t.Fatalf("Nodes() error = %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("import must invalidate the subject cache, got %d store calls", store.calls)
	}
}

func TestImportRejectsEmptyInput(t *testing.T) {
	uc := NewTaxonomyUseCase(&recordingTaxonomyStore{}, nil, time.Minute)
	if _, err := uc.Import(context.Background(), "H2 Economics", nil); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input kind, got %v", err)
	}
	if _, err := uc.Import(context.Background(), "", []domain.TaxonomyNode{{Code: "1"}}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input kind for empty subject, got %v", err)
	}
}

func TestExtractFromSyllabusImportsParsedSubtopics(t *testing.T) {
	store := &recordingTaxonomyStore{}
	oracle := &oracleFake{response: "```json\n{\"subtopics\":[{\"code\":\"1\",\"title\":\"Markets\"},{\"code\":\"1.1\",\"title\":\"Demand\"}]}\n```"}
	uc := NewTaxonomyUseCase(store, oracle, time.Minute)

	nodes, err := uc.ExtractFromSyllabus(context.Background(), "H2 Economics", "SECTION 1 Markets ...")
	if err != nil {
		t.Fatalf("ExtractFromSyllabus() error = %v", err)
	}
	if len(nodes) != 2 || len(store.upserted["H2 Economics"]) != 2 {
		t.Fatalf("expected 2 imported nodes, got %+v", nodes)
	}
}

func TestExtractFromSyllabusMalformedResponse(t *testing.T) {
	uc := NewTaxonomyUseCase(&recordingTaxonomyStore{}, &oracleFake{response: "no json here"}, time.Minute)
	_, err := uc.ExtractFromSyllabus(context.Background(), "H2 Economics", "text")
	if !domain.IsKind(err, domain.ErrMalformedOracleOutput) {
		t.Fatalf("expected malformed oracle output kind, got %v", err)
	}
}

func TestGroupedReflectsFetchedNodes(t *testing.T) {
	store := &recordingTaxonomyStore{}
	store.nodes = []domain.TaxonomyNode{
		{Code: "3.1", Title: "Orphan"},
		{Code: "1", Title: "Theme One"},
	}
	uc := NewTaxonomyUseCase(store, nil, time.Minute)

	groups, err := uc.Grouped(context.Background(), "H2 Economics")
	if err != nil {
		t.Fatalf("Grouped() error = %v", err)
	}
	if len(groups) != 2 || !groups[1].Synthetic {
		t.Fatalf("unexpected grouping %+v", groups)
	}
}
