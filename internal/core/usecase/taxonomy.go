package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"questmine/internal/core/domain"
	"questmine/internal/core/ports"
)

// TaxonomyUseCase serves sorted taxonomy nodes and grouped theme views
// with a per-subject TTL cache, and runs deduped bulk imports.
type TaxonomyUseCase struct {
	store  ports.TaxonomyStore
	oracle ports.Oracle
	cache  *gocache.Cache
}

func NewTaxonomyUseCase(store ports.TaxonomyStore, oracle ports.Oracle, ttl time.Duration) *TaxonomyUseCase {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TaxonomyUseCase{
		store:  store,
		oracle: oracle,
		cache:  gocache.New(ttl, 2*ttl),
	}
}

func (uc *TaxonomyUseCase) Nodes(ctx context.Context, subject string) ([]domain.TaxonomyNode, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch taxonomy", errors.New("subject is required"))
	}

	key := "subtopics:" + subject
	if cached, ok := uc.cache.Get(key); ok {
		return cached.([]domain.TaxonomyNode), nil
	}

	nodes, err := uc.store.ListSubtopics(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("list subtopics: %w", err)
	}
	domain.SortNodes(nodes)

	uc.cache.Set(key, nodes, gocache.DefaultExpiration)
	return nodes, nil
}

func (uc *TaxonomyUseCase) Grouped(ctx context.Context, subject string) ([]domain.ThemeGroup, error) {
	nodes, err := uc.Nodes(ctx, subject)
	if err != nil {
		return nil, err
	}
	return domain.GroupNodes(nodes), nil
}

// Import dedupes the supplied nodes and bulk-upserts them: same code
// means update title, never duplicate. The subject's cache entry is
// invalidated so the next fetch sees the imported state.
func (uc *TaxonomyUseCase) Import(ctx context.Context, subject string, nodes []domain.TaxonomyNode) (int, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "import taxonomy", errors.New("subject is required"))
	}

	deduped := domain.DedupeNodes(trimNodes(nodes))
	if len(deduped) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "import taxonomy", errors.New("no subtopics supplied"))
	}

	if err := uc.store.BulkUpsertSubtopics(ctx, subject, deduped); err != nil {
		return 0, fmt.Errorf("bulk upsert subtopics: %w", err)
	}

	uc.cache.Delete("subtopics:" + subject)
	return len(deduped), nil
}

// ExtractFromSyllabus runs the oracle over cleaned syllabus text,
// parses the subtopic list and imports it for the subject.
func (uc *TaxonomyUseCase) ExtractFromSyllabus(ctx context.Context, subject, syllabusText string) ([]domain.TaxonomyNode, error) {
	if strings.TrimSpace(syllabusText) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract subtopics", errors.New("syllabus text is empty"))
	}

	raw, err := uc.oracle.Complete(ctx, BuildSubtopicPrompt(syllabusText))
	if err != nil {
		return nil, fmt.Errorf("invoke oracle: %w", err)
	}

	nodes, err := ParseSubtopics(raw)
	if err != nil {
		return nil, err
	}

	if _, err := uc.Import(ctx, subject, nodes); err != nil {
		return nil, err
	}
	return domain.DedupeNodes(trimNodes(nodes)), nil
}

func trimNodes(nodes []domain.TaxonomyNode) []domain.TaxonomyNode {
	out := make([]domain.TaxonomyNode, 0, len(nodes))
	for _, node := range nodes {
		node.Code = strings.TrimSpace(node.Code)
		node.Title = strings.TrimSpace(node.Title)
		if node.Code == "" {
			continue
		}
		out = append(out, node)
	}
	return out
}
