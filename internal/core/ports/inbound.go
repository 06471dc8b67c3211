package ports

import (
	"context"

	"questmine/internal/core/domain"
)

// BatchExtractor runs the sequential extraction pipeline over one
// batch: strictly one document at a time, in array order.
type BatchExtractor interface {
	Run(ctx context.Context, batch domain.Batch) error
}

// TaxonomyService is the inbound contract for taxonomy reads, grouped
// views, deduped imports and syllabus-driven extraction.
type TaxonomyService interface {
	Nodes(ctx context.Context, subject string) ([]domain.TaxonomyNode, error)
	Grouped(ctx context.Context, subject string) ([]domain.ThemeGroup, error)
	Import(ctx context.Context, subject string, nodes []domain.TaxonomyNode) (int, error)
	ExtractFromSyllabus(ctx context.Context, subject, syllabusText string) ([]domain.TaxonomyNode, error)
}
