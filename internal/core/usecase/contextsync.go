package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"questmine/internal/core/domain"
	"questmine/internal/core/ports"
)

const defaultDocumentType = "Exam Papers"

// ContextSyncUseCase pushes attribution state to the backend. Both
// pushes are awaited by callers before the corresponding oracle call;
// otherwise the backend could receive results before it knows which
// document they belong to.
type ContextSyncUseCase struct {
	sink     ports.ContextSink
	maxPages int
}

func NewContextSyncUseCase(sink ports.ContextSink, maxPages int) *ContextSyncUseCase {
	if maxPages <= 0 {
		maxPages = 5
	}
	return &ContextSyncUseCase{sink: sink, maxPages: maxPages}
}

// PushScraperConfig normalizes the category, clamps the requested page
// count and derives the subject label before the push.
func (uc *ContextSyncUseCase) PushScraperConfig(ctx context.Context, subject, category string, year, pages int) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return domain.WrapError(domain.ErrAttributionMissing, "push scraper config", errors.New("no subject selected"))
	}

	cfg := domain.ScraperConfig{
		Category:     domain.NormalizeCategory(category),
		Subject:      subject,
		Year:         year,
		DocumentType: defaultDocumentType,
		Pages:        clampPages(pages, uc.maxPages),
		SubjectLabel: SubjectLabel(subject),
	}
	if err := uc.sink.PushScraperConfig(ctx, cfg); err != nil {
		return fmt.Errorf("push scraper config: %w", err)
	}
	return nil
}

// PushContext pushes one document's attribution envelope. Subject and
// category are required: results without them cannot be attributed.
func (uc *ContextSyncUseCase) PushContext(ctx context.Context, ec domain.ExtractionContext) error {
	if strings.TrimSpace(ec.Subject) == "" || strings.TrimSpace(ec.Category) == "" {
		return domain.WrapError(domain.ErrAttributionMissing, "push context", errors.New("subject and category are required"))
	}

	ec.Category = domain.NormalizeCategory(ec.Category)
	if err := uc.sink.PushContext(ctx, ec); err != nil {
		return fmt.Errorf("push context: %w", err)
	}
	return nil
}

// SubjectLabel strips a leading syllabus-level prefix ("H1 ", "H2 ",
// "H3 ") so "H2 Economics" becomes "Economics". Subjects without a
// level prefix are their own label.
func SubjectLabel(subject string) string {
	for _, prefix := range []string{"H1 ", "H2 ", "H3 "} {
		if strings.HasPrefix(subject, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(subject, prefix))
		}
	}
	return subject
}

func clampPages(pages, max int) int {
	if pages < 1 {
		return 1
	}
	if pages > max {
		return max
	}
	return pages
}
