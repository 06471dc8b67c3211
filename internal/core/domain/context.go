package domain

import (
	"context"
	"strings"
)

type clientSessionKey struct{}

// WithClientSession threads the per-browser session identifier through
// a context so every outbound backend request can be tagged with it.
func WithClientSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, clientSessionKey{}, sessionID)
}

// ClientSessionFromContext returns the session identifier, if any.
func ClientSessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	sessionID, _ := ctx.Value(clientSessionKey{}).(string)
	return sessionID
}

// CanonicalExamCategory is the single canonical label for the exam
// category; historical synonyms are rewritten to it before any push.
const CanonicalExamCategory = "GCE 'A' Levels"

var legacyCategorySynonyms = map[string]struct{}{
	"A Levels":      {},
	"A-Levels":      {},
	"GCE A Level":   {},
	"GCE A Levels":  {},
	"GCE 'A' Level": {},
}

// NormalizeCategory rewrites known historical synonyms to the canonical
// exam-category label. Unrecognized values pass through unchanged.
func NormalizeCategory(category string) string {
	if _, ok := legacyCategorySynonyms[strings.TrimSpace(category)]; ok {
		return CanonicalExamCategory
	}
	return category
}

// ExtractionContext is the attribution envelope for one document's
// extraction. Exactly one context is active per document being
// processed; it is created fresh per document and pushed to the
// backend before that document's oracle call.
type ExtractionContext struct {
	Subject         string     `json:"subject"`
	Category        string     `json:"category"`
	Year            int        `json:"year,omitempty"`
	QuestionType    string     `json:"question_type,omitempty"`
	SourceLink      string     `json:"source_link,omitempty"`
	DocumentName    string     `json:"document_name"`
	SourceType      SourceType `json:"source_type"`
	ClientSessionID string     `json:"client_session_id"`
}

// DocumentPayload is one raw per-document unit handed to the pipeline.
type DocumentPayload struct {
	Text    string            `json:"text"`
	Context ExtractionContext `json:"context"`
}

// ScraperConfig is the collection configuration pushed to the scraper
// before a scraped batch. Pages is clamped to the configured maximum
// before the push.
type ScraperConfig struct {
	Category     string `json:"category"`
	Subject      string `json:"subject"`
	Year         int    `json:"year,omitempty"`
	DocumentType string `json:"document_type"`
	Pages        int    `json:"pages"`
	SubjectLabel string `json:"subject_label"`
}
