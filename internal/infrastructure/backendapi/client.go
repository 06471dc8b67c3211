// Package backendapi is the HTTP client for the system-of-record
// backend. The controller consumes its endpoints; it never owns the
// storage behind them.
package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"questmine/internal/core/domain"
	"questmine/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyBackendError)
	} else {
		err = call(ctx)
	}
	return wrapKind(operation, err)
}

// --- taxonomy ---

func (c *Client) ListSubjects(ctx context.Context) ([]string, error) {
	var raw json.RawMessage
	err := c.execute(ctx, "backend.list_subjects", func(callCtx context.Context) error {
		return c.getJSON(callCtx, "/subjects", nil, &raw, "list subjects")
	})
	if err != nil {
		return nil, err
	}

	var subjects []string
	if json.Unmarshal(raw, &subjects) == nil {
		return subjects, nil
	}
	var envelope struct {
		Subjects []string `json:"subjects"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, domain.WrapError(domain.ErrBackendRejected, "list subjects", fmt.Errorf("unexpected response shape: %w", err))
	}
	return envelope.Subjects, nil
}

func (c *Client) ListSubtopics(ctx context.Context, subject string) ([]domain.TaxonomyNode, error) {
	query := url.Values{"subject": {subject}}

	var raw json.RawMessage
	err := c.execute(ctx, "backend.list_subtopics", func(callCtx context.Context) error {
		return c.getJSON(callCtx, "/subtopics", query, &raw, "list subtopics")
	})
	if err != nil {
		return nil, err
	}

	var nodes []domain.TaxonomyNode
	if json.Unmarshal(raw, &nodes) == nil {
		return nodes, nil
	}
	var envelope struct {
		Subtopics []domain.TaxonomyNode `json:"subtopics"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, domain.WrapError(domain.ErrBackendRejected, "list subtopics", fmt.Errorf("unexpected response shape: %w", err))
	}
	return envelope.Subtopics, nil
}

func (c *Client) BulkUpsertSubtopics(ctx context.Context, subject string, nodes []domain.TaxonomyNode) error {
	payload := map[string]any{
		"subject":   subject,
		"subtopics": nodes,
	}
	return c.execute(ctx, "backend.bulk_upsert_subtopics", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/subtopics/bulk", payload, nil, "bulk upsert subtopics")
	})
}

// --- attribution ---

func (c *Client) PushScraperConfig(ctx context.Context, cfg domain.ScraperConfig) error {
	return c.execute(ctx, "backend.push_scraper_config", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/scraper/config", cfg, nil, "push scraper config")
	})
}

func (c *Client) PushContext(ctx context.Context, ec domain.ExtractionContext) error {
	ctx = domain.WithClientSession(ctx, ec.ClientSessionID)
	return c.execute(ctx, "backend.push_context", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/context", ec, nil, "push context")
	})
}

// --- documents ---

// FetchScrapedDocuments reads GET /data, accepting both the document
// array shape and the legacy single {text, context} object.
func (c *Client) FetchScrapedDocuments(ctx context.Context) ([]domain.DocumentPayload, error) {
	var raw json.RawMessage
	err := c.execute(ctx, "backend.fetch_documents", func(callCtx context.Context) error {
		return c.getJSON(callCtx, "/data", nil, &raw, "fetch documents")
	})
	if err != nil {
		return nil, err
	}
	return decodeDocumentPayloads(raw, "fetch documents")
}

// UploadFile is one multipart file for the backend extract endpoint.
type UploadFile struct {
	Name string
	Data []byte
}

// ExtractUploadedDocuments posts uploaded files to the backend's
// extraction endpoint and returns the per-document payloads. Used when
// upload extraction is delegated instead of performed locally.
func (c *Client) ExtractUploadedDocuments(ctx context.Context, subject, category string, files []UploadFile) ([]domain.DocumentPayload, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("subject", subject)
	_ = writer.WriteField("category", category)
	if sessionID := domain.ClientSessionFromContext(ctx); sessionID != "" {
		_ = writer.WriteField("client_session_id", sessionID)
	}
	for _, file := range files {
		part, err := writer.CreateFormFile("files", file.Name)
		if err != nil {
			return nil, fmt.Errorf("create multipart part: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, fmt.Errorf("write multipart part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var raw json.RawMessage
	err := c.execute(ctx, "backend.extract_uploads", func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/uploads/question-documents/extract", bytes.NewReader(body.Bytes()))
		if err != nil {
			return fmt.Errorf("create extract uploads request: %w", err)
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return c.do(req, &raw, "extract uploads")
	})
	if err != nil {
		return nil, err
	}
	return decodeDocumentPayloads(raw, "extract uploads")
}

func decodeDocumentPayloads(raw json.RawMessage, operation string) ([]domain.DocumentPayload, error) {
	var envelope struct {
		Documents []domain.DocumentPayload `json:"documents"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Documents != nil {
		return envelope.Documents, nil
	}

	var legacy domain.DocumentPayload
	if err := json.Unmarshal(raw, &legacy); err == nil && strings.TrimSpace(legacy.Text) != "" {
		return []domain.DocumentPayload{legacy}, nil
	}

	return nil, domain.WrapError(domain.ErrBackendRejected, operation, fmt.Errorf("unexpected response shape"))
}

// --- results ---

func (c *Client) SubmitResult(ctx context.Context, result domain.ExtractionResult, ec domain.ExtractionContext) error {
	ctx = domain.WithClientSession(ctx, ec.ClientSessionID)
	payload := map[string]any{
		"result":  result,
		"context": ec,
	}
	return c.execute(ctx, "backend.submit_result", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/ai-result", payload, nil, "submit result")
	})
}

// --- questions ---

func (c *Client) QueryQuestions(ctx context.Context, q domain.QuestionQuery) (domain.QuestionSet, error) {
	query := url.Values{}
	if q.Subject != "" {
		query.Set("subject", q.Subject)
	}
	if q.Category != "" {
		query.Set("category", q.Category)
	}
	if q.QuestionType != "" {
		query.Set("question_type", string(q.QuestionType))
	}
	if q.Search != "" {
		query.Set("search", q.Search)
	}
	if len(q.Subtopics) > 0 {
		query.Set("subtopics", strings.Join(q.Subtopics, ","))
	}
	if len(q.Collections) > 0 {
		ids := make([]string, len(q.Collections))
		for i, id := range q.Collections {
			ids[i] = strconv.FormatInt(id, 10)
		}
		query.Set("collections", strings.Join(ids, ","))
	}

	var set domain.QuestionSet
	err := c.execute(ctx, "backend.query_questions", func(callCtx context.Context) error {
		return c.getJSON(callCtx, "/questions", query, &set, "query questions")
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return set, nil
}

func (c *Client) QueryFilters(ctx context.Context) (domain.QuestionFilters, error) {
	var filters domain.QuestionFilters
	err := c.execute(ctx, "backend.query_filters", func(callCtx context.Context) error {
		return c.getJSON(callCtx, "/questions/filters", nil, &filters, "query filters")
	})
	if err != nil {
		return domain.QuestionFilters{}, err
	}
	return filters, nil
}

// --- collections ---

func (c *Client) ListCollections(ctx context.Context, subject string) ([]domain.Collection, error) {
	query := url.Values{"subject": {subject}}

	var raw json.RawMessage
	err := c.execute(ctx, "backend.list_collections", func(callCtx context.Context) error {
		return c.getJSON(callCtx, "/collections", query, &raw, "list collections")
	})
	if err != nil {
		return nil, err
	}

	var collections []domain.Collection
	if json.Unmarshal(raw, &collections) == nil {
		return collections, nil
	}
	var envelope struct {
		Collections []domain.Collection `json:"collections"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, domain.WrapError(domain.ErrBackendRejected, "list collections", fmt.Errorf("unexpected response shape: %w", err))
	}
	return envelope.Collections, nil
}

func (c *Client) CreateCollection(ctx context.Context, name, subject string) (domain.Collection, error) {
	payload := map[string]string{
		"name":    name,
		"subject": subject,
	}
	var collection domain.Collection
	err := c.execute(ctx, "backend.create_collection", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/collections", payload, &collection, "create collection")
	})
	if err != nil {
		return domain.Collection{}, err
	}
	return collection, nil
}

// AddDocument reports added=false when the membership already existed;
// adding twice is a backend-level no-op.
func (c *Client) AddDocument(ctx context.Context, doc domain.CollectionDocument) (bool, error) {
	var response struct {
		Added          bool `json:"added"`
		DocumentsCount int  `json:"documents_count"`
	}
	err := c.execute(ctx, "backend.add_collection_document", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/collections/documents", doc, &response, "add collection document")
	})
	if err != nil {
		return false, err
	}
	return response.Added, nil
}
