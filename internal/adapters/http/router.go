package httpadapter

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"questmine/internal/config"
	"questmine/internal/core/domain"
	"questmine/internal/core/ports"
	"questmine/internal/core/usecase"
	"questmine/internal/observability/metrics"
)

// WorkbookWriter renders a question set as an xlsx workbook.
type WorkbookWriter interface {
	WriteQuestions(w io.Writer, set domain.QuestionSet) error
}

type Router struct {
	cfg         config.Config
	trigger     *usecase.BatchTriggerUseCase
	taxonomy    *usecase.TaxonomyUseCase
	questions   ports.QuestionReader
	collections ports.CollectionStore
	sessions    *usecase.SessionRegistry
	journal     ports.RunJournal
	extractor   ports.TextExtractor
	spool       ports.UploadSpool
	exporter    WorkbookWriter
	metrics     *metrics.HTTPServerMetrics
}

type RouterDeps struct {
	Trigger     *usecase.BatchTriggerUseCase
	Taxonomy    *usecase.TaxonomyUseCase
	Questions   ports.QuestionReader
	Collections ports.CollectionStore
	Sessions    *usecase.SessionRegistry
	Journal     ports.RunJournal
	Extractor   ports.TextExtractor
	Spool       ports.UploadSpool
	Exporter    WorkbookWriter
	Metrics     *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, deps RouterDeps) *Router {
	return &Router{
		cfg:         cfg,
		trigger:     deps.Trigger,
		taxonomy:    deps.Taxonomy,
		questions:   deps.Questions,
		collections: deps.Collections,
		sessions:    deps.Sessions,
		journal:     deps.Journal,
		extractor:   deps.Extractor,
		spool:       deps.Spool,
		exporter:    deps.Exporter,
		metrics:     deps.Metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/extract/scraped", rt.extractScraped)
	mux.HandleFunc("/v1/extract/uploads", rt.extractUploads)
	mux.HandleFunc("/v1/taxonomy", rt.getTaxonomy)
	mux.HandleFunc("/v1/taxonomy/import", rt.importTaxonomy)
	mux.HandleFunc("/v1/taxonomy/extract", rt.extractTaxonomy)
	mux.HandleFunc("/v1/questions", rt.getQuestions)
	mux.HandleFunc("/v1/questions/filters", rt.getFilters)
	mux.HandleFunc("/v1/questions/export", rt.exportQuestions)
	mux.HandleFunc("/v1/session", rt.getSession)
	mux.HandleFunc("/v1/session/selection/codes", rt.toggleSelection)
	mux.HandleFunc("/v1/session/selection/collections", rt.toggleCollection)
	mux.HandleFunc("/v1/session/search", rt.setSearch)
	mux.HandleFunc("/v1/session/page", rt.setPage)
	mux.HandleFunc("/v1/collections", rt.handleCollections)
	mux.HandleFunc("/v1/collections/documents", rt.addCollectionDocument)
	mux.HandleFunc("/v1/batches/", rt.getBatch)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	handler = sessionMiddleware(handler)
	handler = rateLimitMiddleware(rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- extraction triggers ---

func (rt *Router) extractScraped(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Subject  string `json:"subject"`
		Category string `json:"category"`
		Year     int    `json:"year"`
		Pages    int    `json:"pages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	batch, err := rt.trigger.StartScraped(r.Context(), req.Subject, req.Category, req.Year, req.Pages, domain.ClientSessionFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordExtractionTrigger("api", string(domain.SourceScraped))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":  batch.ID,
		"documents": len(batch.Documents),
	})
}

func (rt *Router) extractUploads(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	subject := r.FormValue("subject")
	category := r.FormValue("category")
	year := atoiOrZero(r.FormValue("year"))

	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		writeError(w, http.StatusBadRequest, "multipart field 'files' is required")
		return
	}

	var documents []domain.DocumentPayload
	for _, fileHeader := range r.MultipartForm.File["files"] {
		file, err := fileHeader.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload: "+fileHeader.Filename)
			return
		}
		raw, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload: "+fileHeader.Filename)
			return
		}

		if rt.spool != nil {
			if err := rt.spool.Save(r.Context(), fileHeader.Filename, bytes.NewReader(raw)); err != nil {
				writeDomainError(w, err)
				return
			}
		}

		text, err := rt.extractor.Extract(r.Context(), fileHeader.Filename, bytes.NewReader(raw), int64(len(raw)))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "extract "+fileHeader.Filename+": "+err.Error())
			return
		}
		documents = append(documents, domain.DocumentPayload{
			Text: text,
			Context: domain.ExtractionContext{
				DocumentName: fileHeader.Filename,
			},
		})
	}

	batch, err := rt.trigger.StartUploaded(r.Context(), subject, category, year, domain.ClientSessionFromContext(r.Context()), documents)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordExtractionTrigger("api", string(domain.SourceUploaded))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":  batch.ID,
		"documents": len(batch.Documents),
	})
}

// --- taxonomy ---

type subthemeView struct {
	Code     string `json:"code"`
	Title    string `json:"title"`
	Selected bool   `json:"selected"`
}

type themeView struct {
	Code      string           `json:"code"`
	Title     string           `json:"title"`
	Synthetic bool             `json:"synthetic"`
	State     usecase.TriState `json:"state"`
	Subthemes []subthemeView   `json:"subthemes"`
}

func (rt *Router) getTaxonomy(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		subject = rt.cfg.DefaultSubject
	}

	groups, err := rt.taxonomy.Grouped(r.Context(), subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	session := rt.session(r)
	snapshot := session.Snapshot()
	selected := make(map[string]bool, len(snapshot.SelectedCodes))
	for _, code := range snapshot.SelectedCodes {
		selected[code] = true
	}

	views := make([]themeView, 0, len(groups))
	for _, group := range groups {
		view := themeView{
			Code:      group.Code,
			Title:     group.Title,
			Synthetic: group.Synthetic,
			State:     session.ThemeState(group),
			Subthemes: make([]subthemeView, 0, len(group.Subthemes)),
		}
		for _, sub := range group.Subthemes {
			view.Subthemes = append(view.Subthemes, subthemeView{
				Code:     sub.Code,
				Title:    sub.Title,
				Selected: selected[sub.Code],
			})
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"subject": subject, "themes": views})
}

func (rt *Router) importTaxonomy(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Subject   string                `json:"subject"`
		Subtopics []domain.TaxonomyNode `json:"subtopics"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	count, err := rt.taxonomy.Import(r.Context(), req.Subject, req.Subtopics)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": count})
}

func (rt *Router) extractTaxonomy(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Subject      string `json:"subject"`
		SyllabusText string `json:"syllabus_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	nodes, err := rt.taxonomy.ExtractFromSyllabus(r.Context(), req.Subject, req.SyllabusText)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": len(nodes), "subtopics": nodes})
}

// --- questions ---

func (rt *Router) getQuestions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	session := rt.session(r)
	if subject := r.URL.Query().Get("subject"); subject != "" {
		session.SetSubject(subject, domain.NormalizeCategory(r.URL.Query().Get("category")))
	}

	query := session.BuildQuery(domain.QuestionType(r.URL.Query().Get("question_type")))
	set, err := rt.questions.QueryQuestions(r.Context(), query)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	session.SetResultCount(len(set.Scraped) + len(set.Uploaded))
	if pageParam := r.URL.Query().Get("page"); pageParam != "" {
		session.SetPage(atoiOrZero(pageParam))
	}
	page, pageCount := session.Page()

	scraped, uploaded := paginate(set, page, rt.cfg.PageSize)
	writeJSON(w, http.StatusOK, map[string]any{
		"scraped_questions":  scraped,
		"uploaded_questions": uploaded,
		"page":               page,
		"page_count":         pageCount,
		"total":              len(set.Scraped) + len(set.Uploaded),
	})
}

// paginate slices the combined scraped-then-uploaded ordering into one
// page and splits it back per source.
func paginate(set domain.QuestionSet, page, pageSize int) ([]domain.QuestionRecord, []domain.QuestionRecord) {
	if pageSize <= 0 {
		return set.Scraped, set.Uploaded
	}
	combined := make([]domain.QuestionRecord, 0, len(set.Scraped)+len(set.Uploaded))
	combined = append(combined, set.Scraped...)
	combined = append(combined, set.Uploaded...)

	start := (page - 1) * pageSize
	if start >= len(combined) {
		return []domain.QuestionRecord{}, []domain.QuestionRecord{}
	}
	end := start + pageSize
	if end > len(combined) {
		end = len(combined)
	}

	scraped := make([]domain.QuestionRecord, 0, pageSize)
	uploaded := make([]domain.QuestionRecord, 0, pageSize)
	for _, record := range combined[start:end] {
		if record.SourceType == domain.SourceUploaded {
			uploaded = append(uploaded, record)
		} else {
			scraped = append(scraped, record)
		}
	}
	return scraped, uploaded
}

func (rt *Router) getFilters(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	filters, err := rt.questions.QueryFilters(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, filters)
}

func (rt *Router) exportQuestions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	session := rt.session(r)
	query := session.BuildQuery(domain.QuestionType(r.URL.Query().Get("question_type")))
	set, err := rt.questions.QueryQuestions(r.Context(), query)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="questions.xlsx"`)
	if err := rt.exporter.WriteQuestions(w, set); err != nil {
		// Status header is already on the wire; the truncated body is
		// the only failure signal left to the client.
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExport("api")
	}
}

// --- session and selection ---

func (rt *Router) session(r *http.Request) *usecase.SessionState {
	return rt.sessions.Acquire(domain.ClientSessionFromContext(r.Context()))
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, rt.session(r).Snapshot())
}

func (rt *Router) toggleSelection(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Action  string `json:"action"`
		Code    string `json:"code"`
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	session := rt.session(r)
	switch req.Action {
	case "toggle-theme":
		subject := req.Subject
		if subject == "" {
			subject = rt.cfg.DefaultSubject
		}
		groups, err := rt.taxonomy.Grouped(r.Context(), subject)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		var found bool
		for _, group := range groups {
			if group.Code == req.Code {
				session.ToggleTheme(group)
				found = true
				break
			}
		}
		if !found {
			writeError(w, http.StatusNotFound, "theme not found: "+req.Code)
			return
		}
	case "toggle-code", "":
		session.ToggleCode(req.Code)
	default:
		writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
		return
	}

	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (rt *Router) toggleCollection(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ID == 0 {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	session := rt.session(r)
	session.ToggleCollection(req.ID)
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (rt *Router) setSearch(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Term string `json:"term"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	session := rt.session(r)
	session.SetSearch(req.Term)
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (rt *Router) setPage(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Page int `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	session := rt.session(r)
	session.SetPage(req.Page)
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// --- collections ---

func (rt *Router) handleCollections(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		subject := r.URL.Query().Get("subject")
		if subject == "" {
			subject = rt.cfg.DefaultSubject
		}
		collections, err := rt.collections.ListCollections(r.Context(), subject)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"collections": collections})
	case http.MethodPost:
		var req struct {
			Name    string `json:"name"`
			Subject string `json:"subject"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if req.Subject == "" {
			req.Subject = rt.cfg.DefaultSubject
		}
		collection, err := rt.collections.CreateCollection(r.Context(), req.Name, req.Subject)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, collection)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (rt *Router) addCollectionDocument(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var doc domain.CollectionDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if doc.CollectionID == 0 || doc.DocumentName == "" {
		writeError(w, http.StatusBadRequest, "collection_id and document_name are required")
		return
	}

	added, err := rt.collections.AddDocument(r.Context(), doc)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"added": added})
}

// --- batch journal ---

func (rt *Router) getBatch(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if rt.journal == nil {
		writeError(w, http.StatusNotFound, "run journal is disabled")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/batches/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "batch id is required")
		return
	}

	run, docs, err := rt.journal.GetBatch(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": run, "documents": docs})
}

// --- helpers ---

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, mapErrorToHTTPStatus(err), err.Error())
}

func atoiOrZero(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
