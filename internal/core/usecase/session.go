package usecase

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"questmine/internal/core/domain"
)

// TriState is the derived theme-checkbox state. It is computed from
// the selected set on demand and never stored.
type TriState string

const (
	SelectionNone    TriState = "none"
	SelectionPartial TriState = "partial"
	SelectionAll     TriState = "all"
)

// SessionRegistry tracks per-client-session selection state. A session
// identifier is issued once per browser and attached to every request;
// entries expire after the configured idle TTL.
type SessionRegistry struct {
	sessions *gocache.Cache
	debounce time.Duration
	pageSize int
	ttl      time.Duration
}

func NewSessionRegistry(debounce time.Duration, pageSize int, ttl time.Duration) *SessionRegistry {
	if pageSize <= 0 {
		pageSize = 10
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionRegistry{
		sessions: gocache.New(ttl, ttl),
		debounce: debounce,
		pageSize: pageSize,
		ttl:      ttl,
	}
}

// Acquire returns the state for id, creating a fresh session when the
// id is empty or unknown. The returned id is authoritative: handlers
// echo it back so the client can persist it.
func (r *SessionRegistry) Acquire(id string) *SessionState {
	if id != "" {
		if cached, ok := r.sessions.Get(id); ok {
			state := cached.(*SessionState)
			r.sessions.Set(id, state, r.ttl)
			return state
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	state := newSessionState(id, r.debounce, r.pageSize)
	r.sessions.Set(id, state, r.ttl)
	return state
}

// SessionState is one browser session's selection, search and
// pagination state. All methods are safe for concurrent use: the
// debounced search may fire while an extraction is in flight.
type SessionState struct {
	mu sync.Mutex

	id       string
	subject  string
	category string

	selectedCodes       map[string]struct{}
	selectedCollections map[int64]struct{}

	searchInput     string
	effectiveSearch string
	debounce        time.Duration
	debounceTimer   *time.Timer

	pageSize    int
	page        int
	resultCount int
}

func newSessionState(id string, debounce time.Duration, pageSize int) *SessionState {
	return &SessionState{
		id:                  id,
		selectedCodes:       make(map[string]struct{}),
		selectedCollections: make(map[int64]struct{}),
		debounce:            debounce,
		pageSize:            pageSize,
		page:                1,
	}
}

func (s *SessionState) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *SessionState) SetSubject(subject, category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subject = strings.TrimSpace(subject)
	s.category = domain.NormalizeCategory(category)
}

func (s *SessionState) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// ToggleCode flips a single taxonomy code and reports whether it is
// selected afterwards.
func (s *SessionState) ToggleCode(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.selectedCodes[code]; ok {
		delete(s.selectedCodes, code)
		return false
	}
	s.selectedCodes[code] = struct{}{}
	return true
}

// ToggleTheme flips a theme atomically: its own code plus every
// subtheme code. Fully selected themes clear; anything less selects
// the whole set.
func (s *SessionState) ToggleTheme(group domain.ThemeGroup) bool {
	codes := group.DescendantCodes()

	s.mu.Lock()
	defer s.mu.Unlock()

	all := true
	for _, code := range codes {
		if _, ok := s.selectedCodes[code]; !ok {
			all = false
			break
		}
	}
	if all {
		for _, code := range codes {
			delete(s.selectedCodes, code)
		}
		return false
	}
	for _, code := range codes {
		s.selectedCodes[code] = struct{}{}
	}
	return true
}

// ThemeState derives the checkbox state from selected subtheme codes
// against the group's total. Themes without subthemes fall back to
// their own code.
func (s *SessionState) ThemeState(group domain.ThemeGroup) TriState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(group.Subthemes) == 0 {
		if _, ok := s.selectedCodes[group.Code]; ok {
			return SelectionAll
		}
		return SelectionNone
	}

	selected := 0
	for _, sub := range group.Subthemes {
		if _, ok := s.selectedCodes[sub.Code]; ok {
			selected++
		}
	}
	switch {
	case selected == 0:
		return SelectionNone
	case selected == len(group.Subthemes):
		return SelectionAll
	default:
		return SelectionPartial
	}
}

// ToggleCollection flips a collection id in the independent collection
// selection set.
func (s *SessionState) ToggleCollection(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.selectedCollections[id]; ok {
		delete(s.selectedCollections, id)
		return false
	}
	s.selectedCollections[id] = struct{}{}
	return true
}

// SetSearch records a keystroke. The effective search term updates
// only once the input has been stable for the debounce interval, so a
// burst of keystrokes yields a single query with the final value.
func (s *SessionState) SetSearch(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.searchInput = term
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	if s.debounce <= 0 {
		s.applySearchLocked(term)
		return
	}
	s.debounceTimer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.searchInput == term {
			s.applySearchLocked(term)
		}
	})
}

func (s *SessionState) applySearchLocked(term string) {
	if s.effectiveSearch != term {
		s.effectiveSearch = term
		s.page = 1
	}
}

func (s *SessionState) EffectiveSearch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveSearch
}

// SetResultCount records the displayed result-set size and clamps the
// current page back into range.
func (s *SessionState) SetResultCount(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count < 0 {
		count = 0
	}
	s.resultCount = count
	s.page = clampPage(s.page, count, s.pageSize)
}

func (s *SessionState) SetPage(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = clampPage(page, s.resultCount, s.pageSize)
	return s.page
}

func (s *SessionState) Page() (page, pageCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page, pageCountFor(s.resultCount, s.pageSize)
}

// BuildQuery derives the backend filter parameters from the current
// selection state.
func (s *SessionState) BuildQuery(questionType domain.QuestionType) domain.QuestionQuery {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make([]string, 0, len(s.selectedCodes))
	for code := range s.selectedCodes {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		return domain.CompareCodes(codes[i], codes[j]) < 0
	})

	collections := make([]int64, 0, len(s.selectedCollections))
	for id := range s.selectedCollections {
		collections = append(collections, id)
	}
	sort.Slice(collections, func(i, j int) bool { return collections[i] < collections[j] })

	return domain.QuestionQuery{
		Subject:      s.subject,
		Category:     s.category,
		QuestionType: questionType,
		Search:       s.effectiveSearch,
		Subtopics:    codes,
		Collections:  collections,
	}
}

// Snapshot is the selection state as returned to the client.
type SessionSnapshot struct {
	ID                  string   `json:"id"`
	Subject             string   `json:"subject"`
	Category            string   `json:"category"`
	SelectedCodes       []string `json:"selected_codes"`
	SelectedCollections []int64  `json:"selected_collections"`
	SearchInput         string   `json:"search_input"`
	EffectiveSearch     string   `json:"effective_search"`
	Page                int      `json:"page"`
	PageCount           int      `json:"page_count"`
	PageSize            int      `json:"page_size"`
}

func (s *SessionState) Snapshot() SessionSnapshot {
	query := s.BuildQuery("")

	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		ID:                  s.id,
		Subject:             s.subject,
		Category:            s.category,
		SelectedCodes:       query.Subtopics,
		SelectedCollections: query.Collections,
		SearchInput:         s.searchInput,
		EffectiveSearch:     s.effectiveSearch,
		Page:                s.page,
		PageCount:           pageCountFor(s.resultCount, s.pageSize),
		PageSize:            s.pageSize,
	}
}

func clampPage(page, count, pageSize int) int {
	max := pageCountFor(count, pageSize)
	if page < 1 {
		return 1
	}
	if page > max {
		return max
	}
	return page
}

func pageCountFor(count, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 1
	}
	pages := (count + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}
