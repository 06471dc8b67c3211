package usecase

import (
	"testing"
	"time"

	"questmine/internal/core/domain"
)

var testGroup = domain.ThemeGroup{
	Code:  "1",
	Title: "The Price Mechanism",
	Subthemes: []domain.TaxonomyNode{
		{Code: "1.1", Title: "Demand and Supply"},
		{Code: "1.2", Title: "Elasticity"},
	},
}

func TestAcquireIssuesStableSessionID(t *testing.T) {
	registry := NewSessionRegistry(0, 10, time.Minute)

	first := registry.Acquire("")
	if first.ID() == "" {
		t.Fatalf("expected generated session id")
	}
	again := registry.Acquire(first.ID())
	if again != first {
		t.Fatalf("expected same session state for same id")
	}
	other := registry.Acquire("")
	if other.ID() == first.ID() {
		t.Fatalf("expected distinct session ids")
	}
}

func TestToggleThemeIsAtomic(t *testing.T) {
	state := newSessionState("s", 0, 10)

	if !state.ToggleTheme(testGroup) {
		t.Fatalf("first toggle must select")
	}
	query := state.BuildQuery(domain.QuestionExam)
	if len(query.Subtopics) != 3 {
		t.Fatalf("expected theme + 2 subthemes selected, got %v", query.Subtopics)
	}
	if query.Subtopics[0] != "1" || query.Subtopics[1] != "1.1" || query.Subtopics[2] != "1.2" {
		t.Fatalf("subtopics not in code order: %v", query.Subtopics)
	}

	if state.ToggleTheme(testGroup) {
		t.Fatalf("second toggle must clear")
	}
	if got := state.BuildQuery(domain.QuestionExam).Subtopics; len(got) != 0 {
		t.Fatalf("expected empty selection, got %v", got)
	}
}

func TestToggleThemeSelectsAllWhenPartiallySelected(t *testing.T) {
	state := newSessionState("s", 0, 10)
	state.ToggleCode("1.1")

	if !state.ToggleTheme(testGroup) {
		t.Fatalf("partial selection must upgrade to full")
	}
	if len(state.BuildQuery("").Subtopics) != 3 {
		t.Fatalf("expected full selection")
	}
}

func TestThemeStateIsDerived(t *testing.T) {
	state := newSessionState("s", 0, 10)

	if got := state.ThemeState(testGroup); got != SelectionNone {
		t.Fatalf("expected none, got %q", got)
	}
	state.ToggleCode("1.1")
	if got := state.ThemeState(testGroup); got != SelectionPartial {
		t.Fatalf("expected partial, got %q", got)
	}
	state.ToggleCode("1.2")
	if got := state.ThemeState(testGroup); got != SelectionAll {
		t.Fatalf("expected all, got %q", got)
	}
}

func TestSearchDebounceAppliesFinalValueOnce(t *testing.T) {
	state := newSessionState("s", 20*time.Millisecond, 10)

	for _, term := range []string{"d", "de", "dem", "demand"} {
		state.SetSearch(term)
		time.Sleep(2 * time.Millisecond)
	}
	if got := state.EffectiveSearch(); got != "" {
		t.Fatalf("search must not apply inside the debounce window, got %q", got)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if state.EffectiveSearch() == "demand" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("debounced search never applied, got %q", state.EffectiveSearch())
}

func TestPaginationClampsToResultSet(t *testing.T) {
	state := newSessionState("s", 0, 10)
	state.SetResultCount(35)

	if got := state.SetPage(4); got != 4 {
		t.Fatalf("page 4 of 4 must be reachable, got %d", got)
	}
	if got := state.SetPage(99); got != 4 {
		t.Fatalf("expected clamp to last page, got %d", got)
	}
	if got := state.SetPage(0); got != 1 {
		t.Fatalf("expected clamp to first page, got %d", got)
	}

	state.SetPage(4)
	state.SetResultCount(11)
	page, pageCount := state.Page()
	if page != 2 || pageCount != 2 {
		t.Fatalf("expected page clamped to 2 of 2, got %d of %d", page, pageCount)
	}

	state.SetResultCount(0)
	if page, _ := state.Page(); page != 1 {
		t.Fatalf("empty result set must sit on page 1, got %d", page)
	}
}

func TestToggleCollectionIndependentOfCodes(t *testing.T) {
	state := newSessionState("s", 0, 10)
	state.ToggleCode("1.1")

	if !state.ToggleCollection(7) {
		t.Fatalf("expected collection selected")
	}
	query := state.BuildQuery("")
	if len(query.Collections) != 1 || query.Collections[0] != 7 {
		t.Fatalf("unexpected collections %v", query.Collections)
	}
	if state.ToggleCollection(7) {
		t.Fatalf("expected collection cleared")
	}
	if len(state.BuildQuery("").Subtopics) != 1 {
		t.Fatalf("code selection must survive collection toggles")
	}
}

func TestSnapshotCarriesDerivedState(t *testing.T) {
	state := newSessionState("s", 0, 10)
	state.SetSubject("H2 Economics", "GCE A Level")
	state.SetSearch("trade")
	state.SetResultCount(25)

	snap := state.Snapshot()
	if snap.Category != domain.CanonicalExamCategory {
		t.Fatalf("expected canonical category, got %q", snap.Category)
	}
	if snap.EffectiveSearch != "trade" {
		t.Fatalf("zero debounce must apply immediately, got %q", snap.EffectiveSearch)
	}
	if snap.PageCount != 3 {
		t.Fatalf("expected 3 pages, got %d", snap.PageCount)
	}
}
