package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"questmine/internal/core/domain"
)

// Rejection rules, reported per dropped item.
const (
	RuleTrailingMarks   = "trailing_marks"
	RuleBracketArtifact = "bracket_artifact"
	RuleChapterMatch    = "chapter_match"
)

// Rejection records one dropped CandidateQuestion and the rule that
// dropped it. The engine never fabricates corrections.
type Rejection struct {
	Item domain.CandidateQuestion
	Rule string
}

// ValidationReport is the outcome of running the rule set over one
// oracle result. An all-rejected report is still a successful pipeline
// step: Result is simply empty.
type ValidationReport struct {
	Result     domain.ExtractionResult
	Moved      int
	Rejections []Rejection
}

func (r ValidationReport) Rejected() int {
	return len(r.Rejections)
}

var trailingMarksRe = regexp.MustCompile(`\[(\d+)\]\s*$`)

// RuleEngine is the deterministic safety net around the untrusted
// generative step. It validates chapters against the exact "code
// title" lines that were rendered into the prompt.
type RuleEngine struct {
	chapters map[string]struct{}
}

func NewRuleEngine(nodes []domain.TaxonomyNode) *RuleEngine {
	chapters := make(map[string]struct{}, len(nodes))
	for _, node := range nodes {
		chapters[node.Line()] = struct{}{}
	}
	return &RuleEngine{chapters: chapters}
}

// Validate applies the rule set:
//  1. exam items must end with a trailing bracketed pure-integer token;
//     those without any bracket move to understanding, those with a
//     non-conforming bracket are rejected.
//  2. understanding items may not contain '[' or ']' anywhere.
//  3. every item's chapter must exactly match a taxonomy line.
//
// Rejected items are dropped, never repaired.
func (e *RuleEngine) Validate(result domain.ExtractionResult) ValidationReport {
	report := ValidationReport{
		Result: domain.ExtractionResult{
			Exam:          make([]domain.CandidateQuestion, 0, len(result.Exam)),
			Understanding: make([]domain.CandidateQuestion, 0, len(result.Understanding)),
		},
	}

	for _, item := range result.Exam {
		if !e.chapterKnown(item.Chapter) {
			report.reject(item, RuleChapterMatch)
			continue
		}
		if marks, ok := trailingMarks(item.Question); ok {
			item.Marks = &marks
			report.Result.Exam = append(report.Result.Exam, item)
			continue
		}
		if strings.ContainsAny(item.Question, "[]") {
			// A bracket that is not a trailing integer is an artifact,
			// e.g. a quoted "[Total: 30]".
			report.reject(item, RuleBracketArtifact)
			continue
		}
		item.Marks = nil
		report.Result.Understanding = append(report.Result.Understanding, item)
		report.Moved++
	}

	for _, item := range result.Understanding {
		if !e.chapterKnown(item.Chapter) {
			report.reject(item, RuleChapterMatch)
			continue
		}
		if strings.ContainsAny(item.Question, "[]") {
			report.reject(item, RuleBracketArtifact)
			continue
		}
		item.Marks = nil
		report.Result.Understanding = append(report.Result.Understanding, item)
	}

	return report
}

func (e *RuleEngine) chapterKnown(chapter string) bool {
	if chapter == "" {
		return false
	}
	_, ok := e.chapters[chapter]
	return ok
}

func (r *ValidationReport) reject(item domain.CandidateQuestion, rule string) {
	r.Rejections = append(r.Rejections, Rejection{Item: item, Rule: rule})
}

func trailingMarks(question string) (int, bool) {
	m := trailingMarksRe.FindStringSubmatch(question)
	if m == nil {
		return 0, false
	}
	marks, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return marks, true
}
