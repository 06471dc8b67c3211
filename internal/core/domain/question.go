package domain

import "time"

type SourceType string

const (
	SourceScraped  SourceType = "scraped"
	SourceUploaded SourceType = "uploaded"
)

type QuestionType string

const (
	QuestionExam          QuestionType = "exam"
	QuestionUnderstanding QuestionType = "understanding"
)

// CandidateQuestion is a single oracle-produced item. It is untrusted
// until it passes the validation rules: Marks is set only for exam
// items and Chapter must match a taxonomy "code title" line verbatim.
type CandidateQuestion struct {
	Chapter  string `json:"chapter"`
	Question string `json:"question"`
	Marks    *int   `json:"marks,omitempty"`
}

// ExtractionResult is the oracle's structured output for one document.
type ExtractionResult struct {
	Exam          []CandidateQuestion `json:"exam"`
	Understanding []CandidateQuestion `json:"understanding"`
}

// Empty reports whether the result carries no items at all. An empty
// validated result is still a successful pipeline step.
func (r ExtractionResult) Empty() bool {
	return len(r.Exam) == 0 && len(r.Understanding) == 0
}

// QuestionRecord is a persisted question as the backend returns it.
// The controller constructs and validates pre-persistence payloads but
// never owns storage.
type QuestionRecord struct {
	ID           int64        `json:"id"`
	QuestionType QuestionType `json:"question_type"`
	Subject      string       `json:"subject"`
	Category     string       `json:"category"`
	Year         int          `json:"year,omitempty"`
	Chapter      string       `json:"chapter"`
	QuestionText string       `json:"question_text"`
	Marks        *int         `json:"marks,omitempty"`
	SourceType   SourceType   `json:"source_type"`
	DocumentName string       `json:"document_name"`
	SourceLink   string       `json:"source_link,omitempty"`
	Collections  []int64      `json:"collections,omitempty"`
	CreatedAt    time.Time    `json:"created_at,omitempty"`
}

// QuestionSet mirrors the GET /questions response shape.
type QuestionSet struct {
	Scraped  []QuestionRecord `json:"scraped_questions"`
	Uploaded []QuestionRecord `json:"uploaded_questions"`
}

type SourceCounts struct {
	Scraped  int `json:"scraped"`
	Uploaded int `json:"uploaded"`
}

// QuestionFilters mirrors the GET /questions/filters response shape.
type QuestionFilters struct {
	Categories   []string     `json:"categories"`
	SourceCounts SourceCounts `json:"source_counts"`
}

// QuestionQuery is the derived filter parameter set for querying
// stored questions.
type QuestionQuery struct {
	Subject      string
	Category     string
	QuestionType QuestionType
	Search       string
	Subtopics    []string
	Collections  []int64
}

// Collection groups documents; membership is a set of
// (subject, source_type, document_name) tuples.
type Collection struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Subject        string `json:"subject"`
	DocumentsCount int    `json:"documents_count"`
}

// CollectionDocument identifies one document inside a collection.
type CollectionDocument struct {
	CollectionID int64      `json:"collection_id"`
	Subject      string     `json:"subject"`
	SourceType   SourceType `json:"source_type"`
	DocumentName string     `json:"document_name"`
}
