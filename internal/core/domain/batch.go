package domain

import "time"

// BatchState is the per-document pipeline state. Failed is reachable
// from any state.
type BatchState string

const (
	StateIdle             BatchState = "idle"
	StateSyncingContext   BatchState = "syncing_context"
	StateFetchingTaxonomy BatchState = "fetching_taxonomy"
	StateAwaitingModel    BatchState = "awaiting_model"
	StateValidating       BatchState = "validating"
	StatePersisting       BatchState = "persisting"
	StateDone             BatchState = "done"
	StateFailed           BatchState = "failed"
)

// Batch is one sequential extraction run over an ordered document
// list. Generation is the supersession guard: results completing under
// a stale generation are discarded instead of posted.
type Batch struct {
	ID         string
	Generation uint64
	Subject    string
	Category   string
	Year       int
	SourceType SourceType
	Documents  []DocumentPayload
}

// BatchRun is the journal record of a batch.
type BatchRun struct {
	ID             string
	Generation     uint64
	Subject        string
	Category       string
	SourceType     SourceType
	DocumentsTotal int
	State          BatchState
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DocumentRun is the journal record of one document inside a batch.
type DocumentRun struct {
	BatchID               string
	Position              int
	DocumentName          string
	State                 BatchState
	Error                 string
	ExamAccepted          int
	UnderstandingAccepted int
	Rejected              int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
