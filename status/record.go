// Package status is the pipeline's durable memory: one SQLite row per
// document recording how far extraction got, plus one row per run.
//
// Rows survive crashes and are never deleted by normal operation, which
// is what makes interrupted runs resumable. Only an explicit reset
// removes them.
package status

import (
	"time"

	"github.com/corvata/gleaner/errors"
)

// State is a document's terminal-visible pipeline state.
type State string

const (
	// StateQueued means selected for work but not yet picked up.
	StateQueued State = "queued"

	// StateInProgress means a worker owns the document right now. A
	// record stuck here with no live run behind it marks a crash and
	// is treated as resumable, never as done.
	StateInProgress State = "in_progress"

	// StateOK means extraction finished and artifacts are on disk.
	// Poor quality does not demote a document from ok; the quality
	// label rides alongside.
	StateOK State = "ok"

	// StateError means extraction failed with a classified error.
	StateError State = "error"
)

// IsValidState reports whether s is one of the four pipeline states.
func IsValidState(s State) bool {
	switch s {
	case StateQueued, StateInProgress, StateOK, StateError:
		return true
	}
	return false
}

// IsTerminal reports whether the state needs no further work this run.
func (s State) IsTerminal() bool {
	return s == StateOK || s == StateError
}

// Record is one document's row in the status store.
type Record struct {
	Key          string
	State        State
	CascadeState string
	LastStage    string
	Quality      string
	PageCount    int
	Error        string
	ErrorClass   string
	Retryable    bool
	RunID        string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	UpdatedAt    time.Time
}

// NewRecord returns a queued record for a never-attempted document.
func NewRecord(key string) *Record {
	return &Record{
		Key:          key,
		State:        StateQueued,
		CascadeState: "unattempted",
		UpdatedAt:    time.Now().UTC(),
	}
}

// Start marks the record as owned by run runID, clearing the residue of
// any earlier attempt.
func (r *Record) Start(runID string, now time.Time) {
	r.State = StateInProgress
	r.RunID = runID
	r.StartedAt = &now
	r.FinishedAt = nil
	r.Error = ""
	r.ErrorClass = ""
	r.Retryable = false
	r.UpdatedAt = now
}

// Advance records a completed cascade stage without finishing the
// document, so a crash right after resumes from here.
func (r *Record) Advance(cascadeState, lastStage string, pageCount int, now time.Time) {
	r.CascadeState = cascadeState
	r.LastStage = lastStage
	if pageCount > 0 {
		r.PageCount = pageCount
	}
	r.UpdatedAt = now
}

// Complete marks the record ok with its final quality label.
func (r *Record) Complete(quality string, now time.Time) {
	r.State = StateOK
	r.Quality = quality
	r.FinishedAt = &now
	r.Error = ""
	r.ErrorClass = ""
	r.Retryable = false
	r.UpdatedAt = now
}

// Fail records a classified failure. The taxonomy class and the
// retryable bit are derived from the error chain so a later run can
// tell quota trouble from a corrupt input.
func (r *Record) Fail(err error, now time.Time) {
	r.State = StateError
	r.Error = err.Error()
	r.ErrorClass = errors.ClassName(err)
	r.Retryable = errors.IsRetryable(err)
	r.FinishedAt = &now
	r.UpdatedAt = now
}

// Flagged reports whether the document finished ok but with a quality
// label a reader should review before trusting the text.
func (r *Record) Flagged() bool {
	return r.State == StateOK && r.Quality != "" && r.Quality != "ok"
}
