package status

import (
	"context"

	"github.com/corvata/gleaner/errors"
)

// Summary is the aggregate view the status command and run reports
// print. Flagged counts documents that finished ok but carry a quality
// label worth a human look.
type Summary struct {
	Total      int
	Queued     int
	InProgress int
	OK         int
	Errors     int
	Flagged    int
	Retryable  int
	ByQuality  map[string]int
	ByClass    map[string]int
}

// Summarize aggregates the whole store in SQL so the status command
// stays cheap even with a large corpus.
func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		ByQuality: make(map[string]int),
		ByClass:   make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM documents GROUP BY state`)
	if err != nil {
		return nil, errors.Wrap(err, "summarize states")
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, errors.Wrap(err, "scan state count")
		}
		sum.Total += n
		switch State(state) {
		case StateQueued:
			sum.Queued = n
		case StateInProgress:
			sum.InProgress = n
		case StateOK:
			sum.OK = n
		case StateError:
			sum.Errors = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate state counts")
	}

	qrows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(quality, ''), COUNT(*) FROM documents WHERE state = ? GROUP BY quality`,
		string(StateOK))
	if err != nil {
		return nil, errors.Wrap(err, "summarize quality")
	}
	defer qrows.Close()
	for qrows.Next() {
		var label string
		var n int
		if err := qrows.Scan(&label, &n); err != nil {
			return nil, errors.Wrap(err, "scan quality count")
		}
		if label == "" {
			continue
		}
		sum.ByQuality[label] = n
		if label != "ok" {
			sum.Flagged += n
		}
	}
	if err := qrows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate quality counts")
	}

	crows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(error_class, ''), COUNT(*), SUM(retryable) FROM documents WHERE state = ? GROUP BY error_class`,
		string(StateError))
	if err != nil {
		return nil, errors.Wrap(err, "summarize error classes")
	}
	defer crows.Close()
	for crows.Next() {
		var class string
		var n, retryable int
		if err := crows.Scan(&class, &n, &retryable); err != nil {
			return nil, errors.Wrap(err, "scan error class count")
		}
		if class != "" {
			sum.ByClass[class] = n
		}
		sum.Retryable += retryable
	}
	if err := crows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate error class counts")
	}

	return sum, nil
}
