package status

import (
	"context"
	"database/sql"
	"time"

	"github.com/corvata/gleaner/errors"
)

// Run is one pipeline run's row. A row whose FinishedAt is nil belongs
// to a run that is still active or crashed.
type Run struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    *time.Time
	Workers       int
	VisionEnabled bool
	Forced        bool
	DocsTotal     int
	DocsOK        int
	DocsError     int
	DocsFlagged   int
	VisionPages   int
	VisionCostUSD float64
}

// CreateRun inserts the run row at dispatch time, before any document
// is touched, so an operator can see what a crashed run was attempting.
func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, workers, vision_enabled, forced, docs_total)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt, r.Workers, r.VisionEnabled, r.Forced, r.DocsTotal,
	)
	if err != nil {
		return errors.Wrapf(err, "create run %s", r.ID)
	}
	return nil
}

// FinalizeRun writes the outcome counters and closes the row.
func (s *Store) FinalizeRun(ctx context.Context, r *Run) error {
	if r.FinishedAt == nil {
		now := time.Now().UTC()
		r.FinishedAt = &now
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at     = ?,
			docs_total      = ?,
			docs_ok         = ?,
			docs_error      = ?,
			docs_flagged    = ?,
			vision_pages    = ?,
			vision_cost_usd = ?
		WHERE id = ?`,
		*r.FinishedAt, r.DocsTotal, r.DocsOK, r.DocsError, r.DocsFlagged,
		r.VisionPages, r.VisionCostUSD, r.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "finalize run %s", r.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "finalize run %s", r.ID)
	}
	if n == 0 {
		return errors.NewNotFoundError("run %s was never created", r.ID)
	}
	return nil
}

// LastRun returns the most recently started run, or ErrNotFound when
// the store has never seen one.
func (s *Store) LastRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, workers, vision_enabled, forced,
		       docs_total, docs_ok, docs_error, docs_flagged, vision_pages, vision_cost_usd
		FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no runs recorded")
	}
	if err != nil {
		return nil, errors.Wrap(err, "get last run")
	}
	return run, nil
}

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, workers, vision_enabled, forced,
		       docs_total, docs_ok, docs_error, docs_flagged, vision_pages, vision_cost_usd
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("run %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get run %s", id)
	}
	return run, nil
}

func scanRun(row scanner) (*Run, error) {
	var (
		run        Run
		finishedAt sql.NullTime
	)
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&finishedAt,
		&run.Workers,
		&run.VisionEnabled,
		&run.Forced,
		&run.DocsTotal,
		&run.DocsOK,
		&run.DocsError,
		&run.DocsFlagged,
		&run.VisionPages,
		&run.VisionCostUSD,
	)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
