package status

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/corvata/gleaner/errors"
)

// Store persists document records and run rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an already-opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const recordColumns = `key, state, cascade_state, last_stage, quality, page_count,
	error, error_class, retryable, run_id, started_at, finished_at, updated_at`

// Get retrieves one document's record. ErrNotFound when the document
// was never attempted.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM documents WHERE key = ?`, key)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no status for document %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get status for %s", key)
	}
	return rec, nil
}

// Load returns every record keyed by document.
func (s *Store) Load(ctx context.Context) (map[string]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM documents`)
	if err != nil {
		return nil, errors.Wrap(err, "load status records")
	}
	defer rows.Close()

	records := make(map[string]*Record)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan status record")
		}
		records[rec.Key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate status records")
	}
	return records, nil
}

// Upsert writes the record, inserting on first contact with a document
// and replacing the row afterwards. The write is idempotent so workers
// can persist after every stage without bookkeeping.
func (s *Store) Upsert(ctx context.Context, r *Record) error {
	query := `
		INSERT INTO documents (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			state         = excluded.state,
			cascade_state = excluded.cascade_state,
			last_stage    = excluded.last_stage,
			quality       = excluded.quality,
			page_count    = excluded.page_count,
			error         = excluded.error,
			error_class   = excluded.error_class,
			retryable     = excluded.retryable,
			run_id        = excluded.run_id,
			started_at    = excluded.started_at,
			finished_at   = excluded.finished_at,
			updated_at    = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.Key,
		string(r.State),
		r.CascadeState,
		nullStr(r.LastStage),
		nullStr(r.Quality),
		nullInt(r.PageCount),
		nullStr(r.Error),
		nullStr(r.ErrorClass),
		r.Retryable,
		nullStr(r.RunID),
		nullTime(r.StartedAt),
		nullTime(r.FinishedAt),
		r.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert status for %s", r.Key)
	}
	return nil
}

// ResetKeys deletes the named documents' rows so the next run treats
// them as never attempted. Returns how many rows went away.
func (s *Store) ResetKeys(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, errors.Wrap(err, "reset status records")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "count reset records")
	}
	return n, nil
}

// ResetAll wipes every document row. Run rows are kept for history.
func (s *Store) ResetAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents`)
	if err != nil {
		return 0, errors.Wrap(err, "reset all status records")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "count reset records")
	}
	return n, nil
}

// scanner lets scanRecord serve both QueryRow and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec        Record
		state      string
		lastStage  sql.NullString
		quality    sql.NullString
		pageCount  sql.NullInt64
		errMsg     sql.NullString
		errClass   sql.NullString
		runID      sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := row.Scan(
		&rec.Key,
		&state,
		&rec.CascadeState,
		&lastStage,
		&quality,
		&pageCount,
		&errMsg,
		&errClass,
		&rec.Retryable,
		&runID,
		&startedAt,
		&finishedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.State = State(state)
	rec.LastStage = lastStage.String
	rec.Quality = quality.String
	rec.PageCount = int(pageCount.Int64)
	rec.Error = errMsg.String
	rec.ErrorClass = errClass.String
	rec.RunID = runID.String
	if startedAt.Valid {
		t := startedAt.Time
		rec.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		rec.FinishedAt = &t
	}
	return &rec, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n > 0}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
