package status

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/corvata/gleaner/config"
	"github.com/corvata/gleaner/errors"
)

// SnapshotName is the JSON export's file name inside the output dir.
const SnapshotName = "status.json"

// Snapshot is the machine-readable status export for dashboards and
// scripts that should not open the SQLite file directly.
type Snapshot struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Counts      snapshotCounts     `json:"counts"`
	Documents   []snapshotDocument `json:"documents"`
}

type snapshotCounts struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	InProgress int `json:"in_progress"`
	OK         int `json:"ok"`
	Errors     int `json:"errors"`
	Flagged    int `json:"flagged"`
}

type snapshotDocument struct {
	Key        string `json:"key"`
	State      string `json:"state"`
	Quality    string `json:"quality,omitempty"`
	LastStage  string `json:"last_stage,omitempty"`
	PageCount  int    `json:"page_count,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

// BuildSnapshot assembles the export from the store's current rows,
// sorted by key.
func (s *Store) BuildSnapshot(ctx context.Context) (*Snapshot, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	snap := &Snapshot{
		GeneratedAt: time.Now().UTC(),
		Documents:   make([]snapshotDocument, 0, len(records)),
	}
	for _, k := range keys {
		r := records[k]
		snap.Counts.Total++
		switch r.State {
		case StateQueued:
			snap.Counts.Queued++
		case StateInProgress:
			snap.Counts.InProgress++
		case StateOK:
			snap.Counts.OK++
		case StateError:
			snap.Counts.Errors++
		}
		if r.Flagged() {
			snap.Counts.Flagged++
		}
		snap.Documents = append(snap.Documents, snapshotDocument{
			Key:        r.Key,
			State:      string(r.State),
			Quality:    r.Quality,
			LastStage:  r.LastStage,
			PageCount:  r.PageCount,
			Error:      r.Error,
			ErrorClass: r.ErrorClass,
			Retryable:  r.Retryable,
			RunID:      r.RunID,
			UpdatedAt:  r.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return snap, nil
}

// WriteSnapshot exports the whole store to outputDir/status.json. The
// write goes through a temp file and rename so watchers never read a
// half-written export.
func (s *Store) WriteSnapshot(ctx context.Context, outputDir string) error {
	snap, err := s.BuildSnapshot(ctx)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, config.DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "create output dir %s", outputDir)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal status snapshot")
	}
	data = append(data, '\n')

	path := filepath.Join(outputDir, SnapshotName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "write status snapshot %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "publish status snapshot %s", path)
	}
	return nil
}
