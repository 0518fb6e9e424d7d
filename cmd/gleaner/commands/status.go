package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/lock"
	"github.com/corvata/gleaner/logger"
	"github.com/corvata/gleaner/status"
)

// StatusCmd represents the status command - read-only view of the store
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show extraction state per document",
	Long: `Show extraction state per document.

Reads the status database directly, without taking the run lock, so it
is always safe while a run is in progress. With --watch the view
re-renders every time the pipeline publishes a fresh status.json.

Examples:
  gleaner status           # One-shot table
  gleaner status --json    # Full snapshot as JSON
  gleaner status --watch   # Live view during a run`,
	RunE: runStatus,
}

var statusResetCmd = &cobra.Command{
	Use:   "reset [keys...]",
	Short: "Forget extraction state so documents run again",
	Long: `Forget extraction state so documents run again.

Deletes the named documents' status rows. The next run treats them as
never attempted and starts from the embedded stage; artifacts on disk
are left alone and reused where their checkpoints are still valid.

Examples:
  gleaner status reset mueller1912     # Re-queue one document
  gleaner status reset --all           # Re-queue the whole corpus`,
	RunE: runStatusReset,
}

func init() {
	StatusCmd.Flags().Bool("watch", false, "Re-render when the pipeline publishes a new snapshot")
	statusResetCmd.Flags().Bool("all", false, "Reset every document")
	StatusCmd.AddCommand(statusResetCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	watch, _ := cmd.Flags().GetBool("watch")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dbPath := cfg.GetDatabasePath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Printf("No status database at %s (no extraction has run yet)\n", dbPath)
		return nil
	}

	database, err := openDatabaseReadOnly(cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	store := status.NewStore(database)

	ctx := cmd.Context()
	render := func() error {
		snap, err := store.BuildSnapshot(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal snapshot")
			}
			fmt.Println(string(data))
			return nil
		}
		renderSnapshot(snap)
		return nil
	}

	if err := render(); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := status.NewSnapshotWatcher(cfg.Paths.OutputDir, func() {
		if err := render(); err != nil {
			logger.Warnw("Status render failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	if !jsonOutput {
		fmt.Printf("\nWatching %s (Ctrl+C to stop)\n",
			filepath.Join(cfg.Paths.OutputDir, status.SnapshotName))
	}
	return watcher.Watch(ctx)
}

// renderSnapshot prints the per-document table and the summary line.
func renderSnapshot(snap *status.Snapshot) {
	if snap.Counts.Total == 0 {
		fmt.Println("No documents tracked yet")
		return
	}

	fmt.Printf("%-30s %-12s %-9s %-9s %6s  %s\n", "KEY", "STATE", "QUALITY", "STAGE", "PAGES", "UPDATED")
	fmt.Printf("%-30s %-12s %-9s %-9s %6s  %s\n", "---", "-----", "-------", "-----", "-----", "-------")
	for _, d := range snap.Documents {
		qual := d.Quality
		if qual == "" {
			qual = "-"
		}
		stage := d.LastStage
		if stage == "" {
			stage = "-"
		}
		fmt.Printf("%-30s %-12s %-9s %-9s %6d  %s\n",
			d.Key, d.State, qual, stage, d.PageCount, d.UpdatedAt)
		if d.Error != "" {
			detail := d.Error
			if len(detail) > 70 {
				detail = detail[:67] + "..."
			}
			retry := ""
			if d.Retryable {
				retry = ", retryable"
			}
			fmt.Printf("%-30s   %s error%s: %s\n", "", d.ErrorClass, retry, detail)
		}
	}

	c := snap.Counts
	fmt.Printf("\nTotal: %d  queued: %d  in progress: %d  ok: %d  flagged: %d  errors: %d\n",
		c.Total, c.Queued, c.InProgress, c.OK, c.Flagged, c.Errors)
}

func runStatusReset(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if all && len(args) > 0 {
		return errors.New("--all cannot be combined with keys")
	}
	if !all && len(args) == 0 {
		return errors.New("name the keys to reset, or pass --all")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// A live run caches its record view at startup, so resetting under
	// it produces confusing half-states. Warn, do not refuse.
	if info, err := lock.Inspect(cfg.GetLockDir()); err == nil {
		fmt.Printf("Warning: run %s (pid %d on %s) appears to be active\n",
			info.RunID, info.PID, info.Hostname)
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	store := status.NewStore(database)

	ctx := cmd.Context()
	var n int64
	if all {
		n, err = store.ResetAll(ctx)
	} else {
		n, err = store.ResetKeys(ctx, args)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Reset %d document(s); the next run treats them as new\n", n)
	return nil
}
