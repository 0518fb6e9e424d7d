package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corvata/gleaner/artifacts"
	"github.com/corvata/gleaner/budget"
	"github.com/corvata/gleaner/corpus"
	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/logger"
	"github.com/corvata/gleaner/pipeline"
	"github.com/corvata/gleaner/quality"
	"github.com/corvata/gleaner/stage"
	"github.com/corvata/gleaner/status"
)

// ExtractCmd represents the extract command - one full pipeline run
var ExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run the extraction cascade over the corpus",
	Long: `Run the extraction cascade over the corpus.

Each selected document moves through embedded-text extraction, then OCR
if the embedded layer is thin, then (with --vision) a paid cloud vision
pass for pages nothing else could read. Every stage is checkpointed to
disk and the status database, so Ctrl+C is safe: the next run resumes
from the last completed stage.

Documents already extracted (state ok) and documents that errored are
skipped until --force. A dry run prints the plan, including the vision
page count and cost ceiling, without taking the lock or writing anything.

Examples:
  gleaner extract                     # Everything not yet done
  gleaner extract --workers 8         # More concurrency
  gleaner extract --keys smith1969    # One document
  gleaner extract --vision --dry-run  # Price the vision work first
  gleaner extract --force --keys bad1 # Retry a documented failure`,
	RunE: runExtract,
}

func init() {
	ExtractCmd.Flags().Int("workers", 0, "Concurrent document workers (0 = config value)")
	ExtractCmd.Flags().StringSlice("keys", nil, "Only process these manifest keys")
	ExtractCmd.Flags().Int("limit", 0, "Process at most N documents (0 = no limit)")
	ExtractCmd.Flags().Bool("force", false, "Re-run documents that are already ok or errored")
	ExtractCmd.Flags().Bool("vision", false, "Enable the paid cloud vision stage")
	ExtractCmd.Flags().Bool("dry-run", false, "Print the plan without locking or writing anything")
}

func runExtract(cmd *cobra.Command, args []string) error {
	workers, _ := cmd.Flags().GetInt("workers")
	keys, _ := cmd.Flags().GetStringSlice("keys")
	limit, _ := cmd.Flags().GetInt("limit")
	force, _ := cmd.Flags().GetBool("force")
	vision, _ := cmd.Flags().GetBool("vision")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	verbosity, _ := cmd.Flags().GetCount("verbose")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration invalid")
	}

	manifest, err := corpus.LoadManifest(cfg.Paths.Manifest)
	if err != nil {
		return errors.Wrap(err, "failed to load manifest")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	// Ctrl+C cancels the run context. Dispatch stops, documents already
	// in a stage finish that stage and persist, then the run summarizes.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := stage.ExecRunner{}
	ocr, err := stage.NewOCR(cfg.Stages, runner)
	if err != nil {
		return err
	}
	stages := pipeline.Stages{
		Embedded: stage.NewEmbedded(cfg.Stages, runner),
		OCR:      ocr,
	}

	tracker := budget.NewTracker(cfg.Vision.CostPerPageUSD, cfg.Vision.RunBudgetUSD)

	// The vision client needs credentials, so it is only constructed for
	// a real vision run. Dry runs price the plan from artifacts alone.
	if vision && !dryRun {
		v, err := stage.NewVision(ctx, cfg.Vision, cfg.Stages, runner, tracker)
		if err != nil {
			return err
		}
		defer v.Close()
		stages.Vision = v
	}

	statuses := status.NewStore(database)
	art := artifacts.NewStore(cfg.Paths.OutputDir)
	cascade := pipeline.NewCascade(stages, quality.FromConfig(cfg.Quality), statuses, art, cfg.Paths.CorpusDir)

	poolCfg := cfg.Pipeline
	if workers > 0 {
		poolCfg.Workers = workers
	}
	pool := pipeline.NewPool(poolCfg)

	var emitter pipeline.Emitter
	if jsonOutput {
		emitter = pipeline.NewJSONEmitter(os.Stdout)
	} else {
		emitter = pipeline.NewCLIEmitter(verbosity)
	}

	driver := pipeline.NewDriver(cfg, manifest, statuses, cascade, pool, tracker, emitter, runner)
	summary, err := driver.Run(ctx, pipeline.RunConfig{
		Vision: vision,
		Force:  force,
		DryRun: dryRun,
		Keys:   keys,
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	logger.Debugw("run summary",
		"run_id", summary.RunID,
		"ok", summary.OK,
		"errors", summary.Errors,
		"interrupted", summary.Interrupted)
	return nil
}
