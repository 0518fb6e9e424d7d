package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corvata/gleaner/budget"
	"github.com/corvata/gleaner/config"
	"github.com/corvata/gleaner/corpus"
	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/lock"
	"github.com/corvata/gleaner/logger"
	"github.com/corvata/gleaner/quality"
	"github.com/corvata/gleaner/stage"
	"github.com/corvata/gleaner/status"
)

// RunConfig is what one invocation asked for, after flag parsing.
type RunConfig struct {
	Vision bool
	Force  bool
	DryRun bool
	Keys   []string
	Limit  int
}

// RunSummary is the run's final tally.
type RunSummary struct {
	RunID   string
	Total   int // work set size after filters
	Skipped int // selected but already terminal and not forced

	OK      int
	Flagged int // subset of OK with a non-ok quality label
	Errors  int

	VisionPages   int
	VisionCostUSD float64

	// Dry-run fields: the plan instead of results.
	DryRun             bool
	PlannedVisionPages int
	PlannedCostUSD     float64

	Interrupted bool
	Elapsed     time.Duration
}

// PlannedDocument is one dry-run line: what the cascade would do next
// for this document, judged from its current artifacts.
type PlannedDocument struct {
	Key          string
	PlannedStage string
	VisionPages  int
}

// Driver owns a whole run: work-set selection, startup validation, the
// exclusive lock, dispatch, and the final summary.
type Driver struct {
	cfg      *config.Config
	manifest *corpus.Manifest
	statuses *status.Store
	cascade  *Cascade
	pool     *Pool
	tracker  *budget.Tracker
	emitter  Emitter
	log      *zap.SugaredLogger

	timeNow      func() time.Time
	newRunID     func() string
	lookupBinary func(name string) error
	verifyLangs  func(ctx context.Context, codes []string) error
}

// NewDriver wires a run driver. runner is the subprocess runner used
// for startup validation (the stages carry their own).
func NewDriver(cfg *config.Config, manifest *corpus.Manifest, statuses *status.Store, cascade *Cascade, pool *Pool, tracker *budget.Tracker, emitter Emitter, runner stage.Runner) *Driver {
	tesseract := cfg.Stages.TesseractBinary
	if tesseract == "" {
		tesseract = "tesseract"
	}
	return &Driver{
		cfg:          cfg,
		manifest:     manifest,
		statuses:     statuses,
		cascade:      cascade,
		pool:         pool,
		tracker:      tracker,
		emitter:      emitter,
		log:          logger.ComponentLogger("pipeline.driver"),
		timeNow:      time.Now,
		newRunID:     uuid.NewString,
		lookupBinary: stage.LookupBinary,
		verifyLangs: func(ctx context.Context, codes []string) error {
			return stage.VerifyLanguages(ctx, runner, tesseract, codes)
		},
	}
}

// Run executes one pipeline run to completion. Document-level failures
// are data in the summary, not errors; Run itself errors only when the
// run could not proceed at all (bad keys, failed validation, lock held,
// store trouble).
func (d *Driver) Run(ctx context.Context, rc RunConfig) (*RunSummary, error) {
	runID := d.newRunID()
	started := d.timeNow()

	docs, err := d.manifest.Select(rc.Keys)
	if err != nil {
		return nil, errors.AsInput(err)
	}

	if rc.DryRun {
		return d.dryRun(ctx, runID, started, docs, rc)
	}

	// Everything that can be checked without touching shared state is
	// checked before the lock, so a misconfigured run never blocks a
	// healthy one.
	if err := d.validate(ctx, docs, rc); err != nil {
		return nil, err
	}

	lk, err := lock.Acquire(d.cfg.GetLockDir(), runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lk.Release(); err != nil {
			d.log.Warnw("lock release failed", logger.FieldError, err)
		}
	}()
	lk.StartHeartbeat(ctx, d.cfg.Lock.HeartbeatInterval())

	records, err := d.statuses.Load(ctx)
	if err != nil {
		return nil, err
	}
	work, skipped := selectWork(docs, records, rc.Force)
	if rc.Limit > 0 && len(work) > rc.Limit {
		work = work[:rc.Limit]
	}

	run := &status.Run{
		ID:            runID,
		StartedAt:     started.UTC(),
		Workers:       d.pool.Workers(),
		VisionEnabled: rc.Vision,
		Forced:        rc.Force,
		DocsTotal:     len(work),
	}
	if err := d.statuses.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	d.log.Infow("run starting",
		logger.FieldRunID, runID,
		logger.FieldCount, len(work),
		logger.FieldWorkers, d.pool.Workers(),
		"vision", rc.Vision,
		"forced", rc.Force,
		"skipped", skipped)
	d.emitter.RunStarted(runID, len(work), d.pool.Workers(), rc.Vision, false)

	byKey := make(map[string]corpus.Document, len(work))
	keys := make([]string, 0, len(work))
	for _, doc := range work {
		byKey[doc.Key] = doc
		keys = append(keys, doc.Key)
	}

	summary := &RunSummary{RunID: runID, Total: len(work), Skipped: skipped}
	var mu sync.Mutex
	snapshotDir := d.cascade.artifacts.OutputDir()

	d.pool.Run(ctx, keys,
		func(ctx context.Context, key string) {
			d.emitter.DocumentStarted(key)
			outcome := d.cascade.Process(ctx, byKey[key], records[key], runID, rc.Vision)
			if err := d.statuses.WriteSnapshot(ctx, snapshotDir); err != nil {
				d.log.Warnw("snapshot write failed", logger.FieldError, err)
			}
			mu.Lock()
			summary.tally(outcome)
			mu.Unlock()
			d.emitter.DocumentFinished(outcome)
		},
		func(key string, recovered interface{}) {
			cause := errors.AsEngine(errors.Newf("worker panic: %v", recovered))
			rec := records[key]
			if rec == nil {
				rec = status.NewRecord(key)
			}
			rec.Fail(cause, d.timeNow())
			if err := d.statuses.Upsert(context.WithoutCancel(ctx), rec); err != nil {
				d.log.Errorw("could not record panic failure",
					logger.FieldDocKey, key, logger.FieldError, err)
			}
			outcome := Outcome{Key: key, State: status.StateError, Err: cause}
			mu.Lock()
			summary.tally(outcome)
			mu.Unlock()
			d.emitter.DocumentFinished(outcome)
		})

	if ctx.Err() != nil {
		summary.Interrupted = true
	}

	bs := d.tracker.GetStatus()
	summary.VisionPages = bs.Pages
	summary.VisionCostUSD = bs.SpentUSD
	summary.Elapsed = d.timeNow().Sub(started)

	finished := d.timeNow().UTC()
	run.FinishedAt = &finished
	run.DocsOK = summary.OK
	run.DocsError = summary.Errors
	run.DocsFlagged = summary.Flagged
	run.VisionPages = summary.VisionPages
	run.VisionCostUSD = summary.VisionCostUSD
	// The work is done at this point; bookkeeping trouble is logged,
	// not turned into a failed run.
	if err := d.statuses.FinalizeRun(context.WithoutCancel(ctx), run); err != nil {
		d.log.Warnw("run row finalize failed", logger.FieldError, err)
	}
	if err := d.statuses.WriteSnapshot(context.WithoutCancel(ctx), snapshotDir); err != nil {
		d.log.Warnw("final snapshot write failed", logger.FieldError, err)
	}

	d.log.Infow("run finished",
		logger.FieldRunID, runID,
		"ok", summary.OK,
		"flagged", summary.Flagged,
		"errors", summary.Errors,
		logger.FieldCostUSD, summary.VisionCostUSD,
		logger.FieldDurationMS, summary.Elapsed.Milliseconds())
	d.emitter.RunCompleted(summary)

	return summary, nil
}

// dryRun reports the plan without acquiring the lock, writing a status
// row, or calling anything that costs money.
func (d *Driver) dryRun(ctx context.Context, runID string, started time.Time, docs []corpus.Document, rc RunConfig) (*RunSummary, error) {
	records, err := d.statuses.Load(ctx)
	if err != nil {
		return nil, err
	}
	work, skipped := selectWork(docs, records, rc.Force)
	if rc.Limit > 0 && len(work) > rc.Limit {
		work = work[:rc.Limit]
	}

	summary := &RunSummary{
		RunID:   runID,
		Total:   len(work),
		Skipped: skipped,
		DryRun:  true,
	}
	d.emitter.RunStarted(runID, len(work), d.pool.Workers(), rc.Vision, true)

	for _, doc := range work {
		plan := d.planFor(doc, records[doc.Key], rc.Vision)
		if plan.PlannedStage == stage.NameVision {
			summary.PlannedVisionPages += plan.VisionPages
		}
		d.emitter.DocumentPlanned(plan)
	}
	summary.PlannedCostUSD = d.tracker.Estimate(summary.PlannedVisionPages)
	summary.Elapsed = d.timeNow().Sub(started)
	d.emitter.RunCompleted(summary)
	return summary, nil
}

// planFor judges a document's next cascade step from whatever artifacts
// a prior attempt left. A document with no usable artifacts starts at
// the embedded stage; the plan for what follows depends on text nobody
// has extracted yet, which is exactly why it isn't predicted.
func (d *Driver) planFor(doc corpus.Document, rec *status.Record, visionEnabled bool) PlannedDocument {
	plan := PlannedDocument{Key: doc.Key, PlannedStage: stage.NameEmbedded}
	if rec == nil || rec.CascadeState == string(CascadeUnattempted) {
		return plan
	}
	pp, err := d.cascade.loadPrior(doc.Key)
	if err != nil {
		return plan
	}
	label := quality.Classify(pageStats(pp.best, pp.pageCount), d.cascade.thresholds)
	dec := nextStep(pp.state, label, visionEnabled)
	plan.PlannedStage = dec.action.String()
	if dec.action == actionRunVision {
		plan.VisionPages = len(pagesNeedingWork(pp.best, pp.pageCount, d.cascade.thresholds))
		if plan.VisionPages == 0 {
			plan.VisionPages = pp.pageCount
		}
	}
	return plan
}

// validate fails fast on anything that would doom the run: missing
// engine binaries, missing tesseract language packs for the languages
// this run will see, or a vision request with no vision stage wired.
func (d *Driver) validate(ctx context.Context, docs []corpus.Document, rc RunConfig) error {
	binaries := []string{
		d.cfg.Stages.PdftotextBinary,
		d.cfg.Stages.PdftoppmBinary,
		d.cfg.Stages.TesseractBinary,
	}
	defaults := []string{"pdftotext", "pdftoppm", "tesseract"}
	for i, bin := range binaries {
		if bin == "" {
			bin = defaults[i]
		}
		if err := d.lookupBinary(bin); err != nil {
			return err
		}
	}

	if err := d.verifyLangs(ctx, documentLanguages(docs, d.cfg.Stages.DefaultLanguage)); err != nil {
		return err
	}

	if rc.Vision && d.cascade.stages.Vision == nil {
		return errors.AsConfig(errors.New("vision requested but no vision stage is wired"))
	}
	return nil
}

// documentLanguages collects the distinct languages a document set
// declares, substituting the configured default for blanks.
func documentLanguages(docs []corpus.Document, defaultLang string) []string {
	if defaultLang == "" {
		defaultLang = "en"
	}
	seen := make(map[string]bool)
	for _, doc := range docs {
		lang := doc.Language
		if lang == "" {
			lang = defaultLang
		}
		seen[lang] = true
	}
	langs := make([]string, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// selectWork applies the work-set rule: never-attempted documents plus
// in_progress rows orphaned by a dead run. Terminal documents, ok and
// errored alike, wait for an explicit force, so a paid-stage quota
// failure is never re-billed behind the operator's back.
func selectWork(docs []corpus.Document, records map[string]*status.Record, force bool) (work []corpus.Document, skipped int) {
	for _, doc := range docs {
		rec := records[doc.Key]
		switch {
		case force:
			work = append(work, doc)
		case rec == nil || rec.State == status.StateQueued || rec.State == status.StateInProgress:
			work = append(work, doc)
		default:
			skipped++
		}
	}
	return work, skipped
}

func (s *RunSummary) tally(o Outcome) {
	switch {
	case o.Interrupted:
		s.Interrupted = true
	case o.State == status.StateOK:
		s.OK++
		if o.Quality != "" && o.Quality != quality.LabelOK {
			s.Flagged++
		}
	default:
		s.Errors++
	}
}
