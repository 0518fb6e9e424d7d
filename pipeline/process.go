package pipeline

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/corvata/gleaner/artifacts"
	"github.com/corvata/gleaner/corpus"
	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/logger"
	"github.com/corvata/gleaner/quality"
	"github.com/corvata/gleaner/stage"
	"github.com/corvata/gleaner/status"
)

// Stages bundles the extraction engines a run has available. Vision is
// nil unless the run explicitly enabled it, and a nil Vision is how the
// cascade knows the paid stage is off the table.
type Stages struct {
	Embedded stage.Stage
	OCR      stage.Stage
	Vision   stage.Stage
}

// Cascade runs single documents through the stage cascade, persisting
// progress after every stage so a crash never loses a completed stage.
type Cascade struct {
	stages     Stages
	thresholds quality.Thresholds
	statuses   *status.Store
	artifacts  *artifacts.Store
	corpusDir  string
	log        *zap.SugaredLogger

	timeNow func() time.Time
}

// NewCascade wires the per-document runner.
func NewCascade(stages Stages, th quality.Thresholds, statuses *status.Store, art *artifacts.Store, corpusDir string) *Cascade {
	return &Cascade{
		stages:     stages,
		thresholds: th,
		statuses:   statuses,
		artifacts:  art,
		corpusDir:  corpusDir,
		log:        logger.ComponentLogger("pipeline.cascade"),
		timeNow:    time.Now,
	}
}

// Outcome is what one document's trip through the cascade produced.
type Outcome struct {
	Key     string
	State   status.State
	Quality quality.Label
	Stages  []string
	Pages   int
	CostUSD float64
	Elapsed time.Duration

	// Err is set when State is error. Interrupted marks a document the
	// run abandoned mid-flight on cancellation; its status row stays
	// in_progress so the next run picks it up as an orphan.
	Err         error
	Interrupted bool
}

// priorProgress is a previous attempt's position, rebuilt from its
// artifacts. The artifacts are the checkpoint of record: they are
// written before the status row advances, so whatever they show was
// genuinely completed.
type priorProgress struct {
	best      map[int]stage.PageResult
	pageCount int
	state     CascadeState
	stages    []string
	costUSD   float64
}

// Process runs one document to a terminal state. prior is the
// document's existing status row, nil when it has never been attempted.
// visionEnabled is the run's --vision flag; the paid stage needs both
// the flag and a wired engine before the cascade will route to it.
// Every return path leaves the status row truthful: ok with artifacts
// on disk, error with a classified cause, or in_progress only when the
// run itself was cancelled under the document.
func (c *Cascade) Process(ctx context.Context, doc corpus.Document, prior *status.Record, runID string, visionEnabled bool) Outcome {
	started := c.timeNow()
	if ctx.Err() != nil {
		return c.interrupted(doc.Key, started, nil, 0)
	}
	log := c.log.With(logger.FieldDocKey, doc.Key)

	rec := prior
	if rec == nil {
		rec = status.NewRecord(doc.Key)
	}
	rec.Start(runID, c.timeNow())
	if err := c.statuses.Upsert(ctx, rec); err != nil {
		// Could not even claim the document; nothing was attempted.
		return Outcome{
			Key:     doc.Key,
			State:   status.StateError,
			Err:     errors.Wrapf(err, "claim %s", doc.Key),
			Elapsed: c.timeNow().Sub(started),
		}
	}

	best := make(map[int]stage.PageResult)
	var ran []string
	var dims [][2]float64
	state := CascadeUnattempted
	pageCount := 0
	costUSD := 0.0

	if prior != nil && prior.CascadeState != string(CascadeUnattempted) {
		pp, err := c.loadPrior(doc.Key)
		switch {
		case err == nil:
			best, pageCount, state = pp.best, pp.pageCount, pp.state
			ran = pp.stages
			costUSD = pp.costUSD
			log.Infow("resuming from prior artifacts",
				logger.FieldState, string(state),
				logger.FieldPages, pageCount)
		case errors.Is(err, errors.ErrSchemaIncompatible):
			// Never silently overwrite artifacts a different pipeline
			// version wrote; the operator decides with a reset.
			return c.fail(ctx, rec, started, ran, costUSD, errors.AsConfig(err))
		default:
			// Status row claims progress the disk can't back up
			// (deleted output dir, torn first attempt). Start over.
			log.Warnw("prior progress has no usable artifacts, starting over",
				logger.FieldError, err)
		}
	}

	visionOn := visionEnabled && c.stages.Vision != nil

	for state != CascadeFinalized {
		if ctx.Err() != nil {
			return c.interrupted(doc.Key, started, ran, costUSD)
		}

		label := quality.LabelBlank
		if pageCount > 0 {
			label = quality.Classify(pageStats(best, pageCount), c.thresholds)
		}
		d := nextStep(state, label, visionOn)
		if d.action == actionFinalize {
			break
		}

		eng := c.stageFor(d.action)
		if eng == nil {
			return c.fail(ctx, rec, started, ran, costUSD,
				errors.AsConfig(errors.Newf("stage %s is not wired", d.action)))
		}

		req := c.requestFor(d.action, doc, best, pageCount)
		log.Infow("running stage",
			logger.FieldStage, eng.Name(),
			logger.FieldQuality, string(label),
			logger.FieldPages, len(req.Pages))

		res, err := eng.Extract(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return c.interrupted(doc.Key, started, ran, costUSD)
			}
			return c.fail(ctx, rec, started, ran, costUSD, err)
		}

		mergeResult(best, res, c.thresholds)
		if res.PageCount > 0 {
			pageCount = res.PageCount
		}
		if len(res.PageDims) > 0 {
			dims = res.PageDims
		}
		costUSD += res.CostUSD
		ran = append(ran, eng.Name())
		state = d.next

		// Artifacts first, status row second: if the process dies
		// between the two, the next run re-runs a stage instead of
		// trusting a checkpoint that was never written.
		if _, err := c.writeArtifacts(doc, best, pageCount, ran, costUSD, dims); err != nil {
			return c.fail(ctx, rec, started, ran, costUSD, err)
		}
		rec.Advance(string(state), eng.Name(), pageCount, c.timeNow())
		if err := c.statuses.Upsert(ctx, rec); err != nil {
			return c.fail(ctx, rec, started, ran, costUSD, errors.Wrapf(err, "record progress for %s", doc.Key))
		}
	}

	if dims == nil {
		// Resumed documents skipped the embedded stage's probe; the
		// layout still wants page geometry, and the file is local.
		if _, d, err := stage.Preflight(doc.Path(c.corpusDir)); err == nil {
			dims = d
		}
	}

	metrics, err := c.writeArtifacts(doc, best, pageCount, ran, costUSD, dims)
	if err != nil {
		return c.fail(ctx, rec, started, ran, costUSD, err)
	}

	now := c.timeNow()
	lastStage := rec.LastStage
	if len(ran) > 0 {
		lastStage = ran[len(ran)-1]
	}
	rec.Advance(string(CascadeFinalized), lastStage, pageCount, now)
	rec.Complete(string(metrics.Label), now)
	if err := c.statuses.Upsert(ctx, rec); err != nil {
		return Outcome{
			Key:     doc.Key,
			State:   status.StateError,
			Err:     errors.Wrapf(err, "record completion for %s", doc.Key),
			Stages:  ran,
			Pages:   pageCount,
			CostUSD: costUSD,
			Elapsed: c.timeNow().Sub(started),
		}
	}

	log.Infow("document finalized",
		logger.FieldQuality, string(metrics.Label),
		logger.FieldPages, pageCount,
		logger.FieldCostUSD, costUSD,
		logger.FieldDurationMS, c.timeNow().Sub(started).Milliseconds())

	return Outcome{
		Key:     doc.Key,
		State:   status.StateOK,
		Quality: metrics.Label,
		Stages:  ran,
		Pages:   pageCount,
		CostUSD: costUSD,
		Elapsed: c.timeNow().Sub(started),
	}
}

func (c *Cascade) stageFor(a action) stage.Stage {
	switch a {
	case actionRunEmbedded:
		return c.stages.Embedded
	case actionRunOCR:
		return c.stages.OCR
	case actionRunVision:
		return c.stages.Vision
	}
	return nil
}

// requestFor assembles a stage request. Later stages get the list of
// pages still below the quality bar; an empty list means the whole
// document is weak on aggregate and the stage re-reads everything.
func (c *Cascade) requestFor(a action, doc corpus.Document, best map[int]stage.PageResult, pageCount int) stage.Request {
	req := stage.Request{
		Key:       doc.Key,
		PDFPath:   doc.Path(c.corpusDir),
		PagesDir:  c.artifacts.ImageDir(doc.Key),
		Language:  doc.Language,
		PageCount: pageCount,
	}
	if a != actionRunEmbedded {
		req.Pages = pagesNeedingWork(best, pageCount, c.thresholds)
	}
	return req
}

// loadPrior rebuilds cascade position from the document's artifacts.
func (c *Cascade) loadPrior(key string) (*priorProgress, error) {
	meta, err := c.artifacts.ReadMeta(key)
	if err != nil {
		return nil, err
	}
	pagesFile, err := c.artifacts.ReadPages(key)
	if err != nil {
		return nil, err
	}
	if len(meta.Stages) == 0 {
		return nil, errors.Newf("meta for %s lists no completed stages", key)
	}

	last := meta.Stages[len(meta.Stages)-1]
	pp := &priorProgress{
		best:      make(map[int]stage.PageResult, len(pagesFile.Pages)),
		pageCount: pagesFile.PageCount,
		state:     stateAfterStage(last),
		stages:    append([]string(nil), meta.Stages...),
		costUSD:   meta.VisionCostUSD,
	}
	for pageKey, text := range pagesFile.Pages {
		page, err := strconv.Atoi(pageKey)
		if err != nil || page < 1 {
			continue
		}
		stageName := meta.PageStages[pageKey]
		if stageName == "" {
			stageName = last
		}
		pp.best[page] = stage.PageResult{
			Page:  page,
			Text:  text,
			Stat:  quality.PageStatOf(text),
			Stage: stageName,
			At:    meta.ExtractedAt,
		}
	}
	if pp.pageCount <= 0 {
		pp.pageCount = len(pp.best)
	}
	return pp, nil
}

// writeArtifacts persists the document's current best text: pages,
// meta, and layout, each written atomically. Page dims come from the
// embedded stage's probe; when a resumed document never re-probed,
// layout geometry is simply absent and the elements carry zero boxes.
func (c *Cascade) writeArtifacts(doc corpus.Document, best map[int]stage.PageResult, pageCount int, ran []string, costUSD float64, dims [][2]float64) (quality.Metrics, error) {
	metrics := quality.Compute(pageStats(best, pageCount), c.thresholds)

	pages := &artifacts.PagesFile{
		Key:       doc.Key,
		PageCount: pageCount,
		Pages:     make(map[string]string, pageCount),
	}
	pageStages := make(map[string]string)
	for p := 1; p <= pageCount; p++ {
		pk := artifacts.PageKey(p)
		if pr, ok := best[p]; ok {
			pages.Pages[pk] = pr.Text
			pageStages[pk] = pr.Stage
		} else {
			pages.Pages[pk] = ""
		}
	}
	if err := c.artifacts.WritePages(pages); err != nil {
		return metrics, err
	}

	meta := &artifacts.Meta{
		Key:               doc.Key,
		Title:             doc.Title,
		Authors:           doc.Authors,
		Year:              doc.Year,
		Language:          doc.Language,
		DocType:           string(doc.DocType),
		PageCount:         pageCount,
		Quality:           string(metrics.Label),
		MeanCharsPerPage:  metrics.MeanCharsPerPage,
		SuspectGlyphRatio: metrics.MeanGlyphRatio,
		BlankPages:        metrics.BlankPages,
		Stages:            ran,
		PageStages:        pageStages,
		VisionCostUSD:     costUSD,
		ExtractedAt:       c.timeNow(),
	}
	if err := c.artifacts.WriteMeta(meta); err != nil {
		return metrics, err
	}

	layout := &artifacts.Layout{
		Key:       doc.Key,
		PageSizes: make(map[string][2]float64, len(dims)),
		Elements:  make([]artifacts.LayoutElement, 0, pageCount),
	}
	for i, d := range dims {
		layout.PageSizes[artifacts.PageKey(i+1)] = d
	}
	for p := 1; p <= pageCount; p++ {
		pr, ok := best[p]
		if !ok || pr.Text == "" {
			continue
		}
		var w, h float64
		if p-1 < len(dims) {
			w, h = dims[p-1][0], dims[p-1][1]
		}
		layout.Elements = append(layout.Elements, artifacts.FullPageElement(p, w, h, pr.Text))
	}
	if err := c.artifacts.WriteLayout(layout); err != nil {
		return metrics, err
	}
	return metrics, nil
}

// fail records a terminal failure and reports it.
func (c *Cascade) fail(ctx context.Context, rec *status.Record, started time.Time, ran []string, costUSD float64, cause error) Outcome {
	now := c.timeNow()
	rec.Fail(cause, now)
	if upsertErr := c.statuses.Upsert(ctx, rec); upsertErr != nil {
		c.log.Errorw("could not record failure",
			logger.FieldDocKey, rec.Key,
			logger.FieldError, upsertErr)
	}
	c.log.Warnw("document failed",
		logger.FieldDocKey, rec.Key,
		logger.FieldErrorClass, errors.ClassName(cause),
		logger.FieldError, cause)
	return Outcome{
		Key:     rec.Key,
		State:   status.StateError,
		Err:     cause,
		Stages:  ran,
		CostUSD: costUSD,
		Elapsed: c.timeNow().Sub(started),
	}
}

// interrupted reports a document the run was cancelled under. The
// status row is left in_progress on purpose.
func (c *Cascade) interrupted(key string, started time.Time, ran []string, costUSD float64) Outcome {
	c.log.Infow("document interrupted by shutdown", logger.FieldDocKey, key)
	return Outcome{
		Key:         key,
		State:       status.StateInProgress,
		Interrupted: true,
		Stages:      ran,
		CostUSD:     costUSD,
		Elapsed:     c.timeNow().Sub(started),
	}
}
