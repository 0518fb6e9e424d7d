// Package pipeline orchestrates extraction: it decides which documents
// need work, runs each one through the stage cascade under a bounded
// worker pool, and records every step in the status store so an
// interrupted run resumes instead of repeating itself.
package pipeline

import (
	"github.com/corvata/gleaner/quality"
	"github.com/corvata/gleaner/stage"
)

// CascadeState tracks how far a document has moved through the stage
// cascade. States advance monotonically; a document never moves back.
type CascadeState string

const (
	// CascadeUnattempted means no stage has run yet.
	CascadeUnattempted CascadeState = "unattempted"
	// CascadeStage1Done means embedded text extraction completed.
	CascadeStage1Done CascadeState = "stage1_done"
	// CascadeStage2Done means local OCR completed.
	CascadeStage2Done CascadeState = "stage2_done"
	// CascadeStage3Done means cloud vision completed.
	CascadeStage3Done CascadeState = "stage3_done"
	// CascadeFinalized means artifacts are assembled and the document
	// needs no further extraction.
	CascadeFinalized CascadeState = "finalized"
)

// action is the cascade controller's next move for a document.
type action int

const (
	actionRunEmbedded action = iota
	actionRunOCR
	actionRunVision
	actionFinalize
)

func (a action) String() string {
	switch a {
	case actionRunEmbedded:
		return stage.NameEmbedded
	case actionRunOCR:
		return stage.NameOCR
	case actionRunVision:
		return stage.NameVision
	default:
		return "finalize"
	}
}

// decision pairs the next action with the state the document reaches
// once that action completes.
type decision struct {
	action action
	next   CascadeState
}

// nextStep decides what a document needs given where it stands and how
// its best text so far was labelled. The escalation policy:
//
//	after embedded:  ok → done; blank or suspect → OCR;
//	                 garbled → vision when enabled, else done
//	after OCR:       ok or blank → done; suspect or garbled → vision
//	                 when enabled, else done
//	after vision:    always done
//
// Garbled embedded text skips OCR: the document has plenty of
// characters behind a broken encoding map, so the density-driven OCR
// pass has nothing to aim at, and only the vision stage reads the page
// images fresh. Blank after OCR finalizes as blank; the paid stage is
// reserved for text that exists but cannot be trusted.
func nextStep(state CascadeState, label quality.Label, visionEnabled bool) decision {
	switch state {
	case CascadeUnattempted:
		return decision{actionRunEmbedded, CascadeStage1Done}

	case CascadeStage1Done:
		switch label {
		case quality.LabelOK:
			return decision{actionFinalize, CascadeFinalized}
		case quality.LabelBlank, quality.LabelSuspect:
			return decision{actionRunOCR, CascadeStage2Done}
		case quality.LabelGarbled:
			if visionEnabled {
				return decision{actionRunVision, CascadeStage3Done}
			}
			return decision{actionFinalize, CascadeFinalized}
		}

	case CascadeStage2Done:
		if (label == quality.LabelSuspect || label == quality.LabelGarbled) && visionEnabled {
			return decision{actionRunVision, CascadeStage3Done}
		}
		return decision{actionFinalize, CascadeFinalized}
	}

	// Stage 3 done, already finalized, or an unknown state from a
	// newer build's record: nothing more to run.
	return decision{actionFinalize, CascadeFinalized}
}

// stateAfterStage maps a stage name back to the cascade state it
// completes, for resuming from a prior attempt's artifacts.
func stateAfterStage(name string) CascadeState {
	switch name {
	case stage.NameEmbedded:
		return CascadeStage1Done
	case stage.NameOCR:
		return CascadeStage2Done
	case stage.NameVision:
		return CascadeStage3Done
	}
	return CascadeUnattempted
}

// mergePage folds one stage's reading of a page into the best-so-far
// map. Anything beats an empty page; between non-empty readings, clean
// text beats noisy text regardless of volume, and within the same
// noisiness the reading with more characters wins. Ties go to the newer
// stage, which only ran at all because the older text was in doubt.
func mergePage(best map[int]stage.PageResult, incoming stage.PageResult, th quality.Thresholds) {
	prev, exists := best[incoming.Page]
	if !exists {
		best[incoming.Page] = incoming
		return
	}
	if prev.Stat.Chars == 0 {
		if incoming.Stat.Chars > 0 {
			best[incoming.Page] = incoming
		}
		return
	}

	incomingNoisy := incoming.Stat.GlyphRatio > th.SuspectGlyphRatio
	prevNoisy := prev.Stat.GlyphRatio > th.SuspectGlyphRatio
	if incomingNoisy != prevNoisy {
		// Never replace something with nothing.
		if !incomingNoisy && incoming.Stat.Chars > 0 {
			best[incoming.Page] = incoming
		}
		return
	}

	if incoming.Stat.Chars >= prev.Stat.Chars {
		best[incoming.Page] = incoming
	}
}

// mergeResult applies mergePage across a whole stage result.
func mergeResult(best map[int]stage.PageResult, res *stage.Result, th quality.Thresholds) {
	for _, pr := range res.Pages {
		mergePage(best, pr, th)
	}
}

// pagesNeedingWork lists the pages whose best text is still too thin or
// too contaminated to trust, in page order. A document can be suspect
// on its mean statistics while no single page crosses the per-page bar;
// an empty list therefore means "re-read everything" to the stages, and
// that is exactly the right fallback.
func pagesNeedingWork(best map[int]stage.PageResult, pageCount int, th quality.Thresholds) []int {
	var pages []int
	for p := 1; p <= pageCount; p++ {
		pr, ok := best[p]
		if !ok || float64(pr.Stat.Chars) < th.EmbeddedMinCharsPerPage || pr.Stat.GlyphRatio > th.SuspectGlyphRatio {
			pages = append(pages, p)
		}
	}
	return pages
}

// pageStats flattens the best-so-far map into the per-page stat slice
// the classifier expects. Pages no stage has produced yet count as
// empty, which is what they are.
func pageStats(best map[int]stage.PageResult, pageCount int) []quality.PageStat {
	stats := make([]quality.PageStat, pageCount)
	for p := 1; p <= pageCount; p++ {
		if pr, ok := best[p]; ok {
			stats[p-1] = pr.Stat
		}
	}
	return stats
}
