package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvata/gleaner/quality"
	"github.com/corvata/gleaner/stage"
)

func TestNextStep(t *testing.T) {
	table := []struct {
		name   string
		state  CascadeState
		label  quality.Label
		vision bool
		action action
		next   CascadeState
	}{
		{"fresh documents start with embedded text", CascadeUnattempted, quality.LabelBlank, false, actionRunEmbedded, CascadeStage1Done},
		{"ok after embedded short-circuits", CascadeStage1Done, quality.LabelOK, true, actionFinalize, CascadeFinalized},
		{"blank after embedded goes to ocr", CascadeStage1Done, quality.LabelBlank, false, actionRunOCR, CascadeStage2Done},
		{"suspect after embedded goes to ocr", CascadeStage1Done, quality.LabelSuspect, false, actionRunOCR, CascadeStage2Done},
		{"garbled after embedded goes straight to vision when enabled", CascadeStage1Done, quality.LabelGarbled, true, actionRunVision, CascadeStage3Done},
		{"garbled after embedded finalizes when vision is off", CascadeStage1Done, quality.LabelGarbled, false, actionFinalize, CascadeFinalized},
		{"ok after ocr finalizes", CascadeStage2Done, quality.LabelOK, true, actionFinalize, CascadeFinalized},
		{"blank after ocr finalizes even with vision on", CascadeStage2Done, quality.LabelBlank, true, actionFinalize, CascadeFinalized},
		{"suspect after ocr goes to vision when enabled", CascadeStage2Done, quality.LabelSuspect, true, actionRunVision, CascadeStage3Done},
		{"garbled after ocr goes to vision when enabled", CascadeStage2Done, quality.LabelGarbled, true, actionRunVision, CascadeStage3Done},
		{"suspect after ocr finalizes when vision is off", CascadeStage2Done, quality.LabelSuspect, false, actionFinalize, CascadeFinalized},
		{"vision output always finalizes", CascadeStage3Done, quality.LabelGarbled, true, actionFinalize, CascadeFinalized},
		{"finalized stays finalized", CascadeFinalized, quality.LabelOK, true, actionFinalize, CascadeFinalized},
	}
	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			d := nextStep(tc.state, tc.label, tc.vision)
			assert.Equal(t, tc.action, d.action)
			assert.Equal(t, tc.next, d.next)
		})
	}
}

func TestStateAfterStage(t *testing.T) {
	assert.Equal(t, CascadeStage1Done, stateAfterStage(stage.NameEmbedded))
	assert.Equal(t, CascadeStage2Done, stateAfterStage(stage.NameOCR))
	assert.Equal(t, CascadeStage3Done, stateAfterStage(stage.NameVision))
	assert.Equal(t, CascadeUnattempted, stateAfterStage("bogus"))
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "embedded", actionRunEmbedded.String())
	assert.Equal(t, "ocr", actionRunOCR.String())
	assert.Equal(t, "vision", actionRunVision.String())
	assert.Equal(t, "finalize", actionFinalize.String())
}

// pr builds a page result with real stats, the way stages do.
func pr(page int, text, stageName string) stage.PageResult {
	return stage.PageResult{
		Page:  page,
		Text:  text,
		Stat:  quality.PageStatOf(text),
		Stage: stageName,
	}
}

func TestMergePage(t *testing.T) {
	th := quality.DefaultThresholds()
	clean := strings.Repeat("lesbarer text ", 10)
	noisy := strings.Repeat("\uE000", 60)

	t.Run("first reading is kept", func(t *testing.T) {
		best := map[int]stage.PageResult{}
		mergePage(best, pr(1, "hallo welt", stage.NameEmbedded), th)
		assert.Equal(t, "hallo welt", best[1].Text)
	})

	t.Run("anything beats an empty page", func(t *testing.T) {
		best := map[int]stage.PageResult{1: pr(1, "", stage.NameEmbedded)}
		mergePage(best, pr(1, noisy, stage.NameOCR), th)
		assert.Equal(t, noisy, best[1].Text)
		assert.Equal(t, stage.NameOCR, best[1].Stage)
	})

	t.Run("an empty reading never displaces text", func(t *testing.T) {
		best := map[int]stage.PageResult{1: pr(1, "kurz", stage.NameEmbedded)}
		mergePage(best, pr(1, "", stage.NameOCR), th)
		assert.Equal(t, "kurz", best[1].Text)
	})

	t.Run("clean text beats longer noisy text", func(t *testing.T) {
		best := map[int]stage.PageResult{1: pr(1, noisy, stage.NameEmbedded)}
		mergePage(best, pr(1, "kurzer klartext", stage.NameVision), th)
		assert.Equal(t, "kurzer klartext", best[1].Text)
		assert.Equal(t, stage.NameVision, best[1].Stage)
	})

	t.Run("noisy text never displaces clean text", func(t *testing.T) {
		best := map[int]stage.PageResult{1: pr(1, clean, stage.NameEmbedded)}
		mergePage(best, pr(1, noisy, stage.NameOCR), th)
		assert.Equal(t, clean, best[1].Text)
		assert.Equal(t, stage.NameEmbedded, best[1].Stage)
	})

	t.Run("more characters win within the same band", func(t *testing.T) {
		best := map[int]stage.PageResult{1: pr(1, "wenig", stage.NameEmbedded)}
		mergePage(best, pr(1, clean, stage.NameOCR), th)
		assert.Equal(t, clean, best[1].Text)
	})

	t.Run("ties go to the newer stage", func(t *testing.T) {
		best := map[int]stage.PageResult{1: pr(1, "gleich lang", stage.NameEmbedded)}
		mergePage(best, pr(1, "lang gleich", stage.NameOCR), th)
		assert.Equal(t, stage.NameOCR, best[1].Stage)
	})

	t.Run("a shorter reading in the same band is dropped", func(t *testing.T) {
		best := map[int]stage.PageResult{1: pr(1, clean, stage.NameOCR)}
		mergePage(best, pr(1, "weniger", stage.NameVision), th)
		assert.Equal(t, stage.NameOCR, best[1].Stage)
	})
}

func TestMergeResult(t *testing.T) {
	th := quality.DefaultThresholds()
	best := map[int]stage.PageResult{
		1: pr(1, "", stage.NameEmbedded),
		2: pr(2, strings.Repeat("solider absatz ", 10), stage.NameEmbedded),
	}
	res := &stage.Result{Pages: []stage.PageResult{
		pr(1, "endlich text", stage.NameOCR),
		pr(3, "neue seite", stage.NameOCR),
	}}

	mergeResult(best, res, th)

	assert.Equal(t, stage.NameOCR, best[1].Stage)
	assert.Equal(t, stage.NameEmbedded, best[2].Stage)
	assert.Equal(t, "neue seite", best[3].Text)
}

func TestPagesNeedingWork(t *testing.T) {
	th := quality.DefaultThresholds()
	clean := strings.Repeat("ordentlicher text ", 10)
	noisy := strings.Repeat("\uE000", 80)

	t.Run("thin, noisy, and missing pages are selected in order", func(t *testing.T) {
		best := map[int]stage.PageResult{
			1: pr(1, clean, stage.NameEmbedded),
			2: pr(2, "zu kurz", stage.NameEmbedded),
			3: pr(3, noisy, stage.NameEmbedded),
			// page 4 was never produced
		}
		assert.Equal(t, []int{2, 3, 4}, pagesNeedingWork(best, 4, th))
	})

	t.Run("a clean document needs nothing", func(t *testing.T) {
		best := map[int]stage.PageResult{
			1: pr(1, clean, stage.NameEmbedded),
			2: pr(2, clean, stage.NameEmbedded),
		}
		assert.Nil(t, pagesNeedingWork(best, 2, th))
	})
}

func TestPageStats(t *testing.T) {
	best := map[int]stage.PageResult{
		2: pr(2, "etwas text auf seite zwei", stage.NameEmbedded),
	}
	stats := pageStats(best, 3)

	assert.Len(t, stats, 3)
	assert.Zero(t, stats[0].Chars, "missing pages count as empty")
	assert.Equal(t, best[2].Stat.Chars, stats[1].Chars)
	assert.Zero(t, stats[2].Chars)
}
