// Package quality classifies extracted text. The classifier is pure: page
// statistics in, label out, no IO. Thresholds always arrive as a value so a
// run's policy is fixed at startup and tests can probe the bands directly.
package quality

import (
	"strings"

	"github.com/corvata/gleaner/config"
)

// Label is the quality verdict for a document's extracted text.
type Label string

const (
	// LabelOK means the text is usable as-is.
	LabelOK Label = "ok"
	// LabelSuspect means readable but degraded (thin pages or glyph noise).
	LabelSuspect Label = "suspect"
	// LabelGarbled means the text is mostly noise (CIDFont without
	// ToUnicode, botched encodings).
	LabelGarbled Label = "garbled"
	// LabelBlank means there is effectively no text at all.
	LabelBlank Label = "blank"
)

// Degraded reports whether a label should push the cascade to the next stage.
func (l Label) Degraded() bool {
	return l == LabelSuspect || l == LabelGarbled || l == LabelBlank
}

// PageStat holds the per-page numbers the classifier works from.
type PageStat struct {
	Chars      int     // runes after trimming surrounding whitespace
	GlyphRatio float64 // suspicious runes / total runes
}

// Metrics aggregates page stats for one extraction pass.
type Metrics struct {
	PageCount        int
	MeanCharsPerPage float64
	MeanGlyphRatio   float64
	BlankPages       int
	Label            Label
}

// Thresholds is the classification policy. Zero values mean "use default";
// FromConfig resolves them so callers never see a half-empty policy.
type Thresholds struct {
	EmbeddedMinCharsPerPage float64
	SuspectCharsPerPage     float64
	GarbledCharsPerPage     float64
	SuspectGlyphRatio       float64
	GarbledGlyphRatio       float64
	NearZeroChars           int
	BlankPageFraction       float64
}

// DefaultThresholds returns the tuned policy for scanned-era print corpora.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EmbeddedMinCharsPerPage: 50,
		SuspectCharsPerPage:     100,
		GarbledCharsPerPage:     20,
		SuspectGlyphRatio:       0.01,
		GarbledGlyphRatio:       0.05,
		NearZeroChars:           10,
		BlankPageFraction:       0.90,
	}
}

// FromConfig builds Thresholds from configuration, filling gaps with defaults.
func FromConfig(q config.QualityConfig) Thresholds {
	th := DefaultThresholds()
	if q.EmbeddedMinCharsPerPage > 0 {
		th.EmbeddedMinCharsPerPage = q.EmbeddedMinCharsPerPage
	}
	if q.SuspectCharsPerPage > 0 {
		th.SuspectCharsPerPage = q.SuspectCharsPerPage
	}
	if q.GarbledCharsPerPage > 0 {
		th.GarbledCharsPerPage = q.GarbledCharsPerPage
	}
	if q.SuspectGlyphRatio > 0 {
		th.SuspectGlyphRatio = q.SuspectGlyphRatio
	}
	if q.GarbledGlyphRatio > 0 {
		th.GarbledGlyphRatio = q.GarbledGlyphRatio
	}
	if q.NearZeroChars > 0 {
		th.NearZeroChars = q.NearZeroChars
	}
	if q.BlankPageFraction > 0 {
		th.BlankPageFraction = q.BlankPageFraction
	}
	return th
}

// isSuspectRune reports whether a rune signals a broken glyph mapping.
// Private Use Area codepoints appear when a PDF embeds a CIDFont without a
// ToUnicode table; U+FFFD is the decoder's own admission of defeat.
func isSuspectRune(r rune) bool {
	if r >= 0xE000 && r <= 0xF8FF {
		return true
	}
	return r == 0xFFFD
}

// PageStatOf computes the stats for a single page of extracted text.
func PageStatOf(text string) PageStat {
	trimmed := strings.TrimSpace(text)

	total := 0
	suspect := 0
	for _, r := range trimmed {
		total++
		if isSuspectRune(r) {
			suspect++
		}
	}

	stat := PageStat{Chars: total}
	if total > 0 {
		stat.GlyphRatio = float64(suspect) / float64(total)
	}
	return stat
}

// Compute aggregates page stats and applies the classification policy.
func Compute(stats []PageStat, th Thresholds) Metrics {
	m := Metrics{PageCount: len(stats)}
	if len(stats) == 0 {
		m.Label = LabelBlank
		return m
	}

	var charSum int
	var ratioSum float64
	for _, s := range stats {
		charSum += s.Chars
		ratioSum += s.GlyphRatio
		if s.Chars < th.NearZeroChars {
			m.BlankPages++
		}
	}
	m.MeanCharsPerPage = float64(charSum) / float64(len(stats))
	m.MeanGlyphRatio = ratioSum / float64(len(stats))

	m.Label = classify(m, th)
	return m
}

// Classify is the label-only view of Compute.
func Classify(stats []PageStat, th Thresholds) Label {
	return Compute(stats, th).Label
}

func classify(m Metrics, th Thresholds) Label {
	blankFraction := float64(m.BlankPages) / float64(m.PageCount)
	if blankFraction >= th.BlankPageFraction {
		return LabelBlank
	}
	if m.MeanGlyphRatio > th.GarbledGlyphRatio || m.MeanCharsPerPage < th.GarbledCharsPerPage {
		return LabelGarbled
	}
	if m.MeanGlyphRatio > th.SuspectGlyphRatio || m.MeanCharsPerPage < th.SuspectCharsPerPage {
		return LabelSuspect
	}
	return LabelOK
}

// StageAdequate reports whether embedded text is good enough to skip OCR:
// enough mean characters per page and not a blank document.
func StageAdequate(stats []PageStat, th Thresholds) bool {
	m := Compute(stats, th)
	return m.MeanCharsPerPage >= th.EmbeddedMinCharsPerPage && m.Label != LabelBlank
}
