// Package stage implements the extraction engines that the pipeline
// cascades through: embedded text, local OCR, and cloud vision.
//
// Every engine satisfies the same Stage interface and reports its work
// as per-page results, so the cascade controller can merge, score, and
// persist them without knowing which binary or API produced the text.
package stage

import (
	"context"
	"time"

	"github.com/corvata/gleaner/quality"
)

// Stage names as they appear in status records, artifacts, and logs.
const (
	NameEmbedded = "embedded"
	NameOCR      = "ocr"
	NameVision   = "vision"
)

// PageResult is one engine's reading of one page. Results are immutable;
// a re-run produces a new PageResult rather than mutating an old one.
type PageResult struct {
	// Page is 1-based, matching PDF viewers and artifact page keys.
	Page  int
	Text  string
	Stat  quality.PageStat
	Stage string
	At    time.Time
}

// Result is a stage's output for one document.
type Result struct {
	// Pages holds results only for the pages the stage actually
	// processed; the cascade merges them over earlier stages.
	Pages []PageResult

	// PageCount is the document's total page count when the stage
	// learned it (embedded always does), zero otherwise.
	PageCount int

	// PageDims holds page sizes in PDF points, indexed by page-1,
	// when the stage probed the file. Only embedded fills this.
	PageDims [][2]float64

	// Engine describes the concrete backend, e.g. "pdftotext",
	// "tesseract:deu", "google-vision".
	Engine string

	// CostUSD is the estimated spend this invocation incurred.
	// Zero for local engines.
	CostUSD float64
}

// Request carries everything an engine needs to process one document.
type Request struct {
	Key     string
	PDFPath string

	// PagesDir is the artifact directory for rendered page images.
	// The OCR stage populates it; the vision stage reads from it.
	PagesDir string

	// Language is the document's ISO 639-1 code ("de", "ar", ...).
	// Empty means the configured default.
	Language string

	// Pages restricts processing to the listed 1-based pages.
	// Empty means every page. The embedded stage ignores it.
	Pages []int

	// PageCount is the total page count when already known, so
	// later stages do not have to re-probe the file.
	PageCount int
}

// Stage is a single extraction engine.
type Stage interface {
	// Name returns the stage's wire name (NameEmbedded, ...).
	Name() string

	// Extract processes the requested document pages. It returns an
	// error only when the stage as a whole failed; weak text on
	// individual pages is reported through the page stats instead.
	Extract(ctx context.Context, req Request) (*Result, error)
}

// newPageResult stamps a page's text with its stats and provenance.
func newPageResult(page int, text, stageName string, at time.Time) PageResult {
	return PageResult{
		Page:  page,
		Text:  text,
		Stat:  quality.PageStatOf(text),
		Stage: stageName,
		At:    at,
	}
}
