// Package artifacts defines the on-disk output a document's extraction
// leaves behind and the versioned reader/writer for it.
//
// Each document owns one directory under the output root:
//
//	<output_dir>/<key>/
//	    pages.json   extracted text keyed by 1-based page number
//	    meta.json    bibliographic echo plus extraction provenance
//	    layout.json  page geometry for reader overlays
//	    pages/       rendered page JPEGs (001.jpg, 002.jpg, ...)
//
// Every JSON file carries schema_version. Readers refuse artifacts from
// a different major version instead of guessing at their shape.
package artifacts

import (
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/corvata/gleaner/errors"
)

// SchemaVersion stamps every artifact written by this build.
const SchemaVersion = "1.0.0"

// Artifact file names inside a document directory.
const (
	PagesName  = "pages.json"
	MetaName   = "meta.json"
	LayoutName = "layout.json"
	PagesDir   = "pages"
)

// PagesFile holds the extracted text, one entry per page. Keys are
// 1-based page numbers as strings, matching what readers and the page
// image names use.
type PagesFile struct {
	SchemaVersion string            `json:"schema_version"`
	Key           string            `json:"key"`
	PageCount     int               `json:"page_count"`
	Pages         map[string]string `json:"pages"`
}

// Meta echoes the manifest entry and records how extraction went.
type Meta struct {
	SchemaVersion string   `json:"schema_version"`
	Key           string   `json:"key"`
	Title         string   `json:"title,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	Year          int      `json:"year,omitempty"`
	Language      string   `json:"language,omitempty"`
	DocType       string   `json:"doc_type,omitempty"`

	PageCount         int     `json:"page_count"`
	Quality           string  `json:"quality"`
	MeanCharsPerPage  float64 `json:"mean_chars_per_page"`
	SuspectGlyphRatio float64 `json:"suspect_glyph_ratio"`
	BlankPages        int     `json:"blank_pages"`

	// Stages lists the cascade stages that ran, in order. PageStages
	// records which stage's text won each page.
	Stages     []string          `json:"extraction_stages"`
	PageStages map[string]string `json:"page_stages,omitempty"`

	VisionCostUSD float64   `json:"vision_cost_usd,omitempty"`
	ExtractedAt   time.Time `json:"extracted_at"`
}

// Layout carries page geometry for reader overlays. Extraction here is
// text-first, so each non-empty page gets a single full-page text block
// inset 5% from the edges; a finer segmentation can replace it without
// a schema break.
type Layout struct {
	SchemaVersion string                `json:"schema_version"`
	Key           string                `json:"key"`
	PageSizes     map[string][2]float64 `json:"page_sizes,omitempty"`
	Elements      []LayoutElement       `json:"elements"`
}

// LayoutElement is one positioned text block. BBox is x0, y0, x1, y1 in
// PDF points with origin at the page's bottom left.
type LayoutElement struct {
	Page int        `json:"page"`
	BBox [4]float64 `json:"bbox"`
	Text string     `json:"text"`
}

// FullPageElement builds the standard inset text block for a page.
func FullPageElement(page int, width, height float64, text string) LayoutElement {
	return LayoutElement{
		Page: page,
		BBox: [4]float64{0.05 * width, 0.05 * height, 0.95 * width, 0.95 * height},
		Text: text,
	}
}

// PageKey converts a 1-based page number to its JSON map key.
func PageKey(page int) string {
	return strconv.Itoa(page)
}

// CheckSchema reports ErrSchemaIncompatible for artifacts this build
// cannot safely interpret: anything outside our major version.
func CheckSchema(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.Wrapf(errors.ErrSchemaIncompatible,
			"unparseable artifact schema version %q", version)
	}
	supported, err := semver.NewConstraint("^" + SchemaVersion)
	if err != nil {
		return errors.WithStack(err)
	}
	if !supported.Check(v) {
		return errors.Wrapf(errors.ErrSchemaIncompatible,
			"artifact schema %s outside supported range ^%s", version, SchemaVersion)
	}
	return nil
}
