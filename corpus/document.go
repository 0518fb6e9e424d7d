// Package corpus describes the document collection: the TOML manifest that
// names every source, the on-disk scan that turns it into an inventory, and
// the fetcher that stages remote sources locally.
package corpus

import (
	"path/filepath"
	"regexp"
)

// DocType distinguishes born-digital PDFs from scans. Scanned documents go
// straight to OCR-grade expectations; digital ones should yield embedded text.
type DocType string

const (
	DocTypeDigital DocType = "digital"
	DocTypeScanned DocType = "scanned"
	DocTypeUnknown DocType = "unknown"
)

// Document is one corpus entry. The identifying fields come from the
// manifest; DocType is filled by the inventory scan when the manifest
// doesn't pin it.
type Document struct {
	Key       string   `toml:"key" json:"key"`
	Title     string   `toml:"title" json:"title"`
	Authors   []string `toml:"authors" json:"authors,omitempty"`
	Year      int      `toml:"year" json:"year,omitempty"`
	Language  string   `toml:"language" json:"language,omitempty"` // ISO 639-1
	SourceURL string   `toml:"source_url" json:"source_url,omitempty"`
	File      string   `toml:"file" json:"file"`
	DocType   DocType  `toml:"doc_type" json:"doc_type,omitempty"`
}

// Path returns the document's absolute location under the corpus directory.
func (d Document) Path(corpusDir string) string {
	if filepath.IsAbs(d.File) {
		return d.File
	}
	return filepath.Join(corpusDir, d.File)
}

// Keys appear in artifact paths and status rows, so they are restricted to
// filesystem-safe slugs.
var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidKey reports whether a manifest key is usable as an artifact directory name.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}
