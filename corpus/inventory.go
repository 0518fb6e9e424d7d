package corpus

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/quality"
)

// Prober extracts up to maxPages of embedded text from a PDF. The scanner
// uses it for the scanned-vs-digital heuristic without depending on a
// concrete engine.
type Prober func(ctx context.Context, pdfPath string, maxPages int) ([]string, error)

// Inventory is the reconciliation of manifest against corpus directory.
type Inventory struct {
	Documents []Document // manifest entries with a file on disk, doc types resolved
	Missing   []string   // manifest keys whose file is absent (fetch candidates)
	Unlisted  []string   // PDFs on disk no manifest entry claims
}

// Scanner builds inventories. Probe may be nil, which leaves unpinned doc
// types as unknown.
type Scanner struct {
	CorpusDir  string
	Manifest   *Manifest
	Probe      Prober
	Thresholds quality.Thresholds
	ProbePages int // pages sampled by the heuristic (default: 3)
	Logger     *zap.SugaredLogger
}

// Scan walks the manifest, checks each file, and classifies documents the
// manifest doesn't pin. Files on disk that no entry names are reported, not
// adopted: the manifest is the source of truth for keys.
func (s *Scanner) Scan(ctx context.Context) (*Inventory, error) {
	if s.Manifest == nil {
		return nil, errors.AsConfig(errors.New("scanner has no manifest"))
	}

	inv := &Inventory{}
	claimed := make(map[string]bool, len(s.Manifest.Documents))

	for _, doc := range s.Manifest.Documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := doc.Path(s.CorpusDir)
		if _, err := os.Stat(path); err != nil {
			inv.Missing = append(inv.Missing, doc.Key)
			if s.Logger != nil {
				s.Logger.Debugw("Source file missing",
					"key", doc.Key,
					"file", doc.File)
			}
			continue
		}
		claimed[filepath.Clean(path)] = true

		if doc.DocType == "" || doc.DocType == DocTypeUnknown {
			doc.DocType = s.detectDocType(ctx, doc.Key, path)
		}
		inv.Documents = append(inv.Documents, doc)
	}

	if err := s.findUnlisted(claimed, inv); err != nil {
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.Infow("Inventory scan complete",
			"documents", len(inv.Documents),
			"missing", len(inv.Missing),
			"unlisted", len(inv.Unlisted))
	}
	return inv, nil
}

// detectDocType samples embedded text from the first pages. Scans produce
// next to no embedded text, so a thin mean marks the document scanned.
func (s *Scanner) detectDocType(ctx context.Context, key, path string) DocType {
	if s.Probe == nil {
		return DocTypeUnknown
	}

	pages := s.ProbePages
	if pages <= 0 {
		pages = 3
	}

	texts, err := s.Probe(ctx, path, pages)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warnw("Doc-type probe failed",
				"key", key,
				"error", err)
		}
		return DocTypeUnknown
	}

	stats := make([]quality.PageStat, len(texts))
	for i, text := range texts {
		stats[i] = quality.PageStatOf(text)
	}

	m := quality.Compute(stats, s.Thresholds)
	if m.MeanCharsPerPage < s.Thresholds.EmbeddedMinCharsPerPage {
		return DocTypeScanned
	}
	return DocTypeDigital
}

func (s *Scanner) findUnlisted(claimed map[string]bool, inv *Inventory) error {
	entries, err := os.ReadDir(s.CorpusDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing staged yet
		}
		return errors.Wrapf(err, "failed to read corpus dir %s", s.CorpusDir)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		path := filepath.Clean(filepath.Join(s.CorpusDir, entry.Name()))
		if !claimed[path] {
			inv.Unlisted = append(inv.Unlisted, entry.Name())
		}
	}
	return nil
}
