package stage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/corvata/gleaner/config"
	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/logger"
)

// Embedded extracts the text layer a born-digital PDF already carries.
// It is always the first stage: free, fast, and the only stage that
// probes the file's structure (page count, page sizes).
type Embedded struct {
	binary  string
	timeout time.Duration
	runner  Runner
	log     *zap.SugaredLogger

	// preflight is swappable in tests.
	preflight func(path string) (int, [][2]float64, error)
}

func NewEmbedded(cfg config.StagesConfig, runner Runner) *Embedded {
	binary := cfg.PdftotextBinary
	if binary == "" {
		binary = "pdftotext"
	}
	return &Embedded{
		binary:    binary,
		timeout:   cfg.EmbeddedTimeout(),
		runner:    runner,
		log:       logger.ComponentLogger("stage.embedded"),
		preflight: Preflight,
	}
}

func (e *Embedded) Name() string { return NameEmbedded }

// Extract runs a structural preflight and then pdftotext over the whole
// document. Corrupt, encrypted, or zero-page files fail here as input
// errors so no later stage wastes work on them.
func (e *Embedded) Extract(ctx context.Context, req Request) (*Result, error) {
	count, dims, err := e.preflight(req.PDFPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix", req.PDFPath, "-"}
	out, stderr, err := e.runner.Run(ctx, e.binary, args...)
	if err != nil {
		return nil, classifyExecErr(ctx, err, e.binary, req.Key, stderr)
	}

	pages := normalizePages(splitPages(string(out)), count)
	now := time.Now()
	results := make([]PageResult, 0, count)
	for i, text := range pages {
		results = append(results, newPageResult(i+1, text, NameEmbedded, now))
	}

	e.log.Debugw("embedded text extracted",
		logger.FieldDocKey, req.Key,
		logger.FieldPages, count,
	)
	return &Result{
		Pages:     results,
		PageCount: count,
		PageDims:  dims,
		Engine:    "pdftotext",
	}, nil
}

// ProbePages extracts the text layer of just the first maxPages pages,
// for the scanned-vs-digital inventory heuristic. It skips the full
// structural preflight; a file that cannot be probed is reported as an
// input error and classified by the caller.
func (e *Embedded) ProbePages(ctx context.Context, pdfPath string, maxPages int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{
		"-layout", "-enc", "UTF-8", "-eol", "unix",
		"-f", "1", "-l", strconv.Itoa(maxPages),
		pdfPath, "-",
	}
	out, stderr, err := e.runner.Run(ctx, e.binary, args...)
	if err != nil {
		return nil, errors.AsInput(errors.Wrapf(err, "probe %s: %s",
			pdfPath, strings.TrimSpace(truncate(string(stderr), 256))))
	}

	pages := splitPages(string(out))
	if len(pages) > maxPages {
		pages = pages[:maxPages]
	}
	return pages, nil
}

// Preflight validates the PDF structure and returns its page count and
// page sizes in points. Validation is relaxed: mildly out-of-spec files
// from old scanners still pass, while truncated or encrypted ones fail
// as input errors before any engine runs.
func Preflight(pdfPath string) (int, [][2]float64, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.ValidateFile(pdfPath, conf); err != nil {
		return 0, nil, errors.AsInput(errors.Wrapf(err, "validate %s", pdfPath))
	}

	count, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, nil, errors.AsInput(errors.Wrapf(err, "page count of %s", pdfPath))
	}
	if count == 0 {
		return 0, nil, errors.AsInput(errors.Newf("%s is structurally valid but has zero pages", pdfPath))
	}

	pageDims, err := api.PageDimsFile(pdfPath)
	if err != nil {
		return 0, nil, errors.AsInput(errors.Wrapf(err, "page dimensions of %s", pdfPath))
	}
	dims := make([][2]float64, len(pageDims))
	for i, d := range pageDims {
		dims[i] = [2]float64{d.Width, d.Height}
	}
	return count, dims, nil
}

// splitPages breaks pdftotext output on form feeds. The tool emits a
// trailing \f after the final page, so a single empty tail is dropped.
func splitPages(text string) []string {
	pages := strings.Split(text, "\f")
	if n := len(pages); n > 0 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages
}

// normalizePages forces split output to exactly count entries. Damaged
// files can make pdftotext emit fewer separators than pages.
func normalizePages(pages []string, count int) []string {
	if len(pages) > count {
		return pages[:count]
	}
	for len(pages) < count {
		pages = append(pages, "")
	}
	return pages
}
