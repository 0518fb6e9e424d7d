package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/corvata/gleaner/config"
	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/logger"
)

// tesseractLangs maps the manifest's ISO 639-1 codes to tesseract
// language pack names. Unlisted codes fall back to eng.
var tesseractLangs = map[string]string{
	"ar": "ara",
	"de": "deu",
	"en": "eng",
	"fa": "fas",
	"fr": "fra",
	"tr": "tur",
}

// TesseractLang maps an ISO 639-1 code to its tesseract pack name.
func TesseractLang(code string) string {
	if pack, ok := tesseractLangs[strings.ToLower(strings.TrimSpace(code))]; ok {
		return pack
	}
	return "eng"
}

// OCR rasterizes pages and reads them with tesseract. It only touches
// the pages the cascade asks for, but always renders the whole document
// because the page images double as reader assets.
type OCR struct {
	tesseract   string
	timeout     time.Duration
	psm         int
	extraArgs   []string
	defaultLang string
	renderer    *Renderer
	runner      Runner
	log         *zap.SugaredLogger
}

func NewOCR(cfg config.StagesConfig, runner Runner) (*OCR, error) {
	tesseract := cfg.TesseractBinary
	if tesseract == "" {
		tesseract = "tesseract"
	}
	psm := cfg.TesseractPSM
	if psm <= 0 {
		psm = 3
	}
	extra, err := shellquote.Split(cfg.TesseractExtraArgs)
	if err != nil {
		return nil, errors.AsConfig(errors.Wrap(err, "parse tesseract_extra_args"))
	}
	lang := cfg.DefaultLanguage
	if lang == "" {
		lang = "en"
	}
	return &OCR{
		tesseract:   tesseract,
		timeout:     cfg.OCRTimeout(),
		psm:         psm,
		extraArgs:   extra,
		defaultLang: lang,
		renderer:    NewRenderer(cfg, runner),
		runner:      runner,
		log:         logger.ComponentLogger("stage.ocr"),
	}, nil
}

func (o *OCR) Name() string { return NameOCR }

// Renderer returns the page rasterizer so the vision stage can reuse
// already-rendered assets.
func (o *OCR) Renderer() *Renderer { return o.renderer }

// Extract renders the document's pages and OCRs the requested subset.
// A single page that tesseract cannot read degrades to an empty result;
// the stage as a whole fails only when every requested page does.
func (o *OCR) Extract(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	images, err := o.renderer.EnsurePages(ctx, req.PDFPath, req.PagesDir, req.PageCount)
	if err != nil {
		return nil, err
	}

	targets := req.Pages
	if len(targets) == 0 {
		targets = make([]int, req.PageCount)
		for i := range targets {
			targets[i] = i + 1
		}
	}

	lang := req.Language
	if lang == "" {
		lang = o.defaultLang
	}
	pack := TesseractLang(lang)

	results := make([]PageResult, 0, len(targets))
	failed := 0
	var lastErr error
	for _, page := range targets {
		if err := ctx.Err(); err != nil {
			return nil, errors.AsEngine(errors.Wrapf(errors.ErrTimeout,
				"ocr on %s after %d of %d pages", req.Key, len(results), len(targets)))
		}
		if page < 1 || page > len(images) {
			return nil, errors.AsEngine(errors.Newf("ocr on %s: page %d out of range 1..%d",
				req.Key, page, len(images)))
		}

		text, err := o.recognize(ctx, images[page-1], pack)
		if err != nil {
			failed++
			lastErr = err
			o.log.Warnw("page OCR failed",
				logger.FieldDocKey, req.Key,
				"page", page,
				logger.FieldError, err,
			)
			text = ""
		}
		results = append(results, newPageResult(page, text, NameOCR, time.Now()))
	}

	if failed == len(targets) && len(targets) > 0 {
		return nil, errors.AsEngine(errors.Wrapf(lastErr,
			"ocr on %s: all %d pages failed", req.Key, len(targets)))
	}

	o.log.Debugw("ocr complete",
		logger.FieldDocKey, req.Key,
		logger.FieldPages, len(targets),
		"failed", failed,
		"lang", pack,
	)
	return &Result{
		Pages:  results,
		Engine: "tesseract:" + pack,
	}, nil
}

func (o *OCR) recognize(ctx context.Context, imagePath, pack string) (string, error) {
	args := []string{imagePath, "stdout", "-l", pack, "--psm", strconv.Itoa(o.psm)}
	args = append(args, o.extraArgs...)
	out, stderr, err := o.runner.Run(ctx, o.tesseract, args...)
	if err != nil {
		return "", classifyExecErr(ctx, err, o.tesseract, filepath.Base(imagePath), stderr)
	}
	return string(out), nil
}

// VerifyLanguages checks that every tesseract pack the run's documents
// need is installed, so a missing pack fails the run at startup instead
// of silently misreading a hundred documents with the wrong model.
func VerifyLanguages(ctx context.Context, runner Runner, binary string, codes []string) error {
	if binary == "" {
		binary = "tesseract"
	}
	out, stderr, err := runner.Run(ctx, binary, "--list-langs")
	if err != nil {
		return errors.AsConfig(errors.Wrapf(err, "%s --list-langs", binary))
	}

	// Older tesseract versions print the list to stderr.
	installed := make(map[string]bool)
	for _, line := range strings.Split(string(out)+"\n"+string(stderr), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "List of") {
			continue
		}
		installed[line] = true
	}

	missing := make(map[string]bool)
	for _, code := range codes {
		if pack := TesseractLang(code); !installed[pack] {
			missing[pack] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}

	packs := make([]string, 0, len(missing))
	for pack := range missing {
		packs = append(packs, pack)
	}
	sort.Strings(packs)
	return errors.AsConfig(errors.Newf("missing tesseract language packs: %s",
		strings.Join(packs, ", ")))
}

// Renderer rasterizes PDF pages into zero-padded JPEG reader assets.
type Renderer struct {
	binary  string
	dpi     int
	quality int
	runner  Runner
	log     *zap.SugaredLogger
}

func NewRenderer(cfg config.StagesConfig, runner Runner) *Renderer {
	binary := cfg.PdftoppmBinary
	if binary == "" {
		binary = "pdftoppm"
	}
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Renderer{
		binary:  binary,
		dpi:     cfg.RenderDPI(),
		quality: quality,
		runner:  runner,
		log:     logger.ComponentLogger("stage.render"),
	}
}

// PageImageName returns the artifact file name for a 1-based page.
func PageImageName(page int) string {
	return fmt.Sprintf("%03d.jpg", page)
}

// EnsurePages rasterizes the document into dir and returns the image
// paths indexed by page-1. A directory that already holds every page is
// reused untouched, which keeps re-runs cheap and idempotent.
func (r *Renderer) EnsurePages(ctx context.Context, pdfPath, dir string, pageCount int) ([]string, error) {
	if pageCount <= 0 {
		return nil, errors.AsEngine(errors.Newf("render %s: page count unknown", pdfPath))
	}
	if err := os.MkdirAll(dir, config.DefaultDirPermissions); err != nil {
		return nil, errors.AsEngine(errors.Wrapf(err, "create pages dir %s", dir))
	}

	paths := make([]string, pageCount)
	complete := true
	for i := range paths {
		paths[i] = filepath.Join(dir, PageImageName(i+1))
		if _, err := os.Stat(paths[i]); err != nil {
			complete = false
		}
	}
	if complete {
		return paths, nil
	}

	prefix := filepath.Join(dir, "render")
	args := []string{
		"-r", strconv.Itoa(r.dpi),
		"-jpeg", "-jpegopt", fmt.Sprintf("quality=%d", r.quality),
		pdfPath, prefix,
	}
	if _, stderr, err := r.runner.Run(ctx, r.binary, args...); err != nil {
		return nil, classifyExecErr(ctx, err, r.binary, filepath.Base(pdfPath), stderr)
	}

	// pdftoppm pads page numbers to a width of its own choosing, so
	// rename its output onto the fixed three-digit scheme.
	rendered, err := filepath.Glob(prefix + "-*.jpg")
	if err != nil {
		return nil, errors.AsEngine(errors.Wrap(err, "glob rendered pages"))
	}
	for _, src := range rendered {
		num := strings.TrimSuffix(strings.TrimPrefix(src, prefix+"-"), ".jpg")
		page, err := strconv.Atoi(num)
		if err != nil {
			return nil, errors.AsEngine(errors.Wrapf(err, "unexpected render output %s", src))
		}
		if page < 1 || page > pageCount {
			return nil, errors.AsEngine(errors.Newf("render produced page %d beyond count %d", page, pageCount))
		}
		if err := os.Rename(src, paths[page-1]); err != nil {
			return nil, errors.AsEngine(errors.Wrapf(err, "rename %s", src))
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, errors.AsEngine(errors.Wrapf(err, "render incomplete for %s", pdfPath))
		}
	}
	r.log.Debugw("pages rendered", logger.FieldFile, pdfPath, logger.FieldPages, pageCount, "dpi", r.dpi)
	return paths, nil
}
