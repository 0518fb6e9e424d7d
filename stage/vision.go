package stage

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	gstatus "google.golang.org/grpc/status"

	"github.com/corvata/gleaner/budget"
	"github.com/corvata/gleaner/config"
	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/logger"
)

// maxBatchPages is the service's hard page limit per annotate request.
const maxBatchPages = 16

// inFlightBatches bounds concurrent API calls per document; the shared
// rate limiter governs the run-wide request rate on top of this.
const inFlightBatches = 4

// annotator is the slice of the vision client the stage uses, split out
// so tests can stand in for the service.
type annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// Vision reads page images with the cloud document-text service. It is
// the only stage that costs money, so every call is gated by the shared
// rate limiter and booked against the run's budget tracker first.
type Vision struct {
	client    annotator
	limiter   *rate.Limiter
	tracker   *budget.Tracker
	renderer  *Renderer
	timeout   time.Duration
	batchSize int
	log       *zap.SugaredLogger
}

// NewVision dials the annotation service. Call it only when a run has
// vision enabled; a dial or credential failure is a config error that
// stops the run before any document is dispatched.
func NewVision(ctx context.Context, cfg config.VisionConfig, stages config.StagesConfig, runner Runner, tracker *budget.Tracker) (*Vision, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, errors.AsConfig(errors.Wrap(err, "create vision client"))
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > maxBatchPages {
		batchSize = maxBatchPages
	}
	return &Vision{
		client:    client,
		limiter:   budget.NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		tracker:   tracker,
		renderer:  NewRenderer(stages, runner),
		timeout:   cfg.Timeout(),
		batchSize: batchSize,
		log:       logger.ComponentLogger("stage.vision"),
	}, nil
}

func (v *Vision) Name() string { return NameVision }

// Close releases the API connection.
func (v *Vision) Close() error {
	return v.client.Close()
}

// Extract annotates the requested pages in batches. Per-page service
// errors degrade to empty results like local OCR; transport, quota, and
// auth failures abort the document as retryable external errors.
func (v *Vision) Extract(ctx context.Context, req Request) (*Result, error) {
	images, err := v.renderer.EnsurePages(ctx, req.PDFPath, req.PagesDir, req.PageCount)
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
	for _, page := range targets {
		if page < 1 || page > len(images) {
			return nil, errors.AsEngine(errors.Newf("vision on %s: page %d out of range 1..%d",
				req.Key, page, len(images)))
		}
	}

	var hints []string
	if req.Language != "" {
		hints = []string{req.Language}
	}

	batches := chunkPages(targets, v.batchSize)
	perBatch := make([][]PageResult, len(batches))
	var billedPages atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inFlightBatches)
	for bi, batch := range batches {
		g.Go(func() error {
			results, err := v.annotateBatch(gctx, req.Key, images, batch, hints)
			if err != nil {
				return err
			}
			perBatch[bi] = results
			billedPages.Add(int64(len(batch)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pages []PageResult
	empty := 0
	for _, rs := range perBatch {
		for _, r := range rs {
			if r.Stat.Chars == 0 {
				empty++
			}
			pages = append(pages, r)
		}
	}

	cost := v.tracker.Estimate(int(billedPages.Load()))
	v.log.Infow("vision annotation complete",
		logger.FieldDocKey, req.Key,
		logger.FieldPages, len(pages),
		"empty", empty,
		logger.FieldCostUSD, cost,
	)
	return &Result{
		Pages:   pages,
		Engine:  "google-vision",
		CostUSD: cost,
	}, nil
}

// annotateBatch sends one rate-limited, budget-reserved API call.
func (v *Vision) annotateBatch(ctx context.Context, key string, images []string, batch []int, hints []string) ([]PageResult, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, errors.AsExternal(errors.Wrapf(err, "vision throttle on %s", key))
	}
	if err := v.tracker.Reserve(len(batch)); err != nil {
		return nil, errors.AsExternal(errors.Wrapf(err, "vision on %s", key))
	}

	reqs := make([]*visionpb.AnnotateImageRequest, 0, len(batch))
	for _, page := range batch {
		content, err := os.ReadFile(images[page-1])
		if err != nil {
			v.tracker.Refund(len(batch))
			return nil, errors.AsEngine(errors.Wrapf(err, "read page image for %s", key))
		}
		reqs = append(reqs, &visionpb.AnnotateImageRequest{
			Image: &visionpb.Image{Content: content},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
			},
			ImageContext: &visionpb.ImageContext{LanguageHints: hints},
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	resp, err := v.client.BatchAnnotateImages(callCtx, &visionpb.BatchAnnotateImagesRequest{Requests: reqs})
	if err != nil {
		// The request never produced billable work.
		v.tracker.Refund(len(batch))
		return nil, classifyVisionErr(err, key)
	}
	if len(resp.Responses) != len(batch) {
		return nil, errors.AsExternal(errors.Newf("vision on %s: %d responses for %d pages",
			key, len(resp.Responses), len(batch)))
	}

	now := time.Now()
	results := make([]PageResult, 0, len(batch))
	for i, r := range resp.Responses {
		page := batch[i]
		if rerr := r.GetError(); rerr != nil {
			v.log.Warnw("vision page error",
				logger.FieldDocKey, key,
				"page", page,
				logger.FieldError, rerr.GetMessage(),
			)
			results = append(results, newPageResult(page, "", NameVision, now))
			continue
		}
		results = append(results, newPageResult(page, r.GetFullTextAnnotation().GetText(), NameVision, now))
	}
	return results, nil
}

// classifyVisionErr maps an API failure onto the taxonomy. Everything
// the service or network does to us is external and retryable on a
// later forced run; only a rejected image is the document's fault.
func classifyVisionErr(err error, key string) error {
	wrapped := errors.Wrapf(err, "vision on %s", key)
	switch gstatus.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition:
		return errors.AsInput(wrapped)
	default:
		return errors.AsExternal(wrapped)
	}
}

func chunkPages(pages []int, size int) [][]int {
	var out [][]int
	for len(pages) > size {
		out = append(out, pages[:size])
		pages = pages[size:]
	}
	if len(pages) > 0 {
		out = append(out, pages)
	}
	return out
}
