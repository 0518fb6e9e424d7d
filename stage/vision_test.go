package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	gstatus "google.golang.org/grpc/status"

	"github.com/corvata/gleaner/budget"
	"github.com/corvata/gleaner/config"
	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/logger"
)

type fakeAnnotator struct {
	mu       sync.Mutex
	requests []*visionpb.BatchAnnotateImagesRequest
	respond  func(req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)
}

func (f *fakeAnnotator) BatchAnnotateImages(_ context.Context, req *visionpb.BatchAnnotateImagesRequest, _ ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeAnnotator) Close() error { return nil }

func (f *fakeAnnotator) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// echoAnnotator answers every image with text derived from its bytes,
// so page ordering is observable end to end.
func echoAnnotator() *fakeAnnotator {
	f := &fakeAnnotator{}
	f.respond = func(req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		resp := &visionpb.BatchAnnotateImagesResponse{}
		for _, r := range req.Requests {
			resp.Responses = append(resp.Responses, &visionpb.AnnotateImageResponse{
				FullTextAnnotation: &visionpb.TextAnnotation{Text: "read:" + string(r.Image.Content)},
			})
		}
		return resp, nil
	}
	return f
}

// writeDistinctPages writes page images whose bytes name their page.
func writeDistinctPages(t *testing.T, dir string, pageCount int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for p := 1; p <= pageCount; p++ {
		path := filepath.Join(dir, PageImageName(p))
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("img-%d", p)), 0o644))
	}
}

func newTestVision(client annotator, tracker *budget.Tracker, batchSize int) *Vision {
	return &Vision{
		client:    client,
		limiter:   budget.NewLimiter(1000, 100),
		tracker:   tracker,
		renderer:  NewRenderer(config.StagesConfig{}, newStubRunner()),
		timeout:   5 * time.Second,
		batchSize: batchSize,
		log:       logger.ComponentLogger("stage.vision"),
	}
}

func TestVisionExtract(t *testing.T) {
	t.Run("annotates requested pages in order across batches", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "pages")
		writeDistinctPages(t, dir, 5)
		fake := echoAnnotator()
		v := newTestVision(fake, budget.NewTracker(0.0015, 0), 2)

		res, err := v.Extract(context.Background(), Request{
			Key: "doc-a", PDFPath: "a.pdf", PagesDir: dir,
			PageCount: 5, Pages: []int{1, 2, 3, 5},
		})
		require.NoError(t, err)

		require.Len(t, res.Pages, 4)
		assert.Equal(t, "read:img-1", res.Pages[0].Text)
		assert.Equal(t, "read:img-2", res.Pages[1].Text)
		assert.Equal(t, "read:img-3", res.Pages[2].Text)
		assert.Equal(t, "read:img-5", res.Pages[3].Text)
		assert.Equal(t, 5, res.Pages[3].Page)
		assert.Equal(t, "google-vision", res.Engine)
		assert.Equal(t, NameVision, res.Pages[0].Stage)

		// 4 pages at batch size 2.
		assert.Equal(t, 2, fake.requestCount())
		for _, req := range fake.requests {
			assert.LessOrEqual(t, len(req.Requests), 2)
		}
	})

	t.Run("books estimated spend for every annotated page", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "pages")
		writeDistinctPages(t, dir, 3)
		tracker := budget.NewTracker(0.0015, 0)
		v := newTestVision(echoAnnotator(), tracker, 16)

		res, err := v.Extract(context.Background(), Request{
			Key: "doc-a", PDFPath: "a.pdf", PagesDir: dir, PageCount: 3,
		})
		require.NoError(t, err)

		assert.InDelta(t, 0.0045, res.CostUSD, 1e-9)
		status := tracker.GetStatus()
		assert.Equal(t, 3, status.Pages)
		assert.InDelta(t, 0.0045, status.SpentUSD, 1e-9)
	})

	t.Run("sends the document language as a hint", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "pages")
		writeDistinctPages(t, dir, 1)
		fake := echoAnnotator()
		v := newTestVision(fake, budget.NewTracker(0.0015, 0), 16)

		_, err := v.Extract(context.Background(), Request{
			Key: "doc-a", PDFPath: "a.pdf", PagesDir: dir, PageCount: 1, Language: "fa",
		})
		require.NoError(t, err)

		require.Equal(t, 1, fake.requestCount())
		req := fake.requests[0].Requests[0]
		assert.Equal(t, []string{"fa"}, req.ImageContext.LanguageHints)
		assert.Equal(t, visionpb.Feature_DOCUMENT_TEXT_DETECTION, req.Features[0].Type)
	})

	t.Run("refuses to start a batch the budget cannot cover", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "pages")
		writeDistinctPages(t, dir, 2)
		fake := echoAnnotator()
		// Cap covers one page, the batch needs two.
		v := newTestVision(fake, budget.NewTracker(0.0015, 0.002), 2)

		_, err := v.Extract(context.Background(), Request{
			Key: "doc-a", PDFPath: "a.pdf", PagesDir: dir, PageCount: 2,
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrBudgetExhausted))
		assert.True(t, errors.IsRetryable(err))
		assert.Zero(t, fake.requestCount(), "no API call once the cap is hit")
	})

	t.Run("classifies quota failures as retryable and refunds the reservation", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "pages")
		writeDistinctPages(t, dir, 2)
		fake := &fakeAnnotator{}
		fake.respond = func(*visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return nil, gstatus.Error(codes.ResourceExhausted, "quota exceeded")
		}
		tracker := budget.NewTracker(0.0015, 0)
		v := newTestVision(fake, tracker, 16)

		_, err := v.Extract(context.Background(), Request{
			Key: "doc-a", PDFPath: "a.pdf", PagesDir: dir, PageCount: 2,
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ClassExternal))
		assert.True(t, errors.IsRetryable(err))
		assert.Zero(t, tracker.GetStatus().Pages, "failed call is not billed")
	})

	t.Run("classifies rejected images as input errors", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "pages")
		writeDistinctPages(t, dir, 1)
		fake := &fakeAnnotator{}
		fake.respond = func(*visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return nil, gstatus.Error(codes.InvalidArgument, "image too large")
		}
		v := newTestVision(fake, budget.NewTracker(0.0015, 0), 16)

		_, err := v.Extract(context.Background(), Request{
			Key: "doc-a", PDFPath: "a.pdf", PagesDir: dir, PageCount: 1,
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ClassInput))
		assert.False(t, errors.IsRetryable(err))
	})

	t.Run("degrades per-page service errors to empty results", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "pages")
		writeDistinctPages(t, dir, 2)
		fake := &fakeAnnotator{}
		fake.respond = func(req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return &visionpb.BatchAnnotateImagesResponse{
				Responses: []*visionpb.AnnotateImageResponse{
					{FullTextAnnotation: &visionpb.TextAnnotation{Text: "good page"}},
					{Error: &rpcstatus.Status{Code: 13, Message: "internal annotation failure"}},
				},
			}, nil
		}
		v := newTestVision(fake, budget.NewTracker(0.0015, 0), 16)

		res, err := v.Extract(context.Background(), Request{
			Key: "doc-a", PDFPath: "a.pdf", PagesDir: dir, PageCount: 2,
		})
		require.NoError(t, err)

		require.Len(t, res.Pages, 2)
		assert.Equal(t, "good page", res.Pages[0].Text)
		assert.Empty(t, res.Pages[1].Text)
	})
}

func TestChunkPages(t *testing.T) {
	t.Run("splits into full batches plus remainder", func(t *testing.T) {
		got := chunkPages([]int{1, 2, 3, 4, 5}, 2)
		assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, got)
	})

	t.Run("keeps a short list as one batch", func(t *testing.T) {
		got := chunkPages([]int{7}, 16)
		assert.Equal(t, [][]int{{7}}, got)
	})

	t.Run("handles no pages", func(t *testing.T) {
		assert.Empty(t, chunkPages(nil, 16))
	})
}
