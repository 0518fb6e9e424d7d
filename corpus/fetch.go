package corpus

import (
	"context"
	"os"
	"path/filepath"
	"time"

	getter "github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/corvata/gleaner/config"
	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/internal/httpclient"
	"github.com/corvata/gleaner/logger"
)

// Fetcher stages remote sources named by the manifest into the corpus
// directory. Manifest URLs are user-edited text, so every request goes
// through the SSRF-protected client.
type Fetcher struct {
	CorpusDir string
	Client    *httpclient.SaferClient
	Logger    *zap.SugaredLogger
}

// NewFetcher builds a fetcher with a long download timeout; scanned-era
// PDFs run to hundreds of megabytes.
func NewFetcher(corpusDir string, log *zap.SugaredLogger) *Fetcher {
	return &Fetcher{
		CorpusDir: corpusDir,
		Client:    httpclient.NewSaferClient(10 * time.Minute),
		Logger:    log,
	}
}

// Fetch downloads one document's source unless it is already staged.
// Re-download requires force: sources are immutable once archived.
func (f *Fetcher) Fetch(ctx context.Context, doc Document, force bool) error {
	if doc.SourceURL == "" {
		return errors.AsInput(errors.Newf("document %q has no source_url", doc.Key))
	}
	if doc.File == "" {
		return errors.AsConfig(errors.Newf("document %q has no file path to stage into", doc.Key))
	}

	dst := doc.Path(f.CorpusDir)
	if _, err := os.Stat(dst); err == nil && !force {
		if f.Logger != nil {
			f.Logger.Debugw("Source already staged",
				logger.FieldDocKey, doc.Key,
				logger.FieldFile, dst)
		}
		return nil
	}

	if _, err := f.Client.ValidateURL(doc.SourceURL); err != nil {
		return errors.AsInput(errors.Wrapf(err, "source URL for %q rejected", doc.Key))
	}

	if err := os.MkdirAll(filepath.Dir(dst), config.DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create corpus directory")
	}

	if f.Logger != nil {
		f.Logger.Infow("Fetching source",
			logger.FieldDocKey, doc.Key,
			"url", doc.SourceURL)
	}

	httpGetter := &getter.HttpGetter{Client: f.Client.Client}
	client := &getter.Client{
		Ctx:  ctx,
		Src:  doc.SourceURL,
		Dst:  dst,
		Mode: getter.ClientModeFile,
		Getters: map[string]getter.Getter{
			"http":  httpGetter,
			"https": httpGetter,
		},
	}

	if err := client.Get(); err != nil {
		// Leave no partial file behind
		os.Remove(dst)
		return errors.AsExternal(errors.Wrapf(err, "failed to fetch %q", doc.Key))
	}

	if f.Logger != nil {
		f.Logger.Infow("Source staged",
			logger.FieldDocKey, doc.Key,
			logger.FieldFile, dst)
	}
	return nil
}

// FetchAll stages every requested document, collecting per-document failures
// rather than stopping at the first.
func (f *Fetcher) FetchAll(ctx context.Context, docs []Document, force bool) (fetched int, failures map[string]error) {
	failures = make(map[string]error)
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			failures[doc.Key] = err
			continue
		}
		if err := f.Fetch(ctx, doc, force); err != nil {
			failures[doc.Key] = err
			continue
		}
		fetched++
	}
	return fetched, failures
}
