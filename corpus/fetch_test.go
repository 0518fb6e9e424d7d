package corpus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/internal/httpclient"
)

// testFetcher points a Fetcher at an httptest server; the production
// client refuses localhost, so tests swap in the unguarded wrapper.
func testFetcher(t *testing.T, srv *httptest.Server) *Fetcher {
	t.Helper()
	f := NewFetcher(t.TempDir(), nil)
	f.Client = httpclient.WrapClient(srv.Client())
	return f
}

func TestFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("stages a source into the corpus directory", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("%PDF-1.4 payload"))
		}))
		defer srv.Close()
		f := testFetcher(t, srv)

		doc := Document{Key: "alpha", File: "alpha.pdf", SourceURL: srv.URL + "/alpha.pdf"}
		require.NoError(t, f.Fetch(ctx, doc, false))

		data, err := os.ReadFile(filepath.Join(f.CorpusDir, "alpha.pdf"))
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 payload", string(data))
	})

	t.Run("skips a file already staged", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Write([]byte("new bytes"))
		}))
		defer srv.Close()
		f := testFetcher(t, srv)

		staged := filepath.Join(f.CorpusDir, "alpha.pdf")
		require.NoError(t, os.WriteFile(staged, []byte("archived bytes"), 0644))

		doc := Document{Key: "alpha", File: "alpha.pdf", SourceURL: srv.URL + "/alpha.pdf"}
		require.NoError(t, f.Fetch(ctx, doc, false))
		assert.Zero(t, hits.Load(), "an archived source must not be re-downloaded")

		data, err := os.ReadFile(staged)
		require.NoError(t, err)
		assert.Equal(t, "archived bytes", string(data))
	})

	t.Run("force re-downloads over a staged file", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("fresh bytes"))
		}))
		defer srv.Close()
		f := testFetcher(t, srv)

		staged := filepath.Join(f.CorpusDir, "alpha.pdf")
		require.NoError(t, os.WriteFile(staged, []byte("stale bytes"), 0644))

		doc := Document{Key: "alpha", File: "alpha.pdf", SourceURL: srv.URL + "/alpha.pdf"}
		require.NoError(t, f.Fetch(ctx, doc, true))

		data, err := os.ReadFile(staged)
		require.NoError(t, err)
		assert.Equal(t, "fresh bytes", string(data))
	})

	t.Run("a failed download leaves no partial file", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer srv.Close()
		f := testFetcher(t, srv)

		doc := Document{Key: "alpha", File: "alpha.pdf", SourceURL: srv.URL + "/alpha.pdf"}
		err := f.Fetch(ctx, doc, false)
		require.Error(t, err)
		assert.Equal(t, "external", errors.ClassName(err))

		_, statErr := os.Stat(filepath.Join(f.CorpusDir, "alpha.pdf"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("a document without a source url is an input error", func(t *testing.T) {
		f := NewFetcher(t.TempDir(), nil)
		err := f.Fetch(ctx, Document{Key: "alpha", File: "alpha.pdf"}, false)
		require.Error(t, err)
		assert.Equal(t, "input", errors.ClassName(err))
	})

	t.Run("localhost sources are rejected by the production client", func(t *testing.T) {
		f := NewFetcher(t.TempDir(), nil)
		doc := Document{Key: "alpha", File: "alpha.pdf", SourceURL: "http://localhost/alpha.pdf"}
		err := f.Fetch(ctx, doc, false)
		require.Error(t, err)
		assert.Equal(t, "input", errors.ClassName(err))
	})
}

func TestFetchAll(t *testing.T) {
	t.Run("collects failures instead of stopping", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/bad.pdf" {
				http.Error(w, "gone", http.StatusNotFound)
				return
			}
			w.Write([]byte("%PDF-1.4"))
		}))
		defer srv.Close()
		f := testFetcher(t, srv)

		docs := []Document{
			{Key: "good-one", File: "one.pdf", SourceURL: srv.URL + "/one.pdf"},
			{Key: "bad", File: "bad.pdf", SourceURL: srv.URL + "/bad.pdf"},
			{Key: "good-two", File: "two.pdf", SourceURL: srv.URL + "/two.pdf"},
		}
		fetched, failures := f.FetchAll(context.Background(), docs, false)

		assert.Equal(t, 2, fetched)
		require.Len(t, failures, 1)
		assert.Contains(t, failures, "bad")
	})
}
