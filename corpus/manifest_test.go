package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvata/gleaner/errors"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const sampleManifest = `
[[document]]
key = "berlin-1921"
title = "Berliner Tageblatt, March 1921"
authors = ["Theodor Wolff"]
year = 1921
language = "de"
source_url = "https://archive.example.org/berlin-1921.pdf"
file = "berlin-1921.pdf"

[[document]]
key = "istanbul-1934"
title = "Cumhuriyet, summer 1934"
year = 1934
language = "tr"
file = "istanbul-1934.pdf"
doc_type = "scanned"

[[document]]
key = "cairo-1956"
title = "Al-Ahram, November 1956"
language = "ar"
file = "cairo-1956.pdf"
`

func TestLoadManifest(t *testing.T) {
	t.Run("parses documents with metadata", func(t *testing.T) {
		m, err := LoadManifest(writeManifest(t, sampleManifest))
		require.NoError(t, err)
		require.Len(t, m.Documents, 3)

		doc, ok := m.Get("berlin-1921")
		require.True(t, ok)
		assert.Equal(t, "Berliner Tageblatt, March 1921", doc.Title)
		assert.Equal(t, []string{"Theodor Wolff"}, doc.Authors)
		assert.Equal(t, 1921, doc.Year)
		assert.Equal(t, "de", doc.Language)

		doc, ok = m.Get("istanbul-1934")
		require.True(t, ok)
		assert.Equal(t, DocTypeScanned, doc.DocType, "manifest may pin the doc type")
	})

	t.Run("keys are sorted", func(t *testing.T) {
		m, err := LoadManifest(writeManifest(t, sampleManifest))
		require.NoError(t, err)
		assert.Equal(t, []string{"berlin-1921", "cairo-1956", "istanbul-1934"}, m.Keys())
	})

	t.Run("rejects duplicate keys", func(t *testing.T) {
		_, err := LoadManifest(writeManifest(t, `
[[document]]
key = "twice"
file = "a.pdf"

[[document]]
key = "twice"
file = "b.pdf"
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
		assert.Equal(t, errors.ClassConfig, errors.ClassOf(err))
	})

	t.Run("rejects invalid key slugs", func(t *testing.T) {
		_, err := LoadManifest(writeManifest(t, `
[[document]]
key = "Bad Key!"
file = "a.pdf"
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "slug")
	})

	t.Run("rejects entries with neither file nor url", func(t *testing.T) {
		_, err := LoadManifest(writeManifest(t, `
[[document]]
key = "nothing"
title = "No way to find this"
`))
		require.Error(t, err)
	})

	t.Run("rejects empty manifest", func(t *testing.T) {
		_, err := LoadManifest(writeManifest(t, "# no documents\n"))
		require.Error(t, err)
	})

	t.Run("missing file is a config error", func(t *testing.T) {
		_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.toml"))
		require.Error(t, err)
		assert.Equal(t, errors.ClassConfig, errors.ClassOf(err))
	})
}

func TestManifestSelect(t *testing.T) {
	m, err := LoadManifest(writeManifest(t, sampleManifest))
	require.NoError(t, err)

	t.Run("empty selection returns everything", func(t *testing.T) {
		docs, err := m.Select(nil)
		require.NoError(t, err)
		assert.Len(t, docs, 3)
	})

	t.Run("selection preserves request order", func(t *testing.T) {
		docs, err := m.Select([]string{"cairo-1956", "berlin-1921"})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "cairo-1956", docs[0].Key)
		assert.Equal(t, "berlin-1921", docs[1].Key)
	})

	t.Run("unknown key is a not-found error", func(t *testing.T) {
		_, err := m.Select([]string{"berlin-1921", "atlantis-1900"})
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
	})
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("berlin-1921"))
	assert.True(t, ValidKey("vol2.part-3"))
	assert.False(t, ValidKey(""))
	assert.False(t, ValidKey("With Spaces"))
	assert.False(t, ValidKey("-leading-dash"))
	assert.False(t, ValidKey("slash/key"))
}
