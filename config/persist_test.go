package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	t.Run("writes a nested key into the user config", func(t *testing.T) {
		Reset()
		defer Reset()

		tempDir := t.TempDir()
		t.Setenv("HOME", tempDir)

		err := Set("vision.run_budget_usd", 2.5)
		require.NoError(t, err)

		cfg, err := LoadFromFile(UserConfigPath())
		require.NoError(t, err)
		assert.Equal(t, 2.5, cfg.Vision.RunBudgetUSD)
	})

	t.Run("preserves unrelated settings", func(t *testing.T) {
		Reset()
		defer Reset()

		tempDir := t.TempDir()
		t.Setenv("HOME", tempDir)

		require.NoError(t, Set("pipeline.workers", int64(8)))
		require.NoError(t, Set("paths.corpus_dir", "/data/corpus"))

		cfg, err := LoadFromFile(UserConfigPath())
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Pipeline.Workers)
		assert.Equal(t, "/data/corpus", cfg.Paths.CorpusDir)
	})

	t.Run("rejects keys without a section", func(t *testing.T) {
		err := Set("workers", 8)
		require.Error(t, err)
	})

	t.Run("rotates backups on repeated writes", func(t *testing.T) {
		Reset()
		defer Reset()

		tempDir := t.TempDir()
		t.Setenv("HOME", tempDir)

		require.NoError(t, Set("pipeline.workers", int64(2)))
		require.NoError(t, Set("pipeline.workers", int64(4)))
		require.NoError(t, Set("pipeline.workers", int64(6)))

		_, err := os.Stat(UserConfigPath() + ".back1")
		assert.NoError(t, err, ".back1 should exist after multiple writes")
	})
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw  string
		want interface{}
	}{
		{"true", true},
		{"false", false},
		{"8", int64(8)},
		{"0.05", 0.05},
		{"corpus", "corpus"},
		{"/data/pdfs", "/data/pdfs"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseValue(tt.raw))
		})
	}
}

func TestSourceTracking(t *testing.T) {
	t.Run("user and project layers are tracked", func(t *testing.T) {
		Reset()
		defer Reset()

		tempDir := t.TempDir()
		t.Setenv("HOME", tempDir)

		userDir := filepath.Join(tempDir, ".config", "gleaner")
		require.NoError(t, os.MkdirAll(userDir, 0755))

		userToml := `
[paths]
database = "user.db"

[pipeline]
workers = 2
`
		require.NoError(t, os.WriteFile(
			filepath.Join(userDir, "config.toml"),
			[]byte(userToml),
			0644,
		))

		projectDir := filepath.Join(tempDir, "project")
		require.NoError(t, os.MkdirAll(projectDir, 0755))
		projectToml := `
[paths]
database = "project.db"
`
		require.NoError(t, os.WriteFile(
			filepath.Join(projectDir, "gleaner.toml"),
			[]byte(projectToml),
			0644,
		))

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		require.NoError(t, os.Chdir(projectDir))

		cfg, err := Load()
		require.NoError(t, err)

		// Project layer wins for database, user layer still supplies workers
		assert.Equal(t, "project.db", cfg.Paths.Database)
		assert.Equal(t, 2, cfg.Pipeline.Workers)

		assert.Equal(t, SourceProject, ConfigSources["paths.database"].Source)
		assert.Contains(t, ConfigSources["paths.database"].Path, "gleaner.toml")
		assert.Equal(t, SourceUser, ConfigSources["pipeline.workers"].Source)
	})

	t.Run("introspection reports defaults for untouched keys", func(t *testing.T) {
		Reset()
		defer Reset()

		tempDir := t.TempDir()
		t.Setenv("HOME", tempDir)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		require.NoError(t, os.Chdir(tempDir))

		introspection, err := GetConfigIntrospection()
		require.NoError(t, err)

		var found bool
		for _, s := range introspection.Settings {
			if s.Key == "quality.garbled_glyph_ratio" {
				found = true
				assert.Equal(t, SourceDefault, s.Source)
			}
		}
		assert.True(t, found, "expected quality.garbled_glyph_ratio in the settings list")
	})
}
