package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Path defaults
	v.SetDefault("paths.corpus_dir", "corpus")
	v.SetDefault("paths.output_dir", "extracted")
	v.SetDefault("paths.database", "gleaner.db")
	v.SetDefault("paths.manifest", "corpus.toml")

	// Quality thresholds. The chars/page bands and glyph ratios were tuned
	// against scanned mid-century newspaper corpora; change with care.
	v.SetDefault("quality.embedded_min_chars_per_page", 50.0)
	v.SetDefault("quality.suspect_chars_per_page", 100.0)
	v.SetDefault("quality.garbled_chars_per_page", 20.0)
	v.SetDefault("quality.suspect_glyph_ratio", 0.01)
	v.SetDefault("quality.garbled_glyph_ratio", 0.05)
	v.SetDefault("quality.near_zero_chars", 10)
	v.SetDefault("quality.blank_page_fraction", 0.90)
	v.SetDefault("quality.scanned_probe_pages", 3)

	// Stage engine defaults
	v.SetDefault("stages.pdftotext_binary", "pdftotext")
	v.SetDefault("stages.pdftoppm_binary", "pdftoppm")
	v.SetDefault("stages.tesseract_binary", "tesseract")
	v.SetDefault("stages.embedded_timeout_seconds", 120)
	v.SetDefault("stages.ocr_timeout_seconds", 600)
	v.SetDefault("stages.render_scale", 2.0)  // 144 DPI
	v.SetDefault("stages.jpeg_quality", 85)
	v.SetDefault("stages.tesseract_psm", 3)
	v.SetDefault("stages.default_language", "en")

	// Vision (paid stage) defaults
	v.SetDefault("vision.timeout_seconds", 60)
	v.SetDefault("vision.cost_per_page_usd", 0.0015) // DOCUMENT_TEXT_DETECTION list price
	v.SetDefault("vision.requests_per_second", 5.0)
	v.SetDefault("vision.burst", 2)
	v.SetDefault("vision.run_budget_usd", 5.0)
	v.SetDefault("vision.batch_size", 16) // API maximum per BatchAnnotateImages call

	// Pipeline defaults
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.memory_per_worker_mb", 256)

	// Lock defaults
	v.SetDefault("lock.stale_after_minutes", 60)
	v.SetDefault("lock.heartbeat_seconds", 30)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Vision credentials should never land in a config file
	v.BindEnv("vision.credentials_file", "GLEANER_VISION_CREDENTIALS_FILE")

	// Database path
	v.BindEnv("paths.database", "GLEANER_DATABASE_PATH")

	// Corpus location for deployments that stage sources elsewhere
	v.BindEnv("paths.corpus_dir", "GLEANER_CORPUS_DIR")
}
