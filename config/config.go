package config

import (
	"fmt"
	"time"
)

// Config represents the core gleaner configuration
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Quality  QualityConfig  `mapstructure:"quality"`
	Stages   StagesConfig   `mapstructure:"stages"`
	Vision   VisionConfig   `mapstructure:"vision"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Lock     LockConfig     `mapstructure:"lock"`
}

// PathsConfig locates the corpus and everything the pipeline writes
type PathsConfig struct {
	CorpusDir string `mapstructure:"corpus_dir"` // Source PDFs live here
	OutputDir string `mapstructure:"output_dir"` // Per-document artifact directories
	Database  string `mapstructure:"database"`   // SQLite status store
	Manifest  string `mapstructure:"manifest"`   // Corpus manifest (TOML)
	LockDir   string `mapstructure:"lock_dir"`   // Empty = output_dir
}

// QualityConfig holds the classification thresholds.
// Values <= 0 fall back to the documented defaults at load time.
type QualityConfig struct {
	EmbeddedMinCharsPerPage float64 `mapstructure:"embedded_min_chars_per_page"` // Mean chars/page for embedded text to be adequate (default: 50)
	SuspectCharsPerPage     float64 `mapstructure:"suspect_chars_per_page"`      // Below this mean = suspect (default: 100)
	GarbledCharsPerPage     float64 `mapstructure:"garbled_chars_per_page"`      // Below this mean = garbled (default: 20)
	SuspectGlyphRatio       float64 `mapstructure:"suspect_glyph_ratio"`         // PUA/replacement ratio above this = suspect (default: 0.01)
	GarbledGlyphRatio       float64 `mapstructure:"garbled_glyph_ratio"`         // PUA/replacement ratio above this = garbled (default: 0.05)
	NearZeroChars           int     `mapstructure:"near_zero_chars"`             // Pages under this count as blank (default: 10)
	BlankPageFraction       float64 `mapstructure:"blank_page_fraction"`         // Fraction of blank pages for a blank document (default: 0.90)
	ScannedProbePages       int     `mapstructure:"scanned_probe_pages"`         // Pages sampled for the scanned-vs-digital heuristic (default: 3)
}

// StagesConfig configures the extraction engines
type StagesConfig struct {
	PdftotextBinary string `mapstructure:"pdftotext_binary"` // Embedded-text engine (default: pdftotext)
	PdftoppmBinary  string `mapstructure:"pdftoppm_binary"`  // Page rasterizer (default: pdftoppm)
	TesseractBinary string `mapstructure:"tesseract_binary"` // OCR engine (default: tesseract)

	EmbeddedTimeoutSeconds int `mapstructure:"embedded_timeout_seconds"` // Per-call timeout (default: 120)
	OCRTimeoutSeconds      int `mapstructure:"ocr_timeout_seconds"`      // Per-document OCR timeout (default: 600)

	RenderScale float64 `mapstructure:"render_scale"` // Multiple of 72 DPI for page images (default: 2.0)
	JPEGQuality int     `mapstructure:"jpeg_quality"` // 1-100 (default: 85)

	TesseractPSM       int    `mapstructure:"tesseract_psm"`        // Page segmentation mode (default: 3)
	TesseractExtraArgs string `mapstructure:"tesseract_extra_args"` // Shell-quoted extra flags, appended verbatim

	DefaultLanguage string `mapstructure:"default_language"` // ISO 639-1 fallback when the manifest has none (default: en)
}

// VisionConfig configures the paid cloud OCR stage.
// The stage itself only runs when a run passes --vision; these settings
// govern cost, throttling, and credentials once it does.
type VisionConfig struct {
	CredentialsFile   string  `mapstructure:"credentials_file"`    // Service account JSON; env-only in most setups
	Endpoint          string  `mapstructure:"endpoint"`            // Override for testing (empty = production)
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`     // Per-batch timeout (default: 60)
	CostPerPageUSD    float64 `mapstructure:"cost_per_page_usd"`   // Estimate input (default: 0.0015)
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // Shared run-wide limiter (default: 5)
	Burst             int     `mapstructure:"burst"`               // Limiter burst (default: 2)
	RunBudgetUSD      float64 `mapstructure:"run_budget_usd"`      // Spend cap per run, 0 = uncapped (default: 5.0)
	BatchSize         int     `mapstructure:"batch_size"`          // Pages per API request, max 16 (default: 16)
}

// PipelineConfig configures the worker pool
type PipelineConfig struct {
	Workers           int `mapstructure:"workers"`              // Concurrent document workers (default: 4)
	MemoryPerWorkerMB int `mapstructure:"memory_per_worker_mb"` // Rough RAM estimate for the pressure warning (default: 256)
}

// LockConfig configures the exclusive run lock
type LockConfig struct {
	StaleAfterMinutes int `mapstructure:"stale_after_minutes"` // Heartbeat age before clear may remove the lock (default: 60)
	HeartbeatSeconds  int `mapstructure:"heartbeat_seconds"`   // Refresh interval while a run holds the lock (default: 30)
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// EmbeddedTimeout returns the per-call timeout for the embedded-text engine
func (s *StagesConfig) EmbeddedTimeout() time.Duration {
	if s.EmbeddedTimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(s.EmbeddedTimeoutSeconds) * time.Second
}

// OCRTimeout returns the per-document timeout for rasterize + OCR
func (s *StagesConfig) OCRTimeout() time.Duration {
	if s.OCRTimeoutSeconds <= 0 {
		return 600 * time.Second
	}
	return time.Duration(s.OCRTimeoutSeconds) * time.Second
}

// RenderDPI converts the render scale to the DPI pdftoppm expects
func (s *StagesConfig) RenderDPI() int {
	scale := s.RenderScale
	if scale <= 0 {
		scale = 2.0
	}
	return int(72 * scale)
}

// Timeout returns the per-batch timeout for vision API calls
func (v *VisionConfig) Timeout() time.Duration {
	if v.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(v.TimeoutSeconds) * time.Second
}

// StaleAfter returns the heartbeat age past which a lock counts as stale
func (l *LockConfig) StaleAfter() time.Duration {
	if l.StaleAfterMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(l.StaleAfterMinutes) * time.Minute
}

// HeartbeatInterval returns how often a held lock refreshes its heartbeat
func (l *LockConfig) HeartbeatInterval() time.Duration {
	if l.HeartbeatSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(l.HeartbeatSeconds) * time.Second
}

// GetDatabasePath returns the configured status database path
func (c *Config) GetDatabasePath() string {
	if c.Paths.Database == "" {
		return "gleaner.db" // Fallback default
	}
	return c.Paths.Database
}

// GetLockDir returns where the run lock file lives
func (c *Config) GetLockDir() string {
	if c.Paths.LockDir != "" {
		return c.Paths.LockDir
	}
	if c.Paths.OutputDir != "" {
		return c.Paths.OutputDir
	}
	return "extracted"
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Corpus: %s, Output: %s, Workers: %d}",
		c.Paths.CorpusDir, c.Paths.OutputDir, c.Pipeline.Workers)
}
