package config

import "github.com/corvata/gleaner/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Paths are optional - empty values fall back to defaults at use sites

	// Workers: 0 = use default at dispatch, negative = invalid
	if c.Pipeline.Workers < 0 {
		return errors.AsConfig(errors.Newf("pipeline.workers must be >= 0, got %d", c.Pipeline.Workers))
	}

	// Quality thresholds: the bands must nest or classification is incoherent
	if c.Quality.SuspectGlyphRatio < 0 || c.Quality.SuspectGlyphRatio > 1 {
		return errors.AsConfig(errors.Newf("quality.suspect_glyph_ratio must be in [0,1], got %f", c.Quality.SuspectGlyphRatio))
	}
	if c.Quality.GarbledGlyphRatio < 0 || c.Quality.GarbledGlyphRatio > 1 {
		return errors.AsConfig(errors.Newf("quality.garbled_glyph_ratio must be in [0,1], got %f", c.Quality.GarbledGlyphRatio))
	}
	if c.Quality.GarbledGlyphRatio > 0 && c.Quality.GarbledGlyphRatio < c.Quality.SuspectGlyphRatio {
		return errors.AsConfig(errors.Newf("quality.garbled_glyph_ratio (%f) must be >= suspect_glyph_ratio (%f)",
			c.Quality.GarbledGlyphRatio, c.Quality.SuspectGlyphRatio))
	}
	if c.Quality.GarbledCharsPerPage > 0 && c.Quality.SuspectCharsPerPage > 0 &&
		c.Quality.GarbledCharsPerPage > c.Quality.SuspectCharsPerPage {
		return errors.AsConfig(errors.Newf("quality.garbled_chars_per_page (%f) must be <= suspect_chars_per_page (%f)",
			c.Quality.GarbledCharsPerPage, c.Quality.SuspectCharsPerPage))
	}
	if c.Quality.BlankPageFraction < 0 || c.Quality.BlankPageFraction > 1 {
		return errors.AsConfig(errors.Newf("quality.blank_page_fraction must be in [0,1], got %f", c.Quality.BlankPageFraction))
	}
	if c.Quality.NearZeroChars < 0 {
		return errors.AsConfig(errors.Newf("quality.near_zero_chars must be >= 0, got %d", c.Quality.NearZeroChars))
	}

	// Stage engines: negative timeouts are invalid, 0 = default
	if c.Stages.EmbeddedTimeoutSeconds < 0 {
		return errors.AsConfig(errors.Newf("stages.embedded_timeout_seconds must be >= 0, got %d", c.Stages.EmbeddedTimeoutSeconds))
	}
	if c.Stages.OCRTimeoutSeconds < 0 {
		return errors.AsConfig(errors.Newf("stages.ocr_timeout_seconds must be >= 0, got %d", c.Stages.OCRTimeoutSeconds))
	}
	if c.Stages.RenderScale < 0 {
		return errors.AsConfig(errors.Newf("stages.render_scale must be > 0, got %f", c.Stages.RenderScale))
	}
	if c.Stages.JPEGQuality < 0 || c.Stages.JPEGQuality > 100 {
		return errors.AsConfig(errors.Newf("stages.jpeg_quality must be in [1,100], got %d", c.Stages.JPEGQuality))
	}

	// Vision: budget values 0 = uncapped (valid), negative = invalid
	if c.Vision.CostPerPageUSD < 0 {
		return errors.AsConfig(errors.Newf("vision.cost_per_page_usd must be >= 0, got %f", c.Vision.CostPerPageUSD))
	}
	if c.Vision.RunBudgetUSD < 0 {
		return errors.AsConfig(errors.Newf("vision.run_budget_usd must be >= 0, got %f", c.Vision.RunBudgetUSD))
	}
	if c.Vision.RequestsPerSecond < 0 {
		return errors.AsConfig(errors.Newf("vision.requests_per_second must be > 0, got %f", c.Vision.RequestsPerSecond))
	}
	if c.Vision.BatchSize < 0 || c.Vision.BatchSize > 16 {
		return errors.AsConfig(errors.Newf("vision.batch_size must be in [1,16], got %d", c.Vision.BatchSize))
	}

	// Lock: negative intervals are invalid, 0 = default
	if c.Lock.StaleAfterMinutes < 0 {
		return errors.AsConfig(errors.Newf("lock.stale_after_minutes must be >= 0, got %d", c.Lock.StaleAfterMinutes))
	}
	if c.Lock.HeartbeatSeconds < 0 {
		return errors.AsConfig(errors.Newf("lock.heartbeat_seconds must be >= 0, got %d", c.Lock.HeartbeatSeconds))
	}

	return nil
}
