package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
// Verbosity Levels:
//
//	0 (default) - User-facing output only: results, errors with hints, final summary
//	1 (-v)      - + Progress, startup info, per-document completion lines
//	2 (-vv)     - + Stage timing, quality stats, config loaded
//	3 (-vvv)    - + Engine stdout/stderr, SQL queries, per-page detail
//	4 (-vvvv)   - + Full engine payloads and data structure dumps

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults    OutputCategory = iota // Run summary, command output
	OutputErrors                           // Errors with hints and resolution steps
	OutputUserStatus                       // Final success/failure status

	// Level 1 (-v) - Informational
	OutputProgress // Progress indicators (e.g., "42/120 documents")
	OutputStartup  // Startup banner, inventory and config summary
	OutputDocLines // Per-document completion lines with quality label

	// Level 2 (-vv) - Detailed
	OutputTiming       // Stage timing (e.g., "ocr took 42s")
	OutputConfig       // Config values loaded/applied
	OutputQualityStats // Per-document quality metrics

	// Level 3 (-vvv) - Debug
	OutputEngineLogs // pdftotext/pdftoppm/tesseract stdout+stderr forwarding
	OutputSQLQueries // Individual SQL queries executed
	OutputPageDetail // Per-page extraction detail

	// Level 4 (-vvvv) - Full dump
	OutputPayloads // Full vision request/response bodies
	OutputDataDump // Full data structure contents
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputResults:    VerbosityUser,
	OutputErrors:     VerbosityUser,
	OutputUserStatus: VerbosityUser,

	OutputProgress: VerbosityInfo,
	OutputStartup:  VerbosityInfo,
	OutputDocLines: VerbosityInfo,

	OutputTiming:       VerbosityDebug,
	OutputConfig:       VerbosityDebug,
	OutputQualityStats: VerbosityDebug,

	OutputEngineLogs: VerbosityTrace,
	OutputSQLQueries: VerbosityTrace,
	OutputPageDetail: VerbosityTrace,

	OutputPayloads: VerbosityAll,
	OutputDataDump: VerbosityAll,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, default to highest verbosity required
		return verbosity >= VerbosityAll
	}
	return verbosity >= minLevel
}

// categoryNames provides human-readable names for output categories
var categoryNames = map[OutputCategory]string{
	OutputResults:      "results",
	OutputErrors:       "errors",
	OutputUserStatus:   "status",
	OutputProgress:     "progress",
	OutputStartup:      "startup",
	OutputDocLines:     "doc-lines",
	OutputTiming:       "timing",
	OutputConfig:       "config",
	OutputQualityStats: "quality-stats",
	OutputEngineLogs:   "engine-logs",
	OutputSQLQueries:   "sql",
	OutputPageDetail:   "page-detail",
	OutputPayloads:     "payloads",
	OutputDataDump:     "data-dump",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}
