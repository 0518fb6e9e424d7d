package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"

	"github.com/corvata/gleaner/status"
)

// Emitter receives run progress. Implementations include:
// - CLIEmitter: pretty-printed terminal output using pterm
// - JSONEmitter: structured events for machine consumption (--json)
type Emitter interface {
	// RunStarted announces the run after the work set is settled.
	RunStarted(runID string, total, workers int, vision, dryRun bool)

	// DocumentStarted announces a worker picking up a document.
	DocumentStarted(key string)

	// DocumentPlanned reports a dry-run plan line.
	DocumentPlanned(p PlannedDocument)

	// DocumentFinished reports one document's outcome.
	DocumentFinished(o Outcome)

	// RunCompleted reports the final summary.
	RunCompleted(s *RunSummary)

	// Info passes through an informational message.
	Info(message string)
}

// ProgressEvent is one structured JSON progress event.
type ProgressEvent struct {
	Type      string                 `json:"type"` // "run_started", "document_started", "document_finished", "run_completed", "info"
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// CLIEmitter prints progress to the terminal using pterm.
type CLIEmitter struct {
	verbosity int
}

// NewCLIEmitter creates a terminal progress emitter.
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return &CLIEmitter{verbosity: verbosity}
}

func (e *CLIEmitter) RunStarted(runID string, total, workers int, vision, dryRun bool) {
	mode := ""
	if dryRun {
		mode = " (dry run)"
	} else if vision {
		mode = " (vision enabled)"
	}
	pterm.Printf("🔄 run %s: %s documents, %d workers%s\n",
		pterm.LightCyan(runID), pterm.Green(fmt.Sprintf("%d", total)), workers, mode)
}

func (e *CLIEmitter) DocumentStarted(key string) {
	if e.verbosity >= 1 {
		pterm.Printf("   %s...\n", key)
	}
}

func (e *CLIEmitter) DocumentPlanned(p PlannedDocument) {
	if p.VisionPages > 0 {
		pterm.Printf("📋 %s: %s (%d pages)\n", p.Key, p.PlannedStage, p.VisionPages)
		return
	}
	pterm.Printf("📋 %s: %s\n", p.Key, p.PlannedStage)
}

func (e *CLIEmitter) DocumentFinished(o Outcome) {
	switch {
	case o.Interrupted:
		pterm.Printf("🛑 %s: interrupted\n", o.Key)
	case o.State == status.StateError:
		pterm.Error.Printf("%s: %v\n", o.Key, o.Err)
	case o.Quality != "" && o.Quality != "ok":
		pterm.Printf("⚠️  %s: ok, quality %s (%d pages)\n",
			o.Key, pterm.Yellow(string(o.Quality)), o.Pages)
	default:
		pterm.Printf("✅ %s: ok (%d pages)\n", o.Key, o.Pages)
	}
}

func (e *CLIEmitter) RunCompleted(s *RunSummary) {
	if s.DryRun {
		if s.PlannedVisionPages > 0 {
			pterm.Printf("Planned: %d documents, %d vision pages, up to $%.2f\n",
				s.Total, s.PlannedVisionPages, s.PlannedCostUSD)
		} else {
			pterm.Printf("Planned: %d documents, no vision spend\n", s.Total)
		}
		return
	}
	if s.Interrupted {
		pterm.Warning.Println("Run interrupted")
	} else {
		pterm.Success.Println("Run complete")
	}
	pterm.Printf("  ok: %d  flagged: %d  errors: %d  skipped: %d\n",
		s.OK, s.Flagged, s.Errors, s.Skipped)
	if s.VisionPages > 0 {
		pterm.Printf("  vision: %d pages, $%.4f\n", s.VisionPages, s.VisionCostUSD)
	}
}

func (e *CLIEmitter) Info(message string) {
	if e.verbosity >= 1 {
		pterm.Info.Println(message)
	}
}

// JSONEmitter writes structured progress events, one JSON object per
// line, for piping a run into other tooling.
type JSONEmitter struct {
	encoder *json.Encoder
}

// NewJSONEmitter creates a JSON progress emitter writing to w.
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{encoder: json.NewEncoder(w)}
}

func (e *JSONEmitter) emit(eventType string, data map[string]interface{}) {
	e.encoder.Encode(ProgressEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

func (e *JSONEmitter) RunStarted(runID string, total, workers int, vision, dryRun bool) {
	e.emit("run_started", map[string]interface{}{
		"run_id":  runID,
		"total":   total,
		"workers": workers,
		"vision":  vision,
		"dry_run": dryRun,
	})
}

func (e *JSONEmitter) DocumentStarted(key string) {
	e.emit("document_started", map[string]interface{}{"key": key})
}

func (e *JSONEmitter) DocumentPlanned(p PlannedDocument) {
	data := map[string]interface{}{
		"key":           p.Key,
		"planned_stage": p.PlannedStage,
	}
	if p.VisionPages > 0 {
		data["vision_pages"] = p.VisionPages
	}
	e.emit("document_planned", data)
}

func (e *JSONEmitter) DocumentFinished(o Outcome) {
	data := map[string]interface{}{
		"key":    o.Key,
		"state":  string(o.State),
		"pages":  o.Pages,
		"stages": o.Stages,
	}
	if o.Quality != "" {
		data["quality"] = string(o.Quality)
	}
	if o.CostUSD > 0 {
		data["cost_usd"] = o.CostUSD
	}
	if o.Err != nil {
		data["error"] = o.Err.Error()
	}
	if o.Interrupted {
		data["interrupted"] = true
	}
	e.emit("document_finished", data)
}

func (e *JSONEmitter) RunCompleted(s *RunSummary) {
	e.emit("run_completed", map[string]interface{}{
		"run_id":          s.RunID,
		"total":           s.Total,
		"ok":              s.OK,
		"flagged":         s.Flagged,
		"errors":          s.Errors,
		"skipped":         s.Skipped,
		"vision_pages":    s.VisionPages,
		"vision_cost_usd": s.VisionCostUSD,
		"interrupted":     s.Interrupted,
		"dry_run":         s.DryRun,
	})
}

func (e *JSONEmitter) Info(message string) {
	e.emit("info", map[string]interface{}{"message": message})
}

// NopEmitter drops every event. Useful for tests and embedding.
type NopEmitter struct{}

func (NopEmitter) RunStarted(string, int, int, bool, bool) {}
func (NopEmitter) DocumentStarted(string)                  {}
func (NopEmitter) DocumentPlanned(PlannedDocument)         {}
func (NopEmitter) DocumentFinished(Outcome)                {}
func (NopEmitter) RunCompleted(*RunSummary)                {}
func (NopEmitter) Info(string)                             {}
