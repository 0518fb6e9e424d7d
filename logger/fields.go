package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across gleaner.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID  = "run_id"
	FieldDocKey = "key"

	// Components
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldEngine    = "engine"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldStartTime  = "start_time"
	FieldEndTime    = "end_time"

	// Errors
	FieldError      = "error"
	FieldErrorClass = "error_class"

	// Counts and sizes
	FieldCount   = "count"
	FieldPages   = "pages"
	FieldWorkers = "workers"

	// Status
	FieldState   = "state"
	FieldQuality = "quality"

	// Money
	FieldCostUSD = "cost_usd"

	// Files and paths
	FieldFile   = "file"
	FieldBinary = "binary"
)

// Context keys for propagating logging context
type contextKey string

const (
	runIDKey  contextKey = "logger_run_id"
	docKeyKey contextKey = "logger_doc_key"
)

// WithRunID adds the pipeline run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithDocKey adds a document key to the context for logging
func WithDocKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, docKeyKey, key)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if key, ok := ctx.Value(docKeyKey).(string); ok && key != "" {
		fields = append(fields, FieldDocKey, key)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Pool struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewPool() *Pool {
//	    return &Pool{
//	        logger: logger.ComponentLogger("pipeline.pool"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
// Use for sub-operations that need extra context fields.
//
// Example:
//
//	docLogger := logger.ChildLogger(baseLogger, logger.FieldDocKey, doc.Key)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
