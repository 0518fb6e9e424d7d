// Package errors provides error handling for gleaner.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//   - User-facing hints and details
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Classify into the pipeline taxonomy
//	return errors.AsInput(errors.Wrap(err, "open source pdf"))
//
//	// Check errors
//	if errors.Is(err, errors.ErrLockHeld) {
//	    // another run is active
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is                      = crdb.Is
	IsAny                   = crdb.IsAny
	As                      = crdb.As
	Unwrap                  = crdb.Unwrap
	UnwrapAll               = crdb.UnwrapAll
	Mark                    = crdb.Mark
	GetAllHints             = crdb.GetAllHints
	GetAllDetails           = crdb.GetAllDetails
	FlattenHints            = crdb.FlattenHints
	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for use across gleaner.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrLockHeld indicates another pipeline run already holds the lock
	ErrLockHeld = New("pipeline lock held")

	// ErrLockStale indicates the lock file belongs to a run that is no
	// longer alive (heartbeat older than the configured staleness window)
	ErrLockStale = New("pipeline lock is stale")

	// ErrTimeout indicates a stage invocation exceeded its deadline
	ErrTimeout = New("operation timed out")

	// ErrBudgetExhausted indicates the run-wide vision spend cap is reached
	ErrBudgetExhausted = New("vision budget exhausted")

	// ErrSchemaIncompatible indicates an on-disk artifact was written by an
	// incompatible pipeline version
	ErrSchemaIncompatible = New("artifact schema incompatible")
)

// Taxonomy markers. Every failure recorded against a document carries
// exactly one of these so operators can tell a corrupt input apart from a
// crashed OCR engine or a vision quota error. Use the As* constructors at
// the failure site and ClassOf when reading a recorded error back.
var (
	// ClassInput marks unreadable or corrupt source documents.
	ClassInput = New("input error")

	// ClassEngine marks extraction engine failures (missing binary at run
	// time, engine crash, unparseable engine output).
	ClassEngine = New("stage engine error")

	// ClassExternal marks paid-service failures (quota, auth, network).
	// These are retryable on a later forced run without code changes.
	ClassExternal = New("external service error")

	// ClassConfig marks misconfiguration detected at startup (missing
	// language pack, absent credentials). Fatal to the run before any
	// document is dispatched.
	ClassConfig = New("configuration error")
)

// AsInput marks err as an input error while preserving the chain.
func AsInput(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ClassInput)
}

// AsEngine marks err as a stage engine error.
func AsEngine(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ClassEngine)
}

// AsExternal marks err as a retryable external-service error.
func AsExternal(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ClassExternal)
}

// AsConfig marks err as a configuration error.
func AsConfig(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ClassConfig)
}

// ClassOf returns the taxonomy marker carried by err, or nil when the
// error was never classified (treated as an engine error by callers that
// must pick something).
func ClassOf(err error) error {
	switch {
	case err == nil:
		return nil
	case Is(err, ClassInput):
		return ClassInput
	case Is(err, ClassEngine):
		return ClassEngine
	case Is(err, ClassExternal):
		return ClassExternal
	case Is(err, ClassConfig):
		return ClassConfig
	default:
		return nil
	}
}

// ClassName returns the short wire name of err's taxonomy class, as
// stored in status records: "input", "engine", "external", "config".
// Unclassified errors report "engine".
func ClassName(err error) string {
	switch ClassOf(err) {
	case nil:
		if err == nil {
			return ""
		}
		return "engine"
	case ClassInput:
		return "input"
	case ClassEngine:
		return "engine"
	case ClassExternal:
		return "external"
	case ClassConfig:
		return "config"
	default:
		return "engine"
	}
}

// IsRetryable reports whether a recorded failure is worth a later forced
// re-run without code or input changes. Only external-service failures
// qualify; corrupt inputs and engine crashes need investigation first.
func IsRetryable(err error) bool {
	return err != nil && Is(err, ClassExternal)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}
