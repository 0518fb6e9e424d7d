package logger

import (
	"context"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		wantErr    bool
	}{
		{
			name:       "JSON output mode",
			jsonOutput: true,
			wantErr:    false,
		},
		{
			name:       "Console output mode",
			jsonOutput: false,
			wantErr:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset global logger
			Logger = nil
			JSONOutput = false

			err := Initialize(tt.jsonOutput)
			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if Logger == nil {
					t.Error("Initialize() did not set global Logger")
				}
				if JSONOutput != tt.jsonOutput {
					t.Errorf("Initialize() JSONOutput = %v, want %v", JSONOutput, tt.jsonOutput)
				}
			}

			// Cleanup
			if Logger != nil {
				Logger.Sync()
				Logger = nil
			}
		})
	}
}

func TestInitializeWithVerbosity(t *testing.T) {
	defer func() {
		Logger = nil
		Initialize(false)
	}()

	for _, verbosity := range []int{VerbosityUser, VerbosityInfo, VerbosityDebug, VerbosityTrace} {
		if err := InitializeWithVerbosity(false, verbosity); err != nil {
			t.Errorf("InitializeWithVerbosity(%d) error: %v", verbosity, err)
		}
		if Logger == nil {
			t.Errorf("InitializeWithVerbosity(%d) did not set global Logger", verbosity)
		}
	}
}

func TestVerbosityToLevel(t *testing.T) {
	cases := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{VerbosityUser, zapcore.WarnLevel},
		{VerbosityInfo, zapcore.InfoLevel},
		{VerbosityDebug, zapcore.DebugLevel},
		{VerbosityTrace, zapcore.DebugLevel},
		{VerbosityAll, zapcore.DebugLevel},
		{99, zapcore.DebugLevel},
	}
	for _, tc := range cases {
		if got := VerbosityToLevel(tc.verbosity); got != tc.want {
			t.Errorf("VerbosityToLevel(%d) = %v, want %v", tc.verbosity, got, tc.want)
		}
	}
}

func TestNopLoggerBeforeInitialize(t *testing.T) {
	// The package-level init installs a no-op logger, so logging before
	// Initialize must not panic.
	Logger = nil
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("logging with nil Logger panicked: %v", r)
			}
		}()
		Info("no-op")
		Infow("no-op", "k", "v")
		Warnw("no-op", "k", "v")
		Errorw("no-op", "k", "v")
	}()

	if err := Initialize(false); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	if fields := FieldsFromContext(ctx); len(fields) != 0 {
		t.Errorf("empty context produced fields: %v", fields)
	}

	ctx = WithRunID(ctx, "run-123")
	ctx = WithDocKey(ctx, "berlin-1921")

	fields := FieldsFromContext(ctx)
	if len(fields) != 4 {
		t.Fatalf("expected 4 field elements, got %d: %v", len(fields), fields)
	}

	got := map[string]string{}
	for i := 0; i+1 < len(fields); i += 2 {
		got[fields[i].(string)] = fields[i+1].(string)
	}
	if got[FieldRunID] != "run-123" {
		t.Errorf("run ID field = %q, want run-123", got[FieldRunID])
	}
	if got[FieldDocKey] != "berlin-1921" {
		t.Errorf("doc key field = %q, want berlin-1921", got[FieldDocKey])
	}
}

func TestComponentLogger(t *testing.T) {
	if err := Initialize(false); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer Cleanup()

	named := ComponentLogger("pipeline.pool")
	if named == nil {
		t.Fatal("ComponentLogger returned nil")
	}
	// Must not panic and must be independent of the global
	named.Debugw("component logger smoke test", FieldDocKey, "k1")
}

func TestShouldOutput(t *testing.T) {
	cases := []struct {
		verbosity int
		category  OutputCategory
		want      bool
	}{
		{VerbosityUser, OutputResults, true},
		{VerbosityUser, OutputProgress, false},
		{VerbosityInfo, OutputProgress, true},
		{VerbosityInfo, OutputTiming, false},
		{VerbosityDebug, OutputTiming, true},
		{VerbosityDebug, OutputEngineLogs, false},
		{VerbosityTrace, OutputEngineLogs, true},
		{VerbosityTrace, OutputPayloads, false},
		{VerbosityAll, OutputPayloads, true},
	}
	for _, tc := range cases {
		if got := ShouldOutput(tc.verbosity, tc.category); got != tc.want {
			t.Errorf("ShouldOutput(%d, %s) = %v, want %v",
				tc.verbosity, CategoryName(tc.category), got, tc.want)
		}
	}
}
