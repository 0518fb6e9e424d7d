package stage

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/logger"
)

// Runner executes external extraction binaries. Stages hold a Runner
// instead of calling exec directly so tests can stub the subprocess
// boundary.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		logger.Warnw("exec failed",
			logger.FieldBinary, name,
			"args", strings.Join(args, " "),
			logger.FieldDurationMS, dur.Milliseconds(),
			logger.FieldError, err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		logger.Debugw("exec ok",
			logger.FieldBinary, name,
			"args", strings.Join(args, " "),
			logger.FieldDurationMS, dur.Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

// LookupBinary reports a config-class error when the named binary is
// not on PATH. Run startup calls this before taking the corpus lock so
// a missing tool fails the run, not the hundredth document.
func LookupBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return errors.AsConfig(errors.Wrapf(err, "required binary %q not found in PATH", name))
	}
	return nil
}

// classifyExecErr maps a subprocess failure onto the error taxonomy.
// Context expiry is a timeout; everything else a subprocess reports is
// an engine failure on this document.
func classifyExecErr(ctx context.Context, err error, binary, key string, stderr []byte) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.AsEngine(errors.Wrapf(errors.ErrTimeout, "%s on %s: %v", binary, key, ctxErr))
	}
	msg := strings.TrimSpace(truncate(string(stderr), 512))
	if msg != "" {
		return errors.AsEngine(errors.Wrapf(err, "%s on %s: %s", binary, key, msg))
	}
	return errors.AsEngine(errors.Wrapf(err, "%s on %s", binary, key))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
