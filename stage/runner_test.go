package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// call is one recorded subprocess invocation.
type call struct {
	name string
	args []string
}

// stubRunner fakes the subprocess boundary. Behavior is keyed by binary
// name; the handler sees the args and can fabricate side effects like
// rendered page files.
type stubRunner struct {
	mu       sync.Mutex
	calls    []call
	handlers map[string]func(args []string) (stdout, stderr []byte, err error)
}

func newStubRunner() *stubRunner {
	return &stubRunner{handlers: make(map[string]func([]string) ([]byte, []byte, error))}
}

func (s *stubRunner) on(name string, fn func(args []string) ([]byte, []byte, error)) {
	s.handlers[name] = fn
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{name: name, args: args})
	fn := s.handlers[name]
	s.mu.Unlock()

	if fn == nil {
		return nil, nil, fmt.Errorf("no handler for %q", name)
	}
	return fn(args)
}

func (s *stubRunner) callsTo(name string) []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []call
	for _, c := range s.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// renderHandler fakes pdftoppm: it writes an empty JPEG per page using
// the tool's own prefix-N naming so EnsurePages has to rename them.
func renderHandler(t *testing.T, pageCount int) func(args []string) ([]byte, []byte, error) {
	t.Helper()
	return func(args []string) ([]byte, []byte, error) {
		prefix := args[len(args)-1]
		width := len(strconv.Itoa(pageCount))
		for p := 1; p <= pageCount; p++ {
			name := fmt.Sprintf("%s-%0*d.jpg", prefix, width, p)
			if err := os.WriteFile(name, []byte("jpeg"), 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}
}

// prerenderPages writes the final zero-padded page images directly, as
// a previous run would have left them.
func prerenderPages(t *testing.T, dir string, pageCount int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for p := 1; p <= pageCount; p++ {
		path := filepath.Join(dir, PageImageName(p))
		if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// hasArg reports whether the flag appears followed by the value.
func hasArg(args []string, flag, value string) bool {
	for i, a := range args {
		if a == flag && i+1 < len(args) && args[i+1] == value {
			return true
		}
	}
	return false
}

func joinedArgs(c call) string {
	return strings.Join(c.args, " ")
}
