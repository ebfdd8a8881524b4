package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fonix232/caddy/internal/domain"
)

func TestDispatchWritesSignalAndOutputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "output")

	var buf bytes.Buffer
	e := NewEmitter(path, &buf, nil)

	decision := domain.Decision{NeedsBuild: true, Tag: "v2.9.2", Reason: "tag not yet published"}
	if err := e.Dispatch(context.Background(), decision); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	var sig struct {
		NeedsBuild bool   `json:"needs_build"`
		Version    string `json:"version"`
	}
	if err := json.Unmarshal(buf.Bytes(), &sig); err != nil {
		t.Fatalf("signal is not valid JSON: %v", err)
	}
	if !sig.NeedsBuild || sig.Version != "v2.9.2" {
		t.Fatalf("unexpected signal: %+v", sig)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read actions output: %v", err)
	}
	got := string(raw)
	if !strings.Contains(got, "NEEDS_BUILD=true\n") {
		t.Fatalf("missing NEEDS_BUILD line: %q", got)
	}
	if !strings.Contains(got, "LATEST_VERSION=v2.9.2\n") {
		t.Fatalf("raw tag must pass through verbatim: %q", got)
	}
}

func TestDispatchNegativeCaseStillEmits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "output")

	var buf bytes.Buffer
	e := NewEmitter(path, &buf, nil)

	decision := domain.Decision{NeedsBuild: false, Tag: "v2.9.1", Reason: "tag already published"}
	if err := e.Dispatch(context.Background(), decision); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	if buf.Len() == 0 {
		t.Fatalf("negative decision must still emit a signal")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read actions output: %v", err)
	}
	if !strings.Contains(string(raw), "NEEDS_BUILD=false\n") {
		t.Fatalf("missing NEEDS_BUILD=false: %q", string(raw))
	}
}

func TestDispatchWithoutOutputPath(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := NewEmitter("", &buf, nil)

	if err := e.Dispatch(context.Background(), domain.Decision{Tag: "v2.9.1"}); err != nil {
		t.Fatalf("missing output path must degrade, not fail: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("JSON signal must still be written")
	}
}

func TestWriteOutputMultiline(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := writeOutput(&buf, "NOTES", "line one\nline two"); err != nil {
		t.Fatalf("writeOutput error: %v", err)
	}

	got := buf.String()
	if !strings.HasPrefix(got, "NOTES<<ghadelimiter_") {
		t.Fatalf("expected heredoc form, got %q", got)
	}

	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), got)
	}
	delimiter := strings.TrimPrefix(lines[0], "NOTES<<")
	if lines[3] != delimiter {
		t.Fatalf("closing delimiter mismatch: %q vs %q", lines[3], delimiter)
	}
}
