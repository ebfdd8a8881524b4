package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/fonix232/caddy/internal/domain"
	"github.com/fonix232/caddy/internal/ports"
)

// Emitter writes the dispatch signal. Every run produces exactly one
// JSON line on the output writer; when a GitHub Actions output file is
// configured the NEEDS_BUILD / LATEST_VERSION pair is appended there too
// so the surrounding workflow can gate the build job.
type Emitter struct {
	outputPath string
	out        io.Writer
	logger     *slog.Logger
}

var _ ports.Dispatcher = (*Emitter)(nil)

// NewEmitter wires the signal writer. outputPath is usually the value
// of $GITHUB_OUTPUT and may be empty outside Actions.
func NewEmitter(outputPath string, out io.Writer, log *slog.Logger) *Emitter {
	if out == nil {
		out = os.Stdout
	}
	return &Emitter{outputPath: outputPath, out: out, logger: log}
}

type signal struct {
	NeedsBuild bool   `json:"needs_build"`
	Version    string `json:"version"`
	Reason     string `json:"reason,omitempty"`
}

// Dispatch emits the decision once.
func (e *Emitter) Dispatch(ctx context.Context, decision domain.Decision) error {
	payload, err := json.Marshal(signal{
		NeedsBuild: decision.NeedsBuild,
		Version:    decision.Tag,
		Reason:     decision.Reason,
	})
	if err != nil {
		return fmt.Errorf("marshal dispatch signal: %w", err)
	}
	if _, err := fmt.Fprintln(e.out, string(payload)); err != nil {
		return fmt.Errorf("write dispatch signal: %w", err)
	}

	if e.outputPath == "" {
		if e.logger != nil {
			e.logger.Warn("GITHUB_OUTPUT not set, skipping actions output")
		}
		return nil
	}

	f, err := os.OpenFile(e.outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open actions output %s: %w", e.outputPath, err)
	}

	if err := writeOutput(f, "NEEDS_BUILD", strconv.FormatBool(decision.NeedsBuild)); err != nil {
		_ = f.Close()
		return err
	}
	if err := writeOutput(f, "LATEST_VERSION", decision.Tag); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close actions output: %w", err)
	}
	return nil
}

// writeOutput appends one name=value pair in the GitHub Actions output
// format; multiline values need a unique heredoc delimiter.
func writeOutput(w io.Writer, name, value string) error {
	var err error
	if strings.Contains(value, "\n") {
		delimiter := "ghadelimiter_" + uuid.NewString()
		_, err = fmt.Fprintf(w, "%s<<%s\n%s\n%s\n", name, delimiter, value, delimiter)
	} else {
		_, err = fmt.Fprintf(w, "%s=%s\n", name, value)
	}
	if err != nil {
		return fmt.Errorf("write output %s: %w", name, err)
	}
	return nil
}
