package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/nao1215/pagefetch/internal/model"
)

// CreateFailureLog truncates (or creates) the failure log at path and
// opens it for appending. It is called once at startup, before any
// worker runs.
func CreateFailureLog(path string) (*os.File, error) {
	if err := os.WriteFile(path, nil, filePerm); err != nil {
		return nil, fmt.Errorf("failed to truncate failure log: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, filePerm) //nolint:gosec // User-provided log path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}
	return f, nil
}

// FailureReporter appends failure lines to a shared log.
// Concurrent calls to Report never interleave partial lines.
type FailureReporter struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

// NewFailureReporter creates a FailureReporter writing to w.
// If logger is nil, slog.Default() is used.
func NewFailureReporter(w io.Writer, logger *slog.Logger) *FailureReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailureReporter{w: w, logger: logger}
}

// Report appends the failure line for o and emits it as an error-level
// log event. Successful outcomes are ignored.
func (r *FailureReporter) Report(o model.Outcome) error {
	if o.OK() {
		return nil
	}

	line := o.FailureLine()

	r.mu.Lock()
	_, err := io.WriteString(r.w, line+"\n")
	r.mu.Unlock()

	attrs := []any{"url", o.URL, "reason", o.Reason.Label(), "proxy", o.Proxy}
	if o.StatusCode != 0 {
		attrs = append(attrs, "status", o.StatusCode)
	}
	if o.Err != nil {
		attrs = append(attrs, "error", o.Err)
	}
	r.logger.Error(line, attrs...)

	if err != nil {
		return fmt.Errorf("failed to append failure line: %w", err)
	}
	return nil
}
