package output

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nao1215/pagefetch/internal/model"
)

// File permissions for saved pages. Pages are plain downloads of public
// front pages, so they are readable by the group.
const (
	dirPerm  = 0750
	filePerm = 0640
)

// SavedPage describes where a page was written.
type SavedPage struct {
	// Dir is the per-host directory.
	Dir string

	// HTMLPath is the path of the raw HTML file.
	HTMLPath string

	// TextPath is the path of the sanitized text file.
	TextPath string
}

// PageWriter writes fetched pages below a destination root.
type PageWriter struct {
	dest   string
	logger *slog.Logger
}

// PageWriterOption configures a PageWriter.
type PageWriterOption func(*PageWriter)

// WithWriterLogger sets the logger used for save notices.
func WithWriterLogger(logger *slog.Logger) PageWriterOption {
	return func(w *PageWriter) {
		w.logger = logger
	}
}

// NewPageWriter creates a PageWriter storing pages under dest.
// The destination root itself is created lazily, together with each host
// directory.
func NewPageWriter(dest string, opts ...PageWriterOption) *PageWriter {
	w := &PageWriter{dest: dest}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Dest returns the destination root.
func (w *PageWriter) Dest() string {
	return w.dest
}

// Save writes html to "<base>.html" and text to "<base>.txt", where the
// base path is derived from rawURL by model.PagePaths. Existing files are
// overwritten. The two writes are not atomic as a pair.
func (w *PageWriter) Save(rawURL, html, text string) (SavedPage, error) {
	dir, base, err := model.PagePaths(w.dest, rawURL)
	if err != nil {
		return SavedPage{}, fmt.Errorf("failed to derive page path for %s: %w", rawURL, err)
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return SavedPage{}, fmt.Errorf("failed to create page directory: %w", err)
	}

	page := SavedPage{
		Dir:      dir,
		HTMLPath: base + ".html",
		TextPath: base + ".txt",
	}

	if err := os.WriteFile(page.HTMLPath, []byte(html), filePerm); err != nil {
		return SavedPage{}, fmt.Errorf("failed to write html file: %w", err)
	}
	if err := os.WriteFile(page.TextPath, []byte(text), filePerm); err != nil {
		return SavedPage{}, fmt.Errorf("failed to write text file: %w", err)
	}

	w.logger.Debug("page saved", "url", rawURL, "html", page.HTMLPath)
	return page, nil
}
