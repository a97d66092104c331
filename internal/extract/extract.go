// Package extract turns stored uploads into per-page text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrUnsupported = errors.New("unsupported file type")

// Func extracts the pages of one file.
type Func func(path string) ([]string, error)

// Registry picks an extractor by file extension.
type Registry struct {
	byExt map[string]Func
}

// NewRegistry knows PDF, HTML, XLSX and plain text files.
func NewRegistry() *Registry {
	r := &Registry{byExt: map[string]Func{}}
	r.Register(PDF, ".pdf")
	r.Register(HTML, ".html", ".htm")
	r.Register(XLSX, ".xlsx")
	r.Register(Text, ".txt", ".md", ".markdown", ".csv")
	return r
}

func (r *Registry) Register(fn Func, exts ...string) {
	for _, e := range exts {
		r.byExt[strings.ToLower(e)] = fn
	}
}

// Supports reports whether path has a known extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Pages returns one string per page. Pages without text are kept as "" so
// page numbers stay aligned with the source file.
func (r *Registry) Pages(path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	pages, err := fn(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	for i := range pages {
		pages[i] = SanitizeUTF8(pages[i])
	}
	return pages, nil
}

// Text reads a plain text file. Form feeds separate pages.
func Text(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\f"), nil
}
