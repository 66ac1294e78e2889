package extractor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Registry dispatches documents to format extractors. The capability map is
// built once at construction; unsupported types are rejected at upload
// validation, before a job ever reaches the queue.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry returns a registry with the PDF, plain-text/Markdown and DOCX
// extractors registered.
func NewRegistry() *Registry {
	r := &Registry{
		extractors: make(map[string]Extractor),
	}

	r.Register(NewTextExtractor())
	r.Register(NewPDFExtractor())
	r.Register(NewDOCXExtractor())

	return r
}

// Register indexes ext under each of its supported extensions and MIME types.
func (r *Registry) Register(ext Extractor) {
	for _, t := range ext.SupportedTypes() {
		r.extractors[strings.ToLower(t)] = ext
	}
}

// Lookup resolves an extractor for a filename, extension or MIME type.
// MIME parameters ("text/plain; charset=utf-8") are ignored.
func (r *Registry) Lookup(filenameOrType string) (Extractor, error) {
	if i := strings.IndexByte(filenameOrType, ';'); i >= 0 {
		filenameOrType = strings.TrimSpace(filenameOrType[:i])
	}

	if ext := strings.ToLower(filepath.Ext(filenameOrType)); ext != "" {
		if e, ok := r.extractors[ext]; ok {
			return e, nil
		}
	}

	if e, ok := r.extractors[strings.ToLower(filenameOrType)]; ok {
		return e, nil
	}

	return nil, fmt.Errorf("unsupported file type: %s", filenameOrType)
}

// Supports reports whether any registered extractor handles the type.
func (r *Registry) Supports(filenameOrType string) bool {
	_, err := r.Lookup(filenameOrType)
	return err == nil
}

// Extract resolves an extractor for the document and runs it. The filename's
// extension wins so generic client Content-Types like application/octet-stream
// cannot shadow a perfectly indexable upload; the MIME type is the fallback
// for extension-less names. The same pair is checked at upload validation, so
// acceptance and dispatch can never disagree.
func (r *Registry) Extract(ctx context.Context, filename, mimeType string, reader io.Reader) (string, map[string]string, error) {
	ext, err := r.Lookup(filename)
	if err != nil {
		byType, typeErr := r.Lookup(mimeType)
		if typeErr != nil {
			return "", nil, fmt.Errorf("unsupported file type: %s (%s)", filename, mimeType)
		}
		ext = byType
	}
	return ext.Extract(ctx, reader)
}

// SupportedTypes lists every extension and MIME type the registry handles.
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.extractors))
	for t := range r.extractors {
		types = append(types, t)
	}
	return types
}
