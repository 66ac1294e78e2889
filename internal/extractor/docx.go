package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

type DOCXExtractor struct{}

func NewDOCXExtractor() *DOCXExtractor {
	return &DOCXExtractor{}
}

func (d *DOCXExtractor) Extract(ctx context.Context, r io.Reader) (string, map[string]string, error) {
	// The docx library wants a seekable file, so spill to a temp file first.
	tmpFile, err := os.CreateTemp("", "docx-*.docx")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	tmpFile.Close()

	doc, err := docx.ReadDocxFile(tmpFile.Name())
	if err != nil {
		return "", nil, fmt.Errorf("failed to read docx: %w", err)
	}
	defer doc.Close()

	text := strings.TrimSpace(doc.Editable().GetContent())

	metadata := map[string]string{
		"format": "DOCX",
	}

	return text, metadata, nil
}

func (d *DOCXExtractor) SupportedTypes() []string {
	return []string{
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		".docx",
	}
}
