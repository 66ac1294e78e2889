package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (p *PDFExtractor) Extract(ctx context.Context, r io.Reader) (string, map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read pdf: %w", err)
	}

	if len(data) < 4 || !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", nil, fmt.Errorf("not a PDF file: invalid header")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	var sb strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(pageText) == "" {
			continue
		}

		// Page markers keep chunk payloads attributable to a page.
		fmt.Fprintf(&sb, "\n\n--- Page %d ---\n\n", i)
		sb.WriteString(pageText)
	}

	text := strings.TrimSpace(sb.String())

	metadata := map[string]string{
		"format": "PDF",
		"pages":  strconv.Itoa(numPages),
	}

	return text, metadata, nil
}

func (p *PDFExtractor) SupportedTypes() []string {
	return []string{"application/pdf", ".pdf"}
}
