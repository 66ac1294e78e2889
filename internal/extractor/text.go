package extractor

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (t *TextExtractor) Extract(ctx context.Context, r io.Reader) (string, map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read text file: %w", err)
	}

	text := string(data)
	format := "Plain text"
	if !utf8.ValidString(text) {
		// Latin-1 fallback for legacy uploads: every byte maps to a rune.
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
		text = string(runes)
	}

	metadata := map[string]string{
		"format":     format,
		"size_bytes": strconv.Itoa(len(data)),
	}

	return strings.TrimSpace(text), metadata, nil
}

func (t *TextExtractor) SupportedTypes() []string {
	return []string{"text/plain", "text/markdown", ".txt", ".md"}
}
