package extractor

import (
	"context"
	"io"
)

// Extractor pulls plain text and format metadata out of one document format.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (text string, metadata map[string]string, err error)
	SupportedTypes() []string
}
