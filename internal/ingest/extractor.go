package ingest

import (
	"context"
	"strings"
)

// TextExtractor is a reference PageExtractor for plain-text payloads. It
// treats form feeds as page separators, matching pdftotext-style output.
// Real PDF extraction is an external collaborator wired in at startup.
type TextExtractor struct{}

func (TextExtractor) ExtractPages(_ context.Context, _ string, data []byte) ([]Page, error) {
	parts := strings.Split(string(data), "\f")
	pages := make([]Page, len(parts))
	for i, part := range parts {
		pages[i] = Page{Number: i + 1, Content: part}
	}
	return pages, nil
}
