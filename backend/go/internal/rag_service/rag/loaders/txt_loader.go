package loaders

import (
	"context"
	"strings"

	"brandbook/backend/go/internal/rag_service/rag/schema"
)

// TxtLoader implements the Loader interface for reading plain text files.
type TxtLoader struct{}

// NewTxtLoader creates a new TxtLoader.
func NewTxtLoader() *TxtLoader {
	return &TxtLoader{}
}

// Load splits the text into paragraphs on blank lines. Form feeds mark page
// breaks; when the file has any, paragraphs are located by page.
func (l *TxtLoader) Load(ctx context.Context, data []byte) (schema.Extraction, error) {
	text := normalizeNewlines(string(data))
	pages := strings.Split(text, "\f")

	var ext schema.Extraction
	for i, page := range pages {
		locator := 0
		if len(pages) > 1 {
			locator = i + 1
		}
		for _, para := range paragraphs(page) {
			ext.Units = append(ext.Units, schema.StructuralUnit{Kind: schema.KindText, Locator: locator, Text: para})
		}
	}
	return ext, nil
}

func normalizeNewlines(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// paragraphs returns the blank-line separated paragraphs of s, trimmed.
func paragraphs(s string) []string {
	var out []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, strings.TrimRight(line, " \t"))
	}
	flush()
	return out
}
