package loaders

import (
	"context"
	"regexp"
	"strings"

	"brandbook/backend/go/internal/rag_service/rag/schema"
)

// MarkdownLoader implements the Loader interface for reading Markdown (.md) files.
type MarkdownLoader struct{}

// NewMarkdownLoader creates a new MarkdownLoader.
func NewMarkdownLoader() *MarkdownLoader {
	return &MarkdownLoader{}
}

var (
	headingRegex   = regexp.MustCompile(`^#{1,6}\s+(.*?)\s*#*$`)
	separatorRegex = regexp.MustCompile(`^\|?\s*:?-{2,}:?\s*(\|\s*:?-{2,}:?\s*)*\|?$`)
	// imageRegex matches Markdown image syntax (e.g., ![alt text](path/to/image.jpg))
	imageRegex = regexp.MustCompile(`!\[(.*?)\]\([^)]*\)`)
)

// Load reads headings as title units, pipe tables as table units and everything
// else as blank-line separated paragraphs. Images keep only their alt text.
func (l *MarkdownLoader) Load(ctx context.Context, data []byte) (schema.Extraction, error) {
	return schema.Extraction{Units: parseMarkdown(string(data))}, nil
}

func parseMarkdown(md string) []schema.StructuralUnit {
	var (
		units []schema.StructuralUnit
		para  []string
		table [][]string
		fence bool
	)
	flushPara := func() {
		if len(para) > 0 {
			units = append(units, schema.StructuralUnit{Kind: schema.KindText, Text: strings.Join(para, "\n")})
			para = nil
		}
	}
	flushTable := func() {
		if len(table) > 0 {
			units = append(units, schema.StructuralUnit{Kind: schema.KindTable, Rows: table, Text: renderTable(table)})
			table = nil
		}
	}

	for _, line := range strings.Split(normalizeNewlines(md), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fence = !fence
			continue
		}
		if fence {
			if trimmed != "" {
				para = append(para, trimmed)
			}
			continue
		}

		if strings.HasPrefix(trimmed, "|") {
			flushPara()
			if !separatorRegex.MatchString(trimmed) {
				table = append(table, splitPipeRow(trimmed))
			}
			continue
		}
		flushTable()

		switch {
		case trimmed == "":
			flushPara()
		case headingRegex.MatchString(trimmed):
			flushPara()
			title := headingRegex.FindStringSubmatch(trimmed)[1]
			if title != "" {
				units = append(units, schema.StructuralUnit{Kind: schema.KindTitle, Text: title})
			}
		default:
			para = append(para, imageRegex.ReplaceAllString(trimmed, "$1"))
		}
	}
	flushPara()
	flushTable()
	return units
}

// splitPipeRow splits "| a | b |" into its cells. Escaped pipes stay in the cell.
func splitPipeRow(line string) []string {
	line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
	line = strings.ReplaceAll(line, `\|`, "\x00")
	cells := strings.Split(line, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(strings.ReplaceAll(c, "\x00", "|"))
	}
	return cells
}
