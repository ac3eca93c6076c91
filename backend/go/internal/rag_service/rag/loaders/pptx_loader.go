package loaders

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"brandbook/backend/go/internal/rag_service/rag/schema"
)

// PptxLoader reads PowerPoint (.pptx) decks. Each slide yields a title unit, one
// unit per text shape, one table unit per table and a slide_note unit for the
// speaker notes, all located by slide number.
type PptxLoader struct{}

// NewPptxLoader creates a new PptxLoader.
func NewPptxLoader() *PptxLoader {
	return &PptxLoader{}
}

func (l *PptxLoader) Load(ctx context.Context, data []byte) (schema.Extraction, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return schema.Extraction{}, err
	}
	slides := slideParts(zr)
	if len(slides) == 0 {
		return schema.Extraction{}, fmt.Errorf("presentation has no slides")
	}

	var ext schema.Extraction
	for i, name := range slides {
		if err := ctx.Err(); err != nil {
			return schema.Extraction{}, err
		}
		locator := i + 1
		content, err := readPart(zr, name)
		if err != nil {
			return schema.Extraction{}, fmt.Errorf("slide %d: %w", locator, err)
		}
		blocks, err := parseBlocks(content)
		if err != nil {
			return schema.Extraction{}, fmt.Errorf("slide %d: %w", locator, err)
		}
		ext.Units = append(ext.Units, blocksToUnits(blocks, locator)...)

		notes, err := slideNotes(zr, name)
		if err != nil {
			return schema.Extraction{}, fmt.Errorf("notes of slide %d: %w", locator, err)
		}
		if notes != "" {
			ext.Units = append(ext.Units, schema.StructuralUnit{Kind: schema.KindSlideNote, Locator: locator, Text: notes})
		}
	}
	return ext, nil
}

// slideParts lists ppt/slides/slideN.xml ordered by N.
func slideParts(zr *zip.Reader) []string {
	type part struct {
		name string
		n    int
	}
	var parts []part
	for _, f := range zr.File {
		dir, file := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(file, "slide") || !strings.HasSuffix(file, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file, "slide"), ".xml"))
		if err != nil {
			continue
		}
		parts = append(parts, part{name: f.Name, n: n})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].n < parts[j].n })
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.name
	}
	return names
}

// slideNotes follows the slide's notesSlide relationship and returns the note text.
func slideNotes(zr *zip.Reader, slide string) (string, error) {
	dir, file := path.Split(slide)
	rels, err := readPart(zr, dir+"_rels/"+file+".rels")
	if err != nil || rels == nil {
		return "", err
	}
	target := relationshipTarget(rels, "/notesSlide", strings.TrimSuffix(dir, "/"))
	if target == "" {
		return "", nil
	}
	content, err := readPart(zr, target)
	if err != nil || content == nil {
		return "", err
	}
	blocks, err := parseBlocks(content)
	if err != nil {
		return "", err
	}
	var texts []string
	for _, b := range blocks {
		if b.text != "" {
			texts = append(texts, b.text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

func blocksToUnits(blocks []block, locator int) []schema.StructuralUnit {
	units := make([]schema.StructuralUnit, 0, len(blocks))
	for _, b := range blocks {
		switch {
		case len(b.rows) > 0:
			units = append(units, schema.StructuralUnit{Kind: schema.KindTable, Locator: locator, Rows: b.rows, Text: renderTable(b.rows)})
		case b.title:
			units = append(units, schema.StructuralUnit{Kind: schema.KindTitle, Locator: locator, Text: b.text})
		default:
			units = append(units, schema.StructuralUnit{Kind: schema.KindText, Locator: locator, Text: b.text})
		}
	}
	return units
}
