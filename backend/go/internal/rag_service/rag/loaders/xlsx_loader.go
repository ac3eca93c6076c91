package loaders

import (
	"bytes"
	"context"
	"strings"

	"brandbook/backend/go/internal/rag_service/rag/schema"

	"github.com/xuri/excelize/v2"
)

// XlsxLoader implements the Loader interface for reading Excel (.xlsx) files.
type XlsxLoader struct{}

// NewXlsxLoader creates a new XlsxLoader.
func NewXlsxLoader() *XlsxLoader {
	return &XlsxLoader{}
}

// Load emits a title unit with the sheet name followed by one table unit per sheet,
// located by sheet position. Empty sheets are skipped.
func (l *XlsxLoader) Load(ctx context.Context, data []byte) (schema.Extraction, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return schema.Extraction{}, err
	}
	defer f.Close()

	var ext schema.Extraction
	for i, sheetName := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return schema.Extraction{}, err
		}
		rows, err := f.GetRows(sheetName)
		if err != nil {
			// Skip sheet if rows can't be read
			continue
		}
		rows = trimRows(rows)
		if len(rows) == 0 {
			continue
		}
		ext.Units = append(ext.Units,
			schema.StructuralUnit{Kind: schema.KindTitle, Locator: i + 1, Text: sheetName},
			schema.StructuralUnit{Kind: schema.KindTable, Locator: i + 1, Rows: rows, Text: renderTable(rows)},
		)
	}
	return ext, nil
}

// trimRows drops rows whose cells are all blank.
func trimRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}
