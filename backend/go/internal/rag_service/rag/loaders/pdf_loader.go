package loaders

import (
	"bytes"
	"context"
	"fmt"

	"brandbook/backend/go/internal/rag_service/rag/schema"

	"github.com/ledongthuc/pdf"
)

// PdfLoader implements the Loader interface for reading PDF files.
type PdfLoader struct{}

// NewPdfLoader creates a new PdfLoader.
func NewPdfLoader() *PdfLoader {
	return &PdfLoader{}
}

// Load extracts the plain text of each page as one unit located by page number.
// Pages without text (scans, full-page images) are skipped.
func (l *PdfLoader) Load(ctx context.Context, data []byte) (schema.Extraction, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return schema.Extraction{}, err
	}

	var ext schema.Extraction
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return schema.Extraction{}, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return schema.Extraction{}, fmt.Errorf("page %d: %w", i, err)
		}
		ext.Units = append(ext.Units, schema.StructuralUnit{Kind: schema.KindText, Locator: i, Text: text})
	}
	return ext, nil
}
