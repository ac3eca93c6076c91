// Package loaders turns uploaded playbook files into text plus structural units
// (pages, slides, tables, speaker notes) for the chunker.
package loaders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"brandbook/backend/go/internal/rag_service/rag/interfaces"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"
	"brandbook/backend/go/internal/rag_service/rag/splitters"

	"github.com/gabriel-vasile/mimetype"
)

// Loader extracts one file format.
type Loader interface {
	Load(ctx context.Context, data []byte) (schema.Extraction, error)
}

const (
	mimeZip  = "application/zip"
	mimeText = "text/plain"
	mimePDF  = "application/pdf"
	mimeOLE  = "application/x-ole-storage"
)

type entry struct {
	loader Loader
	// container is the sniffed type the content must be, or descend from.
	container string
	// exact, when set, is the specific type the sniffer must not contradict.
	exact string
}

// Registry dispatches on the file extension after checking that the content
// actually is what the extension claims.
type Registry struct {
	entries map[string]entry
}

// NewRegistry returns a Registry with every supported format registered.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]entry)}
	r.Register("pdf", NewPdfLoader(), mimePDF, "")
	r.Register("docx", NewDocxLoader(), mimeZip, "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	r.Register("pptx", NewPptxLoader(), mimeZip, "application/vnd.openxmlformats-officedocument.presentationml.presentation")
	r.Register("xlsx", NewXlsxLoader(), mimeZip, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	r.Register("txt", NewTxtLoader(), mimeText, "")
	r.Register("md", NewMarkdownLoader(), mimeText, "")
	r.Register("markdown", NewMarkdownLoader(), mimeText, "")
	r.Register("html", NewHTMLLoader(), mimeText, "")
	r.Register("htm", NewHTMLLoader(), mimeText, "")
	r.Register("ppt", legacyLoader{format: "ppt", modern: "pptx"}, mimeOLE, "")
	r.Register("doc", legacyLoader{format: "doc", modern: "docx"}, mimeOLE, "")
	return r
}

// Register adds or replaces the loader for an extension.
func (r *Registry) Register(ext string, l Loader, container, exact string) {
	r.entries[normalizeType(ext)] = entry{loader: l, container: container, exact: exact}
}

// Supports reports whether fileType has a registered loader.
func (r *Registry) Supports(fileType string) bool {
	_, ok := r.entries[normalizeType(fileType)]
	return ok
}

// Extract implements interfaces.Extractor. Unsupported types, content that does not
// match its declared type, unreadable files and files without any text are all
// extraction failures.
func (r *Registry) Extract(ctx context.Context, data []byte, fileType string) (schema.Extraction, error) {
	ft := normalizeType(fileType)
	e, ok := r.entries[ft]
	if !ok {
		return schema.Extraction{}, ragerr.Newf(ragerr.KindExtractionFailed, "extract", "unsupported file type %q", fileType)
	}
	if err := e.check(data); err != nil {
		return schema.Extraction{}, ragerr.Newf(ragerr.KindExtractionFailed, "extract", "file is not a valid .%s: %v", ft, err)
	}
	ext, err := e.loader.Load(ctx, data)
	if err != nil {
		if ragerr.KindOf(err) != "" || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return schema.Extraction{}, err
		}
		return schema.Extraction{}, ragerr.New(ragerr.KindExtractionFailed, "extract", fmt.Errorf("could not read .%s file: %w", ft, err))
	}
	ext = finalize(ext)
	if strings.TrimSpace(ext.Text) == "" {
		return schema.Extraction{}, ragerr.Newf(ragerr.KindExtractionFailed, "extract", "no text could be extracted from the .%s file", ft)
	}
	return ext, nil
}

func (e entry) check(data []byte) error {
	mtype := mimetype.Detect(data)
	if e.exact != "" && isOOXML(mtype) && !mtype.Is(e.exact) {
		return fmt.Errorf("content looks like %s", mtype.String())
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is(e.container) {
			return nil
		}
	}
	return fmt.Errorf("content looks like %s", mtype.String())
}

func isOOXML(m *mimetype.MIME) bool {
	return strings.HasPrefix(m.String(), "application/vnd.openxmlformats-officedocument.")
}

// finalize drops empty units and rebuilds the full text from the units in order.
func finalize(ext schema.Extraction) schema.Extraction {
	units := ext.Units[:0]
	parts := make([]string, 0, len(ext.Units))
	for _, u := range ext.Units {
		if u.Kind == schema.KindTable && u.Text == "" && len(u.Rows) > 0 {
			u.Text = renderTable(u.Rows)
		}
		u.Text = strings.TrimSpace(u.Text)
		if u.Text == "" {
			continue
		}
		units = append(units, u)
		parts = append(parts, u.Text)
	}
	if len(units) == 0 {
		return schema.Extraction{Text: strings.TrimSpace(ext.Text)}
	}
	return schema.Extraction{Text: strings.Join(parts, "\n\n"), Units: units}
}

func renderTable(rows [][]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		if line := splitters.RenderRow(row); strings.Trim(line, " |") != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// normalizeType maps ".PDF", "pdf" and "PDF" to "pdf".
func normalizeType(fileType string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(fileType), "."))
}

// legacyLoader rejects binary Office formats with an actionable message.
type legacyLoader struct {
	format string
	modern string
}

func (l legacyLoader) Load(context.Context, []byte) (schema.Extraction, error) {
	return schema.Extraction{}, ragerr.Newf(ragerr.KindExtractionFailed, "extract",
		"legacy .%s files cannot be read, save the file as .%s and upload it again", l.format, l.modern)
}

var _ interfaces.Extractor = (*Registry)(nil)
