package loaders

import (
	"context"

	"brandbook/backend/go/internal/rag_service/rag/schema"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// HTMLLoader implements the Loader interface for saved web pages. The page is
// converted to Markdown first so headings and tables keep their structure.
type HTMLLoader struct {
	conv *converter.Converter
}

// NewHTMLLoader creates a new HTMLLoader.
func NewHTMLLoader() *HTMLLoader {
	return &HTMLLoader{conv: converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)}
}

func (l *HTMLLoader) Load(ctx context.Context, data []byte) (schema.Extraction, error) {
	md, err := l.conv.ConvertString(string(data))
	if err != nil {
		return schema.Extraction{}, err
	}
	return schema.Extraction{Units: parseMarkdown(md)}, nil
}
