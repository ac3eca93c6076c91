package loaders

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"

	"brandbook/backend/go/internal/rag_service/rag/schema"

	"github.com/unidoc/unioffice/v2/common/license"
	"github.com/unidoc/unioffice/v2/document"
)

// SetLicenseKey 设置 unioffice 的计量许可证密钥。未设置密钥时 DocxLoader 直接解析 OOXML。
func SetLicenseKey(key string) error {
	if key == "" {
		return nil
	}
	return license.SetMeteredKey(key)
}

// DocxLoader 实现了用于读取 Word (.docx) 文件的 Loader 接口。
type DocxLoader struct{}

// NewDocxLoader 创建一个新的 DocxLoader。
func NewDocxLoader() *DocxLoader {
	return &DocxLoader{}
}

// Load 先提取所有段落（标题样式的段落作为 title 单元），再按顺序提取所有表格。
// unioffice 无法打开文件时（例如未配置许可证），退回到直接解析 word/document.xml。
func (l *DocxLoader) Load(ctx context.Context, data []byte) (schema.Extraction, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return l.loadRaw(data, err)
	}
	defer doc.Close()

	var ext schema.Extraction
	// 提取所有段落的文本内容
	for _, p := range doc.Paragraphs() {
		text := paragraphText(p)
		if text == "" {
			continue
		}
		kind := schema.KindText
		if style := strings.ToLower(p.Style()); style == "title" || strings.HasPrefix(style, "heading") {
			kind = schema.KindTitle
		}
		ext.Units = append(ext.Units, schema.StructuralUnit{Kind: kind, Text: text})
	}

	// 每个表格作为一个 table 单元，单元格内的段落以空格连接
	for _, t := range doc.Tables() {
		var rows [][]string
		for _, r := range t.Rows() {
			var row []string
			for _, c := range r.Cells() {
				var parts []string
				for _, p := range c.Paragraphs() {
					if text := paragraphText(p); text != "" {
						parts = append(parts, text)
					}
				}
				row = append(row, strings.Join(parts, " "))
			}
			rows = append(rows, row)
		}
		if len(rows) > 0 {
			ext.Units = append(ext.Units, schema.StructuralUnit{Kind: schema.KindTable, Rows: rows, Text: renderTable(rows)})
		}
	}
	return ext, nil
}

func paragraphText(p document.Paragraph) string {
	var sb strings.Builder
	for _, r := range p.Runs() {
		sb.WriteString(r.Text())
	}
	return strings.TrimSpace(sb.String())
}

// loadRaw 直接读取 word/document.xml，cause 是 unioffice 返回的错误。
func (l *DocxLoader) loadRaw(data []byte, cause error) (schema.Extraction, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return schema.Extraction{}, fmt.Errorf("open docx: %w", cause)
	}
	content, err := readPart(zr, "word/document.xml")
	if err != nil || content == nil {
		return schema.Extraction{}, fmt.Errorf("docx has no main document part: %w", cause)
	}
	blocks, err := parseBlocks(content)
	if err != nil {
		return schema.Extraction{}, err
	}
	// 与 unioffice 路径保持一致：段落在前，表格在后
	var paras, tables []block
	for _, b := range blocks {
		if len(b.rows) > 0 {
			tables = append(tables, b)
		} else {
			paras = append(paras, b)
		}
	}
	return schema.Extraction{Units: blocksToUnits(append(paras, tables...), 0)}, nil
}
