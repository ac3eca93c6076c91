package loaders

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const (
	nsA = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
	nsP = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	nsW = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`
)

func buildZip(t *testing.T, files [][2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f[0])
		require.NoError(t, err)
		_, err = w.Write([]byte(f[1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func shape(ph string, paras ...string) string {
	nv := "<p:nvPr/>"
	if ph != "" {
		nv = fmt.Sprintf(`<p:nvPr><p:ph type="%s"/></p:nvPr>`, ph)
	}
	body := ""
	for _, p := range paras {
		body += "<a:p><a:r><a:t>" + p + "</a:t></a:r></a:p>"
	}
	return `<p:sp><p:nvSpPr><p:cNvPr id="2" name="s"/><p:cNvSpPr/>` + nv + `</p:nvSpPr><p:txBody>` + body + `</p:txBody></p:sp>`
}

func slide(content string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><p:sld ` + nsA + ` ` + nsP + `><p:cSld><p:spTree>` + content + `</p:spTree></p:cSld></p:sld>`
}

func drawingTable(rows ...[]string) string {
	s := `<p:graphicFrame><a:graphic><a:graphicData><a:tbl>`
	for _, r := range rows {
		s += "<a:tr>"
		for _, c := range r {
			s += `<a:tc><a:txBody><a:p><a:r><a:t>` + c + `</a:t></a:r></a:p></a:txBody></a:tc>`
		}
		s += "</a:tr>"
	}
	return s + `</a:tbl></a:graphicData></a:graphic></p:graphicFrame>`
}

func buildPptx(t *testing.T) []byte {
	return buildZip(t, [][2]string{
		{"[Content_Types].xml", `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`},
		{"ppt/slides/slide1.xml", slide(
			shape("title", "Logo Usage") +
				`<p:sp><p:nvSpPr><p:cNvPr id="3" name="b"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr><p:txBody>` +
				`<a:p><a:r><a:t>Keep clear space of </a:t></a:r><a:r><a:t>2x the logo height.</a:t></a:r></a:p>` +
				`<a:p><a:r><a:t>Never stretch the logo.</a:t></a:r></a:p></p:txBody></p:sp>` +
				shape("sldNum", "1") +
				drawingTable([]string{"Color", "Hex"}, []string{"Ocean Blue", "#0A3D62"}))},
		{"ppt/slides/_rels/slide1.xml.rels", `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout" Target="../slideLayouts/slideLayout1.xml"/>` +
			`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide" Target="../notesSlides/notesSlide1.xml"/>` +
			`</Relationships>`},
		{"ppt/notesSlides/notesSlide1.xml", `<p:notes ` + nsA + ` ` + nsP + `><p:cSld><p:spTree>` +
			shape("sldImg") + shape("body", "Mention the favicon exception.") + shape("sldNum", "1") +
			`</p:spTree></p:cSld></p:notes>`},
		{"ppt/slides/slide10.xml", slide(shape("", "Closing slide."))},
		{"ppt/slides/slide2.xml", slide(shape("ctrTitle", "Typography") + shape("", "Headlines use Inter Bold."))},
	})
}

func TestExtractPptx(t *testing.T) {
	ext, err := NewRegistry().Extract(context.Background(), buildPptx(t), "pptx")
	require.NoError(t, err)

	want := []schema.StructuralUnit{
		{Kind: schema.KindTitle, Locator: 1, Text: "Logo Usage"},
		{Kind: schema.KindText, Locator: 1, Text: "Keep clear space of 2x the logo height.\nNever stretch the logo."},
		{Kind: schema.KindTable, Locator: 1, Text: "Color | Hex\nOcean Blue | #0A3D62", Rows: [][]string{{"Color", "Hex"}, {"Ocean Blue", "#0A3D62"}}},
		{Kind: schema.KindSlideNote, Locator: 1, Text: "Mention the favicon exception."},
		{Kind: schema.KindTitle, Locator: 2, Text: "Typography"},
		{Kind: schema.KindText, Locator: 2, Text: "Headlines use Inter Bold."},
		{Kind: schema.KindText, Locator: 3, Text: "Closing slide."},
	}
	assert.Equal(t, want, ext.Units)
	assert.Contains(t, ext.Text, "Logo Usage\n\nKeep clear space")
}

func buildDocx(t *testing.T) []byte {
	body := `<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Brand Voice</w:t></w:r></w:p>` +
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Do</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Don't</w:t></w:r></w:p></w:tc></w:tr>` +
		`<w:tr><w:tc><w:p><w:r><w:t>Be direct</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Use jargon</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
		`<w:p><w:r><w:t xml:space="preserve">We speak </w:t></w:r><w:r><w:t>plainly.</w:t></w:r></w:p>`
	return buildZip(t, [][2]string{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`},
		{"_rels/.rels", `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`},
		{"word/document.xml", `<?xml version="1.0" encoding="UTF-8"?><w:document ` + nsW + `><w:body>` + body + `</w:body></w:document>`},
	})
}

func TestExtractDocx(t *testing.T) {
	ext, err := NewRegistry().Extract(context.Background(), buildDocx(t), ".DOCX")
	require.NoError(t, err)

	require.Len(t, ext.Units, 3)
	assert.Equal(t, schema.StructuralUnit{Kind: schema.KindTitle, Text: "Brand Voice"}, ext.Units[0])
	assert.Equal(t, schema.StructuralUnit{Kind: schema.KindText, Text: "We speak plainly."}, ext.Units[1])
	assert.Equal(t, schema.KindTable, ext.Units[2].Kind)
	assert.Equal(t, [][]string{{"Do", "Don't"}, {"Be direct", "Use jargon"}}, ext.Units[2].Rows)
	assert.Equal(t, "Do | Don't\nBe direct | Use jargon", ext.Units[2].Text)
}

func TestExtractXlsx(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Palette"))
	require.NoError(t, f.SetSheetRow("Palette", "A1", &[]interface{}{"Name", "Hex"}))
	require.NoError(t, f.SetSheetRow("Palette", "A2", &[]interface{}{"Ocean Blue", "#0A3D62"}))
	_, err := f.NewSheet("Empty")
	require.NoError(t, err)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	ext, err := NewRegistry().Extract(context.Background(), buf.Bytes(), "xlsx")
	require.NoError(t, err)
	require.Len(t, ext.Units, 2)
	assert.Equal(t, schema.StructuralUnit{Kind: schema.KindTitle, Locator: 1, Text: "Palette"}, ext.Units[0])
	assert.Equal(t, schema.KindTable, ext.Units[1].Kind)
	assert.Equal(t, 1, ext.Units[1].Locator)
	assert.Equal(t, "Name | Hex\nOcean Blue | #0A3D62", ext.Units[1].Text)
}

// buildPDF writes a minimal uncompressed PDF with one text line per page.
func buildPDF(pages ...string) []byte {
	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestExtractPdf(t *testing.T) {
	data := buildPDF("Brand colors are blue and sand", "Clear space is 2x the logo height")
	ext, err := NewRegistry().Extract(context.Background(), data, "pdf")
	require.NoError(t, err)

	require.Len(t, ext.Units, 2)
	assert.Equal(t, 1, ext.Units[0].Locator)
	assert.Contains(t, ext.Units[0].Text, "Brand colors are blue and sand")
	assert.Equal(t, 2, ext.Units[1].Locator)
	assert.Contains(t, ext.Units[1].Text, "Clear space is 2x the logo height")
}

func TestExtractMarkdown(t *testing.T) {
	md := "# Logo\n\nKeep clear space.\nAlways.\n\n![Primary lockup](logo.png)\n\n| Size | Min |\n|---|---|\n| Print | 25mm |\n| Screen | 80px |\n\n## Color\nBlue first."
	ext, err := NewRegistry().Extract(context.Background(), []byte(md), "md")
	require.NoError(t, err)

	want := []schema.StructuralUnit{
		{Kind: schema.KindTitle, Text: "Logo"},
		{Kind: schema.KindText, Text: "Keep clear space.\nAlways."},
		{Kind: schema.KindText, Text: "Primary lockup"},
		{Kind: schema.KindTable, Text: "Size | Min\nPrint | 25mm\nScreen | 80px", Rows: [][]string{{"Size", "Min"}, {"Print", "25mm"}, {"Screen", "80px"}}},
		{Kind: schema.KindTitle, Text: "Color"},
		{Kind: schema.KindText, Text: "Blue first."},
	}
	assert.Equal(t, want, ext.Units)
}

func TestExtractTxtPages(t *testing.T) {
	ext, err := NewRegistry().Extract(context.Background(), []byte("Page one intro.\r\n\r\nSecond paragraph.\fPage two."), "txt")
	require.NoError(t, err)
	require.Len(t, ext.Units, 3)
	assert.Equal(t, 1, ext.Units[0].Locator)
	assert.Equal(t, 1, ext.Units[1].Locator)
	assert.Equal(t, schema.StructuralUnit{Kind: schema.KindText, Locator: 2, Text: "Page two."}, ext.Units[2])
	assert.Equal(t, "Page one intro.\n\nSecond paragraph.\n\nPage two.", ext.Text)
}

func TestExtractHTML(t *testing.T) {
	page := `<html><head><style>body{color:red}</style></head><body><h1>Imagery</h1><p>Use natural light.</p>` +
		`<table><tr><th>Do</th><th>Avoid</th></tr><tr><td>Candid</td><td>Stock</td></tr></table></body></html>`
	ext, err := NewRegistry().Extract(context.Background(), []byte(page), "html")
	require.NoError(t, err)

	require.NotEmpty(t, ext.Units)
	assert.Equal(t, schema.StructuralUnit{Kind: schema.KindTitle, Text: "Imagery"}, ext.Units[0])
	assert.Contains(t, ext.Text, "Use natural light.")
	assert.NotContains(t, ext.Text, "color:red")

	var table *schema.StructuralUnit
	for i := range ext.Units {
		if ext.Units[i].Kind == schema.KindTable {
			table = &ext.Units[i]
		}
	}
	require.NotNil(t, table)
	assert.Equal(t, [][]string{{"Do", "Avoid"}, {"Candid", "Stock"}}, table.Rows)
}

func TestExtractFailures(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	cases := map[string]struct {
		data     []byte
		fileType string
		contains string
	}{
		"unsupported":    {[]byte("hello"), "exe", "unsupported"},
		"pdf as docx":    {buildPDF("x"), "docx", "not a valid .docx"},
		"text as pdf":    {[]byte("just text"), "pdf", "not a valid .pdf"},
		"corrupt pdf":    {[]byte("%PDF-1.4\ngarbage"), "pdf", "could not read"},
		"no text":        {[]byte("  \n\n  "), "txt", ""},
		"pptx as docx":   {buildPptx(t), "docx", ""},
		"legacy ppt":     {append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 1024)...), "ppt", ".pptx"},
		"binary as text": {[]byte{0x00, 0x01, 0x02, 0xFF, 0xFE, 0x00}, "txt", ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Extract(ctx, tc.data, tc.fileType)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ragerr.ErrExtractionFailed), err.Error())
			assert.False(t, ragerr.IsRetryable(err))
			if tc.contains != "" {
				assert.Contains(t, err.Error(), tc.contains)
			}
		})
	}
}

func TestSupports(t *testing.T) {
	reg := NewRegistry()
	for _, ft := range []string{"pdf", ".PPTX", "docx", "xlsx", "txt", "md", "html", "ppt", "doc"} {
		assert.True(t, reg.Supports(ft), ft)
	}
	assert.False(t, reg.Supports("exe"))
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "ppt/notesSlides/notesSlide1.xml", resolvePath("ppt/slides", "../notesSlides/notesSlide1.xml"))
	assert.Equal(t, "ppt/media/a.png", resolvePath("ppt/slides", "/ppt/media/a.png"))
}
