package loaders

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// block is one text region of an Office Open XML part: a paragraph or shape,
// or a table.
type block struct {
	title bool
	text  string
	rows  [][]string
}

// placeholders that carry slide furniture rather than content.
var skippedPlaceholders = map[string]bool{"sldNum": true, "sldImg": true, "dt": true, "ftr": true, "hdr": true}

// parseBlocks walks a WordprocessingML or PresentationML part. Both dialects share
// the local names p (paragraph), t (text run), tbl/tr/tc (tables); sp wraps a
// slide shape whose paragraphs form a single block.
func parseBlocks(data []byte) ([]block, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		blocks []block

		inShape    bool
		shapeSkip  bool
		shapeTitle bool
		shapeParas []string

		para      strings.Builder
		inText    bool
		paraTitle bool

		tableDepth int
		rows       [][]string
		row        []string
		cell       []string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return blocks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				inShape, shapeSkip, shapeTitle, shapeParas = true, false, false, nil
			case "ph":
				typ := attr(t, "type")
				if typ == "title" || typ == "ctrTitle" {
					shapeTitle = true
				}
				shapeSkip = shapeSkip || skippedPlaceholders[typ]
			case "pStyle":
				style := strings.ToLower(attr(t, "val"))
				paraTitle = style == "title" || strings.HasPrefix(style, "heading")
			case "p":
				para.Reset()
				paraTitle = false
			case "t":
				inText = true
			case "tab", "br":
				para.WriteString(" ")
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					rows = nil
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell = nil
				}
			}

		case xml.CharData:
			if inText {
				para.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				para.Reset()
				switch {
				case text == "":
				case tableDepth > 0:
					cell = append(cell, text)
				case inShape:
					shapeParas = append(shapeParas, text)
				default:
					blocks = append(blocks, block{title: paraTitle, text: text})
				}
			case "tc":
				if tableDepth == 1 {
					row = append(row, strings.Join(cell, " "))
				}
			case "tr":
				if tableDepth == 1 {
					rows = append(rows, row)
				}
			case "tbl":
				tableDepth--
				if tableDepth == 0 && len(rows) > 0 {
					blocks = append(blocks, block{rows: rows})
				}
			case "sp":
				if !shapeSkip && len(shapeParas) > 0 {
					blocks = append(blocks, block{title: shapeTitle, text: strings.Join(shapeParas, "\n")})
				}
				inShape = false
			}
		}
	}
}

func attr(e xml.StartElement, local string) string {
	for _, a := range e.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// readPart returns the content of one archive member, or nil if it is absent.
func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, nil
}

// relationshipTarget resolves the first relationship of the given type in a .rels
// part to an archive path relative to base.
func relationshipTarget(rels []byte, typeSuffix, base string) string {
	var doc struct {
		Relationships []struct {
			Type   string `xml:"Type,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(rels, &doc); err != nil {
		return ""
	}
	for _, r := range doc.Relationships {
		if strings.HasSuffix(r.Type, typeSuffix) {
			return resolvePath(base, r.Target)
		}
	}
	return ""
}

func resolvePath(base, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	parts := strings.Split(base, "/")
	for _, seg := range strings.Split(target, "/") {
		switch seg {
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		case ".", "":
		default:
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "/")
}
