// Package docx writes and reads the paragraph text of WordprocessingML
// documents.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const documentPath = "word/document.xml"

var (
	// ErrNoDocument means the archive has no main document part.
	ErrNoDocument = errors.New("docx: word/document.xml missing")
	// ErrDocumentTooLarge means the main document part inflates past
	// MaxDocumentPartSize.
	ErrDocumentTooLarge = errors.New("docx: word/document.xml too large")
)

// MaxDocumentPartSize caps the decompressed size of word/document.xml.
var MaxDocumentPartSize int64 = 64 << 20

const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
</Types>`

const rootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`

const styles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>
<w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:basedOn w:val="Normal"/><w:rPr><w:b/><w:sz w:val="56"/></w:rPr></w:style>
</w:styles>`

// Write builds a document with a title paragraph followed by one
// left-aligned paragraph per entry of paragraphs.
func Write(title string, paragraphs []string) ([]byte, error) {
	var doc bytes.Buffer
	doc.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	if title != "" {
		writeParagraph(&doc, `<w:pStyle w:val="Title"/>`, title)
	}
	for _, p := range paragraphs {
		writeParagraph(&doc, `<w:jc w:val="left"/>`, p)
	}
	doc.WriteString(`<w:sectPr/></w:body></w:document>`)

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	parts := []struct{ name, body string }{
		{"[Content_Types].xml", contentTypes},
		{"_rels/.rels", rootRels},
		{"word/_rels/document.xml.rels", documentRels},
		{"word/styles.xml", styles},
		{documentPath, doc.String()},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, fmt.Errorf("docx: create %s: %w", p.name, err)
		}
		if _, err := io.WriteString(w, p.body); err != nil {
			return nil, fmt.Errorf("docx: write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("docx: close archive: %w", err)
	}
	return out.Bytes(), nil
}

func writeParagraph(buf *bytes.Buffer, props, text string) {
	buf.WriteString(`<w:p><w:pPr>`)
	buf.WriteString(props)
	buf.WriteString(`</w:pPr><w:r><w:t xml:space="preserve">`)
	xml.EscapeText(buf, []byte(text))
	buf.WriteString(`</w:t></w:r></w:p>`)
}

// Paragraphs returns the text of every paragraph in document order.
func Paragraphs(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("docx: open archive: %w", err)
	}
	var part *zip.File
	for _, f := range zr.File {
		if f.Name == documentPath {
			part = f
			break
		}
	}
	if part == nil {
		return nil, ErrNoDocument
	}
	// archive/zip fails reads that run past the declared size.
	if part.UncompressedSize64 > uint64(MaxDocumentPartSize) {
		return nil, ErrDocumentTooLarge
	}
	rc, err := part.Open()
	if err != nil {
		return nil, fmt.Errorf("docx: open %s: %w", documentPath, err)
	}
	defer rc.Close()

	var (
		out    []string
		cur    strings.Builder
		inPara bool
		inText bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("docx: parse %s: %w", documentPath, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				cur.Reset()
			case "t":
				inText = true
			case "tab":
				if inPara {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if inPara {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if inPara {
					out = append(out, cur.String())
				}
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inPara && inText {
				cur.Write(t)
			}
		}
	}
	return out, nil
}
