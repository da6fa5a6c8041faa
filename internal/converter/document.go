package converter

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ah-its-andy/convertbot/internal/docx"
	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/format"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DocumentTitle heads every generated document.
const DocumentTitle = "Converted document"

// DocumentConverter handles plain text, docx and html.
type DocumentConverter struct{}

func NewDocumentConverter() *DocumentConverter { return &DocumentConverter{} }

func (c *DocumentConverter) Name() string { return "document" }

func (c *DocumentConverter) Capability() domain.Capability { return domain.CapabilityDocument }

func (c *DocumentConverter) CanConvert(source, target format.Format) bool {
	switch {
	case source == format.TXT && target == format.DOCX,
		source == format.DOCX && target == format.TXT,
		source == format.HTML && target == format.TXT,
		source == format.HTML && target == format.DOCX:
		return true
	}
	return false
}

func (c *DocumentConverter) Convert(ctx context.Context, req Request) ([]byte, error) {
	switch {
	case req.Source == format.TXT && req.Target == format.DOCX:
		req.report(40)
		return TextToDocx(DecodeText(req.Data))
	case req.Source == format.DOCX && req.Target == format.TXT:
		req.report(40)
		text, err := DocxToText(req.Data)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	case req.Source == format.HTML && req.Target == format.TXT:
		req.report(40)
		text, err := HTMLToText(req.Data)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	case req.Source == format.HTML && req.Target == format.DOCX:
		text, err := HTMLToText(req.Data)
		if err != nil {
			return nil, err
		}
		req.report(50)
		return TextToDocx(text)
	}
	return nil, domain.Errorf(domain.NotFound, "document", "no conversion from %s to %s", req.Source, req.Target)
}

// DecodeText decodes data as text. UTF-8 and UTF-16 byte order marks are
// honored; invalid sequences become U+FFFD instead of failing.
func DecodeText(data []byte) string {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return string(out)
}

// TextToDocx writes a titled document with one paragraph per non-blank line.
func TextToDocx(text string) ([]byte, error) {
	var paras []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paras = append(paras, line)
		}
	}
	out, err := docx.Write(DocumentTitle, paras)
	if err != nil {
		return nil, domain.Wrap(domain.Encode, "docx", err)
	}
	return out, nil
}

// DocxToText joins the non-blank paragraphs of a docx with newlines.
func DocxToText(data []byte) (string, error) {
	paras, err := docx.Paragraphs(data)
	if err != nil {
		return "", domain.Wrap(domain.Decode, "docx", err)
	}
	var out []string
	for _, p := range paras {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n"), nil
}

// HTMLToText extracts the visible text of an html page: script and style
// are dropped, lines are trimmed and split on double spaces, empty chunks
// are removed.
func HTMLToText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(DecodeText(data))))
	if err != nil {
		return "", domain.Wrap(domain.Decode, "html", err)
	}
	doc.Find("script, style").Remove()

	var chunks []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, "\n"), nil
}
