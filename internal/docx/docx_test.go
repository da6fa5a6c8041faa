package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"
)

func TestWriteThenRead(t *testing.T) {
	data, err := Write("Converted document", []string{"first line", "a < b & c", "  spaced  "})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Fatal("output is not a zip archive")
	}
	paras, err := Paragraphs(data)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Converted document", "first line", "a < b & c", "  spaced  "}
	if len(paras) != len(want) {
		t.Fatalf("got %q", paras)
	}
	for i := range want {
		if paras[i] != want[i] {
			t.Fatalf("paragraph %d = %q, want %q", i, paras[i], want[i])
		}
	}
}

func TestParagraphsRejectsGarbage(t *testing.T) {
	if _, err := Paragraphs([]byte("definitely not a zip")); err == nil {
		t.Fatal("expected error")
	}
}

func TestParagraphsRequiresDocumentPart(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/other.xml")
	w.Write([]byte("<x/>"))
	zw.Close()
	if _, err := Paragraphs(buf.Bytes()); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("got %v", err)
	}
}

func TestParagraphsJoinsRuns(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create(documentPath)
	w.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>Hello </w:t></w:r><w:r><w:t>world</w:t></w:r></w:p>` +
		`<w:p></w:p>` +
		`<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t></w:r></w:p>` +
		`</w:body></w:document>`))
	zw.Close()
	paras, err := Paragraphs(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(paras) != 3 || paras[0] != "Hello world" || paras[1] != "" || paras[2] != "a\tb" {
		t.Fatalf("got %q", paras)
	}
}

func TestParagraphsRejectsOversizedDocument(t *testing.T) {
	data, err := Write("Converted document", []string{"one", "two", "three"})
	if err != nil {
		t.Fatal(err)
	}
	saved := MaxDocumentPartSize
	MaxDocumentPartSize = 64
	defer func() { MaxDocumentPartSize = saved }()

	if _, err := Paragraphs(data); !errors.Is(err, ErrDocumentTooLarge) {
		t.Fatalf("got %v", err)
	}
}
