package format

import "testing"

var (
	jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F'}
	pngBytes  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d}
	webpBytes = []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
)

func TestDetectExtensionFirst(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"photo.JPG", pngBytes, JPG},
		{"photo.jpeg", nil, JPG},
		{"image.png", jpegBytes, PNG},
		{"clip.MOV", nil, Video},
		{"clip.webm", nil, Video},
		{"clip.mp4", nil, Video},
		{"anim.gif", nil, GIF},
		{"notes.txt", nil, TXT},
		{"report.doc", nil, DOCX},
		{"page.htm", nil, HTML},
		{"pic.webp", nil, WEBP},
		{"scan.jfif", nil, JPG},
		{"clip.flv", nil, Video},
		{"clip.MPEG", nil, Video},
		{"clip.3gp", nil, Video},
		{"notes.text", nil, TXT},
		{"page.xhtml", nil, HTML},
	}
	for _, tt := range tests {
		if got := Detect(tt.data, tt.name); got != tt.want {
			t.Errorf("Detect(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestDetectFallsBackToMagicBytes(t *testing.T) {
	tests := []struct {
		data []byte
		want Format
	}{
		{[]byte("GIF87a....."), GIF},
		{[]byte("GIF89a....."), GIF},
		{pngBytes, PNG},
		{jpegBytes, JPG},
		{webpBytes, WEBP},
		{[]byte("RIFF\x00\x00\x00\x00WEB"), Unknown},
		{[]byte("RIFF\x00\x00\x00\x00WAVE"), Unknown},
		{[]byte("hello"), Unknown},
		{nil, Unknown},
	}
	for i, tt := range tests {
		if got := Detect(tt.data, "upload.bin"); got != tt.want {
			t.Errorf("case %d: got %s, want %s", i, got, tt.want)
		}
	}
}

func TestSniffIgnoresName(t *testing.T) {
	if got := Sniff(jpegBytes); got != JPG {
		t.Fatalf("Sniff = %s", got)
	}
}

func TestExt(t *testing.T) {
	if Video.Ext() != "mp4" {
		t.Errorf("video ext = %s", Video.Ext())
	}
	if JPG.Ext() != "jpg" {
		t.Errorf("jpg ext = %s", JPG.Ext())
	}
}
