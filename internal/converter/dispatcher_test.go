package converter

import (
	"context"
	"testing"

	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/format"
)

func job(t *testing.T, k domain.Kind) *domain.Job {
	t.Helper()
	spec, ok := domain.Lookup(string(k))
	if !ok {
		t.Fatalf("unknown kind %s", k)
	}
	return &domain.Job{Kind: spec, SourceFormat: spec.Source, TargetFormat: spec.Target, SizeLimit: spec.SizeLimit, FileLimit: spec.FileLimit}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		name   string
		target format.Format
		want   string
	}{
		{"photo.jpg", format.PNG, "photo_converted.png"},
		{"my.holiday.photo.JPEG", format.WEBP, "my.holiday.photo_converted.webp"},
		{"clip.mov", format.GIF, "clip_converted.gif"},
		{`C:\Users\me\notes.txt`, format.DOCX, "notes_converted.docx"},
		{"/tmp/page", format.TXT, "page_converted.txt"},
		{"", format.MP3, "file_converted.mp3"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.name, tt.target); got != tt.want {
			t.Errorf("OutputName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestDispatcherRoutesByCapability(t *testing.T) {
	r := NewRegistry()
	n := RegisterBuiltinConverters(r, []string{"image", "document", " ", "bogus"}, BuiltinDeps{})
	if n != 2 {
		t.Fatalf("registered %d", n)
	}
	d := NewDispatcher(r, t.TempDir())

	var progress []int
	out, err := d.Convert(context.Background(), job(t, domain.TXTToDOCX),
		domain.PendingFile{Name: "notes.txt"}, []byte("hello"), format.TXT,
		func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != "notes_converted.docx" || out.Category != domain.CategoryDocument {
		t.Fatalf("unexpected result %+v", out)
	}
	if len(progress) == 0 {
		t.Fatal("converter progress not forwarded")
	}

	out, err = d.Convert(context.Background(), job(t, domain.PNGToJPG),
		domain.PendingFile{Name: "pic.png"}, fixture(t, format.PNG), format.PNG, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Category != domain.CategoryImage || format.Sniff(out.Data) != format.JPG {
		t.Fatalf("unexpected result %s %s", out.Name, out.Category)
	}
}

func TestDispatcherMissingCapability(t *testing.T) {
	r := NewRegistry()
	r.Register(NewImageConverter())
	d := NewDispatcher(r, t.TempDir())
	_, err := d.Convert(context.Background(), job(t, domain.VideoToMP3), domain.PendingFile{Name: "a.mp4"}, nil, format.Video, nil)
	if !domain.IsKind(err, domain.NotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestDispatcherPropagatesConverterErrors(t *testing.T) {
	r := NewRegistry()
	r.Register(NewImageConverter())
	d := NewDispatcher(r, t.TempDir())
	_, err := d.Convert(context.Background(), job(t, domain.PNGToJPG), domain.PendingFile{Name: "a.png"}, []byte("junk"), format.PNG, nil)
	if !domain.IsKind(err, domain.Decode) {
		t.Fatalf("got %v", err)
	}
}

func TestRegistryEnableDisable(t *testing.T) {
	r := NewRegistry()
	r.Register(NewImageConverter())
	if err := r.Disable("image"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Find(domain.CapabilityImage, format.JPG, format.PNG); !domain.IsKind(err, domain.NotFound) {
		t.Fatalf("disabled converter still found: %v", err)
	}
	if err := r.Enable("image"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Find(domain.CapabilityImage, format.JPG, format.PNG); err != nil {
		t.Fatal(err)
	}
	if err := r.Disable("nope"); err == nil {
		t.Fatal("expected error for unknown converter")
	}
	infos := r.ListInfo()
	if len(infos) != 1 || len(infos[0].Kinds) != 12 || !infos[0].Enabled {
		t.Fatalf("infos = %+v", infos)
	}
}
