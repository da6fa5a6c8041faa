package converter

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/format"
	"github.com/chai2010/webp"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 30), G: uint8(y * 40), B: 128, A: 255})
		}
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	return img
}

func fixture(t *testing.T, f format.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	img := testImage()
	switch f {
	case format.JPG:
		err = jpeg.Encode(&buf, img, nil)
	case format.PNG:
		err = png.Encode(&buf, img)
	case format.GIF:
		err = gif.Encode(&buf, img, nil)
	case format.WEBP:
		err = webp.Encode(&buf, img, &webp.Options{Lossless: true})
	default:
		t.Fatalf("no fixture for %s", f)
	}
	if err != nil {
		t.Fatalf("encode %s fixture: %v", f, err)
	}
	return buf.Bytes()
}

func animatedGIF(t *testing.T) []byte {
	t.Helper()
	pal := color.Palette{color.Black, color.White}
	frames := []*image.Paletted{
		image.NewPaletted(image.Rect(0, 0, 4, 4), pal),
		image.NewPaletted(image.Rect(0, 0, 4, 4), pal),
	}
	frames[1].SetColorIndex(0, 0, 1)
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, &gif.GIF{Image: frames, Delay: []int{10, 10}}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestImageRoundTripAllPairs(t *testing.T) {
	c := NewImageConverter()
	for _, k := range domain.Kinds() {
		if k.Capability != domain.CapabilityImage {
			continue
		}
		t.Run(string(k.Kind), func(t *testing.T) {
			src := fixture(t, k.Source)
			out, err := c.Convert(context.Background(), Request{Source: k.Source, Target: k.Target, Detected: k.Source, Data: src})
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			if got := format.Sniff(out); got != k.Target {
				t.Fatalf("output sniffed as %s, want %s", got, k.Target)
			}
			back, err := c.Convert(context.Background(), Request{Source: k.Target, Target: k.Source, Detected: k.Target, Data: out})
			if err != nil {
				t.Fatalf("convert back: %v", err)
			}
			if got := format.Detect(back, OutputName("x.bin", k.Source)); got != k.Source {
				t.Fatalf("round trip detected as %s, want %s", got, k.Source)
			}
		})
	}
}

func TestImageToJPGDropsAlpha(t *testing.T) {
	c := NewImageConverter()
	out, err := c.Convert(context.Background(), Request{Source: format.PNG, Target: format.JPG, Detected: format.PNG, Data: fixture(t, format.PNG)})
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0xffff {
		t.Fatalf("alpha = %x", a)
	}
}

func TestPalettedToPNGIsExpanded(t *testing.T) {
	c := NewImageConverter()
	out, err := c.Convert(context.Background(), Request{Source: format.GIF, Target: format.PNG, Detected: format.GIF, Data: fixture(t, format.GIF)})
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := img.(*image.Paletted); ok {
		t.Fatal("png output is still paletted")
	}
}

func TestAnimatedGIFKeepsFirstFrame(t *testing.T) {
	c := NewImageConverter()
	out, err := c.Convert(context.Background(), Request{Source: format.GIF, Target: format.PNG, Detected: format.GIF, Data: animatedGIF(t)})
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if r, _, _, _ := img.At(0, 0).RGBA(); r != 0 {
		t.Fatal("pixel from the second frame leaked into the output")
	}
}

// webpFrame returns the VP8L bitstream of a solid w x h lossless WebP.
func webpFrame(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
		t.Fatal(err)
	}
	chunks, err := riffChunks(buf.Bytes()[12:])
	if err != nil {
		t.Fatal(err)
	}
	for _, ch := range chunks {
		if ch.id == "VP8L" {
			return ch.data
		}
	}
	t.Fatal("encoder produced no VP8L chunk")
	return nil
}

type webpAnimFrame struct {
	x, y, w, h int
	color      color.NRGBA
}

func animatedWebP(t *testing.T, canvasW, canvasH int, frames ...webpAnimFrame) []byte {
	t.Helper()
	var body bytes.Buffer
	body.WriteString("WEBP")
	vp8x := make([]byte, 10)
	vp8x[0] = vp8xAnimationFlag | vp8xAlphaFlag
	putUint24(vp8x[4:7], canvasW-1)
	putUint24(vp8x[7:10], canvasH-1)
	writeChunk(&body, "VP8X", vp8x)
	writeChunk(&body, "ANIM", make([]byte, 6))
	for _, f := range frames {
		var frame bytes.Buffer
		hdr := make([]byte, anmfHeaderSize)
		putUint24(hdr[0:3], f.x/2)
		putUint24(hdr[3:6], f.y/2)
		putUint24(hdr[6:9], f.w-1)
		putUint24(hdr[9:12], f.h-1)
		putUint24(hdr[12:15], 100)
		frame.Write(hdr)
		writeChunk(&frame, "VP8L", webpFrame(t, f.w, f.h, f.color))
		writeChunk(&body, "ANMF", frame.Bytes())
	}
	var out bytes.Buffer
	writeChunk(&out, "RIFF", body.Bytes())
	return out.Bytes()
}

func TestImageAnimatedWebPUsesFirstFrame(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}
	data := animatedWebP(t, 4, 4,
		webpAnimFrame{w: 4, h: 4, color: red},
		webpAnimFrame{w: 4, h: 4, color: blue},
	)
	if got := format.Sniff(data); got != format.WEBP {
		t.Fatalf("fixture sniffed as %s", got)
	}

	c := NewImageConverter()
	out, err := c.Convert(context.Background(), Request{Source: format.WEBP, Target: format.PNG, Detected: format.WEBP, Data: data})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 4 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	r, _, b, _ := img.At(1, 1).RGBA()
	if r>>8 != 255 || b != 0 {
		t.Fatalf("pixel = %v, want first frame red", img.At(1, 1))
	}
}

func TestImageAnimatedWebPFrameOffset(t *testing.T) {
	data := animatedWebP(t, 4, 4, webpAnimFrame{x: 2, y: 2, w: 2, h: 2, color: color.NRGBA{G: 255, A: 255}})
	img, err := decodeWebP(data)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 4 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Fatalf("uncovered canvas pixel is opaque: %v", img.At(0, 0))
	}
	if _, g, _, _ := img.At(3, 3).RGBA(); g>>8 != 255 {
		t.Fatalf("frame pixel = %v", img.At(3, 3))
	}
}

func TestImageDecodeError(t *testing.T) {
	c := NewImageConverter()
	_, err := c.Convert(context.Background(), Request{Source: format.PNG, Target: format.JPG, Detected: format.PNG, Data: []byte("not a png")})
	if !domain.IsKind(err, domain.Decode) {
		t.Fatalf("got %v", err)
	}
}

func TestImageReportsProgress(t *testing.T) {
	var seen []int
	c := NewImageConverter()
	_, err := c.Convert(context.Background(), Request{
		Source: format.JPG, Target: format.PNG, Detected: format.JPG, Data: fixture(t, format.JPG),
		Progress: func(p int) { seen = append(seen, p) },
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress went backwards: %v", seen)
		}
	}
	if len(seen) == 0 {
		t.Fatal("no progress reported")
	}
}

func TestOrientRotates(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{B: 255, A: 255})

	cw := orient(src, 6)
	if cw.Bounds().Dx() != 1 || cw.Bounds().Dy() != 2 {
		t.Fatalf("bounds = %v", cw.Bounds())
	}
	if cw.NRGBAAt(0, 0).R != 255 || cw.NRGBAAt(0, 1).B != 255 {
		t.Fatal("rotation 6 misplaced pixels")
	}
	flip := orient(src, 2)
	if flip.NRGBAAt(0, 0).B != 255 {
		t.Fatal("mirror misplaced pixels")
	}
}
