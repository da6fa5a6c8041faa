package converter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/format"
	"github.com/chai2010/webp"
	"github.com/rwcarlsen/goexif/exif"
)

const (
	jpegQuality = 95
	webpQuality = 90
)

// ImageConverter converts still images between jpg, png, webp and gif.
// Animated input is reduced to its first frame.
type ImageConverter struct{}

func NewImageConverter() *ImageConverter { return &ImageConverter{} }

func (c *ImageConverter) Name() string { return "image" }

func (c *ImageConverter) Capability() domain.Capability { return domain.CapabilityImage }

func (c *ImageConverter) CanConvert(source, target format.Format) bool {
	return source.IsImage() && target.IsImage() && source != target
}

func (c *ImageConverter) Convert(ctx context.Context, req Request) ([]byte, error) {
	img, err := decodeImage(req.Data, req.Detected)
	if err != nil {
		return nil, domain.Wrap(domain.Decode, "image", err)
	}
	req.report(30)
	if req.Detected == format.JPG {
		img = applyOrientation(img, req.Data)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img = normalizeForTarget(img, req.Target)
	req.report(60)

	out, err := encodeImage(img, req.Target)
	if err != nil {
		return nil, domain.Wrap(domain.Encode, "image", err)
	}
	req.report(90)
	return out, nil
}

func decodeImage(data []byte, f format.Format) (image.Image, error) {
	r := bytes.NewReader(data)
	switch f {
	case format.JPG:
		return jpeg.Decode(r)
	case format.PNG:
		return png.Decode(r)
	case format.GIF:
		// gif.Decode returns the first frame only.
		return gif.Decode(r)
	case format.WEBP:
		return decodeWebP(data)
	}
	return nil, fmt.Errorf("unsupported image format %s", f)
}

// normalizeForTarget fixes the color model before encoding. jpg has no alpha
// channel, so alpha is truncated to opaque. Paletted input going to png is
// expanded to full color with alpha; the webp encoder wants plain RGBA.
func normalizeForTarget(img image.Image, target format.Format) image.Image {
	switch target {
	case format.JPG:
		if hasAlphaOrPalette(img) {
			return dropAlpha(img)
		}
	case format.PNG:
		if _, ok := img.(*image.Paletted); ok {
			return toNRGBA(img)
		}
	case format.WEBP:
		switch img.(type) {
		case *image.NRGBA, *image.RGBA:
		default:
			return toNRGBA(img)
		}
	}
	return img
}

func hasAlphaOrPalette(img image.Image) bool {
	switch img.(type) {
	case *image.YCbCr, *image.Gray, *image.Gray16, *image.CMYK:
		return false
	}
	return true
}

func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func dropAlpha(img image.Image) *image.NRGBA {
	dst := toNRGBA(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func encodeImage(img image.Image, target format.Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch target {
	case format.JPG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	case format.PNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	case format.WEBP:
		err = webp.Encode(&buf, img, &webp.Options{Lossless: false, Quality: webpQuality})
	case format.GIF:
		err = gif.Encode(&buf, img, &gif.Options{NumColors: 256, Drawer: draw.FloydSteinberg})
	default:
		err = fmt.Errorf("unsupported target format %s", target)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// applyOrientation rotates or mirrors a decoded JPEG according to its EXIF
// Orientation tag. Missing or unreadable EXIF leaves img unchanged.
func applyOrientation(img image.Image, data []byte) image.Image {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return img
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return img
	}
	o, err := tag.Int(0)
	if err != nil || o <= 1 || o > 8 {
		return img
	}
	return orient(toNRGBA(img), o)
}

// orient maps EXIF orientations 2..8 onto the upright image.
func orient(src *image.NRGBA, o int) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dw, dh := w, h
	if o >= 5 {
		dw, dh = h, w
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch o {
			case 2:
				dx, dy = w-1-x, y
			case 3:
				dx, dy = w-1-x, h-1-y
			case 4:
				dx, dy = x, h-1-y
			case 5:
				dx, dy = y, x
			case 6:
				dx, dy = h-1-y, x
			case 7:
				dx, dy = h-1-y, w-1-x
			case 8:
				dx, dy = y, w-1-x
			}
			si := src.PixOffset(x, y)
			di := dst.PixOffset(dx, dy)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}
