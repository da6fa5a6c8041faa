package domain

import (
	"sort"

	"github.com/ah-its-andy/convertbot/internal/format"
)

// Capability names the converter family that serves a conversion kind.
type Capability string

const (
	CapabilityImage    Capability = "image"
	CapabilityDocument Capability = "document"
	CapabilityMedia    Capability = "media"
)

// Kind identifies a (source, target) conversion.
type Kind string

const (
	JPGToPNG    Kind = "jpg_to_png"
	JPGToWEBP   Kind = "jpg_to_webp"
	JPGToGIF    Kind = "jpg_to_gif"
	PNGToJPG    Kind = "png_to_jpg"
	PNGToWEBP   Kind = "png_to_webp"
	PNGToGIF    Kind = "png_to_gif"
	WEBPToJPG   Kind = "webp_to_jpg"
	WEBPToPNG   Kind = "webp_to_png"
	WEBPToGIF   Kind = "webp_to_gif"
	GIFToJPG    Kind = "gif_to_jpg"
	GIFToPNG    Kind = "gif_to_png"
	GIFToWEBP   Kind = "gif_to_webp"
	TXTToDOCX   Kind = "txt_to_docx"
	DOCXToTXT   Kind = "docx_to_txt"
	HTMLToTXT   Kind = "html_to_txt"
	HTMLToDOCX  Kind = "html_to_docx"
	GIFToMP4    Kind = "gif_to_mp4"
	VideoToGIF  Kind = "mp4_to_gif"
	VideoToMP3  Kind = "video_to_mp3"
	VideoToWAV  Kind = "video_to_wav"
	VideoToFLAC Kind = "video_to_flac"
)

const mb = 1024 * 1024

// KindSpec carries everything fixed at job creation for a kind.
type KindSpec struct {
	Kind       Kind          `json:"kind"`
	Source     format.Format `json:"source"`
	Target     format.Format `json:"target"`
	Capability Capability    `json:"capability"`
	SizeLimit  int64         `json:"size_limit"`
	FileLimit  int           `json:"file_limit"`
}

func image(k Kind, src, dst format.Format) KindSpec {
	return KindSpec{Kind: k, Source: src, Target: dst, Capability: CapabilityImage, SizeLimit: 20 * mb, FileLimit: 5}
}

func document(k Kind, src, dst format.Format) KindSpec {
	return KindSpec{Kind: k, Source: src, Target: dst, Capability: CapabilityDocument, SizeLimit: 10 * mb, FileLimit: 3}
}

func media(k Kind, src, dst format.Format) KindSpec {
	return KindSpec{Kind: k, Source: src, Target: dst, Capability: CapabilityMedia, SizeLimit: 50 * mb, FileLimit: 1}
}

var kinds = map[Kind]KindSpec{
	JPGToPNG:    image(JPGToPNG, format.JPG, format.PNG),
	JPGToWEBP:   image(JPGToWEBP, format.JPG, format.WEBP),
	JPGToGIF:    image(JPGToGIF, format.JPG, format.GIF),
	PNGToJPG:    image(PNGToJPG, format.PNG, format.JPG),
	PNGToWEBP:   image(PNGToWEBP, format.PNG, format.WEBP),
	PNGToGIF:    image(PNGToGIF, format.PNG, format.GIF),
	WEBPToJPG:   image(WEBPToJPG, format.WEBP, format.JPG),
	WEBPToPNG:   image(WEBPToPNG, format.WEBP, format.PNG),
	WEBPToGIF:   image(WEBPToGIF, format.WEBP, format.GIF),
	GIFToJPG:    image(GIFToJPG, format.GIF, format.JPG),
	GIFToPNG:    image(GIFToPNG, format.GIF, format.PNG),
	GIFToWEBP:   image(GIFToWEBP, format.GIF, format.WEBP),
	TXTToDOCX:   document(TXTToDOCX, format.TXT, format.DOCX),
	DOCXToTXT:   document(DOCXToTXT, format.DOCX, format.TXT),
	HTMLToTXT:   document(HTMLToTXT, format.HTML, format.TXT),
	HTMLToDOCX:  document(HTMLToDOCX, format.HTML, format.DOCX),
	GIFToMP4:    media(GIFToMP4, format.GIF, format.MP4),
	VideoToGIF:  media(VideoToGIF, format.Video, format.GIF),
	VideoToMP3:  media(VideoToMP3, format.Video, format.MP3),
	VideoToWAV:  media(VideoToWAV, format.Video, format.WAV),
	VideoToFLAC: media(VideoToFLAC, format.Video, format.FLAC),
}

// Lookup resolves a kind name.
func Lookup(name string) (KindSpec, bool) {
	k, ok := kinds[Kind(name)]
	return k, ok
}

// Kinds lists every supported kind ordered by name.
func Kinds() []KindSpec {
	out := make([]KindSpec, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// NeedsTranscoder reports whether the kind runs the external transcoder.
func (k KindSpec) NeedsTranscoder() bool {
	return k.Capability == CapabilityMedia
}

// OutputCategory picks the delivery channel for files produced by k.
func (k KindSpec) OutputCategory() Category {
	switch k.Target {
	case format.MP3, format.WAV, format.FLAC:
		return CategoryAudio
	case format.MP4:
		return CategoryVideo
	case format.TXT, format.DOCX:
		return CategoryDocument
	case format.GIF:
		if k.Capability == CapabilityMedia {
			return CategoryVideo
		}
	}
	return CategoryImage
}
