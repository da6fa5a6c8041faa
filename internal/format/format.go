// Package format classifies raw bytes and a filename hint into a canonical
// format tag.
package format

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format is a canonical format tag.
type Format string

const (
	Unknown Format = "unknown"
	JPG     Format = "jpg"
	PNG     Format = "png"
	WEBP    Format = "webp"
	GIF     Format = "gif"
	TXT     Format = "txt"
	DOCX    Format = "docx"
	HTML    Format = "html"
	Video   Format = "video"
	MP4     Format = "mp4"
	MP3     Format = "mp3"
	WAV     Format = "wav"
	FLAC    Format = "flac"
)

var byExtension = map[string]Format{
	".gif":   GIF,
	".gifv":  GIF,
	".mp4":   Video,
	".mov":   Video,
	".avi":   Video,
	".mkv":   Video,
	".webm":  Video,
	".flv":   Video,
	".wmv":   Video,
	".mpg":   Video,
	".mpeg":  Video,
	".3gp":   Video,
	".jpg":   JPG,
	".jpeg":  JPG,
	".jpe":   JPG,
	".jfif":  JPG,
	".png":   PNG,
	".webp":  WEBP,
	".txt":   TXT,
	".text":  TXT,
	".docx":  DOCX,
	".doc":   DOCX,
	".html":  HTML,
	".htm":   HTML,
	".xhtml": HTML,
}

var (
	gif87a  = []byte("GIF87a")
	gif89a  = []byte("GIF89a")
	pngSig  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegSig = []byte{0xff, 0xd8}
	riff    = []byte("RIFF")
	webpTag = []byte("WEBP")
)

// Detect returns the format of data. The extension of name is checked first
// and is decisive when it maps to a known tag; magic bytes are the fallback.
func Detect(data []byte, name string) Format {
	if f := FromName(name); f != Unknown {
		return f
	}
	return Sniff(data)
}

// FromName maps the extension of name to a format tag.
func FromName(name string) Format {
	ext := strings.ToLower(filepath.Ext(name))
	if f, ok := byExtension[ext]; ok {
		return f
	}
	return Unknown
}

// Sniff looks only at the leading bytes.
func Sniff(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, gif87a), bytes.HasPrefix(data, gif89a):
		return GIF
	case bytes.HasPrefix(data, pngSig):
		return PNG
	case bytes.HasPrefix(data, jpegSig):
		return JPG
	case len(data) >= 12 && bytes.Equal(data[:4], riff) && bytes.Equal(data[8:12], webpTag):
		return WEBP
	}
	return Unknown
}

// IsImage reports whether f is a still or animated raster image tag.
func (f Format) IsImage() bool {
	switch f {
	case JPG, PNG, WEBP, GIF:
		return true
	}
	return false
}

// Ext returns the file extension used when writing f, without the dot.
func (f Format) Ext() string {
	if f == Video {
		return "mp4"
	}
	return string(f)
}

func (f Format) String() string { return string(f) }
