// Package limits validates files against the policy fixed on a job.
package limits

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/format"
)

const (
	// MaxAnimationDuration is the longest clip turned into an animation.
	MaxAnimationDuration = 30 * time.Second
	// TrimThreshold is the duration above which animation input is trimmed
	// to MaxAnimationDuration.
	TrimThreshold = 10 * time.Second
)

var accepted = map[format.Format][]format.Format{
	format.JPG:   {format.JPG},
	format.PNG:   {format.PNG},
	format.WEBP:  {format.WEBP},
	format.GIF:   {format.GIF},
	format.TXT:   {format.TXT},
	format.DOCX:  {format.DOCX},
	format.HTML:  {format.HTML},
	format.Video: {format.Video, format.MP4, format.GIF},
}

var extensions = map[format.Format][]string{
	format.JPG:   {".jpg", ".jpeg", ".jpe", ".jfif"},
	format.PNG:   {".png"},
	format.WEBP:  {".webp"},
	format.GIF:   {".gif", ".gifv"},
	format.TXT:   {".txt", ".text"},
	format.DOCX:  {".docx", ".doc"},
	format.HTML:  {".html", ".htm", ".xhtml"},
	format.Video: {".mp4", ".avi", ".mov", ".mkv", ".webm", ".flv", ".wmv", ".mpg", ".mpeg", ".3gp", ".gif"},
}

// Accepts reports whether a detected format is valid input for source.
func Accepts(source, detected format.Format) bool {
	for _, f := range accepted[source] {
		if f == detected {
			return true
		}
	}
	return false
}

// Validate checks one file's size and detected format against job. data is
// used to catch image files whose content contradicts their extension.
func Validate(size int64, detected format.Format, data []byte, job *domain.Job) error {
	if job.SizeLimit > 0 && size > job.SizeLimit {
		return domain.Errorf(domain.SizeExceeded, "validate", "%s exceeds %s", humanSize(size), humanSize(job.SizeLimit))
	}
	if detected == format.Unknown {
		return domain.Errorf(domain.FormatMismatch, "validate", "unrecognized file format")
	}
	if !Accepts(job.SourceFormat, detected) {
		return domain.Errorf(domain.FormatMismatch, "validate", "got %s, expected %s", detected, job.SourceFormat)
	}
	if detected.IsImage() {
		if sniffed := format.Sniff(data); sniffed != format.Unknown && sniffed != detected {
			return domain.Errorf(domain.FormatMismatch, "validate", "named %s but content is %s", detected, sniffed)
		}
	}
	return nil
}

// Precheck runs the checks possible before the bytes are available: the
// extension allow-list, the declared size and the declared clip duration.
func Precheck(name string, size int64, duration time.Duration, job *domain.Job) error {
	ext := strings.ToLower(filepath.Ext(name))
	allowed := false
	for _, e := range extensions[job.SourceFormat] {
		if e == ext {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.Errorf(domain.Validation, "precheck", "extension %q not accepted for %s", ext, job.SourceFormat)
	}
	if job.SizeLimit > 0 && size > job.SizeLimit {
		return domain.Errorf(domain.SizeExceeded, "precheck", "%s exceeds %s", humanSize(size), humanSize(job.SizeLimit))
	}
	if job.Kind.Kind == domain.VideoToGIF && duration > MaxAnimationDuration {
		return domain.Errorf(domain.DurationExceeded, "precheck", "%s exceeds %s", duration, MaxAnimationDuration)
	}
	return nil
}

// Extensions returns the accepted extensions for source.
func Extensions(source format.Format) []string {
	return append([]string(nil), extensions[source]...)
}

func humanSize(n int64) string {
	const mb = 1024 * 1024
	if n >= mb {
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
