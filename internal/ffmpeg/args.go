package ffmpeg

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ah-its-andy/convertbot/internal/format"
)

const (
	// PaletteFilter is the two-pass animation graph: downsample, rescale,
	// build a palette from the clip, then apply it with bayer dithering.
	PaletteFilter = "[0:v] fps=10,scale=320:-1:flags=lanczos,split [a][b];" +
		"[a] palettegen=stats_mode=diff [p];" +
		"[b][p] paletteuse=dither=bayer:bayer_scale=5:diff_mode=rectangle"
	// SimpleFilter is the one-pass fallback without a custom palette.
	SimpleFilter = "fps=10,scale=320:-1:flags=lanczos"
	// EvenScale rounds both dimensions down to even values for libx264.
	EvenScale = "scale=trunc(iw/2)*2:trunc(ih/2)*2"
)

func preamble(in string) []string {
	return []string{"-hide_banner", "-nostdin", "-y", "-i", in}
}

func withTrim(args []string, trim time.Duration) []string {
	if trim > 0 {
		args = append(args, "-t", strconv.FormatFloat(trim.Seconds(), 'f', -1, 64))
	}
	return args
}

// VideoArgs converts an animation into an H.264 mp4.
func VideoArgs(in, out string) []string {
	args := preamble(in)
	return append(args,
		"-movflags", "faststart",
		"-pix_fmt", "yuv420p",
		"-vf", EvenScale,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		out,
	)
}

// AnimationArgs is the primary video to gif command. A positive trim limits
// the output length.
func AnimationArgs(in, out string, trim time.Duration) []string {
	args := withTrim(preamble(in), trim)
	return append(args, "-filter_complex", PaletteFilter, "-loop", "0", out)
}

// AnimationFallbackArgs is used once when AnimationArgs fails.
func AnimationFallbackArgs(in, out string, trim time.Duration) []string {
	args := withTrim(preamble(in), trim)
	return append(args, "-vf", SimpleFilter, "-loop", "0", out)
}

// AudioArgs extracts the audio stream into target.
func AudioArgs(in, out string, target format.Format) ([]string, error) {
	args := append(preamble(in), "-vn", "-map", "a")
	switch target {
	case format.MP3:
		args = append(args, "-q:a", "2")
	case format.WAV:
		args = append(args, "-acodec", "pcm_s16le", "-ac", "2", "-ar", "44100")
	case format.FLAC:
		args = append(args, "-acodec", "flac", "-compression_level", "5")
	default:
		return nil, fmt.Errorf("no audio template for %s", target)
	}
	return append(args, out), nil
}

// ProbeArgs asks ffmpeg for stream information only.
func ProbeArgs(in string) []string {
	return []string{"-hide_banner", "-nostdin", "-i", in}
}
