package converter

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/ffmpeg"
	"github.com/ah-its-andy/convertbot/internal/format"
	"github.com/ah-its-andy/convertbot/internal/limits"
)

// ToolLocator resolves the ffmpeg executable.
type ToolLocator interface {
	Locate(ctx context.Context) (string, error)
}

// MediaState is a step of the per-file transcoding pipeline.
type MediaState string

const (
	MediaStaged      MediaState = "staged"
	MediaProbing     MediaState = "probing"
	MediaTranscoding MediaState = "transcoding"
	MediaVerifying   MediaState = "verifying"
	MediaComplete    MediaState = "complete"
	MediaFailed      MediaState = "failed"
)

// MediaConverter drives ffmpeg for animation, video and audio targets.
type MediaConverter struct {
	locator ToolLocator
	runner  ffmpeg.Runner
	tempDir string

	// TranscodeTimeout and ProbeTimeout default to the ffmpeg package
	// values when zero.
	TranscodeTimeout time.Duration
	ProbeTimeout     time.Duration
	// OnState, if set, observes every state transition.
	OnState func(MediaState)
}

func NewMediaConverter(locator ToolLocator, runner ffmpeg.Runner, tempDir string) *MediaConverter {
	return &MediaConverter{locator: locator, runner: runner, tempDir: tempDir}
}

func (c *MediaConverter) Name() string { return "media" }

func (c *MediaConverter) Capability() domain.Capability { return domain.CapabilityMedia }

func (c *MediaConverter) CanConvert(source, target format.Format) bool {
	switch {
	case source == format.GIF && target == format.MP4:
		return true
	case source == format.Video:
		switch target {
		case format.GIF, format.MP3, format.WAV, format.FLAC:
			return true
		}
	}
	return false
}

func (c *MediaConverter) Convert(ctx context.Context, req Request) (out []byte, err error) {
	if req.Source == format.Video && req.Target == format.GIF && req.Detected == format.GIF {
		req.report(90)
		return bytes.Clone(req.Data), nil
	}
	if c.locator == nil {
		return nil, ffmpeg.ErrNotFound
	}
	path, err := c.locator.Locate(ctx)
	if err != nil {
		if domain.IsKind(err, domain.NotFound) {
			return nil, err
		}
		return nil, domain.Wrap(domain.NotFound, "locate", err)
	}
	tool := ffmpeg.NewTool(path, c.runner)
	if c.TranscodeTimeout > 0 {
		tool.TranscodeTimeout = c.TranscodeTimeout
	}
	if c.ProbeTimeout > 0 {
		tool.ProbeTimeout = c.ProbeTimeout
	}

	defer func() {
		if err != nil {
			c.enter(MediaFailed)
		} else {
			c.enter(MediaComplete)
		}
	}()

	c.enter(MediaStaged)
	dir, err := os.MkdirTemp(c.tempDir, "media-*")
	if err != nil {
		return nil, domain.Wrap(domain.Internal, "stage", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input."+inputExt(req))
	dst := filepath.Join(dir, "output."+req.Target.Ext())
	if err := os.WriteFile(in, req.Data, 0o600); err != nil {
		return nil, domain.Wrap(domain.Internal, "stage", err)
	}
	req.report(10)

	switch {
	case req.Source == format.GIF && req.Target == format.MP4:
		c.enter(MediaTranscoding)
		req.report(30)
		err = tool.Transcode(ctx, "gif to mp4", ffmpeg.VideoArgs(in, dst))
	case req.Target == format.GIF:
		c.enter(MediaProbing)
		trim, perr := c.animationTrim(ctx, tool, in)
		if perr != nil {
			return nil, perr
		}
		req.report(20)
		c.enter(MediaTranscoding)
		err = c.animate(ctx, tool, in, dst, trim)
	default:
		c.enter(MediaTranscoding)
		req.report(30)
		var args []string
		args, err = ffmpeg.AudioArgs(in, dst, req.Target)
		if err != nil {
			return nil, domain.Wrap(domain.Internal, "transcode", err)
		}
		err = tool.Transcode(ctx, "extract audio", args)
	}
	if err != nil {
		return nil, err
	}
	req.report(80)

	c.enter(MediaVerifying)
	out, err = os.ReadFile(dst)
	if err != nil {
		return nil, domain.Errorf(domain.TranscodeFailed, "verify", "no output produced")
	}
	if len(out) == 0 {
		return nil, domain.Errorf(domain.TranscodeFailed, "verify", "output is empty")
	}
	req.report(90)
	return out, nil
}

// animationTrim probes the clip. Clips over the ceiling are rejected; clips
// over the trim threshold, or of unknown length, are cut to the ceiling.
func (c *MediaConverter) animationTrim(ctx context.Context, tool *ffmpeg.Tool, in string) (time.Duration, error) {
	d, err := tool.Probe(ctx, in)
	if err != nil {
		return 0, err
	}
	switch {
	case d > limits.MaxAnimationDuration:
		return 0, domain.Errorf(domain.DurationExceeded, "probe", "%s exceeds %s", d.Round(time.Second), limits.MaxAnimationDuration)
	case d == 0, d > limits.TrimThreshold:
		return limits.MaxAnimationDuration, nil
	}
	return 0, nil
}

// animate runs the palette graph and, if ffmpeg exits non-zero, the simple
// graph exactly once.
func (c *MediaConverter) animate(ctx context.Context, tool *ffmpeg.Tool, in, dst string, trim time.Duration) error {
	primary := tool.Transcode(ctx, "palette gif", ffmpeg.AnimationArgs(in, dst, trim))
	if primary == nil {
		return nil
	}
	if !domain.IsKind(primary, domain.TranscodeFailed) || ctx.Err() != nil {
		return primary
	}
	log.Printf("[ffmpeg] palette pass failed, retrying without palette: %v", primary)
	_ = os.Remove(dst)

	fallback := tool.Transcode(ctx, "simple gif", ffmpeg.AnimationFallbackArgs(in, dst, trim))
	if fallback == nil {
		return nil
	}
	return &domain.Error{
		Kind:    domain.KindOf(fallback),
		Op:      "transcode",
		Message: fmt.Sprintf("palette attempt failed: %v; fallback attempt failed: %v", primary, fallback),
	}
}

func (c *MediaConverter) enter(s MediaState) {
	if c.OnState != nil {
		c.OnState(s)
	}
}

func inputExt(req Request) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(req.Name)), "."); ext != "" {
		return ext
	}
	return req.Detected.Ext()
}
