package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ah-its-andy/convertbot/internal/domain"
)

const (
	TranscodeTimeout = 180 * time.Second
	ProbeTimeout     = 10 * time.Second
	VersionTimeout   = 3 * time.Second
)

var reDuration = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// Tool binds an executable path to a runner and timeouts.
type Tool struct {
	Path             string
	Runner           Runner
	TranscodeTimeout time.Duration
	ProbeTimeout     time.Duration
}

func NewTool(path string, runner Runner) *Tool {
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &Tool{
		Path:             path,
		Runner:           runner,
		TranscodeTimeout: TranscodeTimeout,
		ProbeTimeout:     ProbeTimeout,
	}
}

// Transcode runs ffmpeg with args under the transcode timeout. A timeout
// yields a TranscodeTimeout error, any other failure TranscodeFailed
// carrying the tail of stderr.
func (t *Tool) Transcode(ctx context.Context, stage string, args []string) error {
	log.Printf("[ffmpeg] %s: %s %s", stage, t.Path, strings.Join(args, " "))
	_, err := t.run(ctx, stage, t.TranscodeTimeout, args)
	return err
}

// Probe returns the duration of in. It returns 0 without error when ffmpeg
// does not report a duration.
func (t *Tool) Probe(ctx context.Context, in string) (time.Duration, error) {
	res, err := t.run(ctx, "probe", t.ProbeTimeout, ProbeArgs(in))
	if err != nil && (ctx.Err() != nil || !domain.IsKind(err, domain.TranscodeFailed)) {
		return 0, err
	}
	// Without an output file ffmpeg always exits non-zero; the stream
	// information is still on stderr.
	d, ok := ParseDuration(res.Stderr)
	if !ok {
		return 0, nil
	}
	return d, nil
}

func (t *Tool) run(ctx context.Context, stage string, timeout time.Duration, args []string) (Result, error) {
	if ctx.Err() != nil {
		return Result{}, domain.Wrap(domain.TranscodeFailed, stage, ctx.Err())
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := t.Runner.Run(runCtx, t.Path, args...)
	if err == nil {
		return res, nil
	}
	cmdErr := &CommandError{
		Stage:    stage,
		Args:     args,
		ExitCode: res.ExitCode,
		Stderr:   Truncate(res.Stderr, MaxStderr),
		Err:      err,
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return res, &domain.Error{
			Kind:    domain.TranscodeTimeout,
			Op:      stage,
			Message: fmt.Sprintf("killed after %s", timeout),
			Err:     cmdErr,
		}
	}
	if ctx.Err() != nil {
		return res, &domain.Error{Kind: domain.TranscodeFailed, Op: stage, Message: "cancelled", Err: ctx.Err()}
	}
	return res, &domain.Error{Kind: domain.TranscodeFailed, Op: stage, Err: cmdErr}
}

// ParseDuration reads the "Duration: HH:MM:SS.xx" line of ffmpeg output.
func ParseDuration(stderr string) (time.Duration, bool) {
	m := reDuration.FindStringSubmatch(stderr)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	total := time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute
	return total + time.Duration(math.Round(sec*1000))*time.Millisecond, true
}
