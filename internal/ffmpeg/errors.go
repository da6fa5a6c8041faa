package ffmpeg

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ah-its-andy/convertbot/internal/domain"
)

// MaxStderr caps the diagnostic text kept from a failed run.
const MaxStderr = 500

// ErrNotFound is returned when no usable ffmpeg executable exists.
var ErrNotFound = &domain.Error{Kind: domain.NotFound, Op: "locate", Message: "ffmpeg executable not found"}

// CommandError describes one failed process run.
type CommandError struct {
	Stage    string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: exit %d", e.Stage, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Truncate keeps at most the last n bytes of s, where ffmpeg prints the
// actual failure, trimmed of surrounding whitespace. The cut never splits a
// UTF-8 sequence.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return strings.TrimSpace(s[start:])
}
