package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies conversion failures.
type ErrorKind string

const (
	Validation       ErrorKind = "validation"
	SizeExceeded     ErrorKind = "size_exceeded"
	FormatMismatch   ErrorKind = "format_mismatch"
	LimitReached     ErrorKind = "limit_reached"
	NotCollecting    ErrorKind = "not_collecting"
	Decode           ErrorKind = "decode"
	Encode           ErrorKind = "encode"
	DurationExceeded ErrorKind = "duration_exceeded"
	TranscodeFailed  ErrorKind = "transcode_failed"
	TranscodeTimeout ErrorKind = "transcode_timeout"
	NotFound         ErrorKind = "not_found"
	Internal         ErrorKind = "internal"
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind.
func Wrap(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return Internal
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsValidation reports whether err is a user input problem.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case Validation, SizeExceeded, FormatMismatch, LimitReached, NotCollecting:
		return true
	}
	return false
}

// UserMessage renders err as a short message suitable for the end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if !errors.As(err, &de) {
		return "conversion failed: internal error"
	}
	switch de.Kind {
	case SizeExceeded:
		return "file is too large: " + de.Message
	case FormatMismatch:
		return "file format does not match the selected conversion: " + de.Message
	case LimitReached:
		return "file limit reached for this conversion"
	case NotCollecting:
		return "conversion already started"
	case Validation:
		return "file rejected: " + de.Message
	case Decode:
		return "could not read the file, it may be damaged"
	case Encode:
		return "could not write the converted file"
	case DurationExceeded:
		return "video is too long: " + de.Message
	case TranscodeTimeout:
		return "conversion took too long and was stopped"
	case TranscodeFailed:
		return "conversion failed: " + de.Error()
	case NotFound:
		return "not available: " + de.Message
	}
	return "conversion failed: " + de.Error()
}
