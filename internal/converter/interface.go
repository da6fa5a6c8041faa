package converter

import (
	"context"

	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/format"
)

// Request carries one file through a converter. Data is borrowed: converters
// must not retain or modify it after Convert returns.
type Request struct {
	Source   format.Format
	Target   format.Format
	Detected format.Format
	Name     string
	Data     []byte
	// TempDir is the parent for private scratch directories.
	TempDir string
	// Progress is never nil when called through the Dispatcher.
	Progress func(percent int)
}

func (r Request) report(percent int) {
	if r.Progress != nil {
		r.Progress(percent)
	}
}

// Converter turns bytes of one format into bytes of another.
type Converter interface {
	// Name returns the unique name of this converter
	Name() string

	// Capability is the family of conversion kinds this converter serves
	Capability() domain.Capability

	// CanConvert reports whether the (source, target) pair is supported
	CanConvert(source, target format.Format) bool

	// Convert produces the converted bytes. Failures are *domain.Error
	// values classified as Decode, Encode, DurationExceeded,
	// TranscodeFailed, TranscodeTimeout or NotFound.
	Convert(ctx context.Context, req Request) ([]byte, error)
}

// ConverterInfo provides information about a registered converter
type ConverterInfo struct {
	Name       string            `json:"name"`
	Capability domain.Capability `json:"capability"`
	Kinds      []domain.Kind     `json:"kinds"`
	Enabled    bool              `json:"enabled"`
}
