package converter

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/format"
)

// Dispatcher routes a file to the converter serving its job's kind.
type Dispatcher struct {
	registry *Registry
	tempDir  string
}

func NewDispatcher(r *Registry, tempDir string) *Dispatcher {
	return &Dispatcher{registry: r, tempDir: tempDir}
}

// Convert converts one file of job. Converter errors are returned unchanged.
func (d *Dispatcher) Convert(ctx context.Context, job *domain.Job, file domain.PendingFile, data []byte, detected format.Format, progress func(int)) (domain.ConvertedFile, error) {
	c, err := d.registry.Find(job.Kind.Capability, job.SourceFormat, job.TargetFormat)
	if err != nil {
		return domain.ConvertedFile{}, err
	}
	if progress == nil {
		progress = func(int) {}
	}
	out, err := c.Convert(ctx, Request{
		Source:   job.SourceFormat,
		Target:   job.TargetFormat,
		Detected: detected,
		Name:     file.Name,
		Data:     data,
		TempDir:  d.tempDir,
		Progress: progress,
	})
	if err != nil {
		return domain.ConvertedFile{}, err
	}
	return domain.ConvertedFile{
		Data:     out,
		Name:     OutputName(file.Name, job.TargetFormat),
		Category: job.Kind.OutputCategory(),
	}, nil
}

// OutputName replaces the extension of name with "_converted.<ext>".
func OutputName(name string, target format.Format) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		stem = "file"
	}
	return stem + "_converted." + target.Ext()
}
