package domain

import (
	"time"

	"github.com/ah-its-andy/convertbot/internal/format"
)

// JobState tracks where a job is in its lifecycle.
type JobState string

const (
	StateCollecting JobState = "collecting"
	StateConverting JobState = "converting"
	StateDone       JobState = "done"
)

// Category selects the outbound delivery channel of a converted file.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryAudio    Category = "audio"
	CategoryVideo    Category = "video"
	CategoryDocument Category = "document"
)

// PendingFile references an uploaded file. The bytes stay in the blob store
// and are fetched through Handle when the job runs.
type PendingFile struct {
	Handle   string        `json:"handle"`
	Name     string        `json:"name"`
	Size     int64         `json:"size"`
	Index    int           `json:"index"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Job is one user's conversion request.
type Job struct {
	ID           string        `json:"id"`
	Owner        string        `json:"owner"`
	Kind         KindSpec      `json:"kind"`
	SourceFormat format.Format `json:"source_format"`
	TargetFormat format.Format `json:"target_format"`
	SizeLimit    int64         `json:"size_limit"`
	FileLimit    int           `json:"file_limit"`
	Files        []PendingFile `json:"files"`
	State        JobState      `json:"state"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Clone returns a copy that shares nothing mutable with j.
func (j *Job) Clone() Job {
	c := *j
	c.Files = append([]PendingFile(nil), j.Files...)
	return c
}

// ConvertedFile is the output of one successful conversion.
type ConvertedFile struct {
	Data     []byte   `json:"-"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
}

// Progress is the per-user conversion progress snapshot.
type Progress struct {
	Percent    int `json:"percent"`
	FileIndex  int `json:"file_index"`
	TotalFiles int `json:"total_files"`
}
