package db

import (
	"time"
)

// Task statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// TaskHistory records the outcome of converting one file of a job
type TaskHistory struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	JobID        string    `json:"job_id" gorm:"index"`
	UserID       string    `json:"user_id" gorm:"index"`
	Kind         string    `json:"kind"`
	FileName     string    `json:"file_name"`
	FileIndex    int       `json:"file_index"`
	SourceMD5    string    `json:"source_md5"`
	SourceSize   int64     `json:"source_size"`
	Status       string    `json:"status"` // success, failed, skipped
	ErrorKind    string    `json:"error_kind"`
	ErrorMessage string    `json:"error_message"`
	OutputName   string    `json:"output_name"`
	OutputSize   int64     `json:"output_size"`
	CloudURL     string    `json:"cloud_url"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

// Setting is a key/value row for small pieces of process state
type Setting struct {
	Key       string    `json:"key" gorm:"column:name;primaryKey"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats represents conversion statistics
type Stats struct {
	TotalFiles   int64            `json:"total_files"`
	SuccessCount int64            `json:"success_count"`
	FailedCount  int64            `json:"failed_count"`
	TotalJobs    int64            `json:"total_jobs"`
	ByKind       map[string]int64 `json:"by_kind"`
	ByErrorKind  map[string]int64 `json:"by_error_kind"`
}
