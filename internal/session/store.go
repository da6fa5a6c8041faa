// Package session keeps the one active conversion job of each user.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrNoJob         = &domain.Error{Kind: domain.NotFound, Op: "session", Message: "no active job"}
	ErrLimitReached  = &domain.Error{Kind: domain.LimitReached, Op: "enqueue", Message: "file limit reached"}
	ErrNotCollecting = &domain.Error{Kind: domain.NotCollecting, Op: "enqueue", Message: "job is no longer collecting files"}
	ErrEmptyJob      = &domain.Error{Kind: domain.Validation, Op: "begin", Message: "no files to convert"}
)

// MinProgressStep is the smallest percentage change reported to the front
// end, except for 100 which is always reported.
const MinProgressStep = 5

type entry struct {
	job      *domain.Job
	progress *domain.Progress
	reported bool
	cancel   context.CancelFunc
}

// Store is safe for concurrent use. A single mutex guards every job and
// progress entry, so operations on one user never interleave.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	consent map[string]bool
	cloud   map[string]bool
}

func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		consent: make(map[string]bool),
		cloud:   make(map[string]bool),
	}
}

// CreateOrReplace starts a new collecting job for user, discarding any
// previous one. A replaced job that is still converting is cancelled. The
// displaced job is returned as it was when it was dropped, or nil.
func (s *Store) CreateOrReplace(user string, kind domain.KindSpec) (domain.Job, *domain.Job) {
	job := &domain.Job{
		ID:           uuid.NewString(),
		Owner:        user,
		Kind:         kind,
		SourceFormat: kind.Source,
		TargetFormat: kind.Target,
		SizeLimit:    kind.SizeLimit,
		FileLimit:    kind.FileLimit,
		State:        domain.StateCollecting,
		CreatedAt:    time.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var displaced *domain.Job
	if old, ok := s.entries[user]; ok {
		if old.cancel != nil {
			old.cancel()
		}
		prev := old.job.Clone()
		displaced = &prev
	}
	s.entries[user] = &entry{job: job}
	return job.Clone(), displaced
}

// Enqueue appends f to the user's job and returns it with its order index.
func (s *Store) Enqueue(user string, f domain.PendingFile) (domain.PendingFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[user]
	if !ok {
		return f, ErrNoJob
	}
	if e.job.State != domain.StateCollecting {
		return f, ErrNotCollecting
	}
	if len(e.job.Files) >= e.job.FileLimit {
		return f, ErrLimitReached
	}
	f.Index = len(e.job.Files)
	e.job.Files = append(e.job.Files, f)
	return f, nil
}

// Get returns a copy of the user's job.
func (s *Store) Get(user string) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[user]
	if !ok {
		return domain.Job{}, false
	}
	return e.job.Clone(), true
}

// Remove drops the user's job and progress, cancelling a running conversion.
// It returns the job as it was when removed.
func (s *Store) Remove(user string) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[user]
	if !ok {
		return domain.Job{}, false
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(s.entries, user)
	return e.job.Clone(), true
}

// Handles returns the blob handles referenced by every job in the store.
func (s *Store) Handles() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, e := range s.entries {
		for _, f := range e.job.Files {
			if f.Handle != "" {
				out[f.Handle] = true
			}
		}
	}
	return out
}

// RemoveIf removes the user's entry only while it still holds job jobID.
func (s *Store) RemoveIf(user, jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[user]
	if !ok || e.job.ID != jobID {
		return false
	}
	delete(s.entries, user)
	return true
}

// Begin moves a collecting job with at least one file to converting and
// opens its progress entry. cancel is invoked if the job is removed or
// replaced before the run ends.
func (s *Store) Begin(user string, cancel context.CancelFunc) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[user]
	if !ok {
		return domain.Job{}, ErrNoJob
	}
	if e.job.State != domain.StateCollecting {
		return domain.Job{}, ErrNotCollecting
	}
	if len(e.job.Files) == 0 {
		return domain.Job{}, ErrEmptyJob
	}
	e.job.State = domain.StateConverting
	e.cancel = cancel
	e.progress = &domain.Progress{TotalFiles: len(e.job.Files)}
	e.reported = false
	return e.job.Clone(), nil
}

// Finish marks job jobID done. It is a no-op if the job was replaced.
func (s *Store) Finish(user, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[user]; ok && e.job.ID == jobID {
		e.job.State = domain.StateDone
		e.cancel = nil
	}
}

// UpdateProgress applies a progress report and returns the snapshot to
// deliver. ok is false when the update is suppressed: the job is gone, the
// value moved backwards within the same file, or it changed by less than
// MinProgressStep and is not 100. A new file index resets the percentage.
func (s *Store) UpdateProgress(user string, fileIndex, totalFiles, percent int) (domain.Progress, bool) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[user]
	if !ok || e.progress == nil {
		return domain.Progress{}, false
	}
	p := e.progress
	if !e.reported || fileIndex != p.FileIndex {
		p.FileIndex = fileIndex
		p.TotalFiles = totalFiles
		p.Percent = percent
		e.reported = true
		return *p, true
	}
	if percent < p.Percent {
		return *p, false
	}
	if percent != 100 && percent-p.Percent < MinProgressStep {
		return *p, false
	}
	p.Percent = percent
	p.TotalFiles = totalFiles
	return *p, true
}

// Progress returns the user's current progress, if a job is converting.
func (s *Store) Progress(user string) (domain.Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[user]
	if !ok || e.progress == nil {
		return domain.Progress{}, false
	}
	return *e.progress, true
}

// Active returns the number of users with a job.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Accept(user string) {
	s.mu.Lock()
	s.consent[user] = true
	s.mu.Unlock()
}

func (s *Store) Consented(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consent[user]
}

// SetCloud records whether converted files of user are copied to the cloud.
func (s *Store) SetCloud(user string, enabled bool) {
	s.mu.Lock()
	if enabled {
		s.cloud[user] = true
	} else {
		delete(s.cloud, user)
	}
	s.mu.Unlock()
}

func (s *Store) CloudEnabled(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloud[user]
}
