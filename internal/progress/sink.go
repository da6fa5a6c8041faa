// Package progress throttles per-user progress reports and forwards them to
// the front end on a best-effort basis.
package progress

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ah-its-andy/convertbot/internal/domain"
	"github.com/ah-its-andy/convertbot/internal/session"
)

// DefaultTimeout bounds a single front-end notification.
const DefaultTimeout = 5 * time.Second

// Notifier delivers a progress snapshot to the front end.
type Notifier interface {
	OnProgress(ctx context.Context, user string, p domain.Progress) error
}

// Sink applies the suppression rule through the session store and notifies
// on every accepted update. Delivery failures never reach the caller.
type Sink struct {
	store    *session.Store
	notifier Notifier
	timeout  time.Duration
}

func NewSink(store *session.Store, notifier Notifier) *Sink {
	return &Sink{store: store, notifier: notifier, timeout: DefaultTimeout}
}

// WithTimeout overrides the notification timeout.
func (s *Sink) WithTimeout(d time.Duration) *Sink {
	s.timeout = d
	return s
}

// Report records percent for file fileIndex (1-based) of totalFiles.
func (s *Sink) Report(ctx context.Context, user string, fileIndex, totalFiles, percent int) {
	p, ok := s.store.UpdateProgress(user, fileIndex, totalFiles, percent)
	if !ok || s.notifier == nil {
		return
	}
	if err := s.deliver(ctx, user, p); err != nil {
		log.Printf("[Progress] deliver to %s: %v", user, err)
	}
}

// For binds user and file position, returning the callback converters use.
func (s *Sink) For(ctx context.Context, user string, fileIndex, totalFiles int) func(percent int) {
	return func(percent int) {
		s.Report(ctx, user, fileIndex, totalFiles, percent)
	}
}

func (s *Sink) deliver(ctx context.Context, user string, p domain.Progress) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return s.notifier.OnProgress(ctx, user, p)
}
