package worker

import (
	"context"

	"github.com/ah-its-andy/convertbot/internal/domain"
)

// Listener receives the events of the core. Errors returned by a listener
// are logged and otherwise ignored.
type Listener interface {
	OnFileAccepted(ctx context.Context, user string, file domain.PendingFile, count, limit int) error
	OnFileRejected(ctx context.Context, user, name string, reason error) error
	OnProgress(ctx context.Context, user string, p domain.Progress) error
	OnResult(ctx context.Context, user string, file domain.ConvertedFile) error
	OnFileFailed(ctx context.Context, user, name string, reason error) error
	OnBatchComplete(ctx context.Context, user string, success, total int) error
}

// NopListener discards every event.
type NopListener struct{}

func (NopListener) OnFileAccepted(context.Context, string, domain.PendingFile, int, int) error {
	return nil
}

func (NopListener) OnFileRejected(context.Context, string, string, error) error { return nil }
func (NopListener) OnProgress(context.Context, string, domain.Progress) error { return nil }
func (NopListener) OnResult(context.Context, string, domain.ConvertedFile) error { return nil }
func (NopListener) OnFileFailed(context.Context, string, string, error) error { return nil }
func (NopListener) OnBatchComplete(context.Context, string, int, int) error { return nil }
