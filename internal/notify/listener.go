// Package notify carries core events to the front end: an in-process event
// bus polled over HTTP, an outbox holding converted files and optional
// external publishers such as Redis.
package notify

import (
	"context"
	"log"

	"github.com/ah-its-andy/convertbot/internal/domain"
)

// Listener records every core callback on the bus and forwards it to the
// configured publisher.
type Listener struct {
	bus       *EventBus
	outbox    *Outbox
	publisher Publisher
}

// NewListener builds a listener. publisher may be nil.
func NewListener(bus *EventBus, outbox *Outbox, publisher Publisher) *Listener {
	return &Listener{bus: bus, outbox: outbox, publisher: publisher}
}

func (l *Listener) Bus() *EventBus  { return l.bus }
func (l *Listener) Outbox() *Outbox { return l.outbox }

func (l *Listener) emit(ctx context.Context, event Event) error {
	event = l.bus.Publish(event)
	if l.publisher == nil {
		return nil
	}
	if err := l.publisher.Publish(ctx, event); err != nil {
		log.Printf("[Notify] publish %s for %s failed: %v", event.Type, event.User, err)
		return err
	}
	return nil
}

func (l *Listener) OnFileAccepted(ctx context.Context, user string, file domain.PendingFile, count, limit int) error {
	return l.emit(ctx, Event{
		User:     user,
		Type:     EventFileAccepted,
		FileName: file.Name,
		Count:    count,
		Limit:    limit,
	})
}

func (l *Listener) OnFileRejected(ctx context.Context, user, name string, reason error) error {
	return l.emit(ctx, Event{
		User:      user,
		Type:      EventFileRejected,
		FileName:  name,
		ErrorKind: string(domain.KindOf(reason)),
		Message:   domain.UserMessage(reason),
	})
}

func (l *Listener) OnProgress(ctx context.Context, user string, p domain.Progress) error {
	return l.emit(ctx, Event{
		User:       user,
		Type:       EventProgress,
		FileIndex:  p.FileIndex,
		TotalFiles: p.TotalFiles,
		Percent:    p.Percent,
	})
}

// OnResult parks the file in the outbox; the event carries its id.
func (l *Listener) OnResult(ctx context.Context, user string, file domain.ConvertedFile) error {
	id := l.outbox.PutResult(user, file)
	return l.emit(ctx, Event{
		User:     user,
		Type:     EventResult,
		FileName: file.Name,
		ResultID: id,
		Category: string(file.Category),
		Size:     len(file.Data),
	})
}

func (l *Listener) OnFileFailed(ctx context.Context, user, name string, reason error) error {
	return l.emit(ctx, Event{
		User:      user,
		Type:      EventFileFailed,
		FileName:  name,
		ErrorKind: string(domain.KindOf(reason)),
		Message:   domain.UserMessage(reason),
	})
}

func (l *Listener) OnBatchComplete(ctx context.Context, user string, success, total int) error {
	return l.emit(ctx, Event{
		User:       user,
		Type:       EventBatchComplete,
		Success:    success,
		TotalFiles: total,
	})
}
