package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ah-its-andy/convertbot/internal/domain"
)

func TestEventBusSinceFiltersUser(t *testing.T) {
	bus := NewEventBus(10)
	bus.Publish(Event{User: "a", Message: "1"})
	bus.Publish(Event{User: "b", Message: "2"})
	bus.Publish(Event{User: "a", Message: "3"})

	events := bus.Since("a", 1)
	if len(events) != 1 {
		t.Fatalf("len = %d, want 1", len(events))
	}
	if events[0].Seq != 3 || events[0].Message != "3" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if got := bus.LastSeq(); got != 3 {
		t.Fatalf("LastSeq = %d", got)
	}
}

func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{User: "a", Message: "1"})
	bus.Publish(Event{User: "a", Message: "2"})
	bus.Publish(Event{User: "a", Message: "3"})

	events := bus.Since("a", 0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestOutboxTakeOnce(t *testing.T) {
	o := NewOutbox()
	id := o.PutResult("a", domain.ConvertedFile{Name: "x_converted.png", Data: []byte{1}})

	if _, ok := o.TakeResult("b", id); ok {
		t.Fatal("another user must not take the result")
	}
	f, ok := o.TakeResult("a", id)
	if !ok || f.Name != "x_converted.png" {
		t.Fatalf("TakeResult = %+v, %v", f, ok)
	}
	if _, ok := o.TakeResult("a", id); ok {
		t.Fatal("result taken twice")
	}
}

func TestOutboxExpire(t *testing.T) {
	o := NewOutbox()
	o.PutResult("a", domain.ConvertedFile{Name: "old"})
	time.Sleep(5 * time.Millisecond)
	if n := o.Expire(time.Hour); n != 0 {
		t.Fatalf("expired %d fresh results", n)
	}
	if n := o.Expire(time.Millisecond); n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}
	if o.Len() != 0 {
		t.Fatal("outbox not empty")
	}
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestListenerEmitsAndParksResults(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewListener(NewEventBus(0), NewOutbox(), pub)
	ctx := context.Background()

	l.OnFileAccepted(ctx, "u", domain.PendingFile{Name: "a.jpg"}, 1, 5)
	l.OnProgress(ctx, "u", domain.Progress{Percent: 40, FileIndex: 1, TotalFiles: 1})
	l.OnResult(ctx, "u", domain.ConvertedFile{Name: "a_converted.png", Data: []byte("png"), Category: domain.CategoryImage})
	l.OnFileFailed(ctx, "u", "b.jpg", domain.Errorf(domain.Decode, "decode", "bad image"))
	l.OnBatchComplete(ctx, "u", 1, 2)

	events := l.Bus().Since("u", 0)
	if len(events) != 5 || len(pub.events) != 5 {
		t.Fatalf("bus=%d published=%d", len(events), len(pub.events))
	}
	res := events[2]
	if res.Type != EventResult || res.ResultID == "" || res.Category != "image" || res.Size != 3 {
		t.Fatalf("unexpected result event: %+v", res)
	}
	if _, ok := l.Outbox().TakeResult("u", res.ResultID); !ok {
		t.Fatal("result not parked")
	}
	if events[3].ErrorKind != string(domain.Decode) {
		t.Fatalf("error kind = %q", events[3].ErrorKind)
	}
	if events[4].Success != 1 || events[4].TotalFiles != 2 {
		t.Fatalf("batch event = %+v", events[4])
	}
}

func TestListenerKeepsBusWhenPublisherFails(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("down")}
	l := NewListener(NewEventBus(0), NewOutbox(), pub)
	if err := l.OnProgress(context.Background(), "u", domain.Progress{Percent: 5}); err == nil {
		t.Fatal("expected publisher error")
	}
	if len(l.Bus().Since("u", 0)) != 1 {
		t.Fatal("event missing from bus")
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	bad := &recordingPublisher{err: errors.New("boom")}
	err := Multi{ok, bad}.Publish(context.Background(), Event{User: "u"})
	if err == nil || len(ok.events) != 1 || len(bad.events) != 1 {
		t.Fatalf("err=%v ok=%d bad=%d", err, len(ok.events), len(bad.events))
	}
}

func TestRedisPublisherUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	p := NewRedisPublisher(client, "")
	p.Timeout = 500 * time.Millisecond
	if p.Channel() != "convertbot:events" {
		t.Fatalf("channel = %q", p.Channel())
	}
	start := time.Now()
	if err := p.Publish(context.Background(), Event{User: "u"}); err == nil {
		t.Fatal("expected error from unreachable redis")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("publish not bounded")
	}
}
