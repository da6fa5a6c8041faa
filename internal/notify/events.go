package notify

import (
	"sync"
	"time"
)

// EventType classifies messages sent to the front end.
type EventType string

const (
	EventFileAccepted  EventType = "file_accepted"
	EventFileRejected  EventType = "file_rejected"
	EventProgress      EventType = "progress"
	EventResult        EventType = "result"
	EventFileFailed    EventType = "file_failed"
	EventBatchComplete EventType = "batch_complete"
)

// Event is a sequenced payload addressed to one user.
type Event struct {
	Seq        int64     `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
	User       string    `json:"user"`
	Type       EventType `json:"type"`
	Message    string    `json:"message,omitempty"`
	FileName   string    `json:"file_name,omitempty"`
	FileIndex  int       `json:"file_index,omitempty"`
	TotalFiles int       `json:"total_files,omitempty"`
	Percent    int       `json:"percent,omitempty"`
	Count      int       `json:"count,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	ResultID   string    `json:"result_id,omitempty"`
	Category   string    `json:"category,omitempty"`
	Size       int       `json:"size,omitempty"`
	Success    int       `json:"success,omitempty"`
}

// EventBus stores recent events and provides incremental reads per user.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 1000
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns the user's events with sequence strictly greater than seq.
func (b *EventBus) Since(user string, seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, event := range b.events {
		if event.Seq > seq && event.User == user {
			out = append(out, event)
		}
	}
	return out
}

// LastSeq returns the sequence number of the newest event.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
