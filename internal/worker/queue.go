package worker

import (
	"errors"
	"sync"
)

var (
	ErrQueueClosed   = errors.New("queue is not accepting jobs")
	ErrQueueFull     = errors.New("queue is full")
	ErrAlreadyQueued = errors.New("job is already queued")
)

// Queue hands users with a triggered job to the pool. A user is queued at
// most once until a worker picks the job up.
type Queue struct {
	ch        chan string
	mu        sync.Mutex
	enqueued  map[string]struct{}
	accepting bool
}

func NewQueue(buf int) *Queue {
	if buf <= 0 {
		buf = 1
	}
	return &Queue{
		ch:        make(chan string, buf),
		enqueued:  make(map[string]struct{}),
		accepting: true,
	}
}

func (q *Queue) Enqueue(user string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.accepting {
		return ErrQueueClosed
	}
	if _, ok := q.enqueued[user]; ok {
		return ErrAlreadyQueued
	}
	select {
	case q.ch <- user:
	default:
		return ErrQueueFull
	}
	q.enqueued[user] = struct{}{}
	return nil
}

// Dequeued releases user so it can be queued again.
func (q *Queue) Dequeued(user string) {
	q.mu.Lock()
	delete(q.enqueued, user)
	q.mu.Unlock()
}

func (q *Queue) StopAccepting() {
	q.mu.Lock()
	q.accepting = false
	q.mu.Unlock()
}

func (q *Queue) Chan() <-chan string { return q.ch }

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}
