package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ah-its-andy/convertbot/internal/domain"
)

type parked struct {
	user   string
	file   domain.ConvertedFile
	stored time.Time
}

// Outbox parks converted files until the front end downloads them.
// A result can be taken exactly once.
type Outbox struct {
	mu      sync.Mutex
	results map[string]parked
}

func NewOutbox() *Outbox {
	return &Outbox{results: make(map[string]parked)}
}

// PutResult stores file for user and returns its id.
func (o *Outbox) PutResult(user string, file domain.ConvertedFile) string {
	id := uuid.New().String()
	o.mu.Lock()
	o.results[id] = parked{user: user, file: file, stored: time.Now()}
	o.mu.Unlock()
	return id
}

// TakeResult removes and returns the result. Results of other users are
// reported as missing.
func (o *Outbox) TakeResult(user, id string) (domain.ConvertedFile, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.results[id]
	if !ok || p.user != user {
		return domain.ConvertedFile{}, false
	}
	delete(o.results, id)
	return p.file, true
}

// Expire drops results older than retention and returns how many went.
func (o *Outbox) Expire(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for id, p := range o.results {
		if p.stored.Before(cutoff) {
			delete(o.results, id)
			n++
		}
	}
	return n
}

// Len reports the number of parked results.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.results)
}
