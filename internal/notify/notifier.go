// Package notify fans out scheduled-message changes to per-event subscribers.
//
// Delivery is at-least-once and eventually consistent: the Change payload says
// which row moved and where, but subscribers should re-fetch current state
// rather than trust it. Publish never blocks the caller.
package notify

import (
	"sync"

	"github.com/sequentia/remindflow-backend/internal/model"
)

type Change struct {
	EventID   int64
	MessageID int64
	Status    model.MessageStatus
}

type Notifier struct {
	mu   sync.RWMutex
	seq  uint64
	subs map[int64]map[uint64]func(Change)
}

func New() *Notifier {
	return &Notifier{subs: map[int64]map[uint64]func(Change){}}
}

// Subscribe registers fn for changes scoped to eventID. The returned
// unsubscribe func is idempotent and safe to call multiple times.
func (n *Notifier) Subscribe(eventID int64, fn func(Change)) (unsubscribe func()) {
	n.mu.Lock()
	n.seq++
	id := n.seq
	if n.subs[eventID] == nil {
		n.subs[eventID] = map[uint64]func(Change){}
	}
	n.subs[eventID][id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			if m := n.subs[eventID]; m != nil {
				delete(m, id)
				if len(m) == 0 {
					delete(n.subs, eventID)
				}
			}
			n.mu.Unlock()
		})
	}
}

func (n *Notifier) Publish(c Change) {
	// Snapshot under the read lock so a slow callback can't hold it.
	n.mu.RLock()
	fns := make([]func(Change), 0, len(n.subs[c.EventID]))
	for _, fn := range n.subs[c.EventID] {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		go fn(c)
	}
}
