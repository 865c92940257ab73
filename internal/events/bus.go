// Package events broadcasts "schedules changed" signals to read-only consumers.
package events

import "sync"

type Source string

const (
	SourceUser   Source = "user"
	SourcePoller Source = "poller"
	SourceLoad   Source = "load"
)

// Change tells subscribers that the schedule list was modified.
type Change struct {
	Source Source
	IDs    []string
}

type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Change
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Change)}
}

// Subscribe returns a channel of changes and a cancel func. A slow subscriber
// only misses intermediate changes; the latest pending one is kept.
func (b *Bus) Subscribe() (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Change, 1)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish never blocks.
func (b *Bus) Publish(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- c:
		default:
			// Drop the stale pending change and replace it with this one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
			}
		}
	}
}
