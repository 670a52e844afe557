package collection

import (
	"sync"

	"github.com/mycolog/mycolog/internal/logger"
)

// ChangeKind names a committed mutation.
type ChangeKind string

const (
	ChangeAppended ChangeKind = "saved"
	ChangeRemoved  ChangeKind = "removed"
	ChangeFavorite ChangeKind = "favorite"
	ChangeMigrated ChangeKind = "migrated"
)

// Change is delivered to subscribers after a mutation commits. Any projection
// computed at an earlier Revision is stale.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	ID       string     `json:"id,omitempty"`
	Record   *Record    `json:"record,omitempty"`
	Revision uint64     `json:"revision"`
}

const subscriberBuffer = 32

// broadcaster fans committed changes out to subscribers. A subscriber that
// falls behind misses changes but can detect it from the revision gap.
type broadcaster struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Change
	closed bool
	log    logger.Logger
}

func newBroadcaster(log logger.Logger) *broadcaster {
	return &broadcaster{subs: make(map[int]chan Change), log: log}
}

func (b *broadcaster) subscribe() (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Change, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *broadcaster) publish(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- c:
		default:
			b.log.Warn("subscriber queue full, change dropped",
				logger.Int("subscriber", id),
				logger.Uint64("revision", c.Revision))
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
