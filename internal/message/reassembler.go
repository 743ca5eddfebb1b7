package message

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Part is one fragment of a multi-part message, used to split a large
// m̃ across several requests (spec.md §4.7). Index is zero-based; Total
// is the fragment count the sender committed to up front.
type Part struct {
	MessageID uuid.UUID
	Index     int
	Total     int
	Payload   []byte
}

// pending collects fragments for one in-flight message ID until either
// every part has arrived or it expires.
type pending struct {
	total   int
	parts   map[int][]byte
	expires time.Time
}

// Reassembler buffers Parts by message_id until complete, bounding each
// entry's lifetime to the phase's remaining deadline so a message that
// loses its phase race cannot linger in memory (spec.md §9: "[reassembly
// buffers] must not outlive the phase"). Grounded on the teacher's
// partialCache bound on per-node cache entries (cache.go's
// MaxPartialsPerNode eviction), generalized from "evict oldest" to
// "evict on expiry."
type Reassembler struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[uuid.UUID]*pending
}

// NewReassembler returns an empty Reassembler driven by clock.
func NewReassembler(clock clockwork.Clock) *Reassembler {
	return &Reassembler{
		clock:   clock,
		entries: make(map[uuid.UUID]*pending),
	}
}

// Add stores part and, once every fragment of its message has arrived,
// returns the concatenated payload with complete=true. ttl bounds how
// long this message's fragments may wait for the rest to arrive,
// typically the current phase's remaining deadline.
func (r *Reassembler) Add(part Part, ttl time.Duration) (payload []byte, complete bool, err error) {
	if part.Total <= 0 || part.Index < 0 || part.Index >= part.Total {
		return nil, false, fmt.Errorf("message: invalid part %d/%d", part.Index, part.Total)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpiredLocked()

	p, ok := r.entries[part.MessageID]
	if !ok {
		p = &pending{
			total:   part.Total,
			parts:   make(map[int][]byte, part.Total),
			expires: r.clock.Now().Add(ttl),
		}
		r.entries[part.MessageID] = p
	}
	if p.total != part.Total {
		return nil, false, fmt.Errorf("message: part total mismatch for %s: %d vs %d", part.MessageID, p.total, part.Total)
	}
	if _, dup := p.parts[part.Index]; dup {
		return nil, false, fmt.Errorf("message: duplicate part %d for %s", part.Index, part.MessageID)
	}
	p.parts[part.Index] = part.Payload

	if len(p.parts) < p.total {
		return nil, false, nil
	}

	delete(r.entries, part.MessageID)
	out := make([]byte, 0)
	for i := 0; i < p.total; i++ {
		out = append(out, p.parts[i]...)
	}
	return out, true, nil
}

// evictExpiredLocked drops any pending entry whose ttl has elapsed. r.mu
// must be held.
func (r *Reassembler) evictExpiredLocked() {
	now := r.clock.Now()
	for id, p := range r.entries {
		if now.After(p.expires) {
			delete(r.entries, id)
		}
	}
}

// Pending reports how many distinct message IDs are currently buffered,
// used by tests and by metrics.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
