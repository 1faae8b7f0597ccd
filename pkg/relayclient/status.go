package relayclient

import (
	"sync"

	"relaychat/internal/models"
)

// DeliveryTracker keeps the client-side pending -> sent -> delivered|error
// map keyed by messageId. "delivered" is only ever set from a
// chat:delivered round-trip, never from a successful transmit.
type DeliveryTracker struct {
	mu       sync.RWMutex
	statuses map[string]string
}

func NewDeliveryTracker() *DeliveryTracker {
	return &DeliveryTracker{statuses: make(map[string]string)}
}

func (t *DeliveryTracker) MarkPending(messageID string) {
	t.set(messageID, models.DeliveryPending)
}

// MarkSent upgrades pending to sent; it never downgrades a delivered
// message that raced ahead of the ack.
func (t *DeliveryTracker) MarkSent(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statuses[messageID] == models.DeliveryPending {
		t.statuses[messageID] = models.DeliverySent
	}
}

func (t *DeliveryTracker) MarkDelivered(messageID string) {
	t.set(messageID, models.DeliveryDelivered)
}

func (t *DeliveryTracker) MarkError(messageID string) {
	t.set(messageID, models.DeliveryError)
}

func (t *DeliveryTracker) Status(messageID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status, ok := t.statuses[messageID]
	return status, ok
}

func (t *DeliveryTracker) set(messageID, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[messageID] = status
}

// dedupWindow remembers the most recent message ids so redundant copies
// (one per recipient connection, or redelivery after reconnect) are
// dropped before reaching the application.
type dedupWindow struct {
	mu    sync.Mutex
	seen  map[string]bool
	order []string
	cap   int
}

func newDedupWindow(cap int) *dedupWindow {
	if cap <= 0 {
		cap = 512
	}
	return &dedupWindow{seen: make(map[string]bool), cap: cap}
}

// Seen records the id and reports whether it was already present.
func (d *dedupWindow) Seen(messageID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.seen[messageID] {
		return true
	}
	d.seen[messageID] = true
	d.order = append(d.order, messageID)
	if len(d.order) > d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	return false
}
