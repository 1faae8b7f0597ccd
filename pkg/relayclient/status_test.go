package relayclient

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"relaychat/internal/models"
)

func TestDeliveryTrackerTransitions(t *testing.T) {
	tracker := NewDeliveryTracker()

	_, ok := tracker.Status("m1")
	assert.False(t, ok)

	tracker.MarkPending("m1")
	status, ok := tracker.Status("m1")
	assert.True(t, ok)
	assert.Equal(t, models.DeliveryPending, status)

	tracker.MarkSent("m1")
	status, _ = tracker.Status("m1")
	assert.Equal(t, models.DeliverySent, status)

	tracker.MarkDelivered("m1")
	status, _ = tracker.Status("m1")
	assert.Equal(t, models.DeliveryDelivered, status)
}

func TestMarkSentDoesNotDowngradeDelivered(t *testing.T) {
	tracker := NewDeliveryTracker()
	tracker.MarkPending("m1")

	// The chat:delivered receipt can race ahead of the send ack.
	tracker.MarkDelivered("m1")
	tracker.MarkSent("m1")

	status, _ := tracker.Status("m1")
	assert.Equal(t, models.DeliveryDelivered, status)
}

func TestMarkError(t *testing.T) {
	tracker := NewDeliveryTracker()
	tracker.MarkPending("m1")
	tracker.MarkError("m1")

	status, _ := tracker.Status("m1")
	assert.Equal(t, models.DeliveryError, status)
}

func TestDedupWindowReportsRepeats(t *testing.T) {
	window := newDedupWindow(4)

	assert.False(t, window.Seen("m1"))
	assert.True(t, window.Seen("m1"))
	assert.False(t, window.Seen("m2"))
}

func TestDedupWindowEvictsOldest(t *testing.T) {
	window := newDedupWindow(2)

	window.Seen("m1")
	window.Seen("m2")
	window.Seen("m3")

	// m1 fell off the window and is treated as fresh again.
	assert.False(t, window.Seen("m1"))
	assert.True(t, window.Seen("m3"))
}

func TestDedupWindowDefaultCap(t *testing.T) {
	window := newDedupWindow(0)

	for i := 0; i < 512; i++ {
		assert.False(t, window.Seen(fmt.Sprintf("m%d", i)))
	}
	assert.True(t, window.Seen("m0"))

	// One more push evicts the oldest entry.
	window.Seen("overflow")
	assert.False(t, window.Seen("m0"))
}
