package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// ChatMessage is a single delivered chat event. MessageID is generated by
// the sending client (time + random composite), globally unique per sender,
// and serves as the idempotency key for delivery status and receiver-side
// dedup. Immutable once sent.
type ChatMessage struct {
	MessageID string         `json:"messageId"`
	RoomID    string         `json:"roomId"`
	FromID    string         `json:"fromId"`
	ToID      string         `json:"toId,omitempty"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	MetaData  map[string]any `json:"metaData,omitempty"`
	ToData    map[string]any `json:"toData,omitempty"`
}

// Delivery status values. Transient, reconstructed from acknowledgements:
// pending -> sent -> delivered | error.
const (
	DeliveryPending   = "pending"
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryError     = "error"
)

// NewMessageID mints a time+random composite message id.
func NewMessageID() string {
	var suffix [4]byte
	rand.Read(suffix[:])
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(suffix[:]))
}

// Notification types accepted by the fan-out facade.
const (
	NotificationInfo    = "info"
	NotificationSuccess = "success"
	NotificationWarning = "warning"
	NotificationError   = "error"
)

// Notification is broadcast to the single well-known notifications room;
// unlike chat rooms that room is global, not tenant-scoped.
type Notification struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ValidNotificationType reports whether t is one of the accepted types.
func ValidNotificationType(t string) bool {
	switch t {
	case NotificationInfo, NotificationSuccess, NotificationWarning, NotificationError:
		return true
	}
	return false
}
