package models

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Finimen Sniper / FSC.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Finimen Sniper / FSC. All rights reserved.

import "time"

// ClientIdentity is the verified {clientId, apiKey} pair a connection is
// bound to. The apiKey is the tenant boundary: clients only ever see other
// clients sharing the same apiKey. Immutable once bound.
type ClientIdentity struct {
	ClientID string `json:"clientId"`
	APIKey   string `json:"apiKey"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusDND     = "dnd"
	StatusUnknown = "unknown"
)

// PresenceRecord holds a client's availability. One record per clientId,
// not per connection; the last writer wins when multiple devices update.
type PresenceRecord struct {
	ClientID      string    `json:"clientId"`
	Status        string    `json:"status"`
	CustomMessage string    `json:"customMessage,omitempty"`
	LastUpdated   time.Time `json:"lastUpdated"`
	ConnectionID  string    `json:"-"`
}

// PresenceEvent is the payload of presence:enter and presence:update.
type PresenceEvent struct {
	ClientID string         `json:"clientId"`
	Presence PresenceRecord `json:"presence"`
}
