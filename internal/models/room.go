package models

import "time"

const (
	RoomTypePrivate = "private"
	RoomTypeGroup   = "group"
)

// Room is a named participant set used as a fan-out target. Private rooms
// hold exactly two participants and have a deterministic id; group rooms
// carry a display name and a creator. Rooms live in memory only, durability
// belongs to the external store.
type Room struct {
	ID        string    `json:"roomId"`
	Type      string    `json:"type"`
	Name      string    `json:"name,omitempty"`
	Members   []string  `json:"members"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether clientID appears in the member list.
func (r *Room) HasMember(clientID string) bool {
	for _, m := range r.Members {
		if m == clientID {
			return true
		}
	}
	return false
}
