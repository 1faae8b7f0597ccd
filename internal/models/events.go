package models

import "encoding/json"

// Wire event names. Every frame crossing the transport is an Envelope with
// one of these names; encrypted traffic carries the same envelope inside a
// single binary frame.

// Client -> server.
const (
	EventPresenceUpdate    = "presence:update"
	EventChatPrivate       = "chat:private"
	EventChatDelivered     = "chat:delivered"
	EventProfileUpdate     = "chat:profile_update"
	EventSubscribeStatus   = "chat:subscribe_status"
	EventCreatePrivateChat = "create_private_chat"
	EventCreateGroupChat   = "create_group_chat"
	EventGetRooms          = "get_rooms"
	EventSendMessage       = "send_message"
	EventJoin              = "join"
	EventLeave             = "leave"
	EventUnregisterClient  = "unregister_client"
)

// Server -> client.
const (
	EventPresenceSync        = "presence:sync"
	EventPresenceEnter       = "presence:enter"
	EventPresenceLeave       = "presence:leave"
	EventChatMessage         = "chat:message"
	EventChatError           = "chat:error"
	EventChatStatus          = "chat:status"
	EventPrivateChatCreated  = "private_chat_created"
	EventGroupChatCreated    = "group_chat_created"
	EventRoomsList           = "rooms_list"
	EventNewMessage          = "new_message"
	EventNotification        = "notification"
	EventRecentNotifications = "recent_notifications"
	EventSessionExpired      = "session:expired"
	EventAck                 = "ack"
)

// Envelope is the logical frame: a named event plus its payload. AckID is
// set by the sender when it wants an acknowledgement routed back.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

// AckResult travels back on the "ack" event when the inbound envelope
// carried an AckID. Request-scoped errors reach only the requester this way.
type AckResult struct {
	AckID     string `json:"ackId,omitempty"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	RoomID    string `json:"roomId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Inbound payloads.

type PresenceUpdateRequest struct {
	Status        string `json:"status"`
	CustomMessage string `json:"customMessage,omitempty"`
}

type PrivateMessageRequest struct {
	TargetID  string         `json:"targetId"`
	MessageID string         `json:"messageId,omitempty"`
	Message   string         `json:"message"`
	MetaData  map[string]any `json:"metaData,omitempty"`
}

type DeliveredRequest struct {
	MessageID string `json:"messageId"`
}

type ProfileUpdateRequest struct {
	Data map[string]any `json:"data"`
}

type CreatePrivateChatRequest struct {
	TargetClientID string `json:"targetClientId"`
}

type CreateGroupChatRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type RoomMessageRequest struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId,omitempty"`
	Message   string `json:"message"`
}

type JoinRequest struct {
	Room string `json:"room"`
}

// Outbound payloads.

type PresenceSyncEvent struct {
	Presences []PresenceEvent `json:"presences"`
}

type PresenceLeaveEvent struct {
	ClientID string `json:"clientId"`
}

type ProfileUpdateEvent struct {
	ClientID string         `json:"clientId"`
	Data     map[string]any `json:"data"`
}

type ChatErrorEvent struct {
	Message string `json:"message"`
}

type ChatStatusEvent struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type PrivateChatCreatedEvent struct {
	RoomID       string   `json:"roomId"`
	Participants []string `json:"participants"`
}

type GroupChatCreatedEvent struct {
	RoomID    string   `json:"roomId"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	CreatedBy string   `json:"createdBy"`
}

type RoomsListEvent struct {
	Rooms []Room `json:"rooms"`
}

type NewMessageEvent struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
	SenderID  string `json:"senderId"`
	Timestamp string `json:"timestamp"`
}

type RecentNotificationsEvent struct {
	Notifications []Notification `json:"notifications"`
}

type SessionExpiredEvent struct {
	Reason string `json:"reason"`
}
