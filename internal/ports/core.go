package ports

import (
	"context"

	"relaychat/internal/models"
)

// Ack delivers a request-scoped result back to the requesting socket only.
type Ack func(models.AckResult)

// RelayCore is what the transport layer dispatches inbound events into.
// The hub holds this interface; the services behind it own all shared state.
type RelayCore interface {
	Register(identity models.ClientIdentity, connID string) error
	Unregister(connID string)

	UpdatePresence(connID, status, customMessage string) error
	ProfileUpdate(connID string, data map[string]any) error

	CreatePrivateRoom(connID, targetClientID string, ack Ack)
	CreateGroupRoom(connID, name string, memberIDs []string, ack Ack)
	ListRooms(connID string)

	SendPrivate(connID string, req models.PrivateMessageRequest, ack Ack)
	SendToRoom(connID string, req models.RoomMessageRequest, ack Ack)
	Delivered(connID, messageID string)
	SubscribeStatus(connID string)

	JoinRoom(ctx context.Context, connID, room string) error
	LeaveRoom(connID, room string)
}
