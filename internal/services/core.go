package services

import (
	"context"
	"log/slog"

	"relaychat/internal/models"
	"relaychat/internal/ports"
)

// Core composes the registry, presence engine, room manager, message router
// and notification service behind the single interface the transport
// dispatches into. No component reaches into another's maps; everything
// crosses these method boundaries.
type Core struct {
	Registry      *Registry
	Presence      *PresenceEngine
	Rooms         *RoomManager
	Router        *MessageRouter
	Notifications *NotificationService

	logger *slog.Logger
}

func NewCore(registry *Registry, presence *PresenceEngine, rooms *RoomManager, router *MessageRouter, notifications *NotificationService, logger *slog.Logger) *Core {
	return &Core{
		Registry:      registry,
		Presence:      presence,
		Rooms:         rooms,
		Router:        router,
		Notifications: notifications,
		logger:        logger,
	}
}

var _ ports.RelayCore = (*Core)(nil)

// Register binds the connection, re-joins it to every room its client is a
// member of (server-side subscription recovery on reconnect), and runs the
// presence enter flow.
func (c *Core) Register(identity models.ClientIdentity, connID string) error {
	if _, err := c.Registry.Register(identity, connID); err != nil {
		return err
	}
	c.Rooms.JoinClientRooms(connID, identity.ClientID)
	c.Presence.Enter(identity.ClientID, identity.APIKey, connID)
	return nil
}

// Unregister tears the connection down; the presence leave fan-out happens
// only when the client's last connection dropped.
func (c *Core) Unregister(connID string) {
	c.Router.ConnectionClosed(connID)
	identity, last, ok := c.Registry.Unregister(connID)
	if ok && last {
		c.Presence.Leave(identity.ClientID, identity.APIKey)
	}
}

func (c *Core) UpdatePresence(connID, status, customMessage string) error {
	identity, ok := c.Registry.Identity(connID)
	if !ok {
		return ErrAuthentication
	}
	return c.Presence.Update(identity.ClientID, identity.APIKey, connID, status, customMessage)
}

// ProfileUpdate fans profile data out to the whole tenant, the sender's own
// sockets included, mirroring the presence:update echo rule.
func (c *Core) ProfileUpdate(connID string, data map[string]any) error {
	identity, ok := c.Registry.Identity(connID)
	if !ok {
		return ErrAuthentication
	}
	c.Registry.broadcaster.EmitToGroup(TenantGroup(identity.APIKey), models.EventProfileUpdate,
		models.ProfileUpdateEvent{ClientID: identity.ClientID, Data: data})
	return nil
}

func (c *Core) CreatePrivateRoom(connID, targetClientID string, ack ports.Ack) {
	identity, ok := c.Registry.Identity(connID)
	if !ok {
		nack(ack, ErrAuthentication.Error())
		return
	}
	room, err := c.Rooms.CreatePrivateRoom(identity.APIKey, identity.ClientID, targetClientID)
	if err != nil {
		nack(ack, err.Error())
		return
	}
	if ack != nil {
		ack(models.AckResult{Success: true, RoomID: room.ID})
	}
}

func (c *Core) CreateGroupRoom(connID, name string, memberIDs []string, ack ports.Ack) {
	identity, ok := c.Registry.Identity(connID)
	if !ok {
		nack(ack, ErrAuthentication.Error())
		return
	}
	room, err := c.Rooms.CreateGroupRoom(identity.APIKey, name, identity.ClientID, memberIDs)
	if err != nil {
		nack(ack, err.Error())
		return
	}
	if ack != nil {
		ack(models.AckResult{Success: true, RoomID: room.ID})
	}
}

func (c *Core) ListRooms(connID string) {
	identity, ok := c.Registry.Identity(connID)
	if !ok {
		return
	}
	rooms := c.Rooms.ListRooms(identity.ClientID)
	c.Registry.broadcaster.EmitToConn(connID, models.EventRoomsList, models.RoomsListEvent{Rooms: rooms})
}

func (c *Core) SendPrivate(connID string, req models.PrivateMessageRequest, ack ports.Ack) {
	identity, ok := c.Registry.Identity(connID)
	if !ok {
		nack(ack, ErrAuthentication.Error())
		return
	}
	c.Router.SendPrivate(identity, req, ack)
}

func (c *Core) SendToRoom(connID string, req models.RoomMessageRequest, ack ports.Ack) {
	identity, ok := c.Registry.Identity(connID)
	if !ok {
		nack(ack, ErrAuthentication.Error())
		return
	}
	c.Router.SendToRoom(identity, req, ack)
}

// Delivered forwards a delivery ack with the identity behind the acking
// connection; unregistered connections cannot produce receipts.
func (c *Core) Delivered(connID, messageID string) {
	identity, ok := c.Registry.Identity(connID)
	if !ok {
		return
	}
	c.Router.Delivered(identity, messageID)
}

func (c *Core) SubscribeStatus(connID string) {
	c.Router.SubscribeStatus(connID)
}

// JoinRoom handles the generic join event: the well-known notifications
// room replays recent history; any other room requires membership.
func (c *Core) JoinRoom(ctx context.Context, connID, room string) error {
	if room == NotificationsRoom {
		return c.Notifications.Join(ctx, connID)
	}

	identity, ok := c.Registry.Identity(connID)
	if !ok {
		return ErrAuthentication
	}
	if _, err := c.Rooms.Authorize(identity.APIKey, identity.ClientID, room); err != nil {
		return err
	}
	c.Registry.broadcaster.JoinGroup(connID, room)
	return nil
}

func (c *Core) LeaveRoom(connID, room string) {
	c.Registry.broadcaster.LeaveGroup(connID, room)
}

func nack(ack ports.Ack, msg string) {
	if ack != nil {
		ack(models.AckResult{Success: false, Error: msg})
	}
}
