package websocket

import (
	"context"
	"encoding/json"

	"relaychat/internal/models"
	"relaychat/internal/ports"
)

// dispatch routes one decoded envelope into the relay core. The same table
// serves plain and decrypted traffic; encrypted frames were unwrapped
// before reaching here. Request-scoped failures travel back through the
// ack (when the client asked for one) or a chat:error event, never to
// anyone but the sender.
func (c *Client) dispatch(env models.Envelope) {
	ack := c.ackFor(env)

	switch env.Event {
	case models.EventPresenceUpdate:
		var req models.PresenceUpdateRequest
		if !c.parse(env, &req) {
			return
		}
		if err := c.Hub.core.UpdatePresence(c.ID, req.Status, req.CustomMessage); err != nil {
			c.enqueue(models.EventChatError, models.ChatErrorEvent{Message: err.Error()})
		}

	case models.EventChatPrivate:
		var req models.PrivateMessageRequest
		if !c.parse(env, &req) {
			return
		}
		c.Hub.core.SendPrivate(c.ID, req, ack)

	case models.EventChatDelivered:
		var req models.DeliveredRequest
		if !c.parse(env, &req) {
			return
		}
		c.Hub.core.Delivered(c.ID, req.MessageID)

	case models.EventProfileUpdate:
		var req models.ProfileUpdateRequest
		if !c.parse(env, &req) {
			return
		}
		if err := c.Hub.core.ProfileUpdate(c.ID, req.Data); err != nil {
			c.enqueue(models.EventChatError, models.ChatErrorEvent{Message: err.Error()})
		}

	case models.EventSubscribeStatus:
		c.Hub.core.SubscribeStatus(c.ID)

	case models.EventCreatePrivateChat:
		var req models.CreatePrivateChatRequest
		if !c.parse(env, &req) {
			return
		}
		c.Hub.core.CreatePrivateRoom(c.ID, req.TargetClientID, ack)

	case models.EventCreateGroupChat:
		var req models.CreateGroupChatRequest
		if !c.parse(env, &req) {
			return
		}
		c.Hub.core.CreateGroupRoom(c.ID, req.Name, req.Members, ack)

	case models.EventGetRooms:
		c.Hub.core.ListRooms(c.ID)

	case models.EventSendMessage:
		var req models.RoomMessageRequest
		if !c.parse(env, &req) {
			return
		}
		c.Hub.core.SendToRoom(c.ID, req, ack)

	case models.EventJoin:
		var req models.JoinRequest
		if !c.parse(env, &req) {
			return
		}
		if err := c.Hub.core.JoinRoom(context.Background(), c.ID, req.Room); err != nil {
			c.enqueue(models.EventChatError, models.ChatErrorEvent{Message: err.Error()})
		}

	case models.EventLeave:
		var req models.JoinRequest
		if !c.parse(env, &req) {
			return
		}
		c.Hub.core.LeaveRoom(c.ID, req.Room)

	case models.EventUnregisterClient:
		c.Hub.Detach(c.ID)

	default:
		c.Hub.logger.Warn("unknown event, dropped", "event", env.Event, "connID", c.ID)
	}
}

func (c *Client) parse(env models.Envelope, into any) bool {
	if len(env.Data) == 0 {
		c.enqueue(models.EventChatError, models.ChatErrorEvent{Message: "missing payload for " + env.Event})
		return false
	}
	if err := json.Unmarshal(env.Data, into); err != nil {
		c.Hub.logger.Warn("malformed payload", "event", env.Event, "connID", c.ID, "error", err)
		c.enqueue(models.EventChatError, models.ChatErrorEvent{Message: "malformed payload for " + env.Event})
		return false
	}
	return true
}

func (c *Client) ackFor(env models.Envelope) ports.Ack {
	if env.AckID == "" {
		return func(res models.AckResult) {
			if !res.Success {
				c.enqueue(models.EventChatError, models.ChatErrorEvent{Message: res.Error})
			}
		}
	}
	ackID := env.AckID
	return func(res models.AckResult) {
		res.AckID = ackID
		c.enqueueAck(res)
	}
}
