package services

import (
	"log/slog"
	"sync"
	"time"

	"relaychat/internal/models"
	"relaychat/internal/ports"
)

// MessageRouter validates sender authorization and fans chat events out to
// every connection of every room member. Delivery status is reconstructed
// from acknowledgements: the router never infers "delivered" from a
// transmit, only from a chat:delivered round-trip by the recipient. Dedup
// by messageId is the receiving client's job; each recipient connection is
// sent its own copy.
type MessageRouter struct {
	registry    *Registry
	rooms       *RoomManager
	broadcaster ports.Broadcaster
	logger      *slog.Logger

	mu          sync.RWMutex
	senders     map[string]senderEntry // messageId -> origin
	senderOrder []string               // messageIds, oldest first
	statusSubs  map[string]bool        // connIDs subscribed to chat:status
	delivered   func()                 // metrics hook, optional
}

// senderEntry records where a routed message came from so a later
// chat:delivered ack can be validated and relayed.
type senderEntry struct {
	clientID string
	roomID   string
}

// maxTrackedMessages bounds the sender table when recipients never
// acknowledge. Eviction is oldest first.
const maxTrackedMessages = 8192

func NewMessageRouter(registry *Registry, rooms *RoomManager, broadcaster ports.Broadcaster, logger *slog.Logger) *MessageRouter {
	return &MessageRouter{
		registry:    registry,
		rooms:       rooms,
		broadcaster: broadcaster,
		logger:      logger,
		senders:     make(map[string]senderEntry),
		statusSubs:  make(map[string]bool),
	}
}

// SetDeliveredHook installs a callback fired on every successful fan-out.
func (r *MessageRouter) SetDeliveredHook(hook func()) {
	r.delivered = hook
}

// SendPrivate routes a 1:1 message. The room is created implicitly when
// absent (target tenant-checked). The sender's own connections never
// receive the message back; the sender learns the outcome through the ack.
func (r *MessageRouter) SendPrivate(from models.ClientIdentity, req models.PrivateMessageRequest, ack ports.Ack) {
	if req.TargetID == "" || req.Message == "" {
		r.fail(ack, ErrValidation.Error())
		return
	}

	room, err := r.rooms.CreatePrivateRoom(from.APIKey, from.ClientID, req.TargetID)
	if err != nil {
		r.fail(ack, err.Error())
		return
	}

	msg := models.ChatMessage{
		MessageID: req.MessageID,
		RoomID:    room.ID,
		FromID:    from.ClientID,
		ToID:      req.TargetID,
		Message:   req.Message,
		Timestamp: time.Now(),
		MetaData:  req.MetaData,
	}
	if msg.MessageID == "" {
		msg.MessageID = models.NewMessageID()
	}

	r.rememberSender(msg.MessageID, from.ClientID, room.ID)

	r.broadcaster.EmitToGroupExceptClient(room.ID, models.EventChatMessage, msg, from.ClientID)

	if r.delivered != nil {
		r.delivered()
	}
	r.logger.Debug("private message routed",
		"roomID", room.ID,
		"from", from.ClientID,
		"messageID", msg.MessageID)

	if ack != nil {
		ack(models.AckResult{Success: true, MessageID: msg.MessageID, RoomID: room.ID})
	}
}

// SendToRoom routes a message into an existing private or group room after
// the membership check. Group semantics allow the sender's other sockets to
// receive the copy.
func (r *MessageRouter) SendToRoom(from models.ClientIdentity, req models.RoomMessageRequest, ack ports.Ack) {
	if req.RoomID == "" || req.Message == "" {
		r.fail(ack, ErrValidation.Error())
		return
	}

	room, err := r.rooms.Authorize(from.APIKey, from.ClientID, req.RoomID)
	if err != nil {
		r.fail(ack, err.Error())
		return
	}

	messageID := req.MessageID
	if messageID == "" {
		messageID = models.NewMessageID()
	}
	r.rememberSender(messageID, from.ClientID, room.ID)

	r.broadcaster.EmitToGroup(room.ID, models.EventNewMessage, models.NewMessageEvent{
		RoomID:    room.ID,
		MessageID: messageID,
		Message:   req.Message,
		SenderID:  from.ClientID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})

	if r.delivered != nil {
		r.delivered()
	}

	if ack != nil {
		ack(models.AckResult{Success: true, MessageID: messageID, RoomID: room.ID})
	}
}

// Delivered relays a recipient's chat:delivered acknowledgement back to
// every connection of the original sender, plus chat:status to sockets
// subscribed to status updates. Only a member of the message's room other
// than the sender can trigger the relay; acks from anyone else are dropped
// without consuming the sender entry.
func (r *MessageRouter) Delivered(acker models.ClientIdentity, messageID string) {
	r.mu.RLock()
	entry, ok := r.senders[messageID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	if acker.ClientID == entry.clientID {
		return
	}
	if _, err := r.rooms.Authorize(acker.APIKey, acker.ClientID, entry.roomID); err != nil {
		r.logger.Warn("delivery ack rejected",
			"messageID", messageID,
			"clientID", acker.ClientID,
			"error", err)
		return
	}

	payload := models.DeliveredRequest{MessageID: messageID}
	status := models.ChatStatusEvent{MessageID: messageID, Status: models.DeliveryDelivered}

	for _, connID := range r.registry.Connections(entry.clientID) {
		r.broadcaster.EmitToConn(connID, models.EventChatDelivered, payload)
		r.mu.RLock()
		subscribed := r.statusSubs[connID]
		r.mu.RUnlock()
		if subscribed {
			r.broadcaster.EmitToConn(connID, models.EventChatStatus, status)
		}
	}

	r.mu.Lock()
	delete(r.senders, messageID)
	r.mu.Unlock()
}

// SubscribeStatus opts a connection into chat:status delivery receipts.
func (r *MessageRouter) SubscribeStatus(connID string) {
	r.mu.Lock()
	r.statusSubs[connID] = true
	r.mu.Unlock()
}

// ConnectionClosed drops per-connection router state.
func (r *MessageRouter) ConnectionClosed(connID string) {
	r.mu.Lock()
	delete(r.statusSubs, connID)
	r.mu.Unlock()
}

func (r *MessageRouter) rememberSender(messageID, clientID, roomID string) {
	r.mu.Lock()
	if _, known := r.senders[messageID]; !known {
		r.senderOrder = append(r.senderOrder, messageID)
	}
	r.senders[messageID] = senderEntry{clientID: clientID, roomID: roomID}
	// Consumed entries linger in senderOrder until eviction sweeps past
	// them, so the loop trims on the live map size.
	for len(r.senders) > maxTrackedMessages && len(r.senderOrder) > 0 {
		oldest := r.senderOrder[0]
		r.senderOrder = r.senderOrder[1:]
		delete(r.senders, oldest)
	}
	r.mu.Unlock()
}

func (r *MessageRouter) fail(ack ports.Ack, msg string) {
	if ack != nil {
		ack(models.AckResult{Success: false, Error: msg})
	}
}
