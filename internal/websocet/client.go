package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"relaychat/internal/models"
)

type Frame struct {
	messageType int
	payload     []byte
}

// Client is one live transport session bound to exactly one identity. Many
// Clients may share a ClientID (multiple devices/tabs). A non-nil Sealer
// means the key exchange completed and all traffic on this socket is
// boxed into binary frames.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan Frame

	ID       string
	ClientID string
	APIKey   string

	Sealer        *SealedChannel
	SessionExpiry time.Time

	sendMu     sync.Mutex
	sendClosed bool
}

// closeSend shuts the outbound queue exactly once. WritePump drains what
// is already buffered, writes a close frame, and closes the socket.
// Callers racing enqueue are serialized by sendMu so nothing is ever sent
// on a closed channel.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.Send)
	}
	c.sendMu.Unlock()
}

// enqueue serializes, optionally seals, and queues one event for this
// socket. A full send buffer marks the connection as slow and drops it.
func (c *Client) enqueue(event string, data any) {
	plain, err := EncodeEnvelope(event, data)
	if err != nil {
		c.Hub.logger.Error("envelope encode failed", "event", event, "error", err)
		return
	}

	out := Frame{messageType: websocket.TextMessage, payload: plain}
	if c.Sealer != nil {
		sealed, err := c.Sealer.Seal(plain)
		if err != nil {
			c.Hub.logger.Error("envelope seal failed", "event", event, "error", err)
			return
		}
		out = Frame{messageType: websocket.BinaryMessage, payload: sealed}
	}

	c.sendMu.Lock()
	if c.sendClosed {
		c.sendMu.Unlock()
		return
	}
	select {
	case c.Send <- out:
		c.sendMu.Unlock()
	default:
		c.sendMu.Unlock()
		c.Hub.dropSlow(c)
	}
}

func (c *Client) enqueueAck(res models.AckResult) {
	c.enqueue(models.EventAck, res)
}

// sessionExpired reports whether the bound session lapsed mid-connection.
func (c *Client) sessionExpired() bool {
	return !c.SessionExpiry.IsZero() && time.Now().After(c.SessionExpiry)
}

// ReadPump never closes the socket itself. Unregistering closes the Send
// queue, WritePump flushes whatever is buffered (a session:expired notice
// included) and only then closes the connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
	}()

	for {
		messageType, payload, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("websocket read error", "connID", c.ID, "error", err)
			}
			break
		}

		if c.sessionExpired() {
			c.enqueue(models.EventSessionExpired, models.SessionExpiredEvent{Reason: "session expired, re-authenticate"})
			break
		}

		if messageType == websocket.BinaryMessage {
			if c.Sealer == nil {
				c.Hub.logger.Warn("binary frame on plaintext connection, dropped", "connID", c.ID)
				continue
			}
			payload, err = c.Sealer.Open(payload)
			if err != nil {
				c.Hub.noteDecryptFailure(c.ID, err)
				continue
			}
		}

		env, err := DecodeEnvelope(payload)
		if err != nil {
			c.Hub.logger.Warn("malformed envelope, dropped", "connID", c.ID, "error", err)
			continue
		}

		c.dispatch(env)
	}
}

func (c *Client) WritePump() {
	defer func() {
		c.Conn.Close()
	}()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(message.messageType, message.payload); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
