package relayclient

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Finimen Sniper / FSC.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Finimen Sniper / FSC. All rights reserved.

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/nacl/box"

	"relaychat/internal/models"
	internalWebsocket "relaychat/internal/websocet"
)

// Connection state machine. Error is reachable from every state; a failed
// flow is abandoned and requires a fresh Authenticate call, retry policy
// belongs to the caller (or the reconnect loop, which is bounded by
// config, not hard-coded).
type State int32

const (
	StateIdle State = iota
	StateAuthenticating
	StateExchangingKeys
	StateReadyForSocket
	StateConnectingSocket
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateExchangingKeys:
		return "exchanging_keys"
	case StateReadyForSocket:
		return "ready_for_socket"
	case StateConnectingSocket:
		return "connecting_socket"
	case StateConnected:
		return "connected"
	default:
		return "error"
	}
}

var (
	ErrNotConnected   = errors.New("relayclient: not connected")
	ErrSessionExpired = errors.New("relayclient: session expired, re-authentication in progress")
	ErrAckTimeout     = errors.New("relayclient: acknowledgement timed out")
	ErrAuthFailed     = errors.New("relayclient: authentication failed")
	ErrKeyExchange    = errors.New("relayclient: key exchange failed")
)

type Config struct {
	BaseURL  string
	ClientID string
	APIKey   string

	RequestTimeout time.Duration
	AckTimeout     time.Duration

	// Reconnect policy: capped exponential backoff. MaxAttempts 0 means
	// unbounded retries.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	ReconnectAttempts  int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c *Config) fillDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.RequestTimeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Handler consumes one named event's raw payload.
type Handler func(data json.RawMessage)

// Client runs the full connection flow against a relay: authenticate,
// exchange keys, open the encrypted websocket, dispatch inbound events,
// track delivery status, dedup inbound messages, reconnect with backoff.
type Client struct {
	cfg Config

	mu        sync.RWMutex
	state     State
	lastErr   error
	reauthing bool

	sessionID       string
	serverPublicKey *[32]byte
	publicKey       *[32]byte
	privateKey      *[32]byte
	sealer          *internalWebsocket.SealedChannel

	conn    *websocket.Conn
	writeMu sync.Mutex

	handlers   map[string][]Handler
	handlersMu sync.RWMutex

	acks   map[string]chan models.AckResult
	acksMu sync.Mutex

	Status *DeliveryTracker
	dedup  *dedupWindow

	closed chan struct{}
	once   sync.Once
}

func New(cfg Config) *Client {
	cfg.fillDefaults()
	return &Client{
		cfg:      cfg,
		state:    StateIdle,
		handlers: make(map[string][]Handler),
		acks:     make(map[string]chan models.AckResult),
		Status:   NewDeliveryTracker(),
		dedup:    newDedupWindow(512),
		closed:   make(chan struct{}),
	}
}

// State returns the current connection state and the error that put the
// client into StateError, if any.
func (c *Client) State() (State, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.lastErr
}

// Authenticate runs /auth then /keys. On success the client holds the full
// key material and is ready to open the socket.
func (c *Client) Authenticate(ctx context.Context) error {
	c.setState(StateAuthenticating, nil)

	var authResp struct {
		SessionID       string `json:"sessionId"`
		ServerPublicKey string `json:"serverPublicKey"`
	}
	err := c.postJSON(ctx, "/api/auth", map[string]string{
		"clientId": c.cfg.ClientID,
		"apiKey":   c.cfg.APIKey,
	}, &authResp)
	if err != nil {
		wrapped := fmt.Errorf("%w: %s", ErrAuthFailed, err.Error())
		c.setState(StateError, wrapped)
		return wrapped
	}

	serverKey, err := base64.StdEncoding.DecodeString(authResp.ServerPublicKey)
	if err != nil || len(serverKey) != 32 {
		wrapped := fmt.Errorf("%w: bad server public key", ErrAuthFailed)
		c.setState(StateError, wrapped)
		return wrapped
	}

	c.setState(StateExchangingKeys, nil)

	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		wrapped := fmt.Errorf("%w: %s", ErrKeyExchange, err.Error())
		c.setState(StateError, wrapped)
		return wrapped
	}

	err = c.postJSON(ctx, "/api/keys", map[string]string{
		"sessionId":       authResp.SessionID,
		"clientPublicKey": base64.StdEncoding.EncodeToString(pub[:]),
	}, nil)
	if err != nil {
		wrapped := fmt.Errorf("%w: %s", ErrKeyExchange, err.Error())
		c.setState(StateError, wrapped)
		return wrapped
	}

	var serverPub [32]byte
	copy(serverPub[:], serverKey)

	c.mu.Lock()
	c.sessionID = authResp.SessionID
	c.serverPublicKey = &serverPub
	c.publicKey = pub
	c.privateKey = priv
	c.sealer = internalWebsocket.NewSealedChannel(&serverPub, priv)
	c.state = StateReadyForSocket
	c.lastErr = nil
	c.reauthing = false
	c.mu.Unlock()

	c.cfg.Logger.Info("relayclient authenticated", "clientID", c.cfg.ClientID)
	return nil
}

// Connect dials the websocket with the handshake credentials and starts
// the read loop. Requires a completed Authenticate.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	ready := c.state == StateReadyForSocket
	sessionID := c.sessionID
	c.mu.RUnlock()
	if !ready {
		return fmt.Errorf("relayclient: connect from state %s", c.mustState())
	}

	c.setState(StateConnectingSocket, nil)

	wsURL, err := c.websocketURL(sessionID)
	if err != nil {
		c.setState(StateError, err)
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		wrapped := fmt.Errorf("relayclient: dial: %w", err)
		c.setState(StateError, wrapped)
		return wrapped
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.lastErr = nil
	c.mu.Unlock()

	go c.readLoop(conn)

	c.cfg.Logger.Info("relayclient connected", "clientID", c.cfg.ClientID)
	return nil
}

// On registers a handler for a named event. Handlers run on the read loop;
// they must not block.
func (c *Client) On(event string, handler Handler) {
	c.handlersMu.Lock()
	c.handlers[event] = append(c.handlers[event], handler)
	c.handlersMu.Unlock()
}

// Emit sends one event without waiting for an acknowledgement. Sends
// during re-authentication fail fast with ErrSessionExpired instead of
// blocking.
func (c *Client) Emit(event string, data any) error {
	return c.send(models.Envelope{Event: event, Data: mustRaw(data)})
}

// EmitWithAck sends one event carrying an ack id and waits for the result.
func (c *Client) EmitWithAck(ctx context.Context, event string, data any) (models.AckResult, error) {
	ackID := uuid.New().String()
	ch := make(chan models.AckResult, 1)

	c.acksMu.Lock()
	c.acks[ackID] = ch
	c.acksMu.Unlock()
	defer func() {
		c.acksMu.Lock()
		delete(c.acks, ackID)
		c.acksMu.Unlock()
	}()

	if err := c.send(models.Envelope{Event: event, Data: mustRaw(data), AckID: ackID}); err != nil {
		return models.AckResult{}, err
	}

	select {
	case res := <-ch:
		return res, nil
	case <-time.After(c.cfg.AckTimeout):
		return models.AckResult{}, ErrAckTimeout
	case <-ctx.Done():
		return models.AckResult{}, ctx.Err()
	}
}

// SendPrivate sends a 1:1 message and tracks its delivery status. The
// returned message id is the idempotency key for the whole lifecycle.
func (c *Client) SendPrivate(ctx context.Context, targetID, message string, metaData map[string]any) (string, error) {
	messageID := models.NewMessageID()
	c.Status.MarkPending(messageID)

	res, err := c.EmitWithAck(ctx, models.EventChatPrivate, models.PrivateMessageRequest{
		TargetID:  targetID,
		MessageID: messageID,
		Message:   message,
		MetaData:  metaData,
	})
	if err != nil {
		c.Status.MarkError(messageID)
		return messageID, err
	}
	if !res.Success {
		c.Status.MarkError(messageID)
		return messageID, errors.New(res.Error)
	}

	c.Status.MarkSent(messageID)
	return messageID, nil
}

// UpdatePresence publishes a status change; the relay echoes it back to
// this client's own sockets as well.
func (c *Client) UpdatePresence(status, customMessage string) error {
	return c.Emit(models.EventPresenceUpdate, models.PresenceUpdateRequest{
		Status:        status,
		CustomMessage: customMessage,
	})
}

// JoinNotifications joins the well-known notifications room; the relay
// replays the recent history on join.
func (c *Client) JoinNotifications() error {
	return c.Emit(models.EventJoin, models.JoinRequest{Room: "notifications"})
}

// Close tears the client down permanently; no reconnect attempts follow.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.closed) })
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateIdle
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) send(env models.Envelope) error {
	c.mu.RLock()
	state := c.state
	reauthing := c.reauthing
	conn := c.conn
	sealer := c.sealer
	c.mu.RUnlock()

	if reauthing {
		return ErrSessionExpired
	}
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	plain, err := json.Marshal(env)
	if err != nil {
		return err
	}

	messageType := websocket.TextMessage
	payload := plain
	if sealer != nil {
		if payload, err = sealer.Seal(plain); err != nil {
			return err
		}
		messageType = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(messageType, payload)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			c.mu.RLock()
			reauthing := c.reauthing
			c.mu.RUnlock()
			if reauthing {
				// reauthenticate closed this socket and owns the retry loop.
				return
			}
			c.cfg.Logger.Warn("relayclient read failed, reconnecting", "error", err)
			c.reconnect()
			return
		}

		if messageType == websocket.BinaryMessage {
			c.mu.RLock()
			sealer := c.sealer
			c.mu.RUnlock()
			if sealer == nil {
				continue
			}
			payload, err = sealer.Open(payload)
			if err != nil {
				// Transient key mismatch during reconnection; drop the
				// frame and carry on.
				c.cfg.Logger.Warn("relayclient frame decryption failed, dropped", "error", err)
				continue
			}
		}

		var env models.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.cfg.Logger.Warn("relayclient malformed envelope, dropped", "error", err)
			continue
		}

		c.handleEvent(env)
	}
}

func (c *Client) handleEvent(env models.Envelope) {
	switch env.Event {
	case models.EventAck:
		var res models.AckResult
		if json.Unmarshal(env.Data, &res) == nil {
			c.acksMu.Lock()
			ch, ok := c.acks[res.AckID]
			c.acksMu.Unlock()
			if ok {
				ch <- res
			}
		}
		return

	case models.EventChatMessage:
		var msg models.ChatMessage
		if json.Unmarshal(env.Data, &msg) != nil {
			return
		}
		if c.dedup.Seen(msg.MessageID) {
			return
		}
		// At-least-once delivery: acknowledge receipt so the sender's
		// status can move to delivered.
		c.Emit(models.EventChatDelivered, models.DeliveredRequest{MessageID: msg.MessageID})

	case models.EventChatDelivered:
		var req models.DeliveredRequest
		if json.Unmarshal(env.Data, &req) == nil {
			c.Status.MarkDelivered(req.MessageID)
		}

	case models.EventSessionExpired:
		go c.reauthenticate()
		return
	}

	c.handlersMu.RLock()
	handlers := c.handlers[env.Event]
	c.handlersMu.RUnlock()
	for _, handler := range handlers {
		handler(env.Data)
	}
}

// reauthenticate clears the stored session and key material and re-runs
// the authenticate -> exchange-keys -> connect sequence. Sends issued in
// this window fail fast with ErrSessionExpired.
func (c *Client) reauthenticate() {
	c.mu.Lock()
	if c.reauthing {
		c.mu.Unlock()
		return
	}
	c.reauthing = true
	c.sessionID = ""
	c.sealer = nil
	c.serverPublicKey = nil
	c.publicKey = nil
	c.privateKey = nil
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	c.reconnect()
}

// reconnect retries the full flow with capped exponential backoff until it
// succeeds, the attempt budget runs out, or the client is closed.
func (c *Client) reconnect() {
	delay := c.cfg.ReconnectBaseDelay

	for attempt := 1; ; attempt++ {
		if c.cfg.ReconnectAttempts > 0 && attempt > c.cfg.ReconnectAttempts {
			c.setState(StateError, fmt.Errorf("relayclient: gave up after %d reconnect attempts", c.cfg.ReconnectAttempts))
			return
		}

		select {
		case <-c.closed:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		err := c.Authenticate(ctx)
		if err == nil {
			err = c.Connect(ctx)
		}
		cancel()

		if err == nil {
			c.cfg.Logger.Info("relayclient reconnected", "attempt", attempt)
			return
		}

		c.cfg.Logger.Warn("relayclient reconnect failed", "attempt", attempt, "error", err)
		delay *= 2
		if delay > c.cfg.ReconnectMaxDelay {
			delay = c.cfg.ReconnectMaxDelay
		}
	}
}

func (c *Client) postJSON(ctx context.Context, path string, body any, into any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if into == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

func (c *Client) websocketURL(sessionID string) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws"

	q := u.Query()
	q.Set("clientId", c.cfg.ClientID)
	q.Set("apiKey", c.cfg.APIKey)
	q.Set("sessionId", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	c.state = state
	if err != nil {
		c.lastErr = err
	}
	c.mu.Unlock()
}

func (c *Client) mustState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func mustRaw(data any) json.RawMessage {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return raw
}
