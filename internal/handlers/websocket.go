package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	libWebsocket "github.com/gorilla/websocket"

	"relaychat/internal/models"
	"relaychat/internal/services"
	internalWebsocket "relaychat/internal/websocet"
)

type WebsocetHandler struct {
	Hub            *internalWebsocket.Hub
	SessionService *services.SessionService
	Logger         *slog.Logger

	sendBuffer int
	upgrader   libWebsocket.Upgrader
}

func NewWebSocketHandler(hub *internalWebsocket.Hub, sessionService *services.SessionService, allowedOrigins []string, sendBuffer int, logger *slog.Logger) *WebsocetHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	allowAll := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	if sendBuffer <= 0 {
		sendBuffer = 256
	}

	return &WebsocetHandler{
		Hub:            hub,
		SessionService: sessionService,
		Logger:         logger,
		sendBuffer:     sendBuffer,
		upgrader: libWebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
	}
}

// HandleWebSocket upgrades the connection after validating the handshake
// credentials {clientId, apiKey, sessionId}. A session with an exchanged
// client key gets a sealed channel; otherwise the socket runs plaintext
// named events until the client completes the exchange and reconnects.
func (h *WebsocetHandler) HandleWebSocket(c *gin.Context) {
	identity := models.ClientIdentity{
		ClientID: c.Query("clientId"),
		APIKey:   c.Query("apiKey"),
	}
	if identity.ClientID == "" || identity.APIKey == "" {
		h.Logger.Warn("websocket handshake missing credentials")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "clientId and apiKey are required"})
		return
	}

	sessionID := c.Query("sessionId")
	expiry, err := h.SessionService.ValidateSession(sessionID, identity)
	if err != nil {
		h.Logger.Warn("websocket handshake rejected", "clientID", identity.ClientID, "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var sealer *internalWebsocket.SealedChannel
	clientKey, ok, err := h.SessionService.ClientKey(c.Request.Context(), sessionID)
	if err != nil {
		h.Logger.Error("client key lookup failed", "error", err)
	}
	if ok {
		_, serverPriv := h.SessionService.ServerKeys()
		sealer = internalWebsocket.NewSealedChannel(clientKey, serverPriv)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &internalWebsocket.Client{
		Hub:           h.Hub,
		Conn:          conn,
		Send:          make(chan internalWebsocket.Frame, h.sendBuffer),
		ID:            uuid.New().String(),
		ClientID:      identity.ClientID,
		APIKey:        identity.APIKey,
		Sealer:        sealer,
		SessionExpiry: expiry,
	}

	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	h.Logger.Info("websocket connection established",
		"connID", client.ID,
		"clientID", identity.ClientID,
		"encrypted", sealer != nil)
}
