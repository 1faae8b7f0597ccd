package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"relaychat/internal/services"
)

// AuthHandler exposes the two-step connection setup: /auth binds an
// upstream-verified {clientId, apiKey} pair to a session and hands out the
// server public key, /keys completes the asymmetric key exchange.
type AuthHandler struct {
	service *services.SessionService
	logger  *slog.Logger
}

func NewAuthHandler(service *services.SessionService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: service, logger: logger}
}

func (a *AuthHandler) Authenticate(c *gin.Context) {
	var req struct {
		ClientID string `json:"clientId"`
		APIKey   string `json:"apiKey"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		a.logger.Warn("invalid auth input", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input format"})
		return
	}

	sessionID, serverPublicKey, err := a.service.Authenticate(c.Request.Context(), req.ClientID, req.APIKey)
	if err != nil {
		a.logger.Warn("authentication failed", "clientID", req.ClientID, "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":       sessionID,
		"serverPublicKey": serverPublicKey,
	})
}

func (a *AuthHandler) ExchangeKeys(c *gin.Context) {
	var req struct {
		SessionID       string `json:"sessionId"`
		ClientPublicKey string `json:"clientPublicKey"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		a.logger.Warn("invalid key exchange input", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input format"})
		return
	}

	if err := a.service.RegisterClientKey(c.Request.Context(), req.SessionID, req.ClientPublicKey); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrSessionExpired) || errors.Is(err, services.ErrAuthentication) {
			status = http.StatusUnauthorized
		}
		a.logger.Warn("key exchange failed", "error", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ack": true})
}

// Logout invalidates the session's key material.
func (a *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId"`
	}

	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input format"})
		return
	}

	if err := a.service.Invalidate(c.Request.Context(), req.SessionID); err != nil {
		a.logger.Error("session invalidation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ack": true})
}
