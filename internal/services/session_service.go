package services

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Finimen Sniper / FSC.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Finimen Sniper / FSC. All rights reserved.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/box"

	"relaychat/internal/models"
	"relaychat/internal/ports"
)

// SessionService backs the /auth and /keys endpoints. A session id is a
// signed JWT carrying the {clientId, apiKey} tuple so the websocket
// handshake can re-verify it without a store round-trip; the per-session
// client public key lives in the session repository under a TTL. The server
// box keypair is per deployment, generated at startup.
type SessionService struct {
	repo       ports.SessionRepository
	jwtKey     []byte
	sessionTTL time.Duration
	publicKey  *[32]byte
	privateKey *[32]byte
	logger     *slog.Logger
}

func NewSessionService(repo ports.SessionRepository, jwtKey []byte, sessionTTL time.Duration, logger *slog.Logger) (*SessionService, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("server keypair generation: %w", err)
	}

	return &SessionService{
		repo:       repo,
		jwtKey:     jwtKey,
		sessionTTL: sessionTTL,
		publicKey:  pub,
		privateKey: priv,
		logger:     logger,
	}, nil
}

// Authenticate issues a session for an upstream-verified identity pair and
// hands back the server public key for the key-exchange step.
func (s *SessionService) Authenticate(ctx context.Context, clientID, apiKey string) (string, string, error) {
	if clientID == "" || apiKey == "" {
		s.logger.Warn("authentication with missing credentials")
		return "", "", ErrAuthentication
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid":      uuid.New().String(),
		"clientId": clientID,
		"apiKey":   apiKey,
		"exp":      time.Now().Add(s.sessionTTL).Unix(),
	})

	sessionID, err := token.SignedString(s.jwtKey)
	if err != nil {
		s.logger.Error("session token signing failed", "error", err)
		return "", "", ErrAuthentication
	}

	s.logger.Info("session issued", "clientID", clientID)
	return sessionID, base64.StdEncoding.EncodeToString(s.publicKey[:]), nil
}

// RegisterClientKey completes the key exchange: it validates the session
// and stores the client's public key for the session's remaining life.
func (s *SessionService) RegisterClientKey(ctx context.Context, sessionID, clientPublicKey string) error {
	claims, err := s.parse(sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return err
		}
		return fmt.Errorf("%w: %s", ErrKeyExchange, err.Error())
	}

	key, err := base64.StdEncoding.DecodeString(clientPublicKey)
	if err != nil || len(key) != 32 {
		return fmt.Errorf("%w: client public key must be 32 bytes base64", ErrKeyExchange)
	}

	ttl := time.Until(claims.expiresAt)
	if ttl <= 0 {
		return ErrSessionExpired
	}

	if err := s.repo.StoreClientKey(ctx, sessionID, key, ttl); err != nil {
		s.logger.Error("client key store failed", "error", err)
		return fmt.Errorf("%w: %s", ErrKeyExchange, err.Error())
	}

	s.logger.Info("client key registered", "clientID", claims.clientID)
	return nil
}

// ValidateSession checks that the session token matches the connecting
// identity and has not expired. Returns the expiry so the transport can cut
// the connection off when the session lapses mid-stream.
func (s *SessionService) ValidateSession(sessionID string, identity models.ClientIdentity) (time.Time, error) {
	claims, err := s.parse(sessionID)
	if err != nil {
		return time.Time{}, err
	}
	if claims.clientID != identity.ClientID || claims.apiKey != identity.APIKey {
		return time.Time{}, fmt.Errorf("%w: session bound to a different identity", ErrAuthentication)
	}
	return claims.expiresAt, nil
}

// ClientKey fetches the exchanged client public key, when present.
func (s *SessionService) ClientKey(ctx context.Context, sessionID string) (*[32]byte, bool, error) {
	raw, ok, err := s.repo.GetClientKey(ctx, sessionID)
	if err != nil || !ok {
		return nil, false, err
	}
	if len(raw) != 32 {
		return nil, false, nil
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, true, nil
}

// Invalidate clears a session's key material (logout / re-authentication).
func (s *SessionService) Invalidate(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}

// ServerKeys exposes the deployment box keypair to the envelope layer.
func (s *SessionService) ServerKeys() (publicKey, privateKey *[32]byte) {
	return s.publicKey, s.privateKey
}

type sessionClaims struct {
	clientID  string
	apiKey    string
	expiresAt time.Time
}

func (s *SessionService) parse(sessionID string) (*sessionClaims, error) {
	if sessionID == "" {
		return nil, ErrAuthentication
	}

	token, err := jwt.Parse(sessionID, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrAuthentication, err.Error())
	}
	if !token.Valid {
		return nil, ErrAuthentication
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrAuthentication
	}

	clientID, _ := claims["clientId"].(string)
	apiKey, _ := claims["apiKey"].(string)
	exp, _ := claims["exp"].(float64)
	if clientID == "" || apiKey == "" || exp == 0 {
		return nil, ErrAuthentication
	}
	if time.Now().Unix() > int64(exp) {
		return nil, ErrSessionExpired
	}

	return &sessionClaims{
		clientID:  clientID,
		apiKey:    apiKey,
		expiresAt: time.Unix(int64(exp), 0),
	}, nil
}
