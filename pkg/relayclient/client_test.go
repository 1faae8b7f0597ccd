package relayclient

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Finimen Sniper / FSC.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Finimen Sniper / FSC. All rights reserved.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/nacl/box"
)

func newTestClient(baseURL string) *Client {
	return New(Config{
		BaseURL:  baseURL,
		ClientID: "alice",
		APIKey:   "k1",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// relayStub fakes the /api/auth and /api/keys endpoints.
func relayStub(t *testing.T) (*httptest.Server, *[32]byte) {
	t.Helper()
	serverPub, _, err := box.GenerateKey(rand.Reader)
	assert.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ClientID string `json:"clientId"`
			APIKey   string `json:"apiKey"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.ClientID == "" || req.APIKey == "" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid or missing credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"sessionId":       "session-token",
			"serverPublicKey": base64.StdEncoding.EncodeToString(serverPub[:]),
		})
	})
	mux.HandleFunc("/api/keys", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SessionID       string `json:"sessionId"`
			ClientPublicKey string `json:"clientPublicKey"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		key, err := base64.StdEncoding.DecodeString(req.ClientPublicKey)
		if req.SessionID == "" || err != nil || len(key) != 32 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "bad key"})
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"ack": true})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, serverPub
}

func TestAuthenticateCompletesKeyExchange(t *testing.T) {
	server, _ := relayStub(t)
	client := newTestClient(server.URL)

	state, _ := client.State()
	assert.Equal(t, StateIdle, state)

	err := client.Authenticate(context.Background())
	assert.NoError(t, err)

	state, lastErr := client.State()
	assert.Equal(t, StateReadyForSocket, state)
	assert.NoError(t, lastErr)
}

func TestAuthenticateRejectedCredentials(t *testing.T) {
	server, _ := relayStub(t)
	client := New(Config{
		BaseURL: server.URL,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	err := client.Authenticate(context.Background())

	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "invalid or missing credentials")

	state, lastErr := client.State()
	assert.Equal(t, StateError, state)
	assert.Error(t, lastErr)
}

func TestAuthenticateRejectsBadServerKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"sessionId":       "session-token",
			"serverPublicKey": "not-a-key",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	err := newTestClient(server.URL).Authenticate(context.Background())

	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAuthenticateKeyExchangeFailure(t *testing.T) {
	serverPub, _, _ := box.GenerateKey(rand.Reader)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"sessionId":       "session-token",
			"serverPublicKey": base64.StdEncoding.EncodeToString(serverPub[:]),
		})
	})
	mux.HandleFunc("/api/keys", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	err := newTestClient(server.URL).Authenticate(context.Background())

	assert.ErrorIs(t, err, ErrKeyExchange)
}

func TestEmitRequiresConnection(t *testing.T) {
	client := newTestClient("http://localhost:0")

	err := client.Emit("presence:update", map[string]string{"status": "online"})

	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectRequiresAuthentication(t *testing.T) {
	client := newTestClient("http://localhost:0")

	err := client.Connect(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "idle")
}

func TestWebsocketURL(t *testing.T) {
	testCases := []struct {
		name    string
		baseURL string
		want    string
	}{
		{"http to ws", "http://relay.local:8080", "ws://relay.local:8080/api/ws"},
		{"https to wss", "https://relay.local", "wss://relay.local/api/ws"},
		{"trailing slash", "http://relay.local/", "ws://relay.local/api/ws"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(tc.baseURL)

			got, err := client.websocketURL("s1")
			assert.NoError(t, err)
			assert.Contains(t, got, tc.want+"?")
			assert.Contains(t, got, "clientId=alice")
			assert.Contains(t, got, "apiKey=k1")
			assert.Contains(t, got, "sessionId=s1")
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "ready_for_socket", StateReadyForSocket.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "error", StateError.String())
}
