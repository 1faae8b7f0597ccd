package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"relaychat/internal/models"
)

// dialPumpedClient serves one real socket through the hub with both pumps
// running, so frame ordering and teardown behave as in production.
func dialPumpedClient(t *testing.T, hub *Hub, expiry time.Time) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &Client{
			Hub:           hub,
			Conn:          conn,
			Send:          make(chan Frame, 16),
			ID:            "c-wire",
			ClientID:      "alice",
			APIKey:        "k1",
			SessionExpiry: expiry,
		}
		hub.Register <- client
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	assert.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestExpiredSessionNoticeReachesTheWire(t *testing.T) {
	hub, core := startHub(t)
	conn := dialPumpedClient(t, hub, time.Now().Add(-time.Minute))

	select {
	case <-core.registered:
	case <-time.After(time.Second):
		t.Fatal("registration did not reach the core")
	}

	// Expiry is only noticed on the next inbound frame.
	payload, err := EncodeEnvelope(models.EventGetRooms, nil)
	assert.NoError(t, err)
	assert.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, frame, err := conn.ReadMessage()
	assert.NoError(t, err)

	env, err := DecodeEnvelope(frame)
	assert.NoError(t, err)
	assert.Equal(t, models.EventSessionExpired, env.Event)

	var notice models.SessionExpiredEvent
	assert.NoError(t, json.Unmarshal(env.Data, &notice))
	assert.NotEmpty(t, notice.Reason)

	// After the notice the server shuts the socket down.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	select {
	case <-core.unregistered:
	case <-time.After(time.Second):
		t.Fatal("unregister did not reach the core")
	}
}
