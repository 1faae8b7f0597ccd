package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	mocks "relaychat/app/tests"
	"relaychat/internal/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	service, err := services.NewSessionService(services.NewMemorySessionStore(), []byte("test-secret"), time.Hour, testLogger())
	assert.NoError(t, err)
	handler := NewAuthHandler(service, testLogger())

	router := gin.New()
	router.POST("/api/auth", handler.Authenticate)
	router.POST("/api/keys", handler.ExchangeKeys)
	router.POST("/api/logout", handler.Logout)
	return router
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestAuthenticateEndpoint(t *testing.T) {
	router := newAuthRouter(t)

	rr := mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/auth", http.MethodPost,
		map[string]string{"clientId": "alice", "apiKey": "k1"}))

	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.NotEmpty(t, body["sessionId"])

	serverKey, err := base64.StdEncoding.DecodeString(body["serverPublicKey"].(string))
	assert.NoError(t, err)
	assert.Len(t, serverKey, 32)
}

func TestAuthenticateEndpointRejectsMissingCredentials(t *testing.T) {
	router := newAuthRouter(t)

	rr := mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/auth", http.MethodPost,
		map[string]string{"clientId": "alice"}))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestKeyExchangeEndpoint(t *testing.T) {
	router := newAuthRouter(t)

	rr := mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/auth", http.MethodPost,
		map[string]string{"clientId": "alice", "apiKey": "k1"}))
	sessionID := decodeBody(t, rr)["sessionId"].(string)

	rr = mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/keys", http.MethodPost, map[string]string{
		"sessionId":       sessionID,
		"clientPublicKey": base64.StdEncoding.EncodeToString(make([]byte, 32)),
	}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeBody(t, rr)["ack"])
}

func TestKeyExchangeEndpointStatusCodes(t *testing.T) {
	router := newAuthRouter(t)

	rr := mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/keys", http.MethodPost, map[string]string{
		"sessionId":       "not-a-session",
		"clientPublicKey": base64.StdEncoding.EncodeToString(make([]byte, 32)),
	}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/keys", http.MethodPost,
		map[string]string{"sessionId": "", "clientPublicKey": "zz"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// An expired but well-formed session is an authentication problem.
	expired, err := services.NewSessionService(services.NewMemorySessionStore(), []byte("test-secret"), -time.Minute, testLogger())
	assert.NoError(t, err)
	sessionID, _, err := expired.Authenticate(context.Background(), "alice", "k1")
	assert.NoError(t, err)

	expiredRouter := gin.New()
	expiredRouter.POST("/api/keys", NewAuthHandler(expired, testLogger()).ExchangeKeys)
	rr = mocks.ExecuteHandler(expiredRouter, mocks.CreateTestRequest("/api/keys", http.MethodPost, map[string]string{
		"sessionId":       sessionID,
		"clientPublicKey": base64.StdEncoding.EncodeToString(make([]byte, 32)),
	}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	router := newAuthRouter(t)

	rr := mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/logout", http.MethodPost,
		map[string]string{"sessionId": "some-session"}))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/logout", http.MethodPost,
		map[string]string{}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func newNotificationRouter() (*gin.Engine, *mocks.RecordingBroadcaster) {
	gin.SetMode(gin.TestMode)

	broadcaster := mocks.NewRecordingBroadcaster()
	service := services.NewNotificationService(services.NewMemoryNotificationStore(), broadcaster, 100, testLogger())
	handler := NewNotificationHandler(service, testLogger())

	router := gin.New()
	router.POST("/api/notifications", handler.Create)
	router.GET("/api/notifications", handler.List)
	return router, broadcaster
}

func TestCreateNotificationEndpoint(t *testing.T) {
	router, broadcaster := newNotificationRouter()

	rr := mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/notifications", http.MethodPost,
		map[string]any{"type": "success", "message": "deploy finished"}))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.NotEmpty(t, decodeBody(t, rr)["id"])
	assert.Len(t, broadcaster.EmitsFor("notification"), 1)
}

func TestCreateNotificationEndpointValidation(t *testing.T) {
	router, _ := newNotificationRouter()

	rr := mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/notifications", http.MethodPost,
		map[string]any{"type": "warning"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/notifications", http.MethodPost,
		map[string]any{"type": "bogus", "message": "x"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListNotificationsEndpoint(t *testing.T) {
	router, _ := newNotificationRouter()
	for i := 0; i < 3; i++ {
		mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/notifications", http.MethodPost,
			map[string]any{"message": "n"}))
	}

	rr := mocks.ExecuteHandler(router, mocks.CreateTestRequest("/api/notifications?limit=2", http.MethodGet, nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, float64(3), body["total"])
	assert.Len(t, body["notifications"], 2)
}
