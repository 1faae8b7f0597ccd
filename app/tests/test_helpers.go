package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"relaychat/internal/models"
)

// Emit is one recorded broadcast, either to a single connection
// (Conn set) or to a group (Group set).
type Emit struct {
	Conn         string
	Group        string
	Event        string
	Data         any
	ExceptConn   string
	ExceptClient string
}

// RecordingBroadcaster implements ports.Broadcaster for service tests: it
// records every join and emit instead of touching sockets.
type RecordingBroadcaster struct {
	mu    sync.Mutex
	Joins map[string]map[string]bool
	Emits []Emit
}

func NewRecordingBroadcaster() *RecordingBroadcaster {
	return &RecordingBroadcaster{Joins: make(map[string]map[string]bool)}
}

func (b *RecordingBroadcaster) JoinGroup(connID, group string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Joins[group] == nil {
		b.Joins[group] = make(map[string]bool)
	}
	b.Joins[group][connID] = true
}

func (b *RecordingBroadcaster) LeaveGroup(connID, group string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.Joins[group], connID)
}

func (b *RecordingBroadcaster) EmitToConn(connID, event string, data any) {
	b.record(Emit{Conn: connID, Event: event, Data: data})
}

func (b *RecordingBroadcaster) EmitToGroup(group, event string, data any) {
	b.record(Emit{Group: group, Event: event, Data: data})
}

func (b *RecordingBroadcaster) EmitToGroupExceptConn(group, event string, data any, exceptConnID string) {
	b.record(Emit{Group: group, Event: event, Data: data, ExceptConn: exceptConnID})
}

func (b *RecordingBroadcaster) EmitToGroupExceptClient(group, event string, data any, exceptClientID string) {
	b.record(Emit{Group: group, Event: event, Data: data, ExceptClient: exceptClientID})
}

func (b *RecordingBroadcaster) record(e Emit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Emits = append(b.Emits, e)
}

// EmitsFor returns the recorded emits carrying the given event name.
func (b *RecordingBroadcaster) EmitsFor(event string) []Emit {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Emit
	for _, e := range b.Emits {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// GroupMembers returns the connections currently joined to a group.
func (b *RecordingBroadcaster) GroupMembers(group string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for connID := range b.Joins[group] {
		out = append(out, connID)
	}
	return out
}

// Reset clears recorded emits, keeping group memberships.
func (b *RecordingBroadcaster) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Emits = nil
}

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) StoreClientKey(ctx context.Context, sessionID string, clientPublicKey []byte, ttl time.Duration) error {
	args := m.Called(ctx, sessionID, clientPublicKey, ttl)
	return args.Error(0)
}

func (m *MockSessionRepository) GetClientKey(ctx context.Context, sessionID string) ([]byte, bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockSessionRepository) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Append(ctx context.Context, n models.Notification, cap int) error {
	args := m.Called(ctx, n, cap)
	return args.Error(0)
}

func (m *MockNotificationRepository) Recent(ctx context.Context, limit int) ([]models.Notification, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *MockNotificationRepository) List(ctx context.Context, offset, limit int) ([]models.Notification, int, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).([]models.Notification), args.Int(1), args.Error(2)
}

func CreateTestRequest(url, method string, body interface{}) *http.Request {
	var buffer bytes.Buffer
	if body != nil {
		json.NewEncoder(&buffer).Encode(body)
	}

	req := httptest.NewRequest(method, url, &buffer)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func ExecuteHandler(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
