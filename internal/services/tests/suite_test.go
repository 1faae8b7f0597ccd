package tests

import (
	"io"
	"log/slog"

	mocks "relaychat/app/tests"
	"relaychat/internal/models"
	"relaychat/internal/services"
)

type stack struct {
	broadcaster *mocks.RecordingBroadcaster
	registry    *services.Registry
	presence    *services.PresenceEngine
	rooms       *services.RoomManager
	router      *services.MessageRouter
}

func newStack() *stack {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broadcaster := mocks.NewRecordingBroadcaster()
	registry := services.NewRegistry(broadcaster, logger)
	rooms := services.NewRoomManager(registry, broadcaster, logger)

	return &stack{
		broadcaster: broadcaster,
		registry:    registry,
		presence:    services.NewPresenceEngine(broadcaster, logger),
		rooms:       rooms,
		router:      services.NewMessageRouter(registry, rooms, broadcaster, logger),
	}
}

// connect registers a connection for the identity and returns the identity
// for reuse in requests.
func (s *stack) connect(clientID, apiKey, connID string) models.ClientIdentity {
	identity := models.ClientIdentity{ClientID: clientID, APIKey: apiKey}
	s.registry.Register(identity, connID)
	return identity
}

// lastAck is a ports.Ack capture helper.
type lastAck struct {
	called bool
	result models.AckResult
}

func (a *lastAck) fn(result models.AckResult) {
	a.called = true
	a.result = result
}
