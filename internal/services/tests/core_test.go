package tests

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	mocks "relaychat/app/tests"
	"relaychat/internal/models"
	"relaychat/internal/services"
)

func newCore() (*services.Core, *mocks.RecordingBroadcaster) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broadcaster := mocks.NewRecordingBroadcaster()
	registry := services.NewRegistry(broadcaster, logger)
	rooms := services.NewRoomManager(registry, broadcaster, logger)
	core := services.NewCore(
		registry,
		services.NewPresenceEngine(broadcaster, logger),
		rooms,
		services.NewMessageRouter(registry, rooms, broadcaster, logger),
		services.NewNotificationService(services.NewMemoryNotificationStore(), broadcaster, 100, logger),
		logger,
	)
	return core, broadcaster
}

func register(t *testing.T, core *services.Core, clientID, apiKey, connID string) {
	t.Helper()
	err := core.Register(models.ClientIdentity{ClientID: clientID, APIKey: apiKey}, connID)
	assert.NoError(t, err)
}

func TestRegisterRunsPresenceEnter(t *testing.T) {
	core, broadcaster := newCore()

	register(t, core, "alice", "k1", "c1")

	assert.Contains(t, broadcaster.GroupMembers(services.TenantGroup("k1")), "c1")
	assert.Len(t, broadcaster.EmitsFor(models.EventPresenceSync), 1)
}

func TestRegisterRestoresRoomSubscriptions(t *testing.T) {
	core, broadcaster := newCore()
	register(t, core, "alice", "k1", "c-alice")
	register(t, core, "bob", "k1", "c-bob")

	var ack lastAck
	core.CreatePrivateRoom("c-alice", "bob", ack.fn)
	assert.True(t, ack.result.Success)

	// Bob reconnects on a fresh socket and is back in the room group
	// without resubscribing.
	register(t, core, "bob", "k1", "c-bob-2")

	assert.Contains(t, broadcaster.GroupMembers(ack.result.RoomID), "c-bob-2")
}

func TestUnregisterLeavesPresenceOnlyOnLastConnection(t *testing.T) {
	core, broadcaster := newCore()
	register(t, core, "alice", "k1", "c1")
	register(t, core, "alice", "k1", "c2")
	broadcaster.Reset()

	core.Unregister("c1")
	assert.Empty(t, broadcaster.EmitsFor(models.EventPresenceLeave))

	core.Unregister("c2")
	assert.Len(t, broadcaster.EmitsFor(models.EventPresenceLeave), 1)
}

func TestOperationsRequireRegisteredConnection(t *testing.T) {
	core, _ := newCore()

	err := core.UpdatePresence("unknown", models.StatusAway, "")
	assert.ErrorIs(t, err, services.ErrAuthentication)

	err = core.ProfileUpdate("unknown", map[string]any{"name": "x"})
	assert.ErrorIs(t, err, services.ErrAuthentication)

	var ack lastAck
	core.SendPrivate("unknown", models.PrivateMessageRequest{TargetID: "bob", Message: "hi"}, ack.fn)
	assert.True(t, ack.called)
	assert.False(t, ack.result.Success)
	assert.Equal(t, services.ErrAuthentication.Error(), ack.result.Error)
}

func TestProfileUpdateEchoesToWholeTenant(t *testing.T) {
	core, broadcaster := newCore()
	register(t, core, "alice", "k1", "c1")
	broadcaster.Reset()

	err := core.ProfileUpdate("c1", map[string]any{"displayName": "Alice"})
	assert.NoError(t, err)

	emits := broadcaster.EmitsFor(models.EventProfileUpdate)
	if assert.Len(t, emits, 1) {
		assert.Equal(t, services.TenantGroup("k1"), emits[0].Group)
		assert.Empty(t, emits[0].ExceptConn)
		payload := emits[0].Data.(models.ProfileUpdateEvent)
		assert.Equal(t, "alice", payload.ClientID)
	}
}

func TestListRoomsEmitsToRequestingConnection(t *testing.T) {
	core, broadcaster := newCore()
	register(t, core, "alice", "k1", "c-alice")
	register(t, core, "bob", "k1", "c-bob")

	var ack lastAck
	core.CreatePrivateRoom("c-alice", "bob", ack.fn)
	broadcaster.Reset()

	core.ListRooms("c-alice")

	lists := broadcaster.EmitsFor(models.EventRoomsList)
	if assert.Len(t, lists, 1) {
		assert.Equal(t, "c-alice", lists[0].Conn)
		payload := lists[0].Data.(models.RoomsListEvent)
		if assert.Len(t, payload.Rooms, 1) {
			assert.Equal(t, ack.result.RoomID, payload.Rooms[0].ID)
		}
	}
}

func TestJoinRoomEnforcesMembership(t *testing.T) {
	core, broadcaster := newCore()
	register(t, core, "alice", "k1", "c-alice")
	register(t, core, "bob", "k1", "c-bob")
	register(t, core, "carol", "k1", "c-carol")

	var ack lastAck
	core.CreatePrivateRoom("c-alice", "bob", ack.fn)
	roomID := ack.result.RoomID

	err := core.JoinRoom(context.Background(), "c-carol", roomID)
	assert.ErrorIs(t, err, services.ErrNotAMember)
	assert.NotContains(t, broadcaster.GroupMembers(roomID), "c-carol")
}

func TestJoinNotificationsRoomSkipsMembershipCheck(t *testing.T) {
	core, broadcaster := newCore()
	register(t, core, "alice", "k1", "c-alice")
	broadcaster.Reset()

	err := core.JoinRoom(context.Background(), "c-alice", services.NotificationsRoom)
	assert.NoError(t, err)

	assert.Contains(t, broadcaster.GroupMembers(services.NotificationsRoom), "c-alice")
	assert.Len(t, broadcaster.EmitsFor(models.EventRecentNotifications), 1)
}

func TestLeaveRoomDropsGroupMembership(t *testing.T) {
	core, broadcaster := newCore()
	register(t, core, "alice", "k1", "c-alice")
	core.JoinRoom(context.Background(), "c-alice", services.NotificationsRoom)

	core.LeaveRoom("c-alice", services.NotificationsRoom)

	assert.NotContains(t, broadcaster.GroupMembers(services.NotificationsRoom), "c-alice")
}
