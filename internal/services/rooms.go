package services

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Finimen Sniper / FSC.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Finimen Sniper / FSC. All rights reserved.

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"relaychat/internal/models"
	"relaychat/internal/ports"
)

// PrivateRoomID derives the deterministic id of a 1:1 room. Participants
// are sorted before joining so the id is the same regardless of call order,
// and the tenant apiKey is embedded so membership checks can verify the
// tenant without a lookup.
func PrivateRoomID(apiKey, clientA, clientB string) string {
	a, b := clientA, clientB
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("private:%s:%s_%s", apiKey, a, b)
}

// GroupRoomID mints a collision-resistant group room id.
func GroupRoomID(apiKey string) string {
	var suffix [4]byte
	rand.Read(suffix[:])
	return fmt.Sprintf("group:%s:%d_%s", apiKey, time.Now().UnixMilli(), hex.EncodeToString(suffix[:]))
}

// roomTenant extracts the apiKey embedded in a room id.
func roomTenant(roomID string) string {
	parts := strings.SplitN(roomID, ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

// RoomManager owns private and group room membership. Rooms are memory
// only; the ordered id log keeps listing stable instead of leaning on map
// iteration order.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]*models.Room
	order []string

	registry    *Registry
	broadcaster ports.Broadcaster
	logger      *slog.Logger
}

func NewRoomManager(registry *Registry, broadcaster ports.Broadcaster, logger *slog.Logger) *RoomManager {
	return &RoomManager{
		rooms:       make(map[string]*models.Room),
		registry:    registry,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// CreatePrivateRoom registers (idempotently) the 1:1 room between creator
// and target. Both participants' active connections are joined to the room
// group right away so the target cannot miss traffic before its first
// interaction. Fails with ErrTenantMismatch unless the target is present in
// the creator's tenant.
func (m *RoomManager) CreatePrivateRoom(apiKey, creatorID, targetID string) (*models.Room, error) {
	if targetID == "" || targetID == creatorID {
		return nil, ErrValidation
	}
	if !m.registry.IsTenantMember(apiKey, targetID) {
		return nil, ErrTenantMismatch
	}

	roomID := PrivateRoomID(apiKey, creatorID, targetID)

	m.mu.Lock()
	room, existed := m.rooms[roomID]
	if !existed {
		members := []string{creatorID, targetID}
		sort.Strings(members)
		room = &models.Room{
			ID:        roomID,
			Type:      models.RoomTypePrivate,
			Members:   members,
			CreatedAt: time.Now(),
		}
		m.rooms[roomID] = room
		m.order = append(m.order, roomID)
	}
	created := *room
	m.mu.Unlock()

	m.joinMemberConnections(roomID, created.Members)

	if !existed {
		m.broadcaster.EmitToGroup(roomID, models.EventPrivateChatCreated,
			models.PrivateChatCreatedEvent{RoomID: roomID, Participants: created.Members})
		m.logger.Info("private room created", "roomID", roomID)
	}
	return &created, nil
}

// CreateGroupRoom validates every member against the tenant, joins all
// member connections to the room group and fans the created event out to
// the whole room. The initiator is always a member.
func (m *RoomManager) CreateGroupRoom(apiKey, name, initiatorID string, memberIDs []string) (*models.Room, error) {
	if name == "" || len(memberIDs) == 0 {
		return nil, ErrValidation
	}

	var invalid []string
	for _, id := range memberIDs {
		if id != initiatorID && !m.registry.IsTenantMember(apiKey, id) {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("%w: unknown members %s", ErrValidation, strings.Join(invalid, ", "))
	}

	seen := map[string]bool{initiatorID: true}
	members := []string{initiatorID}
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}

	room := &models.Room{
		ID:        GroupRoomID(apiKey),
		Type:      models.RoomTypeGroup,
		Name:      name,
		Members:   members,
		CreatedBy: initiatorID,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.rooms[room.ID] = room
	m.order = append(m.order, room.ID)
	created := *room
	m.mu.Unlock()

	m.joinMemberConnections(created.ID, created.Members)

	m.broadcaster.EmitToGroup(created.ID, models.EventGroupChatCreated,
		models.GroupChatCreatedEvent{
			RoomID:    created.ID,
			Name:      created.Name,
			Members:   created.Members,
			CreatedBy: created.CreatedBy,
		})

	m.logger.Info("group room created", "roomID", created.ID, "members", len(created.Members))
	return &created, nil
}

// ListRooms returns the rooms the client belongs to, in creation order.
func (m *RoomManager) ListRooms(clientID string) []models.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Room
	for _, id := range m.order {
		room := m.rooms[id]
		if room != nil && room.HasMember(clientID) {
			out = append(out, *room)
		}
	}
	return out
}

// Authorize verifies room existence, tenant match, and sender membership.
// Every send path goes through here before any fan-out.
func (m *RoomManager) Authorize(apiKey, clientID, roomID string) (*models.Room, error) {
	if roomTenant(roomID) != apiKey {
		return nil, ErrRoomNotFound
	}

	m.mu.RLock()
	room, ok := m.rooms[roomID]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrRoomNotFound
	}
	if !room.HasMember(clientID) {
		return nil, ErrNotAMember
	}
	copied := *room
	return &copied, nil
}

// JoinClientRooms joins one connection to every room group its client is a
// member of. Used at registration time so a reconnecting socket regains its
// subscriptions without a manual resubscribe.
func (m *RoomManager) JoinClientRooms(connID, clientID string) {
	m.mu.RLock()
	var roomIDs []string
	for _, id := range m.order {
		if room := m.rooms[id]; room != nil && room.HasMember(clientID) {
			roomIDs = append(roomIDs, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range roomIDs {
		m.broadcaster.JoinGroup(connID, id)
	}
}

func (m *RoomManager) joinMemberConnections(roomID string, members []string) {
	for _, member := range members {
		for _, connID := range m.registry.Connections(member) {
			m.broadcaster.JoinGroup(connID, roomID)
		}
	}
}
