package services

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"relaychat/internal/models"
	"relaychat/internal/ports"
)

// PresenceEngine keeps one PresenceRecord per client and fans out state
// changes inside the tenant. The echo rules are deliberately asymmetric:
// presence:enter is suppressed for the arriving socket (it gets the sync
// snapshot instead), presence:update is echoed back to the sender's own
// sockets as well, and presence:leave fires exactly once when the last
// connection closes.
type PresenceEngine struct {
	mu      sync.RWMutex
	records map[string]*models.PresenceRecord
	tenants map[string]map[string]bool

	broadcaster ports.Broadcaster
	logger      *slog.Logger
}

func NewPresenceEngine(broadcaster ports.Broadcaster, logger *slog.Logger) *PresenceEngine {
	return &PresenceEngine{
		records:     make(map[string]*models.PresenceRecord),
		tenants:     make(map[string]map[string]bool),
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Enter seeds the record on first connect and pushes the tenant snapshot to
// the new socket. The enter broadcast goes to the rest of the tenant only
// when the record is new; extra devices of an already-online client just
// get the snapshot.
func (p *PresenceEngine) Enter(clientID, apiKey, connID string) {
	p.mu.Lock()
	record, existed := p.records[clientID]
	if !existed {
		record = &models.PresenceRecord{
			ClientID:      clientID,
			Status:        models.StatusOnline,
			CustomMessage: "Available",
			LastUpdated:   time.Now(),
			ConnectionID:  connID,
		}
		p.records[clientID] = record
		if p.tenants[apiKey] == nil {
			p.tenants[apiKey] = make(map[string]bool)
		}
		p.tenants[apiKey][clientID] = true
	}
	snapshot := p.tenantSnapshotLocked(apiKey)
	entered := *record
	p.mu.Unlock()

	p.broadcaster.EmitToConn(connID, models.EventPresenceSync,
		models.PresenceSyncEvent{Presences: snapshot})

	if !existed {
		p.broadcaster.EmitToGroupExceptConn(TenantGroup(apiKey), models.EventPresenceEnter,
			models.PresenceEvent{ClientID: clientID, Presence: entered}, connID)
		p.logger.Info("presence enter", "clientID", clientID)
	}
}

// Update overwrites the record and broadcasts to the whole tenant, the
// sender's own sockets included. Last update processed wins; concurrent
// device updates are not merged.
func (p *PresenceEngine) Update(clientID, apiKey, connID, status, customMessage string) error {
	if status == "" {
		return ErrValidation
	}

	p.mu.Lock()
	record, ok := p.records[clientID]
	if !ok {
		record = &models.PresenceRecord{ClientID: clientID}
		p.records[clientID] = record
		if p.tenants[apiKey] == nil {
			p.tenants[apiKey] = make(map[string]bool)
		}
		p.tenants[apiKey][clientID] = true
	}
	record.Status = status
	record.CustomMessage = customMessage
	record.LastUpdated = time.Now()
	record.ConnectionID = connID
	updated := *record
	p.mu.Unlock()

	p.broadcaster.EmitToGroup(TenantGroup(apiKey), models.EventPresenceUpdate,
		models.PresenceEvent{ClientID: clientID, Presence: updated})

	p.logger.Debug("presence update", "clientID", clientID, "status", status)
	return nil
}

// Leave deletes the record and announces departure. Called only when the
// client's last connection drops; the record is removed rather than set to
// offline so no stale state remains to query.
func (p *PresenceEngine) Leave(clientID, apiKey string) {
	p.mu.Lock()
	_, existed := p.records[clientID]
	delete(p.records, clientID)
	if clients, ok := p.tenants[apiKey]; ok {
		delete(clients, clientID)
		if len(clients) == 0 {
			delete(p.tenants, apiKey)
		}
	}
	p.mu.Unlock()

	if !existed {
		return
	}

	p.broadcaster.EmitToGroup(TenantGroup(apiKey), models.EventPresenceLeave,
		models.PresenceLeaveEvent{ClientID: clientID})
	p.logger.Info("presence leave", "clientID", clientID)
}

// Record returns a copy of the client's current presence.
func (p *PresenceEngine) Record(clientID string) (models.PresenceRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	record, ok := p.records[clientID]
	if !ok {
		return models.PresenceRecord{}, false
	}
	return *record, true
}

func (p *PresenceEngine) tenantSnapshotLocked(apiKey string) []models.PresenceEvent {
	ids := make([]string, 0, len(p.tenants[apiKey]))
	for id := range p.tenants[apiKey] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snapshot := make([]models.PresenceEvent, 0, len(ids))
	for _, id := range ids {
		if record, ok := p.records[id]; ok {
			snapshot = append(snapshot, models.PresenceEvent{ClientID: id, Presence: *record})
		}
	}
	return snapshot
}
