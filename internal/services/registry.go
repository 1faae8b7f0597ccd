package services

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Finimen Sniper / FSC.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Finimen Sniper / FSC. All rights reserved.

import (
	"log/slog"
	"sync"

	"relaychat/internal/models"
	"relaychat/internal/ports"
)

// TenantGroup is the broadcast group every connection of a tenant joins.
func TenantGroup(apiKey string) string {
	return "key:" + apiKey
}

// Registry binds validated identities to live connections. A client may
// hold several simultaneous connections (devices/tabs); the registry keeps
// lookups in both directions plus the tenant membership set. All state is
// process-local and dies with the process.
type Registry struct {
	mu            sync.RWMutex
	clientConns   map[string]map[string]bool
	connIdentity  map[string]models.ClientIdentity
	tenantClients map[string]map[string]bool

	broadcaster ports.Broadcaster
	logger      *slog.Logger
}

func NewRegistry(broadcaster ports.Broadcaster, logger *slog.Logger) *Registry {
	return &Registry{
		clientConns:   make(map[string]map[string]bool),
		connIdentity:  make(map[string]models.ClientIdentity),
		tenantClients: make(map[string]map[string]bool),
		broadcaster:   broadcaster,
		logger:        logger,
	}
}

// Register binds the connection and joins it to its tenant group. The
// returned flag reports whether this is the client's first live connection.
func (r *Registry) Register(identity models.ClientIdentity, connID string) (bool, error) {
	if identity.ClientID == "" || identity.APIKey == "" {
		return false, ErrAuthentication
	}

	r.mu.Lock()
	conns := r.clientConns[identity.ClientID]
	if conns == nil {
		conns = make(map[string]bool)
		r.clientConns[identity.ClientID] = conns
	}
	first := len(conns) == 0
	conns[connID] = true
	r.connIdentity[connID] = identity

	clients := r.tenantClients[identity.APIKey]
	if clients == nil {
		clients = make(map[string]bool)
		r.tenantClients[identity.APIKey] = clients
	}
	clients[identity.ClientID] = true
	r.mu.Unlock()

	r.broadcaster.JoinGroup(connID, TenantGroup(identity.APIKey))

	r.logger.Info("connection registered",
		"connID", connID,
		"clientID", identity.ClientID,
		"first", first)
	return first, nil
}

// Unregister removes the connection. Idempotent: an unknown connID is a
// no-op. The returned flag reports whether this was the client's last
// connection, in which case the client has already been dropped from the
// tenant set and the caller must run the presence leave flow.
func (r *Registry) Unregister(connID string) (models.ClientIdentity, bool, bool) {
	r.mu.Lock()
	identity, ok := r.connIdentity[connID]
	if !ok {
		r.mu.Unlock()
		return models.ClientIdentity{}, false, false
	}
	delete(r.connIdentity, connID)

	last := false
	if conns, ok := r.clientConns[identity.ClientID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.clientConns, identity.ClientID)
			last = true
			if clients, ok := r.tenantClients[identity.APIKey]; ok {
				delete(clients, identity.ClientID)
				if len(clients) == 0 {
					delete(r.tenantClients, identity.APIKey)
				}
			}
		}
	}
	r.mu.Unlock()

	r.logger.Info("connection unregistered",
		"connID", connID,
		"clientID", identity.ClientID,
		"last", last)
	return identity, last, true
}

// Identity returns the identity bound to a connection.
func (r *Registry) Identity(connID string) (models.ClientIdentity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.connIdentity[connID]
	return identity, ok
}

// Connections returns all live connection ids for a client.
func (r *Registry) Connections(clientID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.clientConns[clientID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// TenantClients returns the client ids currently present in a tenant.
func (r *Registry) TenantClients(apiKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := r.tenantClients[apiKey]
	out := make([]string, 0, len(clients))
	for id := range clients {
		out = append(out, id)
	}
	return out
}

// IsTenantMember reports whether the client is currently connected within
// the tenant identified by apiKey.
func (r *Registry) IsTenantMember(apiKey, clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tenantClients[apiKey][clientID]
}
