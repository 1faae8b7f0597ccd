package websocket

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Finimen Sniper / FSC.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Finimen Sniper / FSC. All rights reserved.

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"relaychat/internal/models"
	"relaychat/internal/ports"
)

// Hub owns every live connection and the broadcast groups (tenant groups,
// room groups, the notifications room). It implements ports.Broadcaster for
// the services and feeds inbound events into ports.RelayCore. With a
// backplane attached, every group emit is mirrored to other processes.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	groups     map[string]map[string]bool
	connGroups map[string]map[string]bool

	Register   chan *Client
	Unregister chan *Client

	core      ports.RelayCore
	backplane ports.Backplane
	logger    *slog.Logger

	activeSockets   prometheus.Gauge
	decryptFailures prometheus.Counter
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[string]bool),
		connGroups: make(map[string]map[string]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger,
	}
}

// SetCore wires the service facade in after construction; the hub and the
// services reference each other so one side is attached late.
func (h *Hub) SetCore(core ports.RelayCore) {
	h.core = core
}

// SetMetrics attaches the socket gauge and decrypt-failure counter.
func (h *Hub) SetMetrics(activeSockets prometheus.Gauge, decryptFailures prometheus.Counter) {
	h.activeSockets = activeSockets
	h.decryptFailures = decryptFailures
}

// SetBackplane attaches a pub/sub backplane and starts consuming remote
// emits. Remote frames are delivered locally without being republished.
func (h *Hub) SetBackplane(bp ports.Backplane) error {
	h.backplane = bp
	return bp.Subscribe(func(group, event string, data []byte, exceptClientID string) {
		h.deliver(group, event, json.RawMessage(data), "", exceptClientID, false)
	})
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.connGroups[client.ID] = make(map[string]bool)
			h.mu.Unlock()

			if h.activeSockets != nil {
				h.activeSockets.Inc()
			}

			identity := models.ClientIdentity{ClientID: client.ClientID, APIKey: client.APIKey}
			if err := h.core.Register(identity, client.ID); err != nil {
				h.logger.Warn("registration rejected", "connID", client.ID, "error", err)
				client.enqueue(models.EventChatError, models.ChatErrorEvent{Message: err.Error()})
				client.closeSend()
				continue
			}
			h.logger.Info("client registered", "connID", client.ID, "clientID", client.ClientID)

		case client := <-h.Unregister:
			h.mu.Lock()
			_, known := h.clients[client.ID]
			if known {
				delete(h.clients, client.ID)
				for group := range h.connGroups[client.ID] {
					h.removeFromGroupLocked(client.ID, group)
				}
				delete(h.connGroups, client.ID)
				client.closeSend()
			}
			h.mu.Unlock()

			if !known {
				continue
			}
			if h.activeSockets != nil {
				h.activeSockets.Dec()
			}

			h.core.Unregister(client.ID)
			h.logger.Info("client unregistered", "connID", client.ID, "clientID", client.ClientID)
		}
	}
}

// Detach removes a connection from all groups and the registry without
// closing the socket (the unregister_client event).
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	for group := range h.connGroups[connID] {
		h.removeFromGroupLocked(connID, group)
	}
	delete(h.connGroups, connID)
	h.mu.Unlock()

	h.core.Unregister(connID)
}

func (h *Hub) JoinGroup(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connID]; !ok {
		return
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]bool)
	}
	h.groups[group][connID] = true
	if h.connGroups[connID] == nil {
		h.connGroups[connID] = make(map[string]bool)
	}
	h.connGroups[connID][group] = true
}

func (h *Hub) LeaveGroup(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromGroupLocked(connID, group)
	if groups, ok := h.connGroups[connID]; ok {
		delete(groups, group)
	}
}

func (h *Hub) EmitToConn(connID, event string, data any) {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		client.enqueue(event, data)
	}
}

func (h *Hub) EmitToGroup(group, event string, data any) {
	h.deliver(group, event, data, "", "", true)
}

// EmitToGroupExceptConn skips one local socket. Socket-level exclusion is
// meaningless on remote processes, so the backplane copy excludes nobody.
func (h *Hub) EmitToGroupExceptConn(group, event string, data any, exceptConnID string) {
	h.deliver(group, event, data, exceptConnID, "", true)
}

func (h *Hub) EmitToGroupExceptClient(group, event string, data any, exceptClientID string) {
	h.deliver(group, event, data, "", exceptClientID, true)
}

func (h *Hub) deliver(group, event string, data any, exceptConnID, exceptClientID string, publish bool) {
	h.mu.RLock()
	var targets []*Client
	for connID := range h.groups[group] {
		client, ok := h.clients[connID]
		if !ok {
			continue
		}
		if exceptConnID != "" && connID == exceptConnID {
			continue
		}
		if exceptClientID != "" && client.ClientID == exceptClientID {
			continue
		}
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.enqueue(event, data)
	}

	if publish && h.backplane != nil {
		if err := h.backplane.Publish(group, event, data, exceptClientID); err != nil {
			h.logger.Warn("backplane publish failed", "group", group, "error", err)
		}
	}
}

// GroupSize reports how many local connections a group holds.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (h *Hub) removeFromGroupLocked(connID, group string) {
	if conns, ok := h.groups[group]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.groups, group)
		}
	}
}

func (h *Hub) dropSlow(client *Client) {
	h.logger.Warn("send buffer full, dropping connection", "connID", client.ID, "clientID", client.ClientID)
	go func() { h.Unregister <- client }()
}

func (h *Hub) noteDecryptFailure(connID string, err error) {
	if h.decryptFailures != nil {
		h.decryptFailures.Inc()
	}
	// A transient key mismatch during reconnection looks exactly like a bad
	// frame; drop the frame, never the connection.
	h.logger.Warn("frame decryption failed, frame dropped", "connID", connID, "error", err)
}
