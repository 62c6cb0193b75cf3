package handlers

import (
	"io"
	"log/slog"
	"sync"

	"terminus-realm/zoneserver/models"
)

// ClientManager manages connected clients
type ClientManager struct {
	clients map[string]*ClientHandler // Map PlayerID to ClientHandler
	logger  *slog.Logger
	mutex   sync.RWMutex
}

// NewClientManager creates a new client manager
func NewClientManager(logger *slog.Logger) *ClientManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ClientManager{
		clients: make(map[string]*ClientHandler),
		logger:  logger,
	}
}

// AddClient registers a client. It returns false if the player already has
// a connection.
func (cm *ClientManager) AddClient(playerID string, handler *ClientHandler) bool {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if _, exists := cm.clients[playerID]; exists {
		return false
	}
	cm.clients[playerID] = handler
	return true
}

// RemoveClient removes a client from the manager
func (cm *ClientManager) RemoveClient(playerID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	delete(cm.clients, playerID)
}

func (cm *ClientManager) Len() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.clients)
}

// BroadcastToZone sends a message to every client whose player is in zone,
// except the excluded player.
func (cm *ClientManager) BroadcastToZone(zone models.ZoneKey, excludePlayerID string, msg interface{}) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	for id, client := range cm.clients {
		if id == excludePlayerID {
			continue
		}
		if z, ok := client.zone(); !ok || z != zone {
			continue
		}
		if err := client.conn.SendMessage(msg); err != nil {
			cm.logger.Warn("broadcast failed", "player", id, "error", err)
		}
	}
}

// ExecuteOnAllClients executes a function for each connected client
func (cm *ClientManager) ExecuteOnAllClients(action func(*ClientHandler)) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	for _, client := range cm.clients {
		action(client)
	}
}
