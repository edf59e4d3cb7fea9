package websocket

import (
	"sync"

	"campusmarket/internal/infrastructure/metrics"
	"campusmarket/pkg/logger"
)

// Manager maps each user to at most one live client.
type Manager struct {
	clients map[string]*Client
	mutex   sync.RWMutex
	metrics *metrics.Metrics
}

// NewManager creates a presence registry. m may be nil.
func NewManager(m *metrics.Metrics) *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		metrics: m,
	}
}

// Register makes client the user's connection and returns the client it
// replaced, if any. The previous client is not closed here; the caller owns
// that decision.
func (m *Manager) Register(client *Client) *Client {
	m.mutex.Lock()
	previous := m.clients[client.UserID]
	m.clients[client.UserID] = client
	count := len(m.clients)
	m.mutex.Unlock()

	m.metrics.SetConnections(count)
	logger.Debug("WebSocket: client registered for user %s", client.UserID)
	if previous == client {
		return nil
	}
	return previous
}

// Unregister removes the user's mapping. Unknown users are ignored.
func (m *Manager) Unregister(userID string) {
	m.mutex.Lock()
	delete(m.clients, userID)
	count := len(m.clients)
	m.mutex.Unlock()

	m.metrics.SetConnections(count)
}

// Release removes client only if it is still the registered connection for
// its user, so a superseded socket shutting down never evicts its successor.
func (m *Manager) Release(client *Client) bool {
	m.mutex.Lock()
	current, ok := m.clients[client.UserID]
	released := ok && current == client
	if released {
		delete(m.clients, client.UserID)
	}
	count := len(m.clients)
	m.mutex.Unlock()

	if released {
		m.metrics.SetConnections(count)
		logger.Debug("WebSocket: client released for user %s", client.UserID)
	}
	return released
}

func (m *Manager) Lookup(userID string) (*Client, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	client, ok := m.clients[userID]
	return client, ok
}

// SendToUser delivers payload to the user's connection if it is open. An
// offline user yields (false, nil); a connection that rejects the payload
// is released and its error returned.
func (m *Manager) SendToUser(userID string, payload []byte) (bool, error) {
	client, ok := m.Lookup(userID)
	if !ok || !client.IsOpen() {
		return false, nil
	}
	if err := client.Send(payload); err != nil {
		logger.Debug("WebSocket: dropping event for user %s: %v", userID, err)
		m.Release(client)
		return false, err
	}
	return true, nil
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

// CloseAll closes and forgets every client. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mutex.Unlock()

	for _, client := range clients {
		client.Close()
	}
	m.metrics.SetConnections(0)
}
