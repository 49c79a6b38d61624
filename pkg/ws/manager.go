package ws

import (
	"sort"
	"sync"

	"github.com/nmxmxh/ovasabi-live/pkg/events"
	"github.com/nmxmxh/ovasabi-live/pkg/json"
	"github.com/nmxmxh/ovasabi-live/pkg/metrics"
	"go.uber.org/zap"
)

// Client is a single participant socket attached to a room.
type Client interface {
	// Send queues an encoded frame without blocking. It returns false when the
	// frame was dropped (buffer full or connection closed).
	Send(frame []byte) bool
	Close() error
}

// Manager is the room channel registry: roomID -> participantID -> client.
// It is constructed once per process and handed to whatever needs to publish.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Client
	log   *zap.Logger
}

// NewManager creates an empty room registry.
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		rooms: make(map[string]map[string]Client),
		log:   log.With(zap.String("module", "ws_manager")),
	}
}

// Join attaches client to roomID. A previous socket of the same participant is
// closed and replaced.
func (m *Manager) Join(roomID, participantID string, client Client) {
	m.mu.Lock()
	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[string]Client)
		m.rooms[roomID] = members
	}
	prev, replaced := members[participantID]
	members[participantID] = client
	m.mu.Unlock()

	if replaced && prev != client {
		_ = prev.Close()
		m.log.Info("Replaced participant socket", zap.String("room_id", roomID), zap.String("participant_id", participantID))
		return
	}
	metrics.ConnectedSockets.Inc()
}

// Leave removes the participant only while client is still the registered
// socket, so a connection replaced by a newer one cannot evict it.
func (m *Manager) Leave(roomID, participantID string, client Client) {
	m.mu.Lock()
	ok := m.remove(roomID, participantID, client)
	m.mu.Unlock()
	if ok {
		_ = client.Close()
	}
}

func (m *Manager) remove(roomID, participantID string, client Client) bool {
	members, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	if current, ok := members[participantID]; !ok || current != client {
		return false
	}
	delete(members, participantID)
	if len(members) == 0 {
		delete(m.rooms, roomID)
	}
	metrics.ConnectedSockets.Dec()
	return true
}

// Publish encodes env once and queues it on every socket in the room. It
// returns the number of sockets that accepted the frame. Slow sockets lose the
// frame; Publish never blocks on them.
func (m *Manager) Publish(roomID string, env *events.EventEnvelope) int {
	frame, err := json.Marshal(env)
	if err != nil {
		m.log.Error("Failed to encode room event", zap.String("room_id", roomID), zap.String("event", env.Type), zap.Error(err))
		return 0
	}

	m.mu.RLock()
	members := m.rooms[roomID]
	targets := make([]Client, 0, len(members))
	for _, c := range members {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Send(frame) {
			delivered++
			continue
		}
		metrics.BroadcastDrops.Inc()
	}
	if delivered > 0 {
		metrics.BroadcastDeliveries.WithLabelValues(env.Type).Add(float64(delivered))
	}
	if dropped := len(targets) - delivered; dropped > 0 {
		m.log.Debug("Dropped frames for slow sockets",
			zap.String("room_id", roomID),
			zap.String("event", env.Type),
			zap.Int("dropped", dropped),
		)
	}
	return delivered
}

// Members lists the participants of roomID in sorted order.
func (m *Manager) Members(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.rooms[roomID]))
	for id := range m.rooms[roomID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll disconnects every socket.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]map[string]Client)
	m.mu.Unlock()

	for _, members := range rooms {
		for _, c := range members {
			_ = c.Close()
			metrics.ConnectedSockets.Dec()
		}
	}
}
