package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"anonchat-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the frontend host is fixed
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Manager delivers messages over live websocket connections and falls back
// to Redis pub/sub for users connected elsewhere. With a nil Redis client
// delivery is websocket-only.
type Manager struct {
	redis       *redis.Client
	mu          sync.RWMutex
	connections map[int64]*websocket.Conn
}

func NewManager(redisClient *redis.Client) *Manager {
	return &Manager{
		redis:       redisClient,
		connections: make(map[int64]*websocket.Conn),
	}
}

func userChannel(userID int64) string {
	return fmt.Sprintf("user:%d:events", userID)
}

// Notify implements Notifier. A reused handle keeps the message id stable
// so clients replace the earlier status message instead of stacking a new
// one.
func (m *Manager) Notify(ctx context.Context, userID int64, msgType, text string, handle *storage.NotificationHandle) (*storage.NotificationHandle, error) {
	messageID := uuid.NewString()
	if handle != nil && handle.MessageID != "" {
		messageID = handle.MessageID
	}

	msg := Message{
		Type:      msgType,
		Text:      text,
		MessageID: messageID,
		Timestamp: time.Now().UTC(),
	}

	if err := m.deliver(ctx, userID, msg); err != nil {
		return nil, err
	}

	return &storage.NotificationHandle{
		ChannelID: userChannel(userID),
		MessageID: messageID,
	}, nil
}

// Send delivers a typed message with extra payload, used for chat relay.
func (m *Manager) Send(ctx context.Context, userID int64, msgType, text string, data map[string]interface{}) error {
	msg := Message{
		Type:      msgType,
		Text:      text,
		MessageID: uuid.NewString(),
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	return m.deliver(ctx, userID, msg)
}

func (m *Manager) deliver(ctx context.Context, userID int64, msg Message) error {
	m.mu.RLock()
	conn, connected := m.connections[userID]
	m.mu.RUnlock()

	if connected {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("[NOTIFY] Failed to deliver %s to user %d over websocket: %v",
				msg.Type, userID, err)
			return err
		}
		return nil
	}

	if m.redis == nil {
		return fmt.Errorf("user %d is not reachable", userID)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := m.redis.Publish(ctx, userChannel(userID), payload).Err(); err != nil {
		log.Printf("[NOTIFY] Failed to publish %s for user %d: %v", msg.Type, userID, err)
		return err
	}
	return nil
}

// HandleWebSocket upgrades the request and keeps the connection registered
// until the client goes away. Messages published to the user's Redis
// channel while connected are pumped down the socket.
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	connectionID := fmt.Sprintf("ws_%d", time.Now().UnixNano())

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		log.Printf("[WS_CONNECT] %s - Invalid user id %q", connectionID, chi.URLParam(r, "userID"))
		http.Error(w, "valid numeric userID required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS_CONNECT] %s - Upgrade failed for user %d: %v", connectionID, userID, err)
		return
	}
	defer conn.Close()

	m.mu.Lock()
	if existing, ok := m.connections[userID]; ok {
		log.Printf("[WS_CONNECT] %s - Closing previous connection for user %d", connectionID, userID)
		existing.Close()
	}
	m.connections[userID] = conn
	total := len(m.connections)
	m.mu.Unlock()

	log.Printf("[WS_CONNECT] %s - User %d connected, total connections: %d",
		connectionID, userID, total)

	defer func() {
		m.mu.Lock()
		if m.connections[userID] == conn {
			delete(m.connections, userID)
		}
		total := len(m.connections)
		m.mu.Unlock()
		log.Printf("[WS_DISCONNECT] %s - User %d disconnected after %v, total connections: %d",
			connectionID, userID, time.Since(start), total)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if m.redis != nil {
		pubsub := m.redis.Subscribe(ctx, userChannel(userID))
		defer pubsub.Close()
		go m.pumpChannel(ctx, connectionID, userID, pubsub, conn)
	}

	m.readLoop(connectionID, userID, conn)
}

// pumpChannel forwards Redis pub/sub payloads to the websocket, so messages
// published while the user was connected to another instance still arrive.
func (m *Manager) pumpChannel(ctx context.Context, connectionID string, userID int64, pubsub *redis.PubSub, conn *websocket.Conn) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				log.Printf("[WS_PUMP] %s - Undecodable payload for user %d: %v", connectionID, userID, err)
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("[WS_PUMP] %s - Write failed for user %d: %v", connectionID, userID, err)
				return
			}
		}
	}
}

func (m *Manager) readLoop(connectionID string, userID int64, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[WS_READER] %s - Unexpected close for user %d: %v", connectionID, userID, err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS_PING] %s - Ping failed for user %d: %v", connectionID, userID, err)
				return
			}
		case <-done:
			return
		}
	}
}

// ConnectedUsers returns the ids with a live socket, for the status
// endpoint.
func (m *Manager) ConnectedUsers() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]int64, 0, len(m.connections))
	for userID := range m.connections {
		users = append(users, userID)
	}
	return users
}
