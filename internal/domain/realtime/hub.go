// Package realtime pushes wallet updates to the owner's open websocket
// connections. Instances fan out through Redis pub/sub so a user connected to
// any instance receives updates committed on any other.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hatid/hatid-api/internal/pkg/metrics"
)

const userEventsChannel = "wallet:user_events"

type userEventMessage struct {
	UserID           string          `json:"user_id"`
	Payload          json.RawMessage `json:"payload"`
	SenderInstanceID string          `json:"sender_instance_id"`
}

// Connection is one websocket client.
type Connection struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub tracks local connections per user.
type Hub struct {
	connections map[string]map[*Connection]bool
	mu          sync.RWMutex

	pubsub *redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc

	instanceID string
	publishFn  func(ctx context.Context, channel string, payload []byte) error
}

// NewHub creates a hub. A nil redisClient keeps delivery local to this instance.
func NewHub(redisClient *redis.Client) *Hub {
	return NewHubWithInstanceID(redisClient, uuid.NewString())
}

func NewHubWithInstanceID(redisClient *redis.Client, instanceID string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		connections: make(map[string]map[*Connection]bool),
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  instanceID,
	}

	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, userEventsChannel)
		h.publishFn = func(ctx context.Context, channel string, payload []byte) error {
			return redisClient.Publish(ctx, channel, payload).Err()
		}
	}
	return h
}

// Run relays events published by other instances until Shutdown. Call it in a goroutine.
func (h *Hub) Run() {
	if h.pubsub == nil {
		<-h.ctx.Done()
		return
	}
	h.runRedisSubscriber()
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleUserEventPayload(msg.Payload)
		}
	}
}

func (h *Hub) handleUserEventPayload(payload string) {
	var event userEventMessage
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return
	}
	if event.SenderInstanceID == h.instanceID || event.UserID == "" {
		return
	}
	h.sendLocal(event.UserID, event.Payload)
}

// Register adds a connection. It returns false once the hub is shut down.
func (h *Hub) Register(conn *Connection) bool {
	if h.ctx.Err() != nil {
		return false
	}

	h.mu.Lock()
	if h.connections[conn.UserID] == nil {
		h.connections[conn.UserID] = make(map[*Connection]bool)
	}
	h.connections[conn.UserID][conn] = true
	h.mu.Unlock()

	metrics.WebsocketConnected(1)
	log.Debug().Str("user_id", conn.UserID).Msg("wallet websocket connected")
	return true
}

// Unregister removes a connection and closes its Send channel.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.connections[conn.UserID]
	if !ok {
		return
	}
	if _, exists := conns[conn]; exists {
		delete(conns, conn)
		close(conn.Send)
		metrics.WebsocketConnected(-1)
		log.Debug().Str("user_id", conn.UserID).Msg("wallet websocket disconnected")
	}
	if len(conns) == 0 {
		delete(h.connections, conn.UserID)
	}
}

// SendToUser delivers payload as JSON to every connection of userID on any instance.
func (h *Hub) SendToUser(userID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.sendLocal(userID, data)
	return h.publish(userID, data)
}

func (h *Hub) sendLocal(userID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.connections[userID] {
		select {
		case conn.Send <- data:
			metrics.RecordWebsocketEvent("sent")
		default:
			metrics.RecordWebsocketEvent("dropped")
			log.Warn().Str("user_id", userID).Msg("wallet websocket send buffer full")
		}
	}
}

func (h *Hub) publish(userID string, data []byte) error {
	if h.publishFn == nil {
		return nil
	}
	payload, err := json.Marshal(userEventMessage{
		UserID:           userID,
		Payload:          data,
		SenderInstanceID: h.instanceID,
	})
	if err != nil {
		return err
	}
	return h.publishFn(h.ctx, userEventsChannel, payload)
}

// ConnectionCount returns the number of local connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.connections {
		total += len(conns)
	}
	return total
}

// Shutdown stops the hub and its Redis subscription.
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}
