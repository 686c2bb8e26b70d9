package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Типы событий живого представления игры.
const (
	EventStream        = "stream"         // payload: {"text": видимая часть стрима}
	EventStreamCleared = "stream_cleared" // payload: null
	EventState         = "state"          // payload: GameState
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

// Message - событие, отправляемое клиентам темы (темой служит id игры).
type Message struct {
	Type    string      `json:"type"`
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// StreamPayload - видимая часть стрима.
type StreamPayload struct {
	Text string `json:"text"`
}

// Manager раздает события игры подписанным WebSocket-клиентам.
type Manager struct {
	clients    map[uuid.UUID]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{} // закрывается, когда Run завершился
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// Client представляет WebSocket-клиента
type Client struct {
	ID      uuid.UUID
	Conn    *websocket.Conn
	Manager *Manager
	Send    chan []byte

	topicsMu sync.RWMutex
	topics   map[string]bool
}

var _ interfaces.DisplaySink = (*Manager)(nil)

// NewManager creates the hub. An empty allowedOrigins list accepts any origin.
func NewManager(allowedOrigins []string, logger *zap.Logger) *Manager {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Manager{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, sendBuffer),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowed) == 0 || origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		logger: logger.Named("WebSocketManager"),
	}
}

// Run обрабатывает регистрацию клиентов и рассылку до отмены ctx.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			for id, client := range m.clients {
				close(client.Send)
				delete(m.clients, id)
			}
			m.mu.Unlock()
			return

		case client := <-m.register:
			m.mu.Lock()
			m.clients[client.ID] = client
			m.mu.Unlock()
			m.logger.Debug("Client connected", zap.Stringer("clientID", client.ID))

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client.ID]; ok {
				close(client.Send)
				delete(m.clients, client.ID)
				m.logger.Debug("Client disconnected", zap.Stringer("clientID", client.ID))
			}
			m.mu.Unlock()

		case message := <-m.broadcast:
			m.deliver(message)
		}
	}
}

func (m *Manager) deliver(message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		m.logger.Error("Failed to marshal websocket message", zap.String("type", message.Type), zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, client := range m.clients {
		if !client.IsSubscribed(message.Topic) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// Медленный клиент: отключаем, чтобы не тормозить остальных.
			close(client.Send)
			delete(m.clients, id)
			m.logger.Warn("Slow websocket client dropped", zap.Stringer("clientID", id))
		}
	}
}

// Publish queues an event for the topic. Never blocks the game loop: if the
// hub is saturated the event is dropped; the next state event supersedes it.
func (m *Manager) Publish(messageType, topic string, payload interface{}) {
	select {
	case m.broadcast <- Message{Type: messageType, Topic: topic, Payload: payload}:
	default:
		m.logger.Warn("Websocket hub saturated, event dropped", zap.String("type", messageType), zap.String("topic", topic))
	}
}

// StreamUpdated implements interfaces.DisplaySink.
func (m *Manager) StreamUpdated(gameID string, visible string) {
	m.Publish(EventStream, gameID, StreamPayload{Text: visible})
}

// StreamCleared implements interfaces.DisplaySink.
func (m *Manager) StreamCleared(gameID string) {
	m.Publish(EventStreamCleared, gameID, nil)
}

// StateChanged implements interfaces.DisplaySink.
func (m *Manager) StateChanged(state *models.GameState) {
	if state == nil {
		return
	}
	m.Publish(EventState, state.ID, state)
}

// Handle upgrades GET /ws?game_id=... and subscribes the client to the game.
func (m *Manager) Handle(c *gin.Context) {
	gameID := c.Query("game_id")
	if gameID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "game_id is required"})
		return
	}

	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:      uuid.New(),
		Conn:    conn,
		Manager: m,
		Send:    make(chan []byte, sendBuffer),
		topics:  map[string]bool{gameID: true},
	}
	select {
	case m.register <- client:
	case <-m.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// readPump обрабатывает команды подписки от клиента
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Manager.unregister <- c:
		case <-c.Manager.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Manager.logger.Debug("Websocket read error", zap.Error(err))
			}
			return
		}

		var cmd struct {
			Action string `json:"action"`
			Topic  string `json:"topic"`
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}
		switch cmd.Action {
		case "subscribe":
			c.Subscribe(cmd.Topic)
		case "unsubscribe":
			c.Unsubscribe(cmd.Topic)
		}
	}
}

// writePump отправляет сообщения клиенту, по одному JSON на кадр.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Subscribe подписывает клиента на тему
func (c *Client) Subscribe(topic string) {
	if topic == "" {
		return
	}
	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()
	c.topics[topic] = true
}

// Unsubscribe отписывает клиента от темы
func (c *Client) Unsubscribe(topic string) {
	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()
	delete(c.topics, topic)
}

// IsSubscribed проверяет, подписан ли клиент на тему
func (c *Client) IsSubscribed(topic string) bool {
	c.topicsMu.RLock()
	defer c.topicsMu.RUnlock()
	return c.topics[topic]
}
