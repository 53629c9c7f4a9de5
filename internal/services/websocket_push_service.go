package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"datalabel-backend/internal/events"
	"datalabel-backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	pingInterval = 54 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256
)

// WebSocket Upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// origin is enforced by the CORS layer in front of the handshake
		return true
	},
}

// Connection information
type Connection struct {
	ID          string          `json:"id"`
	UserAddress string          `json:"user_address"`
	Conn        *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	LastPing    time.Time       `json:"last_ping"`
}

// Push message base structure
type PushMessage struct {
	Type        string      `json:"type"`
	Timestamp   string      `json:"timestamp"`
	MessageID   string      `json:"message_id"`
	UserAddress string      `json:"user_address"`
	Data        interface{} `json:"data"`
}

// WebSocketPushService pushes task events to the wallets involved in them
type WebSocketPushService struct {
	connections map[string]*Connection   // key: connectionID
	userConns   map[string][]*Connection // key: userAddress
	hub         chan PushMessage
	register    chan *Connection
	unregister  chan *Connection
	done        chan struct{}
	stopped     chan struct{}
	stopOnce    sync.Once
	mutex       sync.RWMutex
	logger      *logrus.Logger
}

func NewWebSocketPushService(logger *logrus.Logger) *WebSocketPushService {
	service := &WebSocketPushService{
		connections: make(map[string]*Connection),
		userConns:   make(map[string][]*Connection),
		hub:         make(chan PushMessage, sendBuffer),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		logger:      logger,
	}

	go service.run()
	return service
}

func (s *WebSocketPushService) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			s.closeAll()
			return

		case conn := <-s.register:
			s.handleRegister(conn)

		case conn := <-s.unregister:
			s.handleUnregister(conn)

		case message := <-s.hub:
			s.handleBroadcast(message)
		}
	}
}

// Stop ends the hub loop and closes every open connection. Safe to call twice.
func (s *WebSocketPushService) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		<-s.stopped
		s.logger.Info("🛑 WebSocket push service stopped")
	})
}

func (s *WebSocketPushService) closeAll() {
	s.mutex.RLock()
	open := make([]*Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		open = append(open, conn)
	}
	s.mutex.RUnlock()
	for _, conn := range open {
		s.handleUnregister(conn)
	}
}

// RegisterConnection adds a connection whose pumps are managed by the caller.
// Returns false once the service is stopped.
func (s *WebSocketPushService) RegisterConnection(conn *Connection) bool {
	select {
	case s.register <- conn:
		return true
	case <-s.done:
		return false
	}
}

// UnregisterConnection removes a connection and closes its Send channel
func (s *WebSocketPushService) UnregisterConnection(conn *Connection) {
	select {
	case s.unregister <- conn:
	case <-s.done:
	}
}

func (s *WebSocketPushService) handleRegister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.connections[conn.ID] = conn
	s.userConns[conn.UserAddress] = append(s.userConns[conn.UserAddress], conn)
	metrics.WebSocketConnections.Set(float64(len(s.connections)))

	s.logger.WithFields(logrus.Fields{
		"user":    conn.UserAddress,
		"conn_id": conn.ID,
	}).Info("📱 WebSocket connection registered")

	if conn.Send != nil {
		s.sendToConnection(conn, PushMessage{
			Type:        "connection_established",
			Timestamp:   time.Now().Format(time.RFC3339),
			MessageID:   generateMessageID(),
			UserAddress: conn.UserAddress,
			Data: map[string]interface{}{
				"user_address":  conn.UserAddress,
				"connection_id": conn.ID,
				"message":       "Real-time task updates connected",
			},
		})
	}
}

func (s *WebSocketPushService) handleUnregister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.connections[conn.ID]; !exists {
		return
	}
	delete(s.connections, conn.ID)

	if userConns, exists := s.userConns[conn.UserAddress]; exists {
		for i, c := range userConns {
			if c.ID == conn.ID {
				s.userConns[conn.UserAddress] = append(userConns[:i], userConns[i+1:]...)
				break
			}
		}
		if len(s.userConns[conn.UserAddress]) == 0 {
			delete(s.userConns, conn.UserAddress)
		}
	}
	metrics.WebSocketConnections.Set(float64(len(s.connections)))

	if conn.Send != nil {
		close(conn.Send)
	}
	if conn.Conn != nil {
		conn.Conn.Close()
	}

	s.logger.WithFields(logrus.Fields{
		"user":    conn.UserAddress,
		"conn_id": conn.ID,
	}).Info("📱 WebSocket connection unregistered")
}

func (s *WebSocketPushService) handleBroadcast(message PushMessage) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	userConns, exists := s.userConns[message.UserAddress]
	if !exists {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		s.logger.WithError(err).Error("❌ Failed to marshal push message")
		return
	}

	failed := 0
	for _, conn := range userConns {
		select {
		case conn.Send <- data:
		default:
			// slow consumer, drop rather than block the hub
			failed++
		}
	}
	s.logger.WithFields(logrus.Fields{
		"user":   message.UserAddress,
		"type":   message.Type,
		"sent":   len(userConns) - failed,
		"failed": failed,
	}).Debug("📤 Push message delivered")
}

func (s *WebSocketPushService) sendToConnection(conn *Connection, message PushMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		s.logger.WithError(err).Error("❌ Failed to marshal push message")
		return
	}
	select {
	case conn.Send <- data:
	default:
		s.logger.WithField("conn_id", conn.ID).Warn("⚠️ Failed to send to connection")
	}
}

// PublishTaskEvent queues the event for every wallet the event concerns
func (s *WebSocketPushService) PublishTaskEvent(ctx context.Context, event events.TaskEvent) {
	for _, addr := range event.Recipients() {
		message := PushMessage{
			Type:        "task_" + string(event.Type),
			Timestamp:   event.OccurredAt.Format(time.RFC3339),
			MessageID:   generateMessageID(),
			UserAddress: addr,
			Data:        event,
		}
		select {
		case s.hub <- message:
		default:
			s.logger.WithFields(logrus.Fields{
				"task_id": event.TaskID,
				"user":    addr,
			}).Warn("⚠️ Push hub full, dropping task event")
		}
	}
}

// HandleWebSocket upgrades the request and serves pushes for userAddress
func (s *WebSocketPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, userAddress string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("❌ WebSocket upgrade failed")
		return
	}

	connection := &Connection{
		ID:          generateConnectionID(),
		UserAddress: userAddress,
		Conn:        conn,
		Send:        make(chan []byte, sendBuffer),
		LastPing:    time.Now(),
	}
	if !s.RegisterConnection(connection) {
		conn.Close()
		return
	}

	go s.handleConnectionWrite(connection)
	go s.handleConnectionRead(connection)
}

func (s *WebSocketPushService) handleConnectionWrite(conn *Connection) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.WithError(err).Debug("WebSocket write failed")
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleConnectionRead only services pongs and close frames; clients never send data
func (s *WebSocketPushService) handleConnectionRead(conn *Connection) {
	defer s.UnregisterConnection(conn)

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.LastPing = time.Now()
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).Debug("WebSocket read error")
			}
			return
		}
	}
}

// GetActiveConnections number of open connections
func (s *WebSocketPushService) GetActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

// GetUserConnections number of open connections for a wallet
func (s *WebSocketPushService) GetUserConnections(userAddress string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.userConns[userAddress])
}

func generateConnectionID() string {
	return "conn_" + uuid.NewString()
}

func generateMessageID() string {
	return "msg_" + uuid.NewString()
}
