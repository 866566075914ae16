package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/earthring/chunkstream/internal/auth"
	"github.com/earthring/chunkstream/internal/chunk"
	"github.com/earthring/chunkstream/internal/position"
	"github.com/earthring/chunkstream/internal/world"
)

const (
	// Supported WebSocket protocol versions
	ProtocolVersion1 = "chunkstream-v1"

	// Default ping interval (30 seconds)
	defaultPingInterval = 30 * time.Second

	// Pong wait timeout (60 seconds)
	pongWait = 60 * time.Second

	// Write timeout (10 seconds)
	writeTimeout = 10 * time.Second

	maxMessageSize = 4096
)

// Connection represents an active WebSocket connection
type Connection struct {
	conn       *websocket.Conn
	observerID string
	sessionID  string
	version    string
	send       chan []byte
	hub        *Hub
}

// WebSocketHandlers handles WebSocket connections
type WebSocketHandlers struct {
	hub         *Hub
	positions   *position.Observable
	interaction *world.InteractionState
	chunkSize   int
	validate    *validator.Validate
	upgrader    websocket.Upgrader
}

// NewWebSocketHandlers creates a new WebSocket handlers instance. Position
// updates from any observer are published to positions. interaction may be
// nil, in which case hover and select messages are rejected.
func NewWebSocketHandlers(hub *Hub, positions *position.Observable, interaction *world.InteractionState, chunkSize int, allowedOrigins []string) *WebSocketHandlers {
	return &WebSocketHandlers{
		hub:         hub,
		positions:   positions,
		interaction: interaction,
		chunkSize:   chunkSize,
		validate:    validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no origin.
				if origin == "" {
					return true
				}
				return originAllowed(origin, allowedOrigins)
			},
		},
	}
}

// HandleWebSocket handles WebSocket connection upgrades. It expects to run
// behind auth.TokenService.Middleware.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	observerID, ok := auth.GetObserverID(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	sessionID, _ := auth.GetSessionID(r)

	// Negotiate protocol version
	requestedVersions := r.Header.Get("Sec-WebSocket-Protocol")
	selectedVersion := negotiateVersion(requestedVersions)
	if selectedVersion == "" {
		log.Printf("[API] version negotiation failed: requested=%s", requestedVersions)
		http.Error(w, "Unsupported protocol version", http.StatusBadRequest)
		return
	}

	responseHeaders := http.Header{}
	if requestedVersions != "" {
		responseHeaders.Set("Sec-WebSocket-Protocol", selectedVersion)
	}

	conn, err := h.upgrader.Upgrade(w, r, responseHeaders)
	if err != nil {
		log.Printf("[API] upgrade failed: %v", err)
		return
	}

	wsConn := &Connection{
		conn:       conn,
		observerID: observerID,
		sessionID:  sessionID,
		version:    selectedVersion,
		hub:        h.hub,
	}
	if !h.hub.register(wsConn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeTimeout))
		_ = conn.Close()
		return
	}

	go wsConn.writePump()
	go wsConn.readPump(h)
}

// negotiateVersion selects the highest supported protocol version
func negotiateVersion(requested string) string {
	if requested == "" {
		return ProtocolVersion1
	}

	requestedVersions := strings.Split(requested, ",")
	for i := range requestedVersions {
		requestedVersions[i] = strings.TrimSpace(requestedVersions[i])
	}

	// Supported versions in order (highest first)
	supportedVersions := []string{ProtocolVersion1}

	for _, supported := range supportedVersions {
		for _, requested := range requestedVersions {
			if requested == supported {
				return supported
			}
		}
	}

	return ""
}

// readPump handles incoming messages from the WebSocket connection
func (c *Connection) readPump(handlers *WebSocketHandlers) {
	defer func() {
		c.hub.unregister(c)
		if err := c.conn.Close(); err != nil {
			log.Printf("[API] failed to close connection: %v", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[API] failed to set read deadline: %v", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[API] websocket error for %s: %v", c.observerID, err)
			}
			break
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.sendError("", "Invalid message format", "InvalidMessageFormat")
			continue
		}

		handlers.handleMessage(c, &msg)
	}
}

// writePump handles outgoing messages to the WebSocket connection. Each
// message is its own text frame.
func (c *Connection) writePump() {
	ticker := time.NewTicker(defaultPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply queues a message for this connection.
func (c *Connection) reply(msgType, id string, data interface{}) {
	messageBytes, err := encodeMessage(msgType, id, data)
	if err != nil {
		log.Printf("[API] failed to marshal %s: %v", msgType, err)
		return
	}
	if !c.hub.send(c, messageBytes) {
		log.Printf("[API] failed to send %s to %s: channel full or closed", msgType, c.observerID)
	}
}

// sendError sends an error message to the client
func (c *Connection) sendError(id, errorMsg, code string) {
	messageBytes, err := json.Marshal(WebSocketError{
		Type:    MessageError,
		ID:      id,
		Error:   errorMsg,
		Message: errorMsg,
		Code:    code,
	})
	if err != nil {
		log.Printf("[API] failed to marshal error: %v", err)
		return
	}
	c.hub.send(c, messageBytes)
}

// handleMessage routes messages to appropriate handlers
func (h *WebSocketHandlers) handleMessage(conn *Connection, msg *WebSocketMessage) {
	switch msg.Type {
	case MessagePing:
		conn.reply(MessagePong, msg.ID, nil)
	case MessagePositionUpdate:
		h.handlePositionUpdate(conn, msg)
	case MessageHover:
		h.handleHover(conn, msg)
	case MessageSelect:
		h.handleSelect(conn, msg)
	default:
		conn.sendError(msg.ID, "Unknown message type", "UnknownMessageType")
	}
}

func (h *WebSocketHandlers) decode(conn *Connection, msg *WebSocketMessage, v interface{}) bool {
	if len(msg.Data) == 0 {
		conn.sendError(msg.ID, "Message data is required", "MissingData")
		return false
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		conn.sendError(msg.ID, "Invalid message data", "InvalidMessageData")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		conn.sendError(msg.ID, "Validation failed: "+err.Error(), "ValidationFailed")
		return false
	}
	return true
}

func (h *WebSocketHandlers) handlePositionUpdate(conn *Connection, msg *WebSocketMessage) {
	var update PositionUpdate
	if !h.decode(conn, msg, &update) {
		return
	}
	pos := position.Position{X: *update.X, Y: *update.Y}
	// Subscribers run here; the world manager only queues work on this path.
	h.positions.Set(pos)
	conn.reply(MessagePositionAck, msg.ID, PositionAck{
		X:     pos.X,
		Y:     pos.Y,
		Chunk: chunk.CoordForPosition(pos.X, pos.Y, h.chunkSize),
	})
}

func (h *WebSocketHandlers) handleHover(conn *Connection, msg *WebSocketMessage) {
	if h.interaction == nil {
		conn.sendError(msg.ID, "Interaction is not available", "InteractionUnavailable")
		return
	}
	var update HoverUpdate
	if !h.decode(conn, msg, &update) {
		return
	}
	h.interaction.SetHovered(update.EntityID, update.Chunk, update.Hovered)
}

func (h *WebSocketHandlers) handleSelect(conn *Connection, msg *WebSocketMessage) {
	if h.interaction == nil {
		conn.sendError(msg.ID, "Interaction is not available", "InteractionUnavailable")
		return
	}
	var req SelectRequest
	if !h.decode(conn, msg, &req) {
		return
	}
	h.interaction.Select(req.EntityID, req.Chunk)
}
