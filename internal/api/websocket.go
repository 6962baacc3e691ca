package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/plc-core/internal/controller"
	"github.com/nerrad567/plc-core/internal/dimmer"
	"github.com/nerrad567/plc-core/internal/infrastructure/config"
	"github.com/nerrad567/plc-core/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	// Client to server.
	WSTypeApply   = "apply"
	WSTypeUpdate  = "update"
	WSTypeCreate  = "create"
	WSTypeDelete  = "delete"
	WSTypePing    = "ping"
	WSTypePersist = "persist_defaults"

	// Server to client.
	WSTypeDimmers  = "dimmers"
	WSTypeRegistry = "registry"
	WSTypePong     = "pong"
	WSTypeResponse = "response"
	WSTypeError    = "error"

	// defaultSendQueue is used when the configured queue size is not positive.
	defaultSendQueue = 256
)

// WSMessage is the envelope for every WebSocket frame in both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// DimmersPayload carries universe levels. Origin is "full" for the
// complete computed state and "input" for live input deltas.
type DimmersPayload struct {
	Origin string        `json:"origin"`
	Levels dimmer.Levels `json:"levels"`
}

// RegistryPayload carries an exported registry or entity blob.
type RegistryPayload struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// EntityPayload names an entity for create and delete.
type EntityPayload struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// UpdatePayload carries an entity blob to merge.
type UpdatePayload struct {
	Kind string `json:"kind"`
	Data []byte `json:"data"`
}

// ErrorPayload is the payload of an "error" reply.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Hub tracks open WebSocket connections.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is a connected WebSocket peer. It implements
// controller.StatefulClient: it starts connecting, becomes registered once
// the controller has sent the join state, and is unregistered for good when
// its send queue closes.
type WSClient struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	state  controller.ClientState
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "client_id", client.id, "clients", h.ClientCount())
}

// Unregister removes a client from the hub and closes its send queue so the
// write pump exits.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		client.closeSend()
	}
	h.logger.Debug("websocket client disconnected", "client_id", client.id, "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send queues.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.closeSend()
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the connection and registers the peer with the
// controller, which sends it the join state before any other broadcast.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	queue := s.cfg.WebSocket.SendQueue
	if queue <= 0 {
		queue = defaultSendQueue
	}
	client := &WSClient{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan []byte, queue),
	}

	s.hub.Register(client)
	go client.writePump()

	if err := s.ctrl.RegisterClient(s.ctx, client); err != nil {
		s.logger.Warn("websocket client registration failed", "client_id", client.id, "error", err)
		s.hub.Unregister(client)
		return
	}
	if !client.markRegistered() {
		// Closed while joining.
		//nolint:errcheck // ErrStopped during shutdown is expected
		s.ctrl.UnregisterClient(context.Background(), client)
		return
	}

	go client.readPump()
}

// ID returns the client's connection id.
func (c *WSClient) ID() string { return c.id }

// State returns where the client is in its lifecycle.
func (c *WSClient) State() controller.ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// markRegistered moves a connecting client to registered. It reports false
// if the client was already unregistered.
func (c *WSClient) markRegistered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == controller.StateUnregistered {
		return false
	}
	c.state = controller.StateRegistered
	return true
}

// Send encodes msg and queues it without blocking. A full queue closes the
// connection.
func (c *WSClient) Send(msg controller.Message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if err := c.enqueue(data); err != nil {
		if errors.Is(err, ErrSendQueueFull) {
			c.conn.Close()
		}
		return err
	}
	return nil
}

func (c *WSClient) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == controller.StateUnregistered {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// closeSend unregisters the client and closes its send queue. It is safe to
// call more than once.
func (c *WSClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != controller.StateUnregistered {
		c.state = controller.StateUnregistered
		close(c.send)
	}
}

// readPump reads messages from the WebSocket connection until it fails,
// then unregisters the client.
func (c *WSClient) readPump() {
	s := c.server
	defer func() {
		//nolint:errcheck // ErrStopped during shutdown is expected
		s.ctrl.UnregisterClient(context.Background(), c)
		s.hub.Unregister(c)
		c.conn.Close()
	}()

	cfg := s.cfg.WebSocket
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			} else {
				s.logger.Debug("websocket closed", "client_id", c.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if browser doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes queued messages and periodic pings.
func (c *WSClient) writePump() {
	cfg := c.server.cfg.WebSocket
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", ErrCodeBadRequest, "invalid JSON message")
		return
	}

	ctx := c.server.ctx
	ctrl := c.server.ctrl

	switch msg.Type {
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)

	case WSTypeApply:
		var req ApplyRequest
		if !c.decode(msg, &req) {
			return
		}
		u, err := req.toUpdate()
		if err == nil {
			err = ctrl.ApplyUpdate(ctx, u)
		}
		c.reply(msg.ID, nil, err)

	case WSTypeUpdate:
		var req UpdatePayload
		if !c.decode(msg, &req) {
			return
		}
		kind, err := dimmer.ParseKind(req.Kind)
		var id string
		if err == nil {
			id, err = ctrl.ImportEntity(ctx, kind, req.Data)
		}
		c.reply(msg.ID, map[string]string{"id": id}, err)

	case WSTypeCreate, WSTypeDelete:
		var req EntityPayload
		if !c.decode(msg, &req) {
			return
		}
		kind, err := dimmer.ParseKind(req.Kind)
		if err == nil {
			if msg.Type == WSTypeCreate {
				err = ctrl.Create(ctx, kind, req.ID)
			} else {
				err = ctrl.Delete(ctx, kind, req.ID)
			}
		}
		c.reply(msg.ID, map[string]string{"id": req.ID}, err)

	case WSTypePersist:
		var req EntityPayload
		if !c.decode(msg, &req) {
			return
		}
		err := ctrl.PersistCueDefaults(ctx, req.ID)
		c.reply(msg.ID, map[string]string{"id": req.ID}, err)

	default:
		c.sendError(msg.ID, ErrCodeBadRequest, "unknown message type: "+msg.Type)
	}
}

func (c *WSClient) decode(msg WSMessage, v any) bool {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		c.sendError(msg.ID, ErrCodeBadRequest, "invalid "+msg.Type+" payload")
		return false
	}
	return true
}

func (c *WSClient) reply(id string, payload any, err error) {
	if err != nil {
		_, code := classify(err)
		c.sendError(id, code, err.Error())
		return
	}
	c.sendResponse(id, WSTypeResponse, payload)
}

// sendResponse queues a reply. Replies to a closed or saturated client are
// dropped.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := marshalEnvelope(msgType, id, payload)
	if err != nil {
		return
	}
	//nolint:errcheck // Dropped like any other message to a dead client
	c.enqueue(data)
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, code, message string) {
	c.sendResponse(id, WSTypeError, ErrorPayload{Code: code, Message: message})
}

// encodeMessage renders a controller message as a WebSocket frame.
func encodeMessage(msg controller.Message) ([]byte, error) {
	switch m := msg.(type) {
	case controller.DimmerState:
		levels := m.Levels
		if levels == nil {
			levels = dimmer.Levels{}
		}
		return marshalEnvelope(WSTypeDimmers, "", DimmersPayload{Origin: string(m.Origin), Levels: levels})
	case controller.RegistrySnapshot:
		return marshalEnvelope(WSTypeRegistry, "", RegistryPayload{Name: m.Name, Data: m.Data})
	default:
		return nil, fmt.Errorf("api: unsupported message %T", msg)
	}
}

func marshalEnvelope(msgType, id string, payload any) ([]byte, error) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}
