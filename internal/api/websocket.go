package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/astrobridge/internal/event"
	"github.com/nerrad567/astrobridge/internal/infrastructure/config"
	"github.com/nerrad567/astrobridge/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe          = "Subscribe"
	WSTypeUnsubscribe        = "Unsubscribe"
	WSTypeAvailableChannels  = "AvailableChannels"
	WSTypeSubscribedChannels = "SubscribedChannels"
	WSTypeServer             = "Server"

	// defaultSendBufferSize is used when websocket.send_buffer is unset.
	defaultSendBufferSize = 256

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is a client request or a server reply.
//
// Requests carry a channel name in Data for Subscribe and Unsubscribe.
// Replies echo RequestId and carry a confirmation string, a channel list or
// an error string.
type WSMessage struct {
	Type      string `json:"Type"`
	RequestID string `json:"RequestId,omitempty"`
	Data      any    `json:"Data,omitempty"`
}

// wsRequest is the decoded form of an inbound WSMessage.
type wsRequest struct {
	Type      string          `json:"Type"`
	RequestID string          `json:"RequestId"`
	Data      json.RawMessage `json:"Data"`
}

// Hub tracks the connected WebSocket clients. Event fan-out is done by the
// broadcaster; the hub owns connection lifetimes.
type Hub struct {
	broadcaster *event.Broadcaster
	cfg         config.WebSocketConfig
	logger      *logging.Logger
	onDrop      func()

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one WebSocket connection registered with the broadcaster.
type WSClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
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
func NewHub(b *event.Broadcaster, cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		broadcaster: b,
		cfg:         cfg,
		logger:      logger,
		clients:     make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub and to the broadcaster, subscribed to
// every channel.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.broadcaster.RegisterClient(c)
	h.logger.Debug("websocket client connected", "client_id", c.id, "clients", h.ClientCount())
}

// Unregister removes a client from the hub and the broadcaster and closes
// its send channel.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	h.broadcaster.UnregisterClient(c)
	c.close()
	h.logger.Debug("websocket client disconnected", "client_id", c.id, "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.broadcaster.UnregisterClient(c)
		c.close()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

func (h *Hub) sendBufferSize() int {
	if h.cfg.SendBuffer < 1 {
		return defaultSendBufferSize
	}
	return h.cfg.SendBuffer
}

func (h *Hub) pingInterval() time.Duration {
	if h.cfg.PingInterval < 1 {
		return defaultPingInterval
	}
	return time.Duration(h.cfg.PingInterval) * time.Second
}

func (h *Hub) pongTimeout() time.Duration {
	if h.cfg.PongTimeout < 1 {
		return defaultPongTimeout
	}
	return time.Duration(h.cfg.PongTimeout) * time.Second
}

func newWSClient(h *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBufferSize()),
	}
}

// ID identifies the client to the broadcaster.
func (c *WSClient) ID() string { return c.id }

// Deliver queues a frame for the write pump. A full buffer drops the frame;
// a closed client reports event.ErrClientGone so the broadcaster removes it.
func (c *WSClient) Deliver(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return event.ErrClientGone
	}
	select {
	case c.send <- frame:
	default:
		c.hub.logger.Debug("websocket send buffer full, frame dropped", "client_id", c.id)
		if c.hub.onDrop != nil {
			c.hub.onDrop()
		}
	}
	return nil
}

// close closes the send channel once.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn)
	s.hub.Register(client)

	// Start read/write pumps
	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	deadline := c.hub.pingInterval() + c.hub.pongTimeout()
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "client_id", c.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := c.hub.pongTimeout()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Send channel closed by Unregister or shutdown
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", "invalid JSON message")
		return
	}

	b := c.hub.broadcaster
	switch req.Type {
	case WSTypeSubscribe:
		ch, ok := c.channelArg(req)
		if !ok {
			return
		}
		if err := b.Subscribe(c, ch); err != nil {
			c.reply(req.RequestID, err.Error())
			return
		}
		c.hub.logger.Debug("websocket client subscribed", "client_id", c.id, "channel", ch)
		c.reply(req.RequestID, fmt.Sprintf("Subscribed to %s", ch))

	case WSTypeUnsubscribe:
		ch, ok := c.channelArg(req)
		if !ok {
			return
		}
		if err := b.Unsubscribe(c, ch); err != nil {
			c.reply(req.RequestID, err.Error())
			return
		}
		c.reply(req.RequestID, fmt.Sprintf("Unsubscribed from %s", ch))

	case WSTypeAvailableChannels:
		c.reply(req.RequestID, event.Channels())

	case WSTypeSubscribedChannels:
		channels, err := b.SubscribedChannels(c)
		if err != nil {
			c.reply(req.RequestID, err.Error())
			return
		}
		c.reply(req.RequestID, channels)

	default:
		c.reply(req.RequestID, "unknown message type: "+req.Type)
	}
}

// channelArg decodes the channel named in req.Data, replying with an error
// string when it is missing or unknown.
func (c *WSClient) channelArg(req wsRequest) (event.Channel, bool) {
	var name string
	if err := json.Unmarshal(req.Data, &name); err != nil || name == "" {
		c.reply(req.RequestID, "Data must name a channel")
		return "", false
	}
	ch, err := event.ParseChannel(name)
	if err != nil {
		c.reply(req.RequestID, fmt.Sprintf("unknown channel: %s", name))
		return "", false
	}
	return ch, true
}

// reply sends a Server message echoing requestID.
func (c *WSClient) reply(requestID string, data any) {
	frame, err := json.Marshal(WSMessage{
		Type:      WSTypeServer,
		RequestID: requestID,
		Data:      data,
	})
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket reply", "error", err)
		return
	}
	//nolint:errcheck // A closed client is already being unregistered
	c.Deliver(frame)
}
