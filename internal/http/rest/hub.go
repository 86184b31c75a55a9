package rest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/italolelis/pdfviewer/internal/logctx"
	"github.com/italolelis/pdfviewer/internal/telemetry"
)

const writeWait = 10 * time.Second

// Hub fans rendered panels out to every connected browser. Each connection keeps only the
// latest undelivered message: a slow browser skips intermediate states, never the last one.
type Hub struct {
	upgrader  websocket.Upgrader
	telemetry *telemetry.Telemetry

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub. tel may be nil.
func NewHub(tel *telemetry.Telemetry) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		telemetry: tel,
		clients:   make(map[*wsClient]struct{}),
	}
}

// Broadcast queues msg for every client without blocking.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		c.offer(msg)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

func (c *wsClient) offer(msg []byte) {
	select {
	case c.send <- msg:
		return
	default:
	}

	// Replace the stale pending message.
	select {
	case <-c.send:
	default:
	}

	select {
	case c.send <- msg:
	default:
	}
}

// Serve upgrades the request and streams messages to it until the browser goes away.
// initial produces the first message. It runs while the client is being registered so no
// broadcast can slip in between it and the client joining.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, initial func() ([]byte, error)) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(ctx, "websocket upgrade failed", "err", err)

		return
	}

	// The server's read timeout may still be armed on the hijacked connection.
	_ = conn.SetReadDeadline(time.Time{})

	c := &wsClient{conn: conn, send: make(chan []byte, 1)}

	if !h.add(ctx, c, initial) {
		conn.Close()

		return
	}

	h.telemetry.IncrementConnections()
	defer h.telemetry.DecrementConnections()

	logger.DebugContext(ctx, "websocket connected", "clients", h.Len())

	go c.writeLoop(ctx)

	// The browser never sends anything; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WarnContext(ctx, "websocket read failed", "err", err)
			}

			break
		}
	}

	h.remove(c)

	logger.DebugContext(ctx, "websocket disconnected")
}

func (h *Hub) add(ctx context.Context, c *wsClient, initial func() ([]byte, error)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	msg, err := initial()
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to build initial message", "err", err)

		return false
	}

	c.send <- msg
	h.clients[c] = struct{}{}

	return true
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	close(c.send)
}

func (c *wsClient) writeLoop(ctx context.Context) {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logctx.LoggerFromContext(ctx).WarnContext(ctx, "websocket write failed", "err", err)

			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
