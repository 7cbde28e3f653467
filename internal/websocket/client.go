package websocket

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ridex/internal/infrastructure"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}

	heartbeatMessage = []byte(`{"type":"heartbeat"}`)
)

// Client is one open duplex channel
type Client struct {
	gateway *Gateway
	conn    Connection

	// Outbound messages; closed exactly once by closeSend
	send      chan []byte
	closeOnce sync.Once

	// Closed when the read pump has released the connection
	done chan struct{}

	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time

	logger *slog.Logger
}

func newClient(g *Gateway, conn Connection, traceID string, bufferSize int) *Client {
	if bufferSize < 1 {
		bufferSize = 1
	}
	id := uuid.New().String()
	return &Client{
		gateway:     g,
		conn:        conn,
		send:        make(chan []byte, bufferSize),
		done:        make(chan struct{}),
		id:          id,
		traceID:     traceID,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		logger:      g.logger.With(slog.String("client_id", id)),
	}
}

// ID returns the channel identifier
func (c *Client) ID() string {
	return c.id
}

// Done is closed once the channel is fully released
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) context() context.Context {
	return infrastructure.WithTraceID(context.Background(), c.traceID)
}

// closeSend tells the write pump to send a close frame and stop
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ReadPump consumes inbound frames until the peer goes away or the
// connection is closed, then unregisters the channel.
func (c *Client) ReadPump() {
	defer func() {
		c.gateway.unregister(c, "read_closed")
		c.conn.Close()
		close(c.done)
		c.logger.InfoContext(c.context(), "WebSocket client disconnected",
			slog.Duration("connection_duration", time.Since(c.connectedAt)))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.WarnContext(c.context(), "Unexpected WebSocket close error", slog.String("error", err.Error()))
			}
			return
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		if bytes.Equal(message, heartbeatMessage) {
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
			continue
		}
		// Inbound client events are routed by collaborators, not the core
		c.logger.DebugContext(c.context(), "Ignoring client message", slog.Int("size", len(message)))
	}
}

// WritePump drains the send buffer and keeps the peer alive with pings. When
// the buffer is closed it sends a going-away close frame and leaves the
// connection open for the peer's reply, which ends the read pump.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	handshake := false
	defer func() {
		ticker.Stop()
		if !handshake {
			c.conn.Close()
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				closeFrame := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				handshake = c.conn.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(writeWait)) == nil
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.ErrorContext(c.context(), "Error writing message to WebSocket", slog.String("error", err.Error()))
				return
			}
			c.gateway.metrics.RecordMessageSent(c.context(), len(message))

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.DebugContext(c.context(), "Failed to send ping message", slog.String("error", err.Error()))
				return
			}
		}
	}
}
