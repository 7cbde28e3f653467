package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"ridex/internal/config"
	apierrors "ridex/internal/errors"
	"ridex/internal/infrastructure"
)

// forceCloseGrace bounds the wait for a pump after its socket was closed
const forceCloseGrace = time.Second

// GatewayState is the gateway view exposed to health reports
type GatewayState struct {
	Available      bool `json:"available"`
	ActiveChannels uint `json:"activeChannels"`
}

// CORSPolicy decides which browser origins may open channels
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowCredentials bool
}

// Allows reports whether origin may connect. Requests without an Origin
// header come from non-browser clients and are allowed.
func (p CORSPolicy) Allows(origin string) bool {
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	for _, allowed := range p.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Message is the JSON envelope written to channels
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Gateway owns the set of open duplex channels
type Gateway struct {
	cfg        config.WebSocketConfig
	logger     *slog.Logger
	metrics    *OTelMetrics
	errHandler *apierrors.ErrorHandler

	policy   CORSPolicy
	upgrader websocket.Upgrader

	available atomic.Bool
	closing   atomic.Bool

	mu      sync.RWMutex
	clients map[string]*Client
}

// GatewayOption configures a Gateway
type GatewayOption func(*Gateway)

// WithErrorHandler sets the handler that renders rejected upgrades
func WithErrorHandler(h *apierrors.ErrorHandler) GatewayOption {
	return func(g *Gateway) {
		g.errHandler = h
	}
}

// NewGateway creates a detached gateway. metrics may be nil.
func NewGateway(cfg config.WebSocketConfig, logger *slog.Logger, metrics *OTelMetrics, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		logger:  infrastructure.WithComponent(logger, "websocket"),
		metrics: metrics,
		clients: make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.errHandler == nil {
		g.errHandler = apierrors.NewErrorHandler(logger, false)
	}
	return g
}

// Attach mounts the upgrade endpoint on r so channels share the HTTP
// listener. The gateway reports available only after Open.
func (g *Gateway) Attach(r chi.Router, policy CORSPolicy) *Gateway {
	g.policy = policy
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  g.cfg.ReadBufferSize,
		WriteBufferSize: g.cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if g.policy.Allows(origin) {
				return true
			}
			g.logger.WarnContext(r.Context(), "WebSocket origin rejected", slog.String("origin", origin))
			g.metrics.RecordRejectedUpgrade(r.Context(), "origin")
			return false
		},
	}

	r.Get(g.cfg.Path, g.ServeWS)
	r.Options(g.cfg.Path, g.preflight)

	g.logger.Info("Realtime gateway attached",
		slog.String("path", g.cfg.Path),
		slog.Any("allowed_origins", policy.AllowedOrigins))
	return g
}

// Open marks the gateway available once the listener it shares is bound
func (g *Gateway) Open() {
	g.available.Store(true)
}

func (g *Gateway) preflight(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !g.policy.Allows(origin) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", strings.Join(g.policy.AllowedMethods, ", "))
	if g.policy.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Add("Vary", "Origin")
	w.WriteHeader(http.StatusNoContent)
}

// ServeWS upgrades the request and starts the channel pumps
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetReqID(r.Context())
	if traceID == "" {
		traceID = infrastructure.GenerateTraceID()
	}
	ctx := infrastructure.WithTraceID(r.Context(), traceID)

	if g.closing.Load() {
		g.metrics.RecordRejectedUpgrade(ctx, "closing")
		g.errHandler.HandleError(w, r, apierrors.ErrGatewayClosed)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		g.logger.WarnContext(ctx, "WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := newClient(g, NewConnectionWrapper(conn), traceID, g.cfg.SendBufferSize)
	if err := g.register(client); err != nil {
		closeFrame := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down")
		conn.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	g.logger.InfoContext(ctx, "WebSocket client connected",
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr),
		slog.String("origin", r.Header.Get("Origin")))

	go client.WritePump()
	go client.ReadPump()
}

// register adds c to the channel set and queues its welcome message
func (g *Gateway) register(c *Client) error {
	welcome, err := envelope("connected", map[string]string{"id": c.id})
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing.Load() {
		return apierrors.ErrGatewayClosed
	}
	g.clients[c.id] = c
	c.send <- welcome

	g.metrics.RecordConnection(c.context())
	return nil
}

// unregister removes c if it is still in the set. Safe to call repeatedly.
func (g *Gateway) unregister(c *Client, reason string) {
	g.mu.Lock()
	current, ok := g.clients[c.id]
	if ok && current == c {
		delete(g.clients, c.id)
	}
	c.closeSend()
	g.mu.Unlock()

	if ok && current == c {
		g.metrics.RecordDisconnection(c.context(), time.Since(c.connectedAt), reason)
	}
}

func envelope(event string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(Message{Type: event, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q event: %w", event, err)
	}
	return payload, nil
}

// Emit broadcasts event to every open channel. Channels whose buffer is full
// are dropped.
func (g *Gateway) Emit(event string, data interface{}) error {
	payload, err := envelope(event, data)
	if err != nil {
		return err
	}

	var slow []*Client
	g.mu.RLock()
	if g.closing.Load() {
		g.mu.RUnlock()
		return apierrors.ErrGatewayClosed
	}
	for _, c := range g.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	g.mu.RUnlock()

	for _, c := range slow {
		g.metrics.RecordDroppedMessage(c.context(), event)
		g.logger.Warn("Dropping slow WebSocket client", slog.String("client_id", c.id))
		g.unregister(c, "slow_consumer")
	}
	return nil
}

// EmitTo sends event to a single channel
func (g *Gateway) EmitTo(channelID, event string, data interface{}) error {
	payload, err := envelope(event, data)
	if err != nil {
		return err
	}

	g.mu.RLock()
	if g.closing.Load() {
		g.mu.RUnlock()
		return apierrors.ErrGatewayClosed
	}
	c, ok := g.clients[channelID]
	if !ok {
		g.mu.RUnlock()
		return fmt.Errorf("%w: %s", apierrors.ErrChannelNotFound, channelID)
	}
	select {
	case c.send <- payload:
		g.mu.RUnlock()
		return nil
	default:
	}
	g.mu.RUnlock()

	g.metrics.RecordDroppedMessage(c.context(), event)
	g.unregister(c, "slow_consumer")
	return fmt.Errorf("%w: %s buffer full", apierrors.ErrChannelNotFound, channelID)
}

// ChannelCount returns the number of open channels
func (g *Gateway) ChannelCount() uint {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return uint(len(g.clients))
}

// Status returns the gateway view for health reports
func (g *Gateway) Status() GatewayState {
	return GatewayState{
		Available:      g.available.Load(),
		ActiveChannels: g.ChannelCount(),
	}
}

// CloseAll stops accepting channels, sends every open channel a close frame
// and waits for the pumps until ctx is done. Channels still open at that
// point are closed at the socket level. Calling it again is a no-op.
func (g *Gateway) CloseAll(ctx context.Context) error {
	g.mu.Lock()
	g.closing.Store(true)
	clients := make([]*Client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
		c.closeSend()
	}
	g.mu.Unlock()

	if len(clients) == 0 {
		return nil
	}

	start := time.Now()
	var forced atomic.Int64
	var eg errgroup.Group
	for _, c := range clients {
		eg.Go(func() error {
			select {
			case <-c.done:
				return nil
			case <-ctx.Done():
			}

			forced.Add(1)
			g.metrics.RecordForcedClose(c.context())
			c.conn.Close()

			select {
			case <-c.done:
			case <-time.After(forceCloseGrace):
			}
			return fmt.Errorf("channel %s force-closed: %w", c.id, ctx.Err())
		})
	}
	err := eg.Wait()

	g.logger.InfoContext(ctx, "Realtime gateway closed",
		slog.Int("channels", len(clients)),
		slog.Int64("forced", forced.Load()),
		slog.Duration("elapsed", time.Since(start)))

	if err != nil {
		return fmt.Errorf("%d of %d channels did not close in time: %w", forced.Load(), len(clients), err)
	}
	return nil
}
