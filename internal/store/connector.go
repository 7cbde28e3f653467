package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"ridex/internal/config"
	apierrors "ridex/internal/errors"
	"ridex/internal/infrastructure"
)

// defaultDatabase is used when the URI names no database
const defaultDatabase = "test"

// Client is the subset of *mongo.Client the connector relies on
type Client interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Disconnect(ctx context.Context) error
	Database(name string, opts ...*options.DatabaseOptions) *mongo.Database
}

// Dialer opens a client with the given options
type Dialer func(ctx context.Context, opts *options.ClientOptions) (Client, error)

// MongoDialer dials a real cluster
func MongoDialer(ctx context.Context, opts *options.ClientOptions) (Client, error) {
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Option configures a Connector
type Option func(*Connector)

// WithDialer replaces the driver dial function
func WithDialer(d Dialer) Option {
	return func(c *Connector) { c.dial = d }
}

// WithMetrics records state changes on the lifecycle instruments
func WithMetrics(m *infrastructure.LifecycleMetrics) Option {
	return func(c *Connector) { c.metrics = m }
}

// Connector establishes and supervises the store connection
type Connector struct {
	cfg     config.StoreConfig
	logger  *slog.Logger
	dial    Dialer
	metrics *infrastructure.LifecycleMetrics

	state atomic.Value // ConnectionState

	mu         sync.Mutex
	client     Client
	dbName     string
	lastErr    error
	connecting bool
	closed     bool

	// primaryKnown tracks the last topology description; heartbeats from
	// secondaries must not restore a store without a primary
	primaryKnown bool
}

// NewConnector creates a connector in the disconnected state
func NewConnector(cfg config.StoreConfig, logger *slog.Logger, opts ...Option) *Connector {
	c := &Connector{
		cfg:    cfg,
		logger: infrastructure.WithComponent(logger, "store"),
		dial:   MongoDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(StateDisconnected)
	return c
}

// State returns the current connection state without blocking
func (c *Connector) State() ConnectionState {
	return c.state.Load().(ConnectionState)
}

// LastError returns the most recent connect or driver error
func (c *Connector) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect dials the store and verifies a primary answers within the server
// selection timeout. Calling Connect on a connected store is a no-op.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return apierrors.NewConnectError("connector closed", nil)
	case c.connecting:
		c.mu.Unlock()
		return apierrors.NewConnectError("connect already in progress", nil)
	case c.client != nil:
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
	}()

	cs, err := connstring.ParseAndValidate(c.cfg.URI)
	if err != nil {
		return c.fail(ctx, "invalid connection string", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = defaultDatabase
	}

	c.setState(ctx, StateConnecting)
	c.logger.InfoContext(ctx, "Connecting to MongoDB",
		slog.String("hosts", strings.Join(cs.Hosts, ",")),
		slog.String("database", dbName),
		slog.Duration("selection_timeout", c.cfg.SelectionTimeout))

	opts := options.Client().
		ApplyURI(c.cfg.URI).
		SetServerSelectionTimeout(c.cfg.SelectionTimeout).
		SetSocketTimeout(c.cfg.SocketIdleTimeout).
		SetMaxConnIdleTime(c.cfg.SocketIdleTimeout).
		SetMaxPoolSize(c.cfg.MaxPoolSize).
		SetServerMonitor(c.serverMonitor())

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.SelectionTimeout)
	defer cancel()

	client, err := c.dial(connectCtx, opts)
	if err != nil {
		return c.fail(ctx, "dial failed", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		c.disconnectQuietly(client)
		return c.fail(ctx, fmt.Sprintf("no reachable server within %s", c.cfg.SelectionTimeout), err)
	}

	c.mu.Lock()
	c.client = client
	c.dbName = dbName
	c.lastErr = nil
	c.primaryKnown = true
	c.mu.Unlock()

	c.setState(ctx, StateConnected)
	c.logger.InfoContext(ctx, "MongoDB connected successfully", slog.String("database", dbName))
	return nil
}

// Database returns a handle for collaborators, or ErrNotConnected while the
// connection is not usable
func (c *Connector) Database() (*mongo.Database, error) {
	if !c.State().IsConnected() {
		return nil, apierrors.ErrNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, apierrors.ErrNotConnected
	}
	return c.client.Database(c.dbName), nil
}

// Close disconnects the client. Later calls return nil.
func (c *Connector) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	client := c.client
	c.client = nil
	c.mu.Unlock()

	defer c.setState(ctx, StateDisconnected)

	if client == nil {
		return nil
	}

	closeCtx, cancel := context.WithTimeout(ctx, c.cfg.CloseTimeout)
	defer cancel()

	start := time.Now()
	if err := client.Disconnect(closeCtx); err != nil {
		c.logger.ErrorContext(ctx, "MongoDB close failed", slog.String("error", err.Error()))
		return apierrors.NewCloseError("closingStore", time.Since(start), err)
	}

	c.logger.InfoContext(ctx, "MongoDB connection closed", slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (c *Connector) fail(ctx context.Context, reason string, err error) error {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	c.setState(ctx, StateError)
	c.logger.ErrorContext(ctx, "MongoDB connection error",
		slog.String("reason", reason),
		slog.String("error", err.Error()))
	return apierrors.NewConnectError(reason, err)
}

func (c *Connector) disconnectQuietly(client Client) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CloseTimeout)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		c.logger.Debug("discarding half-open client failed", slog.String("error", err.Error()))
	}
}

// setState publishes s and reports whether it changed
func (c *Connector) setState(ctx context.Context, s ConnectionState) bool {
	if prev := c.state.Swap(s); prev == s {
		return false
	}
	c.metrics.RecordStoreState(ctx, s.String())
	return true
}
