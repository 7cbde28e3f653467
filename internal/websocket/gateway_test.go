package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridex/internal/config"
	apierrors "ridex/internal/errors"
)

const testOrigin = "http://localhost:5173"

func testPolicy() CORSPolicy {
	return CORSPolicy{
		AllowedOrigins:   []string{testOrigin},
		AllowedMethods:   []string{"GET", "POST"},
		AllowCredentials: true,
	}
}

func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()
	g := NewGateway(config.Default().WebSocket, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	r := chi.NewRouter()
	g.Attach(r, testPolicy())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	g.Open()
	return g, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, srv *httptest.Server) (*websocket.Conn, string) {
	t.Helper()
	header := http.Header{"Origin": []string{testOrigin}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := readMessage(t, conn)
	require.Equal(t, "connected", msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	return conn, data["id"].(string)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

// TestGatewayStatus tests that mounting alone does not make the gateway
// available; only Open does
func TestGatewayStatus(t *testing.T) {
	g := NewGateway(config.Default().WebSocket, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	assert.Equal(t, GatewayState{}, g.Status())

	g.Attach(chi.NewRouter(), testPolicy())
	assert.Equal(t, GatewayState{}, g.Status())

	g.Open()
	assert.Equal(t, GatewayState{Available: true}, g.Status())
}

// TestGatewayEmit tests broadcast and targeted delivery
func TestGatewayEmit(t *testing.T) {
	g, srv := newTestGateway(t)

	first, firstID := dial(t, srv)
	second, _ := dial(t, srv)
	assert.Eventually(t, func() bool { return g.ChannelCount() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, g.Emit("ride:requested", map[string]string{"ride": "r-1"}))
	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, "ride:requested", msg.Type)
		assert.Equal(t, map[string]interface{}{"ride": "r-1"}, msg.Data)
		assert.False(t, msg.Timestamp.IsZero())
	}

	require.NoError(t, g.EmitTo(firstID, "ride:accepted", "r-1"))
	msg := readMessage(t, first)
	assert.Equal(t, "ride:accepted", msg.Type)

	err := g.EmitTo("missing", "ride:accepted", nil)
	assert.ErrorIs(t, err, apierrors.ErrChannelNotFound)

	assert.Equal(t, GatewayState{Available: true, ActiveChannels: 2}, g.Status())
}

// TestGatewayClientDisconnect tests that closed peers leave the set
func TestGatewayClientDisconnect(t *testing.T) {
	g, srv := newTestGateway(t)

	conn, _ := dial(t, srv)
	assert.Eventually(t, func() bool { return g.ChannelCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	assert.Eventually(t, func() bool { return g.ChannelCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

// TestGatewayOriginPolicy tests the upgrade origin check
func TestGatewayOriginPolicy(t *testing.T) {
	_, srv := newTestGateway(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	conn.Close()
}

// TestGatewayPreflight tests the CORS preflight on the upgrade path
func TestGatewayPreflight(t *testing.T) {
	_, srv := newTestGateway(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/ws", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", testOrigin)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, testOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "http://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// TestCORSPolicyAllows tests origin matching
func TestCORSPolicyAllows(t *testing.T) {
	p := testPolicy()
	assert.True(t, p.Allows(""))
	assert.True(t, p.Allows(testOrigin))
	assert.True(t, p.Allows(testOrigin+"/"))
	assert.False(t, p.Allows("http://localhost:3000"))
	assert.True(t, CORSPolicy{AllowedOrigins: []string{"*"}}.Allows("http://any"))
}

// TestGatewayCloseAllCooperative tests a clean close handshake
func TestGatewayCloseAllCooperative(t *testing.T) {
	g, srv := newTestGateway(t)
	conn, _ := dial(t, srv)

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, g.CloseAll(ctx))
	assert.Equal(t, uint(0), g.ChannelCount())

	select {
	case err := <-readErr:
		assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not observe the close frame")
	}

	assert.ErrorIs(t, g.Emit("late", nil), apierrors.ErrGatewayClosed)
	assert.ErrorIs(t, g.EmitTo("x", "late", nil), apierrors.ErrGatewayClosed)
	assert.NoError(t, g.CloseAll(ctx))
	assert.True(t, g.Status().Available)
}

// TestGatewayCloseAllUnresponsive tests force-closing a peer that never
// answers the close frame
func TestGatewayCloseAllUnresponsive(t *testing.T) {
	g, srv := newTestGateway(t)
	dial(t, srv) // never reads again

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := g.CloseAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Eventually(t, func() bool { return g.ChannelCount() == 0 }, time.Second, 10*time.Millisecond)
}

// TestGatewayRejectsAfterClose tests that no channel opens once closing
func TestGatewayRejectsAfterClose(t *testing.T) {
	g, srv := newTestGateway(t)
	require.NoError(t, g.CloseAll(context.Background()))

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), http.Header{"Origin": []string{testOrigin}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, uint(0), g.ChannelCount())

	var problem map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, apierrors.TypeGatewayClosed, problem["type"])
	assert.Equal(t, "/ws", problem["instance"])
}

// TestGatewayChannelCountConcurrent tests the count under churn
func TestGatewayChannelCountConcurrent(t *testing.T) {
	g, srv := newTestGateway(t)

	const clients = 20
	var wg sync.WaitGroup
	stop := make(chan struct{})
	sampled := make(chan struct{})
	var maxSeen uint

	go func() {
		defer close(sampled)
		for {
			select {
			case <-stop:
				return
			default:
				if n := g.ChannelCount(); n > maxSeen {
					maxSeen = n
				}
			}
		}
	}()

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
			if !assert.NoError(t, err) {
				return
			}
			time.Sleep(10 * time.Millisecond)
			conn.Close()
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return g.ChannelCount() == 0 }, 3*time.Second, 10*time.Millisecond)
	close(stop)
	<-sampled
	assert.LessOrEqual(t, maxSeen, uint(clients))
}

// TestGatewaySlowConsumer tests that a full buffer drops the channel
func TestGatewaySlowConsumer(t *testing.T) {
	cfg := config.Default().WebSocket
	cfg.SendBufferSize = 1
	g := NewGateway(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	conn := newMockConnection()
	c := newClient(g, conn, "trace-1", cfg.SendBufferSize)
	require.NoError(t, g.register(c)) // welcome fills the buffer
	assert.Equal(t, uint(1), g.ChannelCount())

	require.NoError(t, g.Emit("ride:update", nil))
	assert.Equal(t, uint(0), g.ChannelCount())

	// The buffered welcome is still delivered before the channel closes
	_, ok := <-c.send
	assert.True(t, ok)
	_, ok = <-c.send
	assert.False(t, ok)
}

// TestClientPumps tests pump behavior against an in-memory connection
func TestClientPumps(t *testing.T) {
	g := NewGateway(config.Default().WebSocket, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	conn := newMockConnection()
	c := newClient(g, conn, "trace-2", 8)
	require.NoError(t, g.register(c))

	go c.WritePump()
	go c.ReadPump()

	conn.inbound <- []byte(`{"type":"heartbeat"}`)
	require.NoError(t, g.EmitTo(c.ID(), "ping", "x"))

	assert.Eventually(t, func() bool { return len(conn.frames()) >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := g.CloseAll(ctx)
	// The mock never replies to the close frame, so the socket is forced
	require.Error(t, err)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("read pump did not exit")
	}
	assert.True(t, conn.isClosed())

	frames := conn.frames()
	last := frames[len(frames)-1]
	assert.Equal(t, websocket.CloseMessage, last.Type)
	assert.Equal(t, uint(0), g.ChannelCount())
}

// TestDecorate tests the request context decorator
func TestDecorate(t *testing.T) {
	g := NewGateway(config.Default().WebSocket, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	var got Emitter
	h := g.Decorate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e, ok := EmitterFromContext(r.Context())
		require.True(t, ok)
		got = e
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/rides", nil))
	assert.Same(t, g, got.(*Gateway))

	_, ok := EmitterFromContext(context.Background())
	assert.False(t, ok)
}

// TestEnvelopeEncodingError tests that unencodable data is reported
func TestEnvelopeEncodingError(t *testing.T) {
	g := NewGateway(config.Default().WebSocket, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	err := g.Emit("bad", make(chan int))
	require.Error(t, err)
	assert.False(t, errors.Is(err, apierrors.ErrGatewayClosed))
}
