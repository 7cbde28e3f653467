package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo/description"

	"ridex/internal/shared/testutil"
)

func topologyEvent(kinds ...description.ServerKind) *event.TopologyDescriptionChangedEvent {
	servers := make([]description.Server, 0, len(kinds))
	for _, k := range kinds {
		servers = append(servers, description.Server{Kind: k})
	}
	return &event.TopologyDescriptionChangedEvent{
		NewDescription: description.Topology{Servers: servers},
	}
}

// TestMonitorTransitions tests driver events after a successful connect
func TestMonitorTransitions(t *testing.T) {
	fake := &testutil.FakeMongoClient{}
	c, handler := newTestConnector(t, fake, testStoreConfig())
	require.NoError(t, c.Connect(context.Background()))

	monitor := fake.LastOptions().ServerMonitor
	require.NotNil(t, monitor)

	var unknown description.ServerKind

	monitor.TopologyDescriptionChanged(topologyEvent(unknown))
	assert.Equal(t, StateDisconnected, c.State())
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "MongoDB disconnected")

	_, err := c.Database()
	assert.Error(t, err)

	monitor.TopologyDescriptionChanged(topologyEvent(unknown, description.Standalone))
	assert.Equal(t, StateConnected, c.State())
	testutil.AssertLogContains(t, handler, slog.LevelInfo, "MongoDB reconnected")

	failure := errors.New("connection reset by peer")
	monitor.ServerHeartbeatFailed(&event.ServerHeartbeatFailedEvent{Failure: failure})
	assert.Equal(t, StateError, c.State())
	assert.ErrorIs(t, c.LastError(), failure)

	monitor.ServerHeartbeatSucceeded(&event.ServerHeartbeatSucceededEvent{})
	assert.Equal(t, StateConnected, c.State())

	_, err = c.Database()
	assert.NoError(t, err)
}

// TestMonitorIgnoredOutsideSupervision tests that events before connect and
// after close leave the state alone
func TestMonitorIgnoredOutsideSupervision(t *testing.T) {
	fake := &testutil.FakeMongoClient{}
	c, _ := newTestConnector(t, fake, testStoreConfig())

	early := c.serverMonitor()
	early.TopologyDescriptionChanged(topologyEvent(description.Standalone))
	early.ServerHeartbeatFailed(&event.ServerHeartbeatFailedEvent{Failure: errors.New("x")})
	assert.Equal(t, StateDisconnected, c.State())
	assert.NoError(t, c.LastError())

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close(context.Background()))

	monitor := fake.LastOptions().ServerMonitor
	monitor.TopologyDescriptionChanged(topologyEvent(description.Standalone))
	monitor.ServerHeartbeatSucceeded(&event.ServerHeartbeatSucceededEvent{})
	assert.Equal(t, StateDisconnected, c.State())
}

// TestPrimaryAvailable tests server kind inspection
func TestPrimaryAvailable(t *testing.T) {
	var unknown description.ServerKind

	tests := []struct {
		name  string
		kinds []description.ServerKind
		want  bool
	}{
		{"empty", nil, false},
		{"all unknown", []description.ServerKind{unknown, unknown}, false},
		{"secondaries only", []description.ServerKind{description.RSSecondary, description.RSSecondary, unknown}, false},
		{"arbiter and secondary", []description.ServerKind{description.RSArbiter, description.RSSecondary}, false},
		{"primary", []description.ServerKind{unknown, description.RSPrimary}, true},
		{"standalone", []description.ServerKind{description.Standalone}, true},
		{"mongos", []description.ServerKind{description.Mongos}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, primaryAvailable(topologyEvent(tt.kinds...).NewDescription))
		})
	}
}

// TestMonitorReplicaSetWithoutPrimary tests that secondaries keep answering
// heartbeats after the primary is lost without the store looking connected
func TestMonitorReplicaSetWithoutPrimary(t *testing.T) {
	fake := &testutil.FakeMongoClient{}
	c, _ := newTestConnector(t, fake, testStoreConfig())
	require.NoError(t, c.Connect(context.Background()))
	monitor := fake.LastOptions().ServerMonitor

	var unknown description.ServerKind

	// Primary heartbeat fails, then the topology drops it
	monitor.ServerHeartbeatFailed(&event.ServerHeartbeatFailedEvent{Failure: errors.New("connection refused")})
	assert.Equal(t, StateError, c.State())
	monitor.TopologyDescriptionChanged(topologyEvent(unknown, description.RSSecondary, description.RSSecondary))
	assert.Equal(t, StateDisconnected, c.State())

	monitor.ServerHeartbeatSucceeded(&event.ServerHeartbeatSucceededEvent{})
	assert.Equal(t, StateDisconnected, c.State())

	// A heartbeat failure seen before the topology update leaves error in
	// place until a primary is known again
	monitor.ServerHeartbeatFailed(&event.ServerHeartbeatFailedEvent{Failure: errors.New("timeout")})
	assert.Equal(t, StateDisconnected, c.State())

	monitor.TopologyDescriptionChanged(topologyEvent(description.RSSecondary, description.RSPrimary))
	assert.Equal(t, StateConnected, c.State())
}

// TestMonitorHeartbeatNeedsPrimary tests that a heartbeat success does not
// clear an error while the last topology had no primary
func TestMonitorHeartbeatNeedsPrimary(t *testing.T) {
	fake := &testutil.FakeMongoClient{}
	c, _ := newTestConnector(t, fake, testStoreConfig())
	require.NoError(t, c.Connect(context.Background()))
	monitor := fake.LastOptions().ServerMonitor

	// Secondaries only: the store goes down, then a stray reconnect makes
	// it look connected to the heartbeat handler
	monitor.TopologyDescriptionChanged(topologyEvent(description.RSSecondary))
	require.Equal(t, StateDisconnected, c.State())

	c.mu.Lock()
	c.setState(context.Background(), StateError)
	c.mu.Unlock()

	monitor.ServerHeartbeatSucceeded(&event.ServerHeartbeatSucceededEvent{})
	assert.Equal(t, StateError, c.State())

	monitor.TopologyDescriptionChanged(topologyEvent(description.RSPrimary))
	assert.Equal(t, StateConnected, c.State())
	monitor.ServerHeartbeatFailed(&event.ServerHeartbeatFailedEvent{Failure: errors.New("blip")})
	require.Equal(t, StateError, c.State())
	monitor.ServerHeartbeatSucceeded(&event.ServerHeartbeatSucceededEvent{})
	assert.Equal(t, StateConnected, c.State())
}

// TestHealthLabel tests the health mapping of every state
func TestHealthLabel(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.HealthLabel())
	for _, s := range []ConnectionState{StateConnecting, StateDisconnected, StateError} {
		assert.Equal(t, "disconnected", s.HealthLabel())
	}
}
