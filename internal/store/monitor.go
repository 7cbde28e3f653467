package store

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo/description"
)

// serverMonitor translates driver SDAM events into connection state.
// Events observed while connecting or after Close are ignored; Connect owns
// the state during bring-up.
func (c *Connector) serverMonitor() *event.ServerMonitor {
	return &event.ServerMonitor{
		TopologyDescriptionChanged: func(e *event.TopologyDescriptionChangedEvent) {
			c.handleTopologyChange(primaryAvailable(e.NewDescription))
		},
		ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
			c.handleHeartbeatFailure(e.Failure)
		},
		ServerHeartbeatSucceeded: func(*event.ServerHeartbeatSucceededEvent) {
			c.handleHeartbeatSuccess()
		},
	}
}

// primaryAvailable reports whether the topology has a server that accepts
// writes: a standalone, a replica set primary, a mongos or a load balancer.
// Secondaries alone do not count.
func primaryAvailable(t description.Topology) bool {
	for _, s := range t.Servers {
		switch s.Kind {
		case description.Standalone, description.RSPrimary, description.Mongos, description.LoadBalancer:
			return true
		}
	}
	return false
}

// supervised reports whether monitor events may change the state
func (c *Connector) supervised() bool {
	return !c.closed && c.client != nil
}

func (c *Connector) handleTopologyChange(available bool) {
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.supervised() {
		return
	}

	c.primaryKnown = available
	switch state := c.State(); {
	case !available && state != StateDisconnected:
		c.setState(ctx, StateDisconnected)
		c.logger.WarnContext(ctx, "MongoDB disconnected")
	case available && state != StateConnected:
		c.setState(ctx, StateConnected)
		c.logger.InfoContext(ctx, "MongoDB reconnected")
	}
}

func (c *Connector) handleHeartbeatFailure(err error) {
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.supervised() {
		return
	}

	c.lastErr = err
	if c.State() == StateConnected {
		c.setState(ctx, StateError)
	}
	msg := "heartbeat failed"
	if err != nil {
		msg = err.Error()
	}
	c.logger.ErrorContext(ctx, "MongoDB connection error", slog.String("error", msg))
}

func (c *Connector) handleHeartbeatSuccess() {
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.supervised() {
		return
	}

	// Any server may heartbeat; only a known primary makes the store usable
	if c.State() == StateError && c.primaryKnown {
		c.setState(ctx, StateConnected)
		c.logger.InfoContext(ctx, "MongoDB reconnected")
	}
}
