package websocket

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds the gateway instruments. A nil *OTelMetrics records nothing.
type OTelMetrics struct {
	connectionsTotal   metric.Int64Counter
	connectionsActive  metric.Int64UpDownCounter
	connectionDuration metric.Float64Histogram
	rejectedUpgrades   metric.Int64Counter
	messagesSent       metric.Int64Counter
	messageBytes       metric.Int64Counter
	droppedMessages    metric.Int64Counter
	forcedCloses       metric.Int64Counter
}

// NewOTelMetrics creates the gateway instruments on meter
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	var m OTelMetrics
	var err error

	if m.connectionsTotal, err = meter.Int64Counter("websocket_connections_total",
		metric.WithDescription("Total number of WebSocket connections")); err != nil {
		return nil, err
	}
	if m.connectionsActive, err = meter.Int64UpDownCounter("websocket_connections_active",
		metric.WithDescription("Number of open WebSocket channels")); err != nil {
		return nil, err
	}
	if m.connectionDuration, err = meter.Float64Histogram("websocket_connection_duration_seconds",
		metric.WithDescription("Duration of WebSocket connections"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.rejectedUpgrades, err = meter.Int64Counter("websocket_rejected_upgrades_total",
		metric.WithDescription("Upgrade requests refused, by reason")); err != nil {
		return nil, err
	}
	if m.messagesSent, err = meter.Int64Counter("websocket_messages_sent_total",
		metric.WithDescription("Messages written to channels, by event")); err != nil {
		return nil, err
	}
	if m.messageBytes, err = meter.Int64Counter("websocket_message_bytes_total",
		metric.WithDescription("Bytes written to channels"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.droppedMessages, err = meter.Int64Counter("websocket_dropped_messages_total",
		metric.WithDescription("Messages dropped because a channel buffer was full")); err != nil {
		return nil, err
	}
	if m.forcedCloses, err = meter.Int64Counter("websocket_forced_closes_total",
		metric.WithDescription("Channels force-closed after the close timeout")); err != nil {
		return nil, err
	}

	return &m, nil
}

// RecordConnection records a newly registered channel
func (m *OTelMetrics) RecordConnection(ctx context.Context) {
	if m == nil {
		return
	}
	m.connectionsTotal.Add(ctx, 1)
	m.connectionsActive.Add(ctx, 1)
}

// RecordDisconnection records a channel leaving the set
func (m *OTelMetrics) RecordDisconnection(ctx context.Context, duration time.Duration, reason string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("disconnect_reason", reason))
	m.connectionsActive.Add(ctx, -1, attrs)
	m.connectionDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRejectedUpgrade records a refused upgrade
func (m *OTelMetrics) RecordRejectedUpgrade(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.rejectedUpgrades.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordMessageSent records a message written to a channel
func (m *OTelMetrics) RecordMessageSent(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.messagesSent.Add(ctx, 1)
	m.messageBytes.Add(ctx, int64(size))
}

// RecordDroppedMessage records a message dropped for a slow channel
func (m *OTelMetrics) RecordDroppedMessage(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.droppedMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordForcedClose records a channel closed without a completed handshake
func (m *OTelMetrics) RecordForcedClose(ctx context.Context) {
	if m == nil {
		return
	}
	m.forcedCloses.Add(ctx, 1)
}
