package services

import (
	"errors"
	"fmt"
	"time"

	apierrors "ridex/internal/errors"
)

// HealthResponse is the JSON body of GET /api/health
type HealthResponse struct {
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	Timestamp   string         `json:"timestamp"`
	Uptime      string         `json:"uptime"`
	Database    DatabaseHealth `json:"database"`
	Services    RealtimeHealth `json:"services"`
	Memory      MemoryHealth   `json:"memory"`
	Environment string         `json:"environment"`
}

// DatabaseHealth reports the store connection
type DatabaseHealth struct {
	MongoDB string `json:"mongodb"`
}

// RealtimeHealth reports the realtime gateway
type RealtimeHealth struct {
	SocketIO string `json:"socketio"`
	Channels uint   `json:"channels"`
}

// MemoryHealth reports process memory as "<N>MB" strings
type MemoryHealth struct {
	RSS       string `json:"rss"`
	HeapUsed  string `json:"heapUsed"`
	HeapTotal string `json:"heapTotal"`
}

// HealthErrorResponse is the JSON body returned when a report cannot be built
type HealthErrorResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse is the JSON body of GET /api/health/ready
type ReadinessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	MongoDB   string `json:"mongodb"`
	SocketIO  string `json:"socketio"`
}

// Response converts the report to its wire shape
func (r HealthReport) Response() HealthResponse {
	socket := "unavailable"
	if r.Gateway.Available {
		socket = "available"
	}

	return HealthResponse{
		Status:    r.Status,
		Message:   "API is running",
		Timestamp: formatTimestamp(r.Timestamp),
		Uptime:    fmt.Sprintf("%ds", int64(r.Uptime/time.Second)),
		Database:  DatabaseHealth{MongoDB: r.Store.HealthLabel()},
		Services:  RealtimeHealth{SocketIO: socket, Channels: r.Gateway.ActiveChannels},
		Memory: MemoryHealth{
			RSS:       fmt.Sprintf("%dMB", r.Memory.RSSMB),
			HeapUsed:  fmt.Sprintf("%dMB", r.Memory.HeapUsedMB),
			HeapTotal: fmt.Sprintf("%dMB", r.Memory.HeapTotalMB),
		},
		Environment: r.Environment,
	}
}

// ReadinessResponse converts the report to the readiness body
func (r HealthReport) ReadinessResponse() ReadinessResponse {
	status, socket := "not_ready", "unavailable"
	if r.Ready() {
		status = "ready"
	}
	if r.Gateway.Available {
		socket = "available"
	}
	return ReadinessResponse{
		Status:    status,
		Timestamp: formatTimestamp(r.Timestamp),
		MongoDB:   r.Store.HealthLabel(),
		SocketIO:  socket,
	}
}

// NewHealthErrorResponse builds the failure body for err at now. A
// HealthReportError contributes only the underlying failure message.
func NewHealthErrorResponse(err error, now time.Time) HealthErrorResponse {
	msg := err.Error()
	var reportErr *apierrors.HealthReportError
	if errors.As(err, &reportErr) {
		msg = reportErr.Message()
	}
	return HealthErrorResponse{
		Status:    StatusError,
		Message:   "Health check failed",
		Error:     msg,
		Timestamp: formatTimestamp(now),
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
