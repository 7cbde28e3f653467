package infrastructure

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// processStart is captured when the binary loads; uptime is measured from it
var processStart = time.Now()

// ProcessStartTime returns the instant the process started
func ProcessStartTime() time.Time {
	return processStart
}

// GenerateTraceID creates a new unique trace ID using UUID v4
func GenerateTraceID() string {
	return uuid.New().String()
}

// WithComponent creates a logger with a component field
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}
