package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	apierrors "ridex/internal/errors"
	"ridex/internal/infrastructure"
	"ridex/internal/store"
	"ridex/internal/websocket"
)

// Health report statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// StoreStatus is the read-only view of the store connector
type StoreStatus interface {
	State() store.ConnectionState
}

// GatewayStatus is the read-only view of the realtime gateway
type GatewayStatus interface {
	Status() websocket.GatewayState
}

// MemoryReader samples process memory
type MemoryReader func() (infrastructure.MemoryStats, error)

// MemoryUsage holds process memory rounded to whole megabytes
type MemoryUsage struct {
	RSSMB       uint64
	HeapUsedMB  uint64
	HeapTotalMB uint64
}

// HealthReport is an immutable snapshot of process health. A report is built
// per request and never cached.
type HealthReport struct {
	Status      string
	Timestamp   time.Time
	Uptime      time.Duration
	Store       store.ConnectionState
	Gateway     websocket.GatewayState
	Memory      MemoryUsage
	Environment string
}

// Ready reports whether the process can serve traffic that needs the store
// and the gateway
func (r HealthReport) Ready() bool {
	return r.Store.IsConnected() && r.Gateway.Available
}

// HealthService builds health reports from the store connector and the
// realtime gateway. It owns no state besides its collaborators.
type HealthService struct {
	store       StoreStatus
	gateway     GatewayStatus
	environment string
	startTime   time.Time
	now         func() time.Time
	readMemory  MemoryReader
	metrics     *infrastructure.LifecycleMetrics
	logger      *slog.Logger
}

// HealthOption configures a HealthService
type HealthOption func(*HealthService)

// WithClock overrides the time source
func WithClock(now func() time.Time) HealthOption {
	return func(s *HealthService) { s.now = now }
}

// WithStartTime overrides the instant uptime is measured from
func WithStartTime(t time.Time) HealthOption {
	return func(s *HealthService) { s.startTime = t }
}

// WithMemoryReader overrides the memory sampler
func WithMemoryReader(r MemoryReader) HealthOption {
	return func(s *HealthService) { s.readMemory = r }
}

// WithHealthMetrics records a counter per report
func WithHealthMetrics(m *infrastructure.LifecycleMetrics) HealthOption {
	return func(s *HealthService) { s.metrics = m }
}

// NewHealthService creates a health service. gateway may be nil when the
// realtime gateway is not attached.
func NewHealthService(st StoreStatus, gateway GatewayStatus, environment string, logger *slog.Logger, opts ...HealthOption) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	s := &HealthService{
		store:       st,
		gateway:     gateway,
		environment: environment,
		startTime:   infrastructure.ProcessStartTime(),
		now:         time.Now,
		readMemory:  infrastructure.ReadMemoryStats,
		logger:      infrastructure.WithComponent(logger, "health"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report builds a fresh health report. Degraded dependencies are reported as
// data with status ok; only a failure to build the report itself is an error,
// returned as *errors.HealthReportError.
func (s *HealthService) Report(ctx context.Context) (report HealthReport, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apierrors.NewHealthReportError(rec)
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "Health check error", slog.String("error", err.Error()))
			s.metrics.RecordHealthReport(ctx, StatusError)
			report = HealthReport{}
			return
		}
		s.metrics.RecordHealthReport(ctx, report.Status)
	}()

	now := s.now().UTC()

	mem, err := s.readMemory()
	if err != nil {
		return HealthReport{}, apierrors.NewHealthReportError(fmt.Errorf("reading memory stats: %w", err))
	}

	state := store.StateDisconnected
	if s.store != nil {
		state = s.store.State()
	}

	var gw websocket.GatewayState
	if s.gateway != nil {
		gw = s.gateway.Status()
	}

	uptime := now.Sub(s.startTime)
	if uptime < 0 {
		uptime = 0
	}

	return HealthReport{
		Status:    StatusOK,
		Timestamp: now,
		Uptime:    uptime,
		Store:     state,
		Gateway:   gw,
		Memory: MemoryUsage{
			RSSMB:       toMB(mem.RSS),
			HeapUsedMB:  toMB(mem.HeapUsed),
			HeapTotalMB: toMB(mem.HeapTotal),
		},
		Environment: s.environment,
	}, nil
}

func toMB(b uint64) uint64 {
	return uint64(math.Round(float64(b) / 1024 / 1024))
}
