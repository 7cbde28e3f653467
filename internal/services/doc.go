// Package services holds the readiness aggregator of the RideX API.
//
// HealthService assembles a HealthReport on demand from read-only views of
// the store connector and the realtime gateway, plus process uptime and
// memory. It owns no state and never caches a report:
//
//	health := services.NewHealthService(connector, gateway, cfg.Environment, logger)
//	report, err := health.Report(ctx)
//	if err != nil {
//	    // *errors.HealthReportError, rendered as HTTP 500
//	}
//
// A disconnected store or a missing gateway is not an error. Those are
// reported as data inside an "ok" report; Ready tells readiness checks
// whether both dependencies are usable.
package services
