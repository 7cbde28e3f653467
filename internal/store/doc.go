// Package store owns the MongoDB connection used by the RideX API.
//
// A Connector dials the cluster once during startup, publishes its
// ConnectionState for health reporting, and hands validated database handles
// to route collaborators. Operations are never buffered: while the
// connection is down, Database returns ErrNotConnected and callers fail
// immediately.
//
// After startup the driver's server monitor keeps the state current.
// Heartbeat failures, lost topology and recovery are logged and recorded,
// but they never trigger a reconnect loop or a process shutdown.
package store
