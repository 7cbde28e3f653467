// Package app is the lifecycle controller of the RideX API.
//
// An Application moves through a fixed set of phases:
//
//	initializing → storeConnecting → ready → drainingListener →
//	closingGateway → closingStore → terminated
//
// with failed reachable from any phase before ready. Start connects the
// store, attaches the realtime gateway to the router, mounts the route
// groups and only then binds the listener, so a failed start never leaves a
// port open. Shutdown runs the teardown steps in reverse order, each with its
// own timeout, and is safe to call from several goroutines at once.
//
// Run wraps both for main: it waits for SIGINT or SIGTERM and maps the
// outcome to an exit code.
package app
