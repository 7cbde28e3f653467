// Package middleware provides the HTTP middleware chain of the RideX API.
//
// The application installs it in this order:
//
//	RequestID → RealIP → OTelMiddleware → StructuredLogger → Recoverer →
//	SecurityHeaders → CORS
//
// and adds RateLimiter and JSONBody on the /api route group. RequestID stores
// the id under chi's request id key, so chi's middleware.GetReqID, the error
// handler and the realtime gateway all see the same value.
package middleware
