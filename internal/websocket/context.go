package websocket

import (
	"context"
	"net/http"
)

type emitterKey struct{}

// WithEmitter returns a copy of ctx carrying e
func WithEmitter(ctx context.Context, e Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// EmitterFromContext returns the gateway attached by Decorate
func EmitterFromContext(ctx context.Context) (Emitter, bool) {
	e, ok := ctx.Value(emitterKey{}).(Emitter)
	return e, ok
}

// Decorate makes the gateway reachable from every request handled by next
func (g *Gateway) Decorate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithEmitter(r.Context(), g)))
	})
}
