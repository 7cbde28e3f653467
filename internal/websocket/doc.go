// Package websocket implements the realtime gateway of the RideX API.
//
// The gateway upgrades requests on the HTTP listener's router and keeps
// every open channel in a mutex-guarded set. Each channel runs a read pump
// and a write pump; the write pump keeps the peer alive with pings and owns
// all writes to the socket.
//
// Route handlers never hold the gateway directly. Decorate places it in the
// request context and handlers retrieve it with EmitterFromContext:
//
//	if e, ok := websocket.EmitterFromContext(r.Context()); ok {
//	    e.Emit("ride:requested", ride)
//	}
//
// Every message is a JSON envelope {type, data, timestamp}. A newly opened
// channel first receives a "connected" message carrying its channel id.
//
// On shutdown CloseAll refuses new upgrades, sends a going-away close frame
// to every channel, and force-closes sockets that have not answered when the
// context expires.
package websocket
