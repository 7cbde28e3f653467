package app

import (
	"net"
	"sync/atomic"
)

// atomicAddr publishes the listener address to concurrent readers
type atomicAddr struct {
	v atomic.Pointer[net.Addr]
}

func (a *atomicAddr) Load() net.Addr {
	if p := a.v.Load(); p != nil {
		return *p
	}
	return nil
}

func (a *atomicAddr) Store(addr net.Addr) {
	a.v.Store(&addr)
}
