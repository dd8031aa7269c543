// Package registry tracks live client connections so the server can wait
// for every per-connection service goroutine to drain before exiting and
// can cut off the read side of every connection to unblock them —
// SPEC_FULL.md §4.3. It is the idiomatic Go analogue of client_registry.c's
// fixed-size fd table plus semaphore.
package registry

import (
	"net"
	"sync"

	"github.com/google/uuid"
)

// halfCloser is satisfied by the connection types whose read side can be
// shut down independently of the write side (e.g. *net.TCPConn). Plain
// net.Conn implementations that don't support it fall back to a full
// Close in ShutdownAll.
type halfCloser interface {
	CloseRead() error
}

// Registry is a thread-safe multiset of live connections, keyed by a
// generated connection ID for log correlation.
type Registry struct {
	mu    sync.Mutex
	cond  *sync.Cond
	conns map[uuid.UUID]net.Conn
}

// New returns an empty Registry.
func New() *Registry {
	r := &Registry{conns: make(map[uuid.UUID]net.Conn)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Register adds conn to the registry and returns the ID assigned to it.
func (r *Registry) Register(conn net.Conn) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.conns[id] = conn
	r.mu.Unlock()
	return id
}

// Unregister removes the connection identified by id. If the registry
// becomes empty, every caller blocked in WaitForEmpty is woken.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	delete(r.conns, id)
	empty := len(r.conns) == 0
	r.mu.Unlock()
	if empty {
		r.cond.Broadcast()
	}
}

// Count returns the number of currently registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// WaitForEmpty blocks until the registry holds no connections. If it is
// already empty, it returns immediately.
func (r *Registry) WaitForEmpty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.conns) > 0 {
		r.cond.Wait()
	}
}

// ShutdownAll shuts down the read side of every registered connection,
// the direct analogue of shutdown(fd, SHUT_RD) in creg_shutdown_all. The
// write side is left open so any already-queued outbound frames can
// still drain to the client before it observes EOF on its next read.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.conns {
		if hc, ok := conn.(halfCloser); ok {
			_ = hc.CloseRead()
		} else {
			_ = conn.Close()
		}
	}
}
