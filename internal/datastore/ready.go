package datastore

import (
	"context"
	"sync"
)

// ReadyGate is a one-shot readiness handle. It resolves once the backend
// connection is live and schema initialization has succeeded, or rejects
// permanently after fatal failure / retry exhaustion. Every datastore
// operation awaits the gate so callers fail fast instead of hanging.
type ReadyGate struct {
	done chan struct{}
	once sync.Once

	mu  sync.RWMutex
	err error
}

func newReadyGate() *ReadyGate {
	return &ReadyGate{done: make(chan struct{})}
}

func (g *ReadyGate) resolve() {
	g.once.Do(func() { close(g.done) })
}

func (g *ReadyGate) reject(err error) {
	g.once.Do(func() {
		g.mu.Lock()
		g.err = err
		g.mu.Unlock()
		close(g.done)
	})
}

// Await blocks until the gate settles or ctx is cancelled. It returns nil on
// successful resolution, a KindUnavailable error on rejection, and the ctx
// error on cancellation.
func (g *ReadyGate) Await(ctx context.Context) error {
	select {
	case <-g.done:
		g.mu.RLock()
		defer g.mu.RUnlock()
		if g.err != nil {
			return unavailable(g.err)
		}
		return nil
	case <-ctx.Done():
		return unavailable(ctx.Err())
	}
}

// Settled reports whether the gate has resolved or rejected, and the
// rejection error if any. Health-check collaborators read this without
// blocking.
func (g *ReadyGate) Settled() (bool, error) {
	select {
	case <-g.done:
		g.mu.RLock()
		defer g.mu.RUnlock()
		return true, g.err
	default:
		return false, nil
	}
}
