// Package lifecycle keeps at most one live operation per guard and aborts
// whatever is outstanding when the owning scope is torn down.
package lifecycle

import (
	"context"
	"sync"
)

// Guard hands out cancellation handles. Beginning a new operation aborts the
// previous one if it has not been retired yet.
type Guard struct {
	mu      sync.Mutex
	name    string
	seq     uint64
	current *Handle
}

// Handle is the cancellation token of one operation.
type Handle struct {
	guard  *Guard
	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc

	// guarded by guard.mu
	aborted bool
	retired bool
}

// NewGuard creates a guard; name is used for logging only.
func NewGuard(name string) *Guard {
	return &Guard{name: name}
}

// Name returns the guard label.
func (g *Guard) Name() string {
	return g.name
}

// Begin aborts the outstanding handle, if any, and returns a fresh one whose
// context derives from parent.
func (g *Guard) Begin(parent context.Context) *Handle {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current != nil {
		g.current.abortLocked()
	}
	g.seq++
	h := &Handle{guard: g, seq: g.seq, ctx: ctx, cancel: cancel}
	g.current = h
	return h
}

// Teardown aborts the outstanding handle. Safe to call repeatedly.
func (g *Guard) Teardown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != nil {
		g.current.abortLocked()
		g.current = nil
	}
}

// Active reports whether an operation is outstanding.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current != nil
}

// Commit runs apply only if h is still the live handle and has not been
// cancelled, then retires h. Begin cannot interleave with apply, so a
// superseded operation can never publish its results. apply must not call
// back into the guard.
func (g *Guard) Commit(h *Handle, apply func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if h == nil || h.guard != g || g.current != h || h.aborted || h.ctx.Err() != nil {
		return false
	}
	if apply != nil {
		apply()
	}
	h.retireLocked()
	return true
}

// Context carries the cancellation signal to HTTP calls.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Seq is the per-guard sequence number of the handle.
func (h *Handle) Seq() uint64 {
	return h.seq
}

// Cancelled reports whether the operation was superseded, torn down or had
// its parent context cancelled before it finished.
func (h *Handle) Cancelled() bool {
	h.guard.mu.Lock()
	defer h.guard.mu.Unlock()
	if h.aborted {
		return true
	}
	if h.retired {
		return false
	}
	return h.ctx.Err() != nil
}

// Retire marks the operation finished without applying anything. Retiring a
// superseded handle is a no-op apart from releasing its context.
func (h *Handle) Retire() {
	h.guard.mu.Lock()
	defer h.guard.mu.Unlock()
	h.retireLocked()
}

func (h *Handle) retireLocked() {
	if h.retired {
		return
	}
	if !h.aborted && h.ctx.Err() != nil {
		h.aborted = true
	}
	h.retired = true
	if h.guard.current == h {
		h.guard.current = nil
	}
	h.cancel()
}

func (h *Handle) abortLocked() {
	if h.retired {
		return
	}
	h.aborted = true
	h.retired = true
	h.cancel()
}
