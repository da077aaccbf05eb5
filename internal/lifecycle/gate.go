// Package lifecycle provides the window-load gate shared by observers that
// need a final snapshot of the page.
package lifecycle

import (
	"context"
	"sync"

	"github.com/vincentbai/browsetrace-vitals/internal/browser"
	"github.com/vincentbai/browsetrace-vitals/internal/models"
)

// Gate resolves exactly once, when the window has finished loading. It never
// rejects and never resets.
type Gate struct {
	once    sync.Once
	done    chan struct{}
	mu      sync.Mutex
	waiters []func()
}

// NewGate resolves at once if state reports a complete document, otherwise
// on the next load event.
func NewGate(state browser.LoadState) *Gate {
	g := &Gate{done: make(chan struct{})}
	if state.ReadyState() == models.ReadyStateComplete {
		g.resolve()
		return g
	}
	state.OnLoad(g.resolve)
	return g
}

// Then runs fn once the gate resolves, immediately when it already has.
func (g *Gate) Then(fn func()) {
	g.mu.Lock()
	if !g.Resolved() {
		g.waiters = append(g.waiters, fn)
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	fn()
}

// Done is closed when the gate resolves.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Resolved reports whether the window has loaded.
func (g *Gate) Resolved() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate resolves or ctx ends.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) resolve() {
	g.once.Do(func() {
		g.mu.Lock()
		close(g.done)
		waiters := g.waiters
		g.waiters = nil
		g.mu.Unlock()
		for _, fn := range waiters {
			fn()
		}
	})
}
