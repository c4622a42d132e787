package ratelimit

import (
	"sync"
	"time"
)

type state struct {
	count int
	last  time.Time
}

// Guard is a per-connection sliding-window action limiter, checked before
// any state-mutating message is evaluated.
type Guard struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	states map[string]*state

	now func() time.Time // test hook
}

// NewGuard allows up to limit actions per window per connection.
func NewGuard(limit int, window time.Duration) *Guard {
	return &Guard{
		limit:  limit,
		window: window,
		states: make(map[string]*state),
		now:    time.Now,
	}
}

// Allow records an action for the connection and reports whether it is
// within the limit. Once the window has elapsed since the last recorded
// action the count resets to one.
func (g *Guard) Allow(connID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	s, ok := g.states[connID]
	if !ok || now.Sub(s.last) > g.window {
		g.states[connID] = &state{count: 1, last: now}
		return true
	}

	s.count++
	s.last = now
	return s.count <= g.limit
}

// Forget discards a connection's state on disconnect.
func (g *Guard) Forget(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.states, connID)
}

// Sweep evicts entries idle longer than maxIdle. Run on the periodic
// maintenance tick; safe to repeat.
func (g *Guard) Sweep(maxIdle time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	dropped := 0
	for id, s := range g.states {
		if now.Sub(s.last) > maxIdle {
			delete(g.states, id)
			dropped++
		}
	}
	return dropped
}
