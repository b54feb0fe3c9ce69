package playback

import "sync"

// GestureGate holds at most one parked continuation waiting for a user
// gesture. Arming replaces nothing: while a continuation is parked, a second
// Arm call returns the same channel, so there is never more than one.
type GestureGate struct {
	mu      sync.Mutex
	waiting chan struct{}
}

func NewGestureGate() *GestureGate {
	return &GestureGate{}
}

// Arm parks a one-shot continuation and returns the channel that closes when
// a gesture arrives.
func (g *GestureGate) Arm() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.waiting == nil {
		g.waiting = make(chan struct{})
	}
	return g.waiting
}

// Disarm drops the parked continuation without firing it.
func (g *GestureGate) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waiting = nil
}

// Trigger fires the parked continuation. A gesture with nothing parked is
// ignored.
func (g *GestureGate) Trigger() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.waiting != nil {
		close(g.waiting)
		g.waiting = nil
	}
}
