package ptyproxy

import "sync"

// gate blocks input forwarding while closed.
type gate struct {
	mu     sync.Mutex
	closed bool
	open   chan struct{}
}

var alwaysOpen = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

func (g *gate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		g.open = make(chan struct{})
	}
}

func (g *gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		g.closed = false
		close(g.open)
	}
}

func (g *gate) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// wait returns a channel that is closed once the gate is open.
func (g *gate) wait() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		return alwaysOpen
	}
	return g.open
}
