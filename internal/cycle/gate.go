package cycle

import "sync/atomic"

// Gate is the "program running" flag. It is depth counted so the
// orchestrator can hold it across a whole program while each stage holds
// it for its own duration; it reads true while any holder remains.
type Gate struct {
	depth atomic.Int32
}

// Enter takes a hold.
func (g *Gate) Enter() { g.depth.Add(1) }

// Exit releases a hold taken by Enter.
func (g *Gate) Exit() {
	if g.depth.Add(-1) < 0 {
		panic("cycle: Gate.Exit without Enter")
	}
}

// Running reports whether any hold is taken.
func (g *Gate) Running() bool { return g.depth.Load() > 0 }

// Signal is a one-shot flag raised from another goroutine and consumed by
// the balance-wait step.
type Signal struct {
	fired atomic.Bool
}

// Fire raises the flag.
func (s *Signal) Fire() { s.fired.Store(true) }

// Clear drops a pending flag.
func (s *Signal) Clear() { s.fired.Store(false) }

// Take consumes the flag, reporting whether it was raised.
func (s *Signal) Take() bool { return s.fired.Swap(false) }
