// Package once provides Gate, an exactly-once state machine held in a single
// atomic word.
//
// Unlike sync.Once, a Gate never blocks: callers that lose the race return
// immediately, and a failed attempt is never retried. The zero value is an
// uninitialized gate, and a Gate may live in memory shared between processes
// (for example a mapped region) because its whole state is one 32-bit word.
package once

import "sync/atomic"

// State is the observable state of a Gate.
type State uint32

const (
	Uninitialized State = iota
	Preparing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Preparing:
		return "preparing"
	case Ready:
		return "ready"
	}
	return "invalid"
}

// Gate serializes initialization attempts.
//
// Transitions are Uninitialized -> Preparing (compare-and-swap, one winner)
// and Preparing -> Ready (only by the winner, only on success).
type Gate struct {
	state atomic.Uint32
}

// Do runs f if and only if no other call has started before it.
//
// The caller that runs f gets ran == true and f's error. All other callers
// get ran == false, whether the winning call is still in flight, succeeded or
// failed. When f fails (or panics) the gate stays in Preparing for good.
//
// The store that publishes Ready happens after f returns, so everything f
// wrote is visible to any caller that later observes Ready.
func (g *Gate) Do(f func() error) (ran bool, err error) {
	if !g.state.CompareAndSwap(uint32(Uninitialized), uint32(Preparing)) {
		return false, nil
	}
	if err := f(); err != nil {
		return true, err
	}
	g.state.Store(uint32(Ready))
	return true, nil
}

// Ready reports whether a call to Do has completed successfully.
// It performs no allocation and takes no lock.
func (g *Gate) Ready() bool {
	return g.state.Load() == uint32(Ready)
}

// State returns the current state.
func (g *Gate) State() State {
	return State(g.state.Load())
}
