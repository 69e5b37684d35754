package subscription

import "sync/atomic"

// State is the per-subscription snapshot: pending consumers never negative,
// completed never un-sets except via an explicit reconnect reset, reconnect
// attempts monotonic within a reconnect window.
type State struct {
	Lifecycle         LifecycleState
	ReconnectAttempts int
	LastEventID       string
	Completed         bool
	PendingConsumers  int
}

// Cell is a single atomic reference cell. Every composite mutation goes
// through Modify, a compare-and-swap loop, so concurrent interleavings
// never observe a torn read or lose an update.
type Cell struct {
	ptr atomic.Pointer[State]
}

func NewCell() *Cell {
	c := &Cell{}
	c.ptr.Store(&State{})
	return c
}

// Modify atomically applies fn to the current state and stores the result,
// retrying under contention. Returns the new state.
func (c *Cell) Modify(fn func(State) State) State {
	for {
		old := c.ptr.Load()
		next := fn(*old)
		if c.ptr.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// Load returns a snapshot of the current state.
func (c *Cell) Load() State {
	return *c.ptr.Load()
}

// IncPendingConsumers atomically increments PendingConsumers and returns
// the new value.
func (c *Cell) IncPendingConsumers() int {
	return c.Modify(func(s State) State {
		s.PendingConsumers++
		return s
	}).PendingConsumers
}

// DecPendingConsumers atomically decrements PendingConsumers, clamped at 0
// so it never goes negative.
func (c *Cell) DecPendingConsumers() int {
	return c.Modify(func(s State) State {
		if s.PendingConsumers > 0 {
			s.PendingConsumers--
		}
		return s
	}).PendingConsumers
}

// SetCompleted atomically sets Completed=true and reports whether it was
// already true (a "was-completed?" read fused with the write).
func (c *Cell) SetCompleted() (wasCompleted bool) {
	var prev bool
	c.Modify(func(s State) State {
		prev = s.Completed
		s.Completed = true
		return s
	})
	return prev
}

// ResetForReconnect transitions Completed back to false — the only path by
// which Completed un-sets.
func (c *Cell) ResetForReconnect() {
	c.Modify(func(s State) State {
		s.Completed = false
		return s
	})
}

func (c *Cell) SetLifecycle(l LifecycleState) {
	c.Modify(func(s State) State {
		s.Lifecycle = l
		return s
	})
}

func (c *Cell) IncReconnectAttempts() int {
	return c.Modify(func(s State) State {
		s.ReconnectAttempts++
		return s
	}).ReconnectAttempts
}

func (c *Cell) ResetReconnectAttempts() {
	c.Modify(func(s State) State {
		s.ReconnectAttempts = 0
		return s
	})
}

func (c *Cell) SetLastEventID(id string) {
	c.Modify(func(s State) State {
		s.LastEventID = id
		return s
	})
}
