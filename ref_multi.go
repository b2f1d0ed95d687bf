//go:build multithread

package peersock

import (
	"sync"
	"sync/atomic"
)

// Cell is the raw shared cell behind a Ref. It is exposed through
// Ref.Inner for code that needs the handle itself; the borrow rules of
// Ref still apply to anything reached through it.
type Cell[T any] struct {
	mu    sync.Mutex
	value T
	dead  bool
	refs  atomic.Int64
}

type holder[T any] struct {
	cell    *Cell[T]
	dropped atomic.Bool
}

// Ref is a shared, interiorly mutable reference to a single value,
// safe for use by any number of goroutines.
//
// Borrow and BorrowMut both take the cell's only mutex, so guards
// serialize regardless of kind. The lock is not reentrant: borrowing
// again on a goroutine that already holds a guard on the same value
// deadlocks.
type Ref[T any] struct {
	h *holder[T]
}

// NewRef wraps value in a new Ref with a single holder.
func NewRef[T any](value T) Ref[T] {
	c := &Cell[T]{value: value}
	c.refs.Store(1)
	return Ref[T]{h: &holder[T]{cell: c}}
}

// NewRefRaw adopts cell as a new holder, incrementing its share count.
func NewRefRaw[T any](cell *Cell[T]) Ref[T] {
	cell.mu.Lock()
	dead := cell.dead
	cell.mu.Unlock()
	if dead {
		panic(&BorrowError{Reason: reasonDropped})
	}
	cell.refs.Add(1)
	return Ref[T]{h: &holder[T]{cell: cell}}
}

// Clone returns a new holder of the same value.
func (r Ref[T]) Clone() Ref[T] {
	c := r.cell(false)
	c.refs.Add(1)
	return Ref[T]{h: &holder[T]{cell: c}}
}

// Drop releases this holder. Dropping an already dropped holder is a
// no-op. When the last holder drops, the value is released under the
// cell's lock, so dropping the last holder from inside one of its own
// Borrow or BorrowMut callbacks deadlocks, like nested borrowing.
func (r Ref[T]) Drop() {
	if r.h == nil || r.h.dropped.Swap(true) {
		return
	}
	c := r.h.cell
	if c.refs.Add(-1) == 0 {
		c.mu.Lock()
		var zero T
		c.value = zero
		c.dead = true
		c.mu.Unlock()
	}
}

// Count returns the number of live holders sharing the value.
func (r Ref[T]) Count() int {
	return int(r.cell(false).refs.Load())
}

// Inner returns the raw cell.
func (r Ref[T]) Inner() *Cell[T] {
	return r.cell(false)
}

// Borrow calls fn with a read guard on the value, blocking until the
// lock is available.
func (r Ref[T]) Borrow(fn func(g *Guard[T])) {
	c := r.cell(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		panic(&BorrowError{Reason: reasonDropped})
	}

	g := &Guard[T]{cell: c}
	defer func() { g.cell = nil }()

	fn(g)
}

// BorrowMut calls fn with a mutable guard on the value, blocking until
// the lock is available.
func (r Ref[T]) BorrowMut(fn func(g *GuardMut[T])) {
	c := r.cell(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		panic(&BorrowError{Mutable: true, Reason: reasonDropped})
	}

	g := &GuardMut[T]{cell: c}
	defer func() { g.cell = nil }()

	fn(g)
}

func (r Ref[T]) cell(mutable bool) *Cell[T] {
	if r.h == nil || r.h.dropped.Load() {
		panic(&BorrowError{Mutable: mutable, Reason: reasonDropped})
	}
	return r.h.cell
}

// Guard is read access to a locked value, valid only inside the Borrow
// callback that received it.
type Guard[T any] struct {
	cell *Cell[T]
}

// Get returns the value.
func (g *Guard[T]) Get() T {
	if g.cell == nil {
		guardReleased()
	}
	return g.cell.value
}

// GuardMut is write access to a locked value, valid only inside the
// BorrowMut callback that received it.
type GuardMut[T any] struct {
	cell *Cell[T]
}

// Get returns the value.
func (g *GuardMut[T]) Get() T {
	if g.cell == nil {
		guardReleased()
	}
	return g.cell.value
}

// Set replaces the value.
func (g *GuardMut[T]) Set(v T) {
	if g.cell == nil {
		guardReleased()
	}
	g.cell.value = v
}

// Ptr returns a pointer to the value. The pointer must not be retained
// past the end of the guard's scope.
func (g *GuardMut[T]) Ptr() *T {
	if g.cell == nil {
		guardReleased()
	}
	return &g.cell.value
}
