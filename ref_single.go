//go:build !multithread

package peersock

// Cell is the raw shared cell behind a Ref. It is exposed through
// Ref.Inner for code that needs the handle itself; the borrow rules of
// Ref still apply to anything reached through it.
type Cell[T any] struct {
	value T
	// state is 0 when free, n > 0 with n read guards alive,
	// and -1 while a mutable guard is alive.
	state int
	refs  int
	dead  bool
}

type holder[T any] struct {
	cell    *Cell[T]
	dropped bool
}

// Ref is a shared, interiorly mutable reference to a single value.
//
// Every clone of a Ref observes the same underlying value, which lives
// until the last holder calls Drop. Access goes through Borrow and
// BorrowMut, which hand a scoped guard to a callback and release it when
// the callback returns or panics.
//
// The concurrency discipline is selected at build time:
//
//   - default build: borrows are checked at runtime without any
//     synchronization. Requesting a mutable guard while any guard is alive,
//     or a read guard while a mutable guard is alive, panics with a
//     *BorrowError. All holders must run on one goroutine.
//   - -tags multithread: a single mutex guards every access. Borrow and
//     BorrowMut block until the lock is free; there is no reader/writer
//     distinction. Borrowing again on the same goroutine while a guard is
//     alive deadlocks; callers must release before borrowing again.
//
// Call sites are identical in both builds.
type Ref[T any] struct {
	h *holder[T]
}

// NewRef wraps value in a new Ref with a single holder.
func NewRef[T any](value T) Ref[T] {
	return Ref[T]{h: &holder[T]{cell: &Cell[T]{value: value, refs: 1}}}
}

// NewRefRaw adopts cell as a new holder, incrementing its share count.
func NewRefRaw[T any](cell *Cell[T]) Ref[T] {
	if cell.dead {
		panic(&BorrowError{Reason: reasonDropped})
	}
	cell.refs++
	return Ref[T]{h: &holder[T]{cell: cell}}
}

// Clone returns a new holder of the same value.
func (r Ref[T]) Clone() Ref[T] {
	c := r.live(false)
	c.refs++
	return Ref[T]{h: &holder[T]{cell: c}}
}

// Drop releases this holder. Dropping an already dropped holder is a
// no-op. When the last holder drops, the value is released; doing so
// while a guard on it is alive panics with a *BorrowError.
func (r Ref[T]) Drop() {
	if r.h == nil || r.h.dropped {
		return
	}
	c := r.h.cell
	if c.refs == 1 && c.state != 0 {
		panic(&BorrowError{Mutable: c.state < 0, Reason: reasonDropWhileBorrowed})
	}
	r.h.dropped = true
	c.refs--
	if c.refs == 0 {
		var zero T
		c.value = zero
		c.dead = true
	}
}

// Count returns the number of live holders sharing the value.
func (r Ref[T]) Count() int {
	return r.live(false).refs
}

// Inner returns the raw cell.
func (r Ref[T]) Inner() *Cell[T] {
	return r.live(false)
}

// Borrow calls fn with a read guard on the value.
// It panics if a mutable guard is alive.
func (r Ref[T]) Borrow(fn func(g *Guard[T])) {
	c := r.live(false)
	if c.state < 0 {
		panic(&BorrowError{Reason: reasonMutablyBorrowed})
	}

	c.state++
	g := &Guard[T]{cell: c}
	defer func() {
		g.cell = nil
		c.state--
	}()

	fn(g)
}

// BorrowMut calls fn with a mutable guard on the value.
// It panics if any other guard is alive.
func (r Ref[T]) BorrowMut(fn func(g *GuardMut[T])) {
	c := r.live(true)
	switch {
	case c.state < 0:
		panic(&BorrowError{Mutable: true, Reason: reasonMutablyBorrowed})
	case c.state > 0:
		panic(&BorrowError{Mutable: true, Reason: reasonBorrowed})
	}

	c.state = -1
	g := &GuardMut[T]{cell: c}
	defer func() {
		g.cell = nil
		c.state = 0
	}()

	fn(g)
}

func (r Ref[T]) live(mutable bool) *Cell[T] {
	if r.h == nil || r.h.dropped || r.h.cell.dead {
		panic(&BorrowError{Mutable: mutable, Reason: reasonDropped})
	}
	return r.h.cell
}

// Guard is read access to a borrowed value, valid only inside the
// Borrow callback that received it.
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

// GuardMut is write access to a borrowed value, valid only inside the
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
