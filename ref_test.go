package peersock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// requireBorrowPanic asserts that fn panics with a *BorrowError.
func requireBorrowPanic(t *testing.T, fn func()) *BorrowError {
	t.Helper()

	var got any
	func() {
		defer func() { got = recover() }()
		fn()
	}()

	require.NotNil(t, got, "expected a panic")
	be, ok := got.(*BorrowError)
	require.Truef(t, ok, "panic value %T is not a *BorrowError", got)
	return be
}

func readRef[T any](r Ref[T]) T {
	var v T
	r.Borrow(func(g *Guard[T]) { v = g.Get() })
	return v
}

func TestRef_CloneSharesValue(t *testing.T) {
	a := NewRef(1)
	b := a.Clone()
	c := b.Clone()
	require.Equal(t, 3, a.Count())

	b.BorrowMut(func(g *GuardMut[int]) { g.Set(42) })

	require.Equal(t, 42, readRef(a))
	require.Equal(t, 42, readRef(c))
	require.Same(t, a.Inner(), c.Inner())
}

func TestRef_CloneDoesNotCopy(t *testing.T) {
	a := NewRef([]int{1, 2, 3})
	b := a.Clone()

	b.BorrowMut(func(g *GuardMut[[]int]) {
		*g.Ptr() = append(*g.Ptr(), 4)
	})

	require.Equal(t, []int{1, 2, 3, 4}, readRef(a))
}

func TestRef_DropCounts(t *testing.T) {
	a := NewRef("v")
	b := a.Clone()
	c := a.Clone()

	b.Drop()
	require.Equal(t, 2, a.Count())

	// Dropping the same holder twice only counts once.
	b.Drop()
	require.Equal(t, 2, a.Count())

	a.Drop()
	require.Equal(t, 1, c.Count())
	require.Equal(t, "v", readRef(c))

	cell := c.Inner()
	c.Drop()

	requireBorrowPanic(t, func() { c.Count() })
	requireBorrowPanic(t, func() { readRef(c) })
	requireBorrowPanic(t, func() { NewRefRaw(cell) })
}

func TestRef_DroppedHolderCannotBorrow(t *testing.T) {
	a := NewRef(7)
	b := a.Clone()
	b.Drop()

	be := requireBorrowPanic(t, func() {
		b.BorrowMut(func(*GuardMut[int]) {})
	})
	require.True(t, be.Mutable)
	require.Equal(t, reasonDropped, be.Reason)

	// The surviving holder is unaffected.
	require.Equal(t, 7, readRef(a))
}

func TestRef_ZeroValuePanics(t *testing.T) {
	var r Ref[int]
	requireBorrowPanic(t, func() { readRef(r) })

	// Drop on a zero Ref is harmless.
	r.Drop()
}

func TestRef_NewRefRaw(t *testing.T) {
	a := NewRef(5)
	b := NewRefRaw(a.Inner())

	require.Equal(t, 2, a.Count())
	b.BorrowMut(func(g *GuardMut[int]) { g.Set(6) })
	require.Equal(t, 6, readRef(a))
}

func TestRef_GuardReleasedOnPanic(t *testing.T) {
	r := NewRef(0)

	require.PanicsWithValue(t, "boom", func() {
		r.BorrowMut(func(g *GuardMut[int]) {
			g.Set(1)
			panic("boom")
		})
	})

	// A new guard can be obtained after the panicking scope unwound.
	r.BorrowMut(func(g *GuardMut[int]) { g.Set(g.Get() + 1) })
	require.Equal(t, 2, readRef(r))
}

func TestRef_GuardReleasedOnEarlyReturn(t *testing.T) {
	r := NewRef(0)

	for i := range 3 {
		r.BorrowMut(func(g *GuardMut[int]) {
			if i%2 == 0 {
				return
			}
			g.Set(i)
		})
	}

	require.Equal(t, 1, readRef(r))
}

func TestRef_GuardUnusableAfterScope(t *testing.T) {
	r := NewRef(3)

	var leaked *Guard[int]
	r.Borrow(func(g *Guard[int]) { leaked = g })
	be := requireBorrowPanic(t, func() { leaked.Get() })
	require.Equal(t, reasonGuardReleased, be.Reason)

	var leakedMut *GuardMut[int]
	r.BorrowMut(func(g *GuardMut[int]) { leakedMut = g })
	requireBorrowPanic(t, func() { leakedMut.Set(4) })
	requireBorrowPanic(t, func() { leakedMut.Ptr() })

	require.Equal(t, 3, readRef(r))
}

func TestBorrowError_Error(t *testing.T) {
	require.Equal(t, "peersock: borrow_mut: value is already borrowed",
		(&BorrowError{Mutable: true, Reason: reasonBorrowed}).Error())
	require.Equal(t, "peersock: borrow: value is already mutably borrowed",
		(&BorrowError{Reason: reasonMutablyBorrowed}).Error())
}
