package peersock

import "fmt"

// BorrowError is the panic value raised when a borrow violates the
// single-owner discipline or touches a dropped holder.
type BorrowError struct {
	// Mutable reports whether the failing request was BorrowMut.
	Mutable bool
	// Reason describes the conflicting state.
	Reason string
}

func (e *BorrowError) Error() string {
	kind := "borrow"
	if e.Mutable {
		kind = "borrow_mut"
	}
	return fmt.Sprintf("peersock: %s: %s", kind, e.Reason)
}

const (
	reasonMutablyBorrowed   = "value is already mutably borrowed"
	reasonBorrowed          = "value is already borrowed"
	reasonDropped           = "reference has been dropped"
	reasonGuardReleased     = "guard used outside its scope"
	reasonDropWhileBorrowed = "last holder dropped while a guard is alive"
)

func guardReleased() {
	panic(&BorrowError{Reason: reasonGuardReleased})
}
