package cil

import "errors"

var (
	// ErrNotFound is returned when a cursor search matches nothing.
	ErrNotFound = errors.New("instruction not found")

	// ErrDanglingReference is returned when an edit would leave a branch or an
	// exception handler boundary pointing at a removed instruction.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrStructuralInvariant is returned when a body (or an edit to it) would
	// not be loadable.
	ErrStructuralInvariant = errors.New("structural invariant violated")
)
