package patch

import "errors"

var (
	// ErrAnchorNotFound is returned when a region anchor matches nothing.
	ErrAnchorNotFound = errors.New("anchor not found")
	// ErrWrapTargetInvalid is returned when a method cannot be wrapped with the
	// given hooks.
	ErrWrapTargetInvalid = errors.New("wrap target invalid")
)
