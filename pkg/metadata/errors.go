package metadata

import "errors"

var (
	// ErrSymbolNotFound is returned when a lookup matches nothing.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrSymbolAmbiguous is returned when a lookup matches more than one
	// member. The resolver never picks one of several candidates.
	ErrSymbolAmbiguous = errors.New("symbol ambiguous")

	// ErrStillReferenced is returned when a member slated for removal is used
	// by code or signatures that survive the removal.
	ErrStillReferenced = errors.New("still referenced")
)
