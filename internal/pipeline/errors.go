package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrAborted is matched by every error that stopped a module's plan.
var ErrAborted = errors.New("modification run aborted")

// UnitError reports the modification that failed a module's plan.
type UnitError struct {
	Description string
	// Index is the unit's position in the plan.
	Index int
	Err   error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s (unit %d): %v", e.Description, e.Index+1, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrAborted) hold for every UnitError.
func (e *UnitError) Is(target error) bool { return target == ErrAborted }

// IsSkip returns true if the error is an ErrSkip.
func IsSkip(err error) bool {
	return errors.As(err, &ErrSkip{})
}

// ErrSkip is returned by a modification that found nothing to do in the
// module it was given. It is counted as skipped rather than failing the plan.
type ErrSkip struct {
	reason string
}

// Error implements the error interface. returns the reason the unit was skipped.
func (e ErrSkip) Error() string {
	return e.reason
}

// Skip skips this unit with the given reason.
func Skip(reason string) ErrSkip {
	return ErrSkip{reason: reason}
}

// SkipMemento collects the reasons of several skips so a unit that skipped
// more than one step can report them together.
type SkipMemento struct {
	reasons []string
}

// Remember records the reason of err if it is a skip. Other errors and
// repeated reasons are ignored.
func (s *SkipMemento) Remember(err error) {
	var skip ErrSkip
	if errors.As(err, &skip) && !slices.Contains(s.reasons, skip.reason) {
		s.reasons = append(s.reasons, skip.reason)
	}
}

// Len returns the number of distinct reasons remembered.
func (s *SkipMemento) Len() int { return len(s.reasons) }

// Evaluate returns a skip carrying every remembered reason, or nil.
func (s *SkipMemento) Evaluate() error {
	if len(s.reasons) == 0 {
		return nil
	}
	return Skip(strings.Join(s.reasons, "; "))
}
