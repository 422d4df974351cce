package patch

import (
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
)

// Region selects a contiguous run of instructions by two anchors.
//
// The start anchor is the first instruction matching Start; the end anchor is
// the first instruction at or after it matching End. The anchors themselves
// are kept unless IncludeStart / IncludeEnd say otherwise.
type Region struct {
	Start        cil.Predicate
	End          cil.Predicate
	IncludeStart bool
	IncludeEnd   bool
	// Unique fails the removal when either anchor matches more than once
	// instead of taking the first match.
	Unique bool
	// Retarget repoints branches and handler boundaries naming a removed
	// instruction to the first instruction after the region.
	Retarget bool
}

// Bounds resolves the region in b to the half-open position range [from, to).
func (r Region) Bounds(b *cil.Body) (from, to int, err error) {
	start, err := b.FindFirst(r.Start, 0)
	if errors.Is(err, cil.ErrNotFound) {
		return 0, 0, fmt.Errorf("%w: start anchor", ErrAnchorNotFound)
	} else if err != nil {
		return 0, 0, err
	}
	end, err := b.FindFirst(r.End, start)
	if errors.Is(err, cil.ErrNotFound) {
		return 0, 0, fmt.Errorf("%w: end anchor after IL_%04x", ErrAnchorNotFound, start)
	} else if err != nil {
		return 0, 0, err
	}

	if r.Unique {
		if n := len(b.FindAll(r.Start)); n > 1 {
			return 0, 0, fmt.Errorf("%w: start anchor matches %d instructions", cil.ErrStructuralInvariant, n)
		}
		if again, err := b.FindFirst(r.End, end+1); err == nil {
			return 0, 0, fmt.Errorf("%w: end anchor matches IL_%04x and IL_%04x", cil.ErrStructuralInvariant, end, again)
		}
	}

	from, to = start+1, end
	if r.IncludeStart {
		from = start
	}
	if r.IncludeEnd {
		to = end + 1
	}
	return from, max(from, to), nil
}

// RemoveRegion deletes the region r from b and returns the number of
// instructions removed. Nothing is removed on failure.
func RemoveRegion(b *cil.Body, r Region) (int, error) {
	from, to, err := r.Bounds(b)
	if err != nil {
		return 0, err
	}
	if from == to {
		return 0, nil
	}

	if r.Retarget {
		if after := b.At(to); after != nil {
			var removed []cil.ID
			for pos := from; pos < to; pos++ {
				removed = append(removed, b.At(pos).ID())
			}
			for _, id := range removed {
				b.Retarget(id, after.ID())
			}
		}
	}

	if err := b.RemoveRange(from, to); err != nil {
		return 0, err
	}
	log.Debugf("removed IL_%04x..IL_%04x", from, to-1)
	return to - from, nil
}

// ClearMethod replaces the body of mt with a bare return of the default value
// of its return type.
func ClearMethod(mt *metadata.Method) error {
	if mt.Body == nil {
		return fmt.Errorf("%w: %s has no body to clear", cil.ErrStructuralInvariant, mt)
	}
	mt.ClearBody()
	log.WithField("method", mt.FullName()).Debug("cleared")
	return nil
}

// ClearType clears every method of t that has a body. It returns the number
// of methods cleared.
func ClearType(t *metadata.Type) int {
	n := 0
	for _, mt := range t.Methods() {
		if mt.Body == nil {
			continue
		}
		mt.ClearBody()
		n++
	}
	log.WithField("type", t.FullName()).Debugf("cleared %d method(s)", n)
	return n
}
