package cil

import (
	"errors"
	"fmt"
)

// Verify checks that the body is structurally loadable for a method taking
// args argument slots (including the instance slot). Every violation found is
// reported; each one matches ErrStructuralInvariant.
func (b *Body) Verify(args int) error {
	var errs []error
	fail := func(format string, a ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrStructuralInvariant}, a...)...))
	}

	if len(b.order) == 0 {
		fail("empty body")
		return errors.Join(errs...)
	}

	for pos, id := range b.order {
		ins, ok := b.arena[id]
		if !ok {
			fail("IL_%04x: instruction #%d missing from arena", pos, id)
			continue
		}
		if want := ins.OpCode.Operand(); ins.Operand.Kind != want {
			fail("IL_%04x: %s expects a %s operand, has %s", pos, ins.OpCode, want, ins.Operand.Kind)
			continue
		}
		for _, t := range ins.Operand.BranchTargets() {
			if b.Position(t) < 0 {
				fail("IL_%04x: %s targets instruction #%d which is not in the body", pos, ins.OpCode, t)
			}
		}
		switch ins.Operand.Kind {
		case LocalOperand:
			if ins.Operand.Slot < 0 || ins.Operand.Slot >= len(b.Locals) {
				fail("IL_%04x: %s local V_%d out of range (%d locals)", pos, ins.OpCode, ins.Operand.Slot, len(b.Locals))
			}
		case ArgOperand:
			if ins.Operand.Slot < 0 || ins.Operand.Slot >= args {
				fail("IL_%04x: %s argument A_%d out of range (%d args)", pos, ins.OpCode, ins.Operand.Slot, args)
			}
		}
	}

	if last := b.At(len(b.order) - 1); last != nil && !last.OpCode.Terminates() {
		fail("control falls off the end of the body after %s", last.OpCode)
	}

	for i, h := range b.Handlers {
		tryStart, tryEnd := b.Position(h.TryStart), b.endPosition(h.TryEnd)
		hStart, hEnd := b.Position(h.HandlerStart), b.endPosition(h.HandlerEnd)
		switch {
		case tryStart < 0 || hStart < 0:
			fail("%s handler %d starts at an instruction not in the body", h.Kind, i)
		case tryEnd < 0 || hEnd < 0:
			fail("%s handler %d ends at an instruction not in the body", h.Kind, i)
		case tryStart >= tryEnd || hStart >= hEnd:
			fail("%s handler %d has an empty or inverted range", h.Kind, i)
		}
	}

	return errors.Join(errs...)
}

func (b *Body) endPosition(id ID) int {
	if id == End {
		return len(b.order)
	}
	return b.Position(id)
}
