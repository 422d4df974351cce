// Package cil models method bodies of managed (CIL) modules as editable
// instruction streams.
//
// Instructions are owned by the Body that created them and are identified by
// an arena ID that never changes for the lifetime of the instruction. Branch
// operands and exception handler boundaries refer to instructions by ID, so
// inserting code never invalidates them; removing code is checked so that
// nothing is left pointing at an instruction that no longer exists.
package cil

import "fmt"

// ID is the stable identity of an instruction inside its Body.
type ID uint32

// End is the zero ID. As an exclusive handler boundary it means "end of body".
const End ID = 0

// Instruction is a single operation of a method body.
type Instruction struct {
	id      ID
	OpCode  OpCode
	Operand Operand
}

// ID returns the instruction's arena identity.
func (i *Instruction) ID() ID {
	return i.id
}

func (i *Instruction) String() string {
	return i.format(func(id ID) string { return fmt.Sprintf("#%d", id) })
}

func (i *Instruction) format(label func(ID) string) string {
	if i.Operand.Kind == NoOperand {
		return i.OpCode.String()
	}
	return i.OpCode.String() + " " + i.Operand.format(label)
}

// HandlerKind is the kind of an exception handler clause.
type HandlerKind uint8

const (
	CatchHandler HandlerKind = iota
	FilterHandler
	FinallyHandler
	FaultHandler
)

func (k HandlerKind) String() string {
	return [...]string{"catch", "filter", "finally", "fault"}[k]
}

// ParseHandlerKind is the inverse of HandlerKind.String.
func ParseHandlerKind(s string) (HandlerKind, error) {
	for k := CatchHandler; k <= FaultHandler; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown exception handler kind %q", s)
}

// Handler is an exception handler clause. TryStart and HandlerStart must name
// live instructions; TryEnd and HandlerEnd are exclusive and may be End.
type Handler struct {
	Kind         HandlerKind
	TryStart     ID
	TryEnd       ID
	HandlerStart ID
	HandlerEnd   ID
	CatchType    string
}

func (h *Handler) boundaries() []*ID {
	return []*ID{&h.TryStart, &h.TryEnd, &h.HandlerStart, &h.HandlerEnd}
}
