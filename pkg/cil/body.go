package cil

import (
	"fmt"
	"slices"
)

// Body is a method body: an ordered instruction stream, its local variable
// slots and its exception handler clauses.
type Body struct {
	Locals     []string
	Handlers   []Handler
	InitLocals bool

	arena map[ID]*Instruction
	order []ID
	last  ID
}

// NewBody returns an empty body.
func NewBody() *Body {
	return &Body{arena: make(map[ID]*Instruction)}
}

// Create allocates a detached instruction in the body's arena. It has an ID
// (so it can already be used as a branch target) but is not part of the
// stream until it is inserted.
func (b *Body) Create(op OpCode, operand Operand) *Instruction {
	if b.arena == nil {
		b.arena = make(map[ID]*Instruction)
	}
	b.last++
	ins := &Instruction{id: b.last, OpCode: op, Operand: operand}
	b.arena[ins.id] = ins
	return ins
}

// Emit creates an instruction and appends it to the stream.
func (b *Body) Emit(op OpCode, operand Operand) *Instruction {
	ins := b.Create(op, operand)
	b.order = append(b.order, ins.id)
	return ins
}

// AddLocal appends a local variable slot and returns its index.
func (b *Body) AddLocal(typeName string) int {
	b.Locals = append(b.Locals, typeName)
	return len(b.Locals) - 1
}

// Len returns the number of instructions in the stream.
func (b *Body) Len() int {
	return len(b.order)
}

// At returns the instruction at pos, or nil when pos is out of range.
func (b *Body) At(pos int) *Instruction {
	if pos < 0 || pos >= len(b.order) {
		return nil
	}
	return b.arena[b.order[pos]]
}

// Instruction returns the instruction with the given ID, placed or detached.
func (b *Body) Instruction(id ID) *Instruction {
	return b.arena[id]
}

// Position returns the stream position of id, or -1 when it is not placed.
func (b *Body) Position(id ID) int {
	if id == End {
		return -1
	}
	return slices.Index(b.order, id)
}

// Instructions returns the stream in order.
func (b *Body) Instructions() []*Instruction {
	out := make([]*Instruction, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.arena[id])
	}
	return out
}

// FindFirst returns the position of the first instruction at or after from
// that matches pred.
func (b *Body) FindFirst(pred Predicate, from int) (int, error) {
	if from < 0 || from > len(b.order) {
		return -1, fmt.Errorf("%w: search start %d outside [0,%d]", ErrStructuralInvariant, from, len(b.order))
	}
	for pos := from; pos < len(b.order); pos++ {
		if pred(b.arena[b.order[pos]]) {
			return pos, nil
		}
	}
	return -1, ErrNotFound
}

// FindAll returns the positions of every instruction matching pred.
func (b *Body) FindAll(pred Predicate) []int {
	var out []int
	for pos, id := range b.order {
		if pred(b.arena[id]) {
			out = append(out, pos)
		}
	}
	return out
}

// InsertBefore places ins, in order, in front of the instruction at pos.
// pos == Len() appends.
func (b *Body) InsertBefore(pos int, ins ...*Instruction) error {
	if pos < 0 || pos > len(b.order) {
		return fmt.Errorf("%w: insert position %d outside [0,%d]", ErrStructuralInvariant, pos, len(b.order))
	}
	ids := make([]ID, 0, len(ins))
	for _, i := range ins {
		if i == nil || b.arena[i.id] != i {
			return fmt.Errorf("%w: instruction %v does not belong to this body", ErrStructuralInvariant, i)
		}
		if slices.Contains(ids, i.id) || b.Position(i.id) >= 0 {
			return fmt.Errorf("%w: instruction %v is already placed", ErrStructuralInvariant, i)
		}
		ids = append(ids, i.id)
	}
	b.order = slices.Insert(b.order, pos, ids...)
	return nil
}

// InsertAfter places ins, in order, behind the instruction at pos.
func (b *Body) InsertAfter(pos int, ins ...*Instruction) error {
	if pos < 0 || pos >= len(b.order) {
		return fmt.Errorf("%w: insert position %d outside [0,%d)", ErrStructuralInvariant, pos, len(b.order))
	}
	return b.InsertBefore(pos+1, ins...)
}

// Append places ins at the end of the stream.
func (b *Body) Append(ins ...*Instruction) error {
	return b.InsertBefore(len(b.order), ins...)
}

// RemoveRange deletes the instructions in [from, to). It refuses to remove
// anything still referenced from outside the range, either by a branch or by
// an exception handler boundary; callers must Retarget those first. Branches
// of created but unplaced instructions count too.
func (b *Body) RemoveRange(from, to int) error {
	if from < 0 || to > len(b.order) || from > to {
		return fmt.Errorf("%w: range [%d,%d) outside [0,%d]", ErrStructuralInvariant, from, to, len(b.order))
	}
	removed := make(map[ID]bool, to-from)
	for _, id := range b.order[from:to] {
		removed[id] = true
	}
	for id, ins := range b.arena {
		if removed[id] {
			continue
		}
		for _, t := range ins.Operand.BranchTargets() {
			if removed[t] {
				return fmt.Errorf("%w: %s (%s) targets IL_%04x inside [%d,%d)",
					ErrDanglingReference, b.Label(id), ins.OpCode, b.Position(t), from, to)
			}
		}
	}
	for i := range b.Handlers {
		for _, bound := range b.Handlers[i].boundaries() {
			if removed[*bound] {
				return fmt.Errorf("%w: %s handler %d boundary IL_%04x inside [%d,%d)",
					ErrDanglingReference, b.Handlers[i].Kind, i, b.Position(*bound), from, to)
			}
		}
	}
	for id := range removed {
		delete(b.arena, id)
	}
	b.order = slices.Delete(b.order, from, to)
	return nil
}

// Retarget repoints every branch operand and handler boundary that names from
// so that it names to instead. It returns the number of references rewritten.
func (b *Body) Retarget(from, to ID) int {
	n := 0
	for _, ins := range b.arena {
		switch ins.Operand.Kind {
		case TargetOperand:
			if ins.Operand.Target == from {
				ins.Operand.Target = to
				n++
			}
		case SwitchOperand:
			for i, t := range ins.Operand.Targets {
				if t == from {
					ins.Operand.Targets[i] = to
					n++
				}
			}
		}
	}
	for i := range b.Handlers {
		for _, bound := range b.Handlers[i].boundaries() {
			if *bound == from {
				*bound = to
				n++
			}
		}
	}
	return n
}

// Detach takes every instruction out of the stream, leaving them allocated
// so they can be placed again. Handler boundaries keep naming them.
func (b *Body) Detach() []*Instruction {
	out := b.Instructions()
	b.order = nil
	return out
}

// Clear empties the body (instructions, locals and handlers) and emits a
// return of the zero value of ret. valueType tells Clear whether a
// non-primitive ret is a struct, which needs a temporary to initialise.
func (b *Body) Clear(ret string, valueType bool) {
	b.arena = make(map[ID]*Instruction)
	b.order = nil
	b.Locals = nil
	b.Handlers = nil
	b.EmitDefault(ret, valueType)
	b.Emit(Ret, None)
}

// EmitDefault appends instructions that push the zero value of typeName.
// Nothing is pushed for System.Void.
func (b *Body) EmitDefault(typeName string, valueType bool) {
	switch typeName {
	case "", "System.Void":
	case "System.Boolean", "System.Char", "System.SByte", "System.Byte",
		"System.Int16", "System.UInt16", "System.Int32", "System.UInt32":
		b.Emit(LdcI4, Int(0))
	case "System.Int64", "System.UInt64":
		b.Emit(LdcI8, Int(0))
	case "System.IntPtr", "System.UIntPtr":
		b.Emit(LdcI4, Int(0))
		b.Emit(ConvI, None)
	case "System.Single":
		b.Emit(LdcR4, Float(0))
	case "System.Double":
		b.Emit(LdcR8, Float(0))
	default:
		if !valueType {
			b.Emit(Ldnull, None)
			return
		}
		tmp := b.AddLocal(typeName)
		b.InitLocals = true
		b.Emit(Ldloca, Local(tmp))
		b.Emit(Initobj, Member(TypeRef(typeName)))
		b.Emit(Ldloc, Local(tmp))
	}
}

// Clone returns a deep copy. Instruction IDs are preserved.
func (b *Body) Clone() *Body {
	c := &Body{
		Locals:     slices.Clone(b.Locals),
		Handlers:   slices.Clone(b.Handlers),
		InitLocals: b.InitLocals,
		arena:      make(map[ID]*Instruction, len(b.arena)),
		order:      slices.Clone(b.order),
		last:       b.last,
	}
	for id, ins := range b.arena {
		c.arena[id] = &Instruction{id: id, OpCode: ins.OpCode, Operand: ins.Operand.clone()}
	}
	return c
}
