package cil

import "slices"

// Predicate selects instructions during a cursor search.
type Predicate func(*Instruction) bool

// Op matches any of the given opcodes.
func Op(ops ...OpCode) Predicate {
	return func(i *Instruction) bool {
		return slices.Contains(ops, i.OpCode)
	}
}

// CallTo matches call, callvirt and newobj instructions invoking a method named name.
func CallTo(name string) Predicate {
	return func(i *Instruction) bool {
		return i.OpCode.IsCall() && i.Operand.Kind == MemberOperand && i.Operand.Member.Name == name
	}
}

// CallToRef matches calls to exactly ref.
func CallToRef(ref MemberRef) Predicate {
	return func(i *Instruction) bool {
		return i.OpCode.IsCall() && i.Operand.Kind == MemberOperand && i.Operand.Member.Equal(ref)
	}
}

// LoadsString matches ldstr of the literal s.
func LoadsString(s string) Predicate {
	return func(i *Instruction) bool {
		return i.OpCode == Ldstr && i.Operand.Str == s
	}
}

// StoresField matches stfld/stsfld into a field named name.
func StoresField(name string) Predicate {
	return func(i *Instruction) bool {
		return (i.OpCode == Stfld || i.OpCode == Stsfld) && i.Operand.Member.Name == name
	}
}

func AllOf(preds ...Predicate) Predicate {
	return func(i *Instruction) bool {
		for _, p := range preds {
			if !p(i) {
				return false
			}
		}
		return true
	}
}

func AnyOf(preds ...Predicate) Predicate {
	return func(i *Instruction) bool {
		for _, p := range preds {
			if p(i) {
				return true
			}
		}
		return false
	}
}

func Negate(pred Predicate) Predicate {
	return func(i *Instruction) bool { return !pred(i) }
}
