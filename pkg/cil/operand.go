package cil

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// OperandKind tags the value held by an Operand.
type OperandKind uint8

const (
	NoOperand OperandKind = iota
	IntOperand
	FloatOperand
	StringOperand
	MemberOperand
	TargetOperand
	SwitchOperand
	LocalOperand
	ArgOperand
)

func (k OperandKind) String() string {
	return [...]string{
		"none",
		"int",
		"float",
		"string",
		"member",
		"target",
		"switch",
		"local",
		"arg",
	}[k]
}

// Operand is the tagged operand of an Instruction. Only the field selected by
// Kind is meaningful.
type Operand struct {
	Kind    OperandKind
	Int     int64
	Float   float64
	Str     string
	Member  MemberRef
	Target  ID
	Targets []ID
	Slot    int
}

// None is the empty operand.
var None = Operand{}

func Int(v int64) Operand        { return Operand{Kind: IntOperand, Int: v} }
func Float(v float64) Operand    { return Operand{Kind: FloatOperand, Float: v} }
func Str(s string) Operand       { return Operand{Kind: StringOperand, Str: s} }
func Member(r MemberRef) Operand { return Operand{Kind: MemberOperand, Member: r} }
func Target(id ID) Operand       { return Operand{Kind: TargetOperand, Target: id} }
func Local(slot int) Operand     { return Operand{Kind: LocalOperand, Slot: slot} }
func Arg(slot int) Operand       { return Operand{Kind: ArgOperand, Slot: slot} }

// Targets builds a switch table operand.
func Targets(ids ...ID) Operand {
	return Operand{Kind: SwitchOperand, Targets: slices.Clone(ids)}
}

// References reports whether the operand branches to id.
func (o Operand) References(id ID) bool {
	switch o.Kind {
	case TargetOperand:
		return o.Target == id
	case SwitchOperand:
		return slices.Contains(o.Targets, id)
	}
	return false
}

// BranchTargets returns every instruction the operand branches to.
func (o Operand) BranchTargets() []ID {
	switch o.Kind {
	case TargetOperand:
		return []ID{o.Target}
	case SwitchOperand:
		return slices.Clone(o.Targets)
	}
	return nil
}

func (o Operand) clone() Operand {
	o.Targets = slices.Clone(o.Targets)
	o.Member = o.Member.Clone()
	return o
}

func (o Operand) format(label func(ID) string) string {
	switch o.Kind {
	case IntOperand:
		return strconv.FormatInt(o.Int, 10)
	case FloatOperand:
		return strconv.FormatFloat(o.Float, 'g', -1, 64)
	case StringOperand:
		return strconv.Quote(o.Str)
	case MemberOperand:
		return o.Member.String()
	case TargetOperand:
		return label(o.Target)
	case SwitchOperand:
		labels := make([]string, 0, len(o.Targets))
		for _, id := range o.Targets {
			labels = append(labels, label(id))
		}
		return "(" + strings.Join(labels, ", ") + ")"
	case LocalOperand:
		return fmt.Sprintf("V_%d", o.Slot)
	case ArgOperand:
		return fmt.Sprintf("A_%d", o.Slot)
	}
	return ""
}
