package cil

import (
	"fmt"
	"strings"
)

// OpCode is the operation kind of an Instruction.
type OpCode uint8

const (
	Nop OpCode = iota
	Ldarg
	Ldarga
	Starg
	Ldloc
	Ldloca
	Stloc
	LdcI4
	LdcI8
	LdcR4
	LdcR8
	Ldnull
	Ldstr
	Dup
	Pop
	Add
	Sub
	Mul
	Div
	Rem
	And
	Or
	Xor
	Neg
	Not
	ConvI
	Ceq
	Cgt
	Clt
	Br
	Brfalse
	Brtrue
	Beq
	Bne
	Bge
	Bgt
	Ble
	Blt
	Switch
	Leave
	Call
	Callvirt
	Newobj
	Ret
	Ldfld
	Ldflda
	Stfld
	Ldsfld
	Ldsflda
	Stsfld
	Ldind
	Stind
	Ldelem
	LdelemRef
	Stelem
	StelemRef
	Ldlen
	Newarr
	Initobj
	Box
	Unbox
	Castclass
	Isinst
	Throw
	Endfinally
	numOpCodes
)

// FlowControl describes how an instruction hands control to its successor.
type FlowControl uint8

const (
	FlowNext FlowControl = iota
	FlowBranch
	FlowCondBranch
	FlowCall
	FlowReturn
	FlowThrow
)

type opInfo struct {
	name    string
	operand OperandKind
	flow    FlowControl
}

var opTable = [numOpCodes]opInfo{
	Nop:        {"nop", NoOperand, FlowNext},
	Ldarg:      {"ldarg", ArgOperand, FlowNext},
	Ldarga:     {"ldarga", ArgOperand, FlowNext},
	Starg:      {"starg", ArgOperand, FlowNext},
	Ldloc:      {"ldloc", LocalOperand, FlowNext},
	Ldloca:     {"ldloca", LocalOperand, FlowNext},
	Stloc:      {"stloc", LocalOperand, FlowNext},
	LdcI4:      {"ldc.i4", IntOperand, FlowNext},
	LdcI8:      {"ldc.i8", IntOperand, FlowNext},
	LdcR4:      {"ldc.r4", FloatOperand, FlowNext},
	LdcR8:      {"ldc.r8", FloatOperand, FlowNext},
	Ldnull:     {"ldnull", NoOperand, FlowNext},
	Ldstr:      {"ldstr", StringOperand, FlowNext},
	Dup:        {"dup", NoOperand, FlowNext},
	Pop:        {"pop", NoOperand, FlowNext},
	Add:        {"add", NoOperand, FlowNext},
	Sub:        {"sub", NoOperand, FlowNext},
	Mul:        {"mul", NoOperand, FlowNext},
	Div:        {"div", NoOperand, FlowNext},
	Rem:        {"rem", NoOperand, FlowNext},
	And:        {"and", NoOperand, FlowNext},
	Or:         {"or", NoOperand, FlowNext},
	Xor:        {"xor", NoOperand, FlowNext},
	Neg:        {"neg", NoOperand, FlowNext},
	Not:        {"not", NoOperand, FlowNext},
	ConvI:      {"conv.i", NoOperand, FlowNext},
	Ceq:        {"ceq", NoOperand, FlowNext},
	Cgt:        {"cgt", NoOperand, FlowNext},
	Clt:        {"clt", NoOperand, FlowNext},
	Br:         {"br", TargetOperand, FlowBranch},
	Brfalse:    {"brfalse", TargetOperand, FlowCondBranch},
	Brtrue:     {"brtrue", TargetOperand, FlowCondBranch},
	Beq:        {"beq", TargetOperand, FlowCondBranch},
	Bne:        {"bne.un", TargetOperand, FlowCondBranch},
	Bge:        {"bge", TargetOperand, FlowCondBranch},
	Bgt:        {"bgt", TargetOperand, FlowCondBranch},
	Ble:        {"ble", TargetOperand, FlowCondBranch},
	Blt:        {"blt", TargetOperand, FlowCondBranch},
	Switch:     {"switch", SwitchOperand, FlowCondBranch},
	Leave:      {"leave", TargetOperand, FlowBranch},
	Call:       {"call", MemberOperand, FlowCall},
	Callvirt:   {"callvirt", MemberOperand, FlowCall},
	Newobj:     {"newobj", MemberOperand, FlowCall},
	Ret:        {"ret", NoOperand, FlowReturn},
	Ldfld:      {"ldfld", MemberOperand, FlowNext},
	Ldflda:     {"ldflda", MemberOperand, FlowNext},
	Stfld:      {"stfld", MemberOperand, FlowNext},
	Ldsfld:     {"ldsfld", MemberOperand, FlowNext},
	Ldsflda:    {"ldsflda", MemberOperand, FlowNext},
	Stsfld:     {"stsfld", MemberOperand, FlowNext},
	Ldind:      {"ldind", NoOperand, FlowNext},
	Stind:      {"stind", NoOperand, FlowNext},
	Ldelem:     {"ldelem", MemberOperand, FlowNext},
	LdelemRef:  {"ldelem.ref", NoOperand, FlowNext},
	Stelem:     {"stelem", MemberOperand, FlowNext},
	StelemRef:  {"stelem.ref", NoOperand, FlowNext},
	Ldlen:      {"ldlen", NoOperand, FlowNext},
	Newarr:     {"newarr", MemberOperand, FlowNext},
	Initobj:    {"initobj", MemberOperand, FlowNext},
	Box:        {"box", MemberOperand, FlowNext},
	Unbox:      {"unbox.any", MemberOperand, FlowNext},
	Castclass:  {"castclass", MemberOperand, FlowNext},
	Isinst:     {"isinst", MemberOperand, FlowNext},
	Throw:      {"throw", NoOperand, FlowThrow},
	Endfinally: {"endfinally", NoOperand, FlowReturn},
}

var opByName = func() map[string]OpCode {
	m := make(map[string]OpCode, numOpCodes)
	for op := range numOpCodes {
		m[opTable[op].name] = op
	}
	return m
}()

func (op OpCode) String() string {
	if op >= numOpCodes {
		return fmt.Sprintf("OpCode(%d)", uint8(op))
	}
	return opTable[op].name
}

// Operand returns the operand kind the opcode expects.
func (op OpCode) Operand() OperandKind {
	if op >= numOpCodes {
		return NoOperand
	}
	return opTable[op].operand
}

// Flow returns the control flow class of the opcode.
func (op OpCode) Flow() FlowControl {
	if op >= numOpCodes {
		return FlowNext
	}
	return opTable[op].flow
}

// IsBranch reports whether the opcode carries one or more branch targets.
func (op OpCode) IsBranch() bool {
	k := op.Operand()
	return k == TargetOperand || k == SwitchOperand
}

// IsCall reports whether the opcode invokes a method.
func (op OpCode) IsCall() bool {
	return op.Flow() == FlowCall
}

// Terminates reports whether control never falls through to the next instruction.
func (op OpCode) Terminates() bool {
	switch op.Flow() {
	case FlowBranch, FlowReturn, FlowThrow:
		return true
	}
	return false
}

// ParseOpCode looks an opcode up by its mnemonic. Short forms such as
// "brtrue.s" or "ldarg.0" are accepted and folded into their long form; the
// implied slot or constant is returned in imm when present.
func ParseOpCode(name string) (op OpCode, imm *int64, err error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if op, ok := opByName[name]; ok {
		return op, nil, nil
	}
	if base, ok := strings.CutSuffix(name, ".s"); ok {
		if op, ok := opByName[base]; ok {
			return op, nil, nil
		}
		name = base
	}
	for _, prefix := range []string{"ldarg.", "ldloc.", "stloc.", "ldc.i4."} {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		var v int64
		if rest == "m1" {
			v = -1
		} else if _, err := fmt.Sscanf(rest, "%d", &v); err != nil {
			return 0, nil, fmt.Errorf("unknown opcode %q", name)
		}
		return opByName[strings.TrimSuffix(prefix, ".")], &v, nil
	}
	return 0, nil, fmt.Errorf("unknown opcode %q", name)
}
