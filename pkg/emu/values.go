package emu

import (
	"fmt"

	"github.com/blacktop/ilpatch/pkg/cil"
)

// Evaluation values are plain Go values:
//
//	int64    every integer type, booleans and chars
//	float64  System.Single and System.Double
//	string   System.String
//	nil      null references
//	*any     managed addresses (ldarga, ldloca, ldflda, ...)
//	*Object  instances
//	*Array   arrays

// Object is an instance of a class or struct.
type Object struct {
	Type   string
	Fields map[string]*any
}

// NewObject returns an instance of typeName with no fields set.
func NewObject(typeName string) *Object {
	return &Object{Type: typeName, Fields: make(map[string]*any)}
}

// Addr returns the address of a field, allocating it on first use.
func (o *Object) Addr(name string) *any {
	p, ok := o.Fields[name]
	if !ok {
		p = new(any)
		o.Fields[name] = p
	}
	return p
}

// Get returns a field value, nil when it was never stored.
func (o *Object) Get(name string) any {
	if p, ok := o.Fields[name]; ok {
		return *p
	}
	return nil
}

// Set stores a field value.
func (o *Object) Set(name string, v any) {
	*o.Addr(name) = v
}

// Array is a single dimensional array.
type Array struct {
	Elems []any
}

// Zero returns the default value of typeName.
func Zero(typeName string) any {
	switch typeName {
	case "System.Boolean", "System.Char", "System.SByte", "System.Byte",
		"System.Int16", "System.UInt16", "System.Int32", "System.UInt32",
		"System.Int64", "System.UInt64", "System.IntPtr", "System.UIntPtr":
		return int64(0)
	case "System.Single", "System.Double":
		return float64(0)
	}
	return nil
}

// Bool converts b to its evaluation value.
func Bool(b bool) any {
	if b {
		return int64(1)
	}
	return int64(0)
}

// Truthy is the condition tested by brtrue and brfalse.
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return true
}

func numbers(a, b any) (ia, ib int64, fa, fb float64, float bool, err error) {
	switch a := a.(type) {
	case int64:
		ia, fa = a, float64(a)
	case float64:
		fa, float = a, true
	default:
		return 0, 0, 0, 0, false, fmt.Errorf("%w: arithmetic on %T", ErrInvalidProgram, a)
	}
	switch b := b.(type) {
	case int64:
		ib, fb = b, float64(b)
	case float64:
		fb, float = b, true
	default:
		return 0, 0, 0, 0, false, fmt.Errorf("%w: arithmetic on %T", ErrInvalidProgram, b)
	}
	return ia, ib, fa, fb, float, nil
}

func arith(op cil.OpCode, a, b any) (any, error) {
	ia, ib, fa, fb, float, err := numbers(a, b)
	if err != nil {
		return nil, err
	}
	if float {
		switch op {
		case cil.Add:
			return fa + fb, nil
		case cil.Sub:
			return fa - fb, nil
		case cil.Mul:
			return fa * fb, nil
		case cil.Div:
			return fa / fb, nil
		}
		return nil, fmt.Errorf("%w: %s on floating point operands", ErrInvalidProgram, op)
	}
	switch op {
	case cil.Add:
		return ia + ib, nil
	case cil.Sub:
		return ia - ib, nil
	case cil.Mul:
		return ia * ib, nil
	case cil.Div, cil.Rem:
		if ib == 0 {
			return nil, fmt.Errorf("%w: System.DivideByZeroException", ErrThrown)
		}
		if op == cil.Div {
			return ia / ib, nil
		}
		return ia % ib, nil
	case cil.And:
		return ia & ib, nil
	case cil.Or:
		return ia | ib, nil
	case cil.Xor:
		return ia ^ ib, nil
	}
	return nil, fmt.Errorf("%w: %s is not arithmetic", ErrInvalidProgram, op)
}

func unary(op cil.OpCode, v any) (any, error) {
	switch v := v.(type) {
	case int64:
		switch op {
		case cil.Neg:
			return -v, nil
		case cil.ConvI:
			return v, nil
		}
		return ^v, nil
	case float64:
		switch op {
		case cil.Neg:
			return -v, nil
		case cil.ConvI:
			return int64(v), nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %T", ErrInvalidProgram, op, v)
}

func compare(op cil.OpCode, a, b any) (bool, error) {
	if op == cil.Ceq {
		if _, _, fa, fb, _, err := numbers(a, b); err == nil {
			return fa == fb, nil
		}
		return a == b, nil
	}
	_, _, fa, fb, _, err := numbers(a, b)
	if err != nil {
		return false, err
	}
	if op == cil.Cgt {
		return fa > fb, nil
	}
	return fa < fb, nil
}

func branchTaken(op cil.OpCode, a, b any) (bool, error) {
	switch op {
	case cil.Beq:
		return compare(cil.Ceq, a, b)
	case cil.Bne:
		eq, err := compare(cil.Ceq, a, b)
		return !eq, err
	case cil.Bgt:
		return compare(cil.Cgt, a, b)
	case cil.Blt:
		return compare(cil.Clt, a, b)
	case cil.Bge:
		lt, err := compare(cil.Clt, a, b)
		return !lt, err
	case cil.Ble:
		gt, err := compare(cil.Cgt, a, b)
		return !gt, err
	}
	return false, fmt.Errorf("%w: %s is not a comparison branch", ErrInvalidProgram, op)
}
