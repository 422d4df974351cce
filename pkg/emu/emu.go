// Package emu is a small evaluator for method bodies of a loaded module.
//
// It runs the instruction stream of a method against Go values so that
// patched code can be exercised without the target runtime. Calls are
// dispatched to hooks registered with Hook first and to method bodies of the
// module second. There are no exception semantics: throw stops evaluation and
// leave is a plain branch.
package emu

import (
	"errors"
	"fmt"
	"slices"

	"github.com/apex/log"
	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultMaxSteps  = 1 << 20
	defaultCacheSize = 256
)

var (
	// ErrNoImplementation is returned when a call has neither a hook nor a body.
	ErrNoImplementation = errors.New("no implementation")
	// ErrStepLimit is returned when evaluation runs longer than Config.MaxSteps.
	ErrStepLimit = errors.New("step limit exceeded")
	// ErrThrown is returned when evaluated code executes throw.
	ErrThrown = errors.New("exception thrown")
	// ErrInvalidProgram is returned for stack underflow, bad operand values and
	// the like.
	ErrInvalidProgram = errors.New("invalid program")
)

// Config is an emulation configuration object
type Config struct {
	Verbose  bool
	MaxSteps int
	// CacheSize bounds the number of resolved call targets kept.
	CacheSize int
}

// HookFunc implements a method natively. args holds the instance first when
// the method has one. The result is ignored for void methods.
type HookFunc func(args []any) (any, error)

// Emulation evaluates methods of one module.
type Emulation struct {
	module  *metadata.Module
	conf    *Config
	hooks   map[string]HookFunc
	statics map[string]*any
	methods *lru.Cache[string, *metadata.Method]
	steps   int
	depth   int
}

// NewEmulation creates a new emulation instance
func NewEmulation(m *metadata.Module, conf *Config) *Emulation {
	if conf == nil {
		conf = &Config{}
	}
	size := conf.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	methods, _ := lru.New[string, *metadata.Method](size) // only fails for size <= 0
	return &Emulation{
		module:  m,
		conf:    conf,
		hooks:   make(map[string]HookFunc),
		statics: make(map[string]*any),
		methods: methods,
	}
}

// Hook routes calls to ref to fn. Hooks take precedence over method bodies.
func (e *Emulation) Hook(ref cil.MemberRef, fn HookFunc) {
	e.hooks[ref.Key()] = fn
}

// Static returns the address of a static field, allocating it on first use.
func (e *Emulation) Static(ref cil.MemberRef) *any {
	key := ref.Key()
	if p, ok := e.statics[key]; ok {
		return p
	}
	p := new(any)
	*p = Zero(ref.Return)
	e.statics[key] = p
	return p
}

// Steps returns the number of instructions executed so far.
func (e *Emulation) Steps() int {
	return e.steps
}

// Call evaluates mt with args, the instance first when mt has one.
func (e *Emulation) Call(mt *metadata.Method, args ...any) (any, error) {
	if len(args) != mt.ArgCount() {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidProgram, mt, mt.ArgCount(), len(args))
	}
	return e.invoke(mt.Ref(), args)
}

func (e *Emulation) invoke(ref cil.MemberRef, args []any) (any, error) {
	if fn, ok := e.hooks[ref.Key()]; ok {
		return fn(args)
	}
	mt, err := e.resolve(ref)
	if err != nil || mt.Body == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoImplementation, ref)
	}
	e.depth++
	defer func() { e.depth-- }()
	return e.run(mt, args)
}

// resolve finds the method ref calls, remembering the answer. The module must
// not gain or lose methods while the emulation is in use.
func (e *Emulation) resolve(ref cil.MemberRef) (*metadata.Method, error) {
	key := ref.Key()
	if mt, ok := e.methods.Get(key); ok {
		return mt, nil
	}
	mt, err := e.module.ResolveMethodRef(ref)
	if err != nil {
		return nil, err
	}
	e.methods.Add(key, mt)
	return mt, nil
}

type frame struct {
	method *metadata.Method
	args   []any
	locals []any
	stack  []any
}

func (f *frame) push(v any) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() (any, error) {
	if len(f.stack) == 0 {
		return nil, fmt.Errorf("%w: stack underflow", ErrInvalidProgram)
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

func (f *frame) popN(n int) ([]any, error) {
	if len(f.stack) < n {
		return nil, fmt.Errorf("%w: stack underflow", ErrInvalidProgram)
	}
	vs := slices.Clone(f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return vs, nil
}

func (e *Emulation) run(mt *metadata.Method, args []any) (any, error) {
	body := mt.Body
	f := &frame{
		method: mt,
		args:   slices.Clone(args),
		locals: make([]any, len(body.Locals)),
	}
	for i, l := range body.Locals {
		f.locals[i] = Zero(l)
	}

	if e.conf.Verbose {
		log.WithField("depth", e.depth).Debugf("%s %s", colorCall("call"), mt)
	}

	maxSteps := e.conf.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	pc := 0
	for {
		ins := body.At(pc)
		if ins == nil {
			return nil, fmt.Errorf("%w: %s: control fell off the end of the body", ErrInvalidProgram, mt)
		}
		if e.steps++; e.steps > maxSteps {
			return nil, fmt.Errorf("%w: %d in %s", ErrStepLimit, maxSteps, mt)
		}
		if e.conf.Verbose {
			log.Debugf("  %s: %s", colorAddr("IL_%04x", pc), colorOp(ins.String()))
		}

		next, ret, done, err := e.step(f, ins)
		if err != nil {
			return nil, fmt.Errorf("%s IL_%04x %s: %w", mt, pc, ins.OpCode, err)
		}
		if done {
			return ret, nil
		}
		if next != cil.End {
			if pc = body.Position(next); pc < 0 {
				return nil, fmt.Errorf("%w: %s: branch to instruction #%d not in the body", ErrInvalidProgram, mt, next)
			}
			continue
		}
		pc++
	}
}

// step executes ins. A non-End next is the branch taken; done reports a return.
func (e *Emulation) step(f *frame, ins *cil.Instruction) (next cil.ID, ret any, done bool, err error) {
	o := ins.Operand
	switch ins.OpCode {
	case cil.Nop:

	case cil.Ldarg, cil.Ldarga, cil.Starg:
		if o.Slot < 0 || o.Slot >= len(f.args) {
			return cil.End, nil, false, fmt.Errorf("%w: A_%d out of range", ErrInvalidProgram, o.Slot)
		}
		err = access(f, &f.args[o.Slot], ins.OpCode == cil.Ldarga, ins.OpCode == cil.Starg)
	case cil.Ldloc, cil.Ldloca, cil.Stloc:
		if o.Slot < 0 || o.Slot >= len(f.locals) {
			return cil.End, nil, false, fmt.Errorf("%w: V_%d out of range", ErrInvalidProgram, o.Slot)
		}
		err = access(f, &f.locals[o.Slot], ins.OpCode == cil.Ldloca, ins.OpCode == cil.Stloc)

	case cil.LdcI4, cil.LdcI8:
		f.push(o.Int)
	case cil.LdcR4, cil.LdcR8:
		f.push(o.Float)
	case cil.Ldnull:
		f.push(nil)
	case cil.Ldstr:
		f.push(o.Str)
	case cil.Dup:
		var v any
		if v, err = f.pop(); err == nil {
			f.push(v)
			f.push(v)
		}
	case cil.Pop:
		_, err = f.pop()

	case cil.Add, cil.Sub, cil.Mul, cil.Div, cil.Rem, cil.And, cil.Or, cil.Xor:
		var vs []any
		if vs, err = f.popN(2); err == nil {
			var v any
			if v, err = arith(ins.OpCode, vs[0], vs[1]); err == nil {
				f.push(v)
			}
		}
	case cil.Neg, cil.Not, cil.ConvI:
		var v any
		if v, err = f.pop(); err == nil {
			if v, err = unary(ins.OpCode, v); err == nil {
				f.push(v)
			}
		}
	case cil.Ceq, cil.Cgt, cil.Clt:
		var vs []any
		if vs, err = f.popN(2); err == nil {
			var ok bool
			if ok, err = compare(ins.OpCode, vs[0], vs[1]); err == nil {
				f.push(Bool(ok))
			}
		}

	case cil.Br, cil.Leave:
		if ins.OpCode == cil.Leave {
			f.stack = f.stack[:0]
		}
		return o.Target, nil, false, nil
	case cil.Brfalse, cil.Brtrue:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		if Truthy(v) == (ins.OpCode == cil.Brtrue) {
			return o.Target, nil, false, nil
		}
	case cil.Beq, cil.Bne, cil.Bge, cil.Bgt, cil.Ble, cil.Blt:
		var vs []any
		if vs, err = f.popN(2); err != nil {
			break
		}
		var taken bool
		if taken, err = branchTaken(ins.OpCode, vs[0], vs[1]); err == nil && taken {
			return o.Target, nil, false, nil
		}
	case cil.Switch:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		i, ok := v.(int64)
		if !ok {
			return cil.End, nil, false, fmt.Errorf("%w: switch on %T", ErrInvalidProgram, v)
		}
		if i >= 0 && i < int64(len(o.Targets)) {
			return o.Targets[i], nil, false, nil
		}

	case cil.Call, cil.Callvirt, cil.Newobj:
		err = e.call(f, ins.OpCode, o.Member)
	case cil.Ret:
		if f.method.IsVoid() {
			return cil.End, nil, true, nil
		}
		ret, err = f.pop()
		return cil.End, ret, err == nil, err

	case cil.Ldfld, cil.Ldflda:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		var obj *Object
		if obj, err = object(v); err == nil {
			p := obj.Addr(o.Member.Name)
			if ins.OpCode == cil.Ldflda {
				f.push(p)
			} else {
				f.push(*p)
			}
		}
	case cil.Stfld:
		var vs []any
		if vs, err = f.popN(2); err != nil {
			break
		}
		var obj *Object
		if obj, err = object(vs[0]); err == nil {
			*obj.Addr(o.Member.Name) = vs[1]
		}
	case cil.Ldsfld:
		f.push(*e.Static(o.Member))
	case cil.Ldsflda:
		f.push(e.Static(o.Member))
	case cil.Stsfld:
		var v any
		if v, err = f.pop(); err == nil {
			*e.Static(o.Member) = v
		}

	case cil.Ldind:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		p, ok := v.(*any)
		if !ok {
			return cil.End, nil, false, fmt.Errorf("%w: ldind through %T", ErrInvalidProgram, v)
		}
		f.push(*p)
	case cil.Stind:
		var vs []any
		if vs, err = f.popN(2); err != nil {
			break
		}
		p, ok := vs[0].(*any)
		if !ok {
			return cil.End, nil, false, fmt.Errorf("%w: stind through %T", ErrInvalidProgram, vs[0])
		}
		*p = vs[1]
	case cil.Initobj:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		p, ok := v.(*any)
		if !ok {
			return cil.End, nil, false, fmt.Errorf("%w: initobj through %T", ErrInvalidProgram, v)
		}
		*p = NewObject(o.Member.Type)

	case cil.Newarr:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		n, ok := v.(int64)
		if !ok || n < 0 {
			return cil.End, nil, false, fmt.Errorf("%w: newarr length %v", ErrInvalidProgram, v)
		}
		arr := &Array{Elems: make([]any, n)}
		for i := range arr.Elems {
			arr.Elems[i] = Zero(o.Member.Type)
		}
		f.push(arr)
	case cil.Ldlen:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		arr, ok := v.(*Array)
		if !ok {
			return cil.End, nil, false, fmt.Errorf("%w: ldlen of %T", ErrInvalidProgram, v)
		}
		f.push(int64(len(arr.Elems)))
	case cil.Ldelem, cil.LdelemRef, cil.Stelem, cil.StelemRef:
		store := ins.OpCode == cil.Stelem || ins.OpCode == cil.StelemRef
		n := 2
		if store {
			n = 3
		}
		var vs []any
		if vs, err = f.popN(n); err != nil {
			break
		}
		var p *any
		if p, err = element(vs[0], vs[1]); err != nil {
			break
		}
		if store {
			*p = vs[2]
		} else {
			f.push(*p)
		}

	case cil.Box, cil.Unbox, cil.Castclass:
		// values carry no boxing state
	case cil.Isinst:
		var v any
		if v, err = f.pop(); err != nil {
			break
		}
		if obj, ok := v.(*Object); ok && obj.Type == o.Member.Type {
			f.push(obj)
		} else {
			f.push(nil)
		}
	case cil.Throw:
		var v any
		v, _ = f.pop()
		return cil.End, nil, false, fmt.Errorf("%w: %v", ErrThrown, v)
	default:
		return cil.End, nil, false, fmt.Errorf("%w: %s is not supported", ErrInvalidProgram, ins.OpCode)
	}
	return cil.End, nil, false, err
}

func access(f *frame, slot *any, addr, store bool) error {
	switch {
	case addr:
		f.push(slot)
	case store:
		v, err := f.pop()
		if err != nil {
			return err
		}
		*slot = v
	default:
		f.push(*slot)
	}
	return nil
}

func (e *Emulation) call(f *frame, op cil.OpCode, ref cil.MemberRef) error {
	n := len(ref.Params)
	if ref.HasThis && op != cil.Newobj {
		n++
	}
	args, err := f.popN(n)
	if err != nil {
		return err
	}
	if op == cil.Newobj {
		obj := NewObject(ref.Type)
		if _, err := e.invoke(ref, append([]any{obj}, args...)); err != nil && !errors.Is(err, ErrNoImplementation) {
			return err
		}
		f.push(obj)
		return nil
	}
	ret, err := e.invoke(ref, args)
	if err != nil {
		return err
	}
	if ref.Return != "" && ref.Return != metadata.Void {
		f.push(ret)
	}
	return nil
}

func object(v any) (*Object, error) {
	if p, ok := v.(*any); ok {
		v = *p
	}
	obj, ok := v.(*Object)
	if !ok || obj == nil {
		return nil, fmt.Errorf("%w: field access on %T", ErrInvalidProgram, v)
	}
	return obj, nil
}

func element(arr, idx any) (*any, error) {
	a, ok := arr.(*Array)
	if !ok || a == nil {
		return nil, fmt.Errorf("%w: element access on %T", ErrInvalidProgram, arr)
	}
	i, ok := idx.(int64)
	if !ok || i < 0 || i >= int64(len(a.Elems)) {
		return nil, fmt.Errorf("%w: index %v out of range [0,%d)", ErrInvalidProgram, idx, len(a.Elems))
	}
	return &a.Elems[i], nil
}
