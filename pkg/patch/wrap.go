// Package patch implements the rewrites applied to a module's metadata graph:
// wrapping methods with hook calls, removing anchored regions and whole
// bodies, stripping members, retargeting calls and adding overloads.
package patch

import (
	"fmt"

	"github.com/apex/log"
	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
)

// WrapSpec describes a method wrap.
//
// Hooks are static methods taking, in order: the instance (when PassInstance
// is set), the target's parameters, and then
//
//   - for a Cancellable Begin of a non-void target, a by-ref slot of the return
//     type that becomes the return value when the body is skipped;
//   - for End of a non-void target, the return value. A by-ref return value
//     parameter lets End replace it.
//
// A hook parameter may be by-ref where the target's is by-value (the hook then
// sees and may change the argument), never the other way round. A Cancellable
// Begin returns System.Boolean: true runs the original body, false skips it.
// Otherwise hooks return void. Either hook may be nil, not both.
type WrapSpec struct {
	Target       *metadata.Method
	Begin        *metadata.Method
	End          *metadata.Method
	Cancellable  bool
	PassInstance bool
}

// Wrap rewrites spec.Target so that Begin runs before and End after the
// original body. Every return of the original body is routed through a single
// exit point, so End runs exactly once per call whatever path the body takes.
// When Begin cancels, the original body is skipped and control goes straight
// to the exit point.
func Wrap(spec WrapSpec) error {
	if err := validateWrap(spec); err != nil {
		return err
	}

	target := spec.Target
	b := target.Body
	void := target.IsVoid()

	log.WithField("method", target.FullName()).Debug("wrapping")

	orig := b.Detach()

	result := -1
	if !void {
		result = b.AddLocal(target.ReturnType)
		b.InitLocals = true
	}

	pushArgs := func(hook *metadata.Method) []*cil.Instruction {
		var seq []*cil.Instruction
		hp := 0
		if spec.PassInstance {
			seq = append(seq, b.Create(cil.Ldarg, cil.Arg(0)))
			hp++
		}
		for i, p := range target.Params {
			op := cil.Ldarg
			if hook.Params[hp].ByRef && !p.ByRef {
				op = cil.Ldarga
			}
			seq = append(seq, b.Create(op, cil.Arg(target.ArgSlot(i))))
			hp++
		}
		return seq
	}

	// exit point: [end hook call] [ldloc result] ret
	var exit []*cil.Instruction
	if spec.End != nil {
		exit = append(exit, pushArgs(spec.End)...)
		if !void {
			if spec.End.Params[len(spec.End.Params)-1].ByRef {
				exit = append(exit, b.Create(cil.Ldloca, cil.Local(result)))
			} else {
				exit = append(exit, b.Create(cil.Ldloc, cil.Local(result)))
			}
		}
		exit = append(exit, b.Create(cil.Call, cil.Member(spec.End.Ref())))
	}
	if !void {
		exit = append(exit, b.Create(cil.Ldloc, cil.Local(result)))
	}
	exit = append(exit, b.Create(cil.Ret, cil.None))
	exitID := exit[0].ID()

	var seq []*cil.Instruction
	if spec.Begin != nil {
		seq = append(seq, pushArgs(spec.Begin)...)
		if spec.Cancellable && !void {
			seq = append(seq, b.Create(cil.Ldloca, cil.Local(result)))
		}
		seq = append(seq, b.Create(cil.Call, cil.Member(spec.Begin.Ref())))
		if spec.Cancellable {
			seq = append(seq, b.Create(cil.Brfalse, cil.Target(exitID)))
		}
	}

	// returns are rewritten in place so that branches to them stay valid
	returns := 0
	for _, ins := range orig {
		seq = append(seq, ins)
		if ins.OpCode != cil.Ret {
			continue
		}
		returns++
		if void {
			ins.OpCode, ins.Operand = cil.Br, cil.Target(exitID)
			continue
		}
		ins.OpCode, ins.Operand = cil.Stloc, cil.Local(result)
		seq = append(seq, b.Create(cil.Br, cil.Target(exitID)))
	}
	seq = append(seq, exit...)

	// a protected region running to the end of the old body now ends at the exit
	for i := range b.Handlers {
		h := &b.Handlers[i]
		if h.TryEnd == cil.End {
			h.TryEnd = exitID
		}
		if h.HandlerEnd == cil.End {
			h.HandlerEnd = exitID
		}
	}

	if err := b.Append(seq...); err != nil {
		return fmt.Errorf("failed to rebuild %s: %w", target, err)
	}

	log.WithField("method", target.FullName()).Debugf("wrapped %d return site(s)", returns)
	return nil
}

func validateWrap(spec WrapSpec) error {
	invalid := func(format string, a ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrWrapTargetInvalid}, a...)...)
	}

	t := spec.Target
	switch {
	case t == nil:
		return invalid("no target")
	case t.Body == nil:
		return invalid("%s has no body", t)
	case t.Body.Len() == 0:
		return invalid("%s has an empty body", t)
	case spec.Begin == nil && spec.End == nil:
		return invalid("%s: no hooks", t)
	case spec.Cancellable && spec.Begin == nil:
		return invalid("%s: cancellable wrap without a begin hook", t)
	case spec.PassInstance && t.Static:
		return invalid("%s is static, there is no instance to pass", t)
	}

	check := func(hook *metadata.Method, role string, trailing *metadata.Param, ret string) error {
		if hook == nil {
			return nil
		}
		if !hook.Static {
			return invalid("%s hook %s must be static", role, hook)
		}
		if hook.ReturnType != ret && !(ret == metadata.Void && hook.IsVoid()) {
			return invalid("%s hook %s must return %s", role, hook, ret)
		}
		var want []metadata.Param
		if spec.PassInstance {
			want = append(want, metadata.Param{Type: t.DeclaringType().FullName()})
		}
		want = append(want, t.Params...)
		if trailing != nil {
			want = append(want, *trailing)
		}
		if len(hook.Params) != len(want) {
			return invalid("%s hook %s takes %d parameters, want %d", role, hook, len(hook.Params), len(want))
		}
		for i, w := range want {
			got := hook.Params[i]
			if got.Type != w.Type {
				return invalid("%s hook %s parameter %d is %s, want %s", role, hook, i, got.Type, w.Type)
			}
			if w.ByRef && !got.ByRef {
				return invalid("%s hook %s parameter %d must be by-ref", role, hook, i)
			}
			if i == 0 && spec.PassInstance && got.ByRef {
				return invalid("%s hook %s takes the instance by-ref", role, hook)
			}
		}
		return nil
	}

	var beginTrailing, endTrailing *metadata.Param
	beginRet := metadata.Void
	if spec.Cancellable {
		beginRet = "System.Boolean"
		if !t.IsVoid() {
			beginTrailing = &metadata.Param{Type: t.ReturnType, ByRef: true}
		}
	}
	if !t.IsVoid() {
		endTrailing = &metadata.Param{Type: t.ReturnType}
		if spec.End != nil && len(spec.End.Params) > 0 {
			// by-ref or by-value, both are accepted
			endTrailing.ByRef = spec.End.Params[len(spec.End.Params)-1].ByRef
		}
	}
	if err := check(spec.Begin, "begin", beginTrailing, beginRet); err != nil {
		return err
	}
	return check(spec.End, "end", endTrailing, metadata.Void)
}
