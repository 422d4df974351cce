package patch

import (
	"fmt"

	"github.com/apex/log"
	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
)

// CallRewrite maps the callee of a call site to its replacement. Returning
// false leaves the call site alone.
type CallRewrite func(callee cil.MemberRef) (cil.MemberRef, bool, error)

// RetargetCalls rewrites the callee of every call and callvirt in m matching
// pred. The replacement must consume and produce the same stack shape as the
// original callee. It returns the number of call sites rewritten.
func RetargetCalls(m *metadata.Module, pred cil.Predicate, rewrite CallRewrite) (int, error) {
	var (
		n   int
		err error
	)
	m.ForEachInstruction(func(mt *metadata.Method, ins *cil.Instruction) {
		if err != nil || ins.OpCode == cil.Newobj || !ins.OpCode.IsCall() || !pred(ins) {
			return
		}
		callee := ins.Operand.Member
		repl, ok, rerr := rewrite(callee)
		if rerr != nil {
			err = fmt.Errorf("%s: %w", mt, rerr)
			return
		}
		if !ok {
			return
		}
		if stackIn(repl) != stackIn(callee) || isVoid(repl) != isVoid(callee) {
			err = fmt.Errorf("%w: %s: %s cannot replace %s", cil.ErrStructuralInvariant, mt, repl, callee)
			return
		}
		ins.Operand = cil.Member(repl)
		if ins.OpCode == cil.Callvirt && !repl.HasThis {
			ins.OpCode = cil.Call
		}
		log.WithField("method", mt.FullName()).Debugf("%s -> %s", callee, repl)
		n++
	})
	return n, err
}

func stackIn(ref cil.MemberRef) int {
	if ref.HasThis {
		return len(ref.Params) + 1
	}
	return len(ref.Params)
}

func isVoid(ref cil.MemberRef) bool {
	return ref.Return == "" || ref.Return == metadata.Void
}
