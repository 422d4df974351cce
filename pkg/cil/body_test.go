package cil

import (
	"errors"
	"strings"
	"testing"
)

func TestRemoveRangeRejectsInboundBranch(t *testing.T) {
	b := NewBody()
	c := b.Create(Nop, None)
	a := b.Emit(Br, Target(c.ID()))
	b.Emit(Nop, None) // B
	if err := b.Append(c); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	b.Emit(Ret, None)

	// [A: br C, B, C: nop, ret] - removing [B, C] would strand A.
	if err := b.RemoveRange(1, 3); !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("RemoveRange(1,3) = %v, want ErrDanglingReference", err)
	}
	if b.Len() != 4 {
		t.Fatalf("failed RemoveRange changed the stream: len=%d", b.Len())
	}

	ret := b.At(3)
	if n := b.Retarget(c.ID(), ret.ID()); n != 1 {
		t.Fatalf("Retarget rewrote %d references, want 1", n)
	}
	if err := b.RemoveRange(1, 3); err != nil {
		t.Fatalf("RemoveRange after retarget returned error: %v", err)
	}
	if b.Len() != 2 || b.At(0) != a || b.At(1) != ret {
		t.Fatalf("unexpected stream after removal:\n%s", Listing(b))
	}
	if a.Operand.Target != ret.ID() {
		t.Fatalf("branch target = #%d, want #%d", a.Operand.Target, ret.ID())
	}
	if b.Instruction(c.ID()) != nil {
		t.Fatalf("removed instruction still in arena")
	}
	if err := b.Verify(0); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
}

func TestRemoveRangeRejectsUnplacedBranch(t *testing.T) {
	b := NewBody()
	b.Emit(Nop, None)
	inner := b.Emit(Nop, None)
	b.Emit(Ret, None)
	pending := b.Create(Br, Target(inner.ID()))

	if err := b.RemoveRange(1, 2); !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("RemoveRange(1,2) = %v, want ErrDanglingReference", err)
	}
	if b.Len() != 3 || b.Instruction(inner.ID()) != inner {
		t.Fatalf("failed RemoveRange changed the body:\n%s", Listing(b))
	}

	pending.Operand = Target(b.At(2).ID())
	if err := b.RemoveRange(1, 2); err != nil {
		t.Fatalf("RemoveRange after retargeting the pending branch: %v", err)
	}
	if err := b.InsertBefore(0, pending); err != nil {
		t.Fatal(err)
	}
	if err := b.Verify(0); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
}

func TestRemoveRangeRejectsHandlerBoundary(t *testing.T) {
	b := NewBody()
	try := b.Emit(Nop, None)
	leave := b.Emit(Leave, None)
	fin := b.Emit(Endfinally, None)
	ret := b.Emit(Ret, None)
	leave.Operand = Target(ret.ID())
	b.Handlers = append(b.Handlers, Handler{
		Kind:         FinallyHandler,
		TryStart:     try.ID(),
		TryEnd:       fin.ID(),
		HandlerStart: fin.ID(),
		HandlerEnd:   ret.ID(),
	})
	if err := b.Verify(0); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if err := b.RemoveRange(2, 3); !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("RemoveRange over handler start = %v, want ErrDanglingReference", err)
	}
	// branches and boundaries inside the removed range do not count
	if err := b.RemoveRange(1, 1); err != nil {
		t.Fatalf("empty RemoveRange returned error: %v", err)
	}
}

func TestInsertKeepsTargets(t *testing.T) {
	b := NewBody()
	ret := b.Create(Ret, None)
	br := b.Emit(Brtrue, Target(ret.ID()))
	b.Emit(LdcI4, Int(1))
	b.Emit(Pop, None)
	if err := b.Append(ret); err != nil {
		t.Fatal(err)
	}

	if err := b.InsertBefore(0, b.Create(Ldarg, Arg(0))); err != nil {
		t.Fatalf("InsertBefore returned error: %v", err)
	}
	if err := b.InsertAfter(2, b.Create(Nop, None), b.Create(Nop, None)); err != nil {
		t.Fatalf("InsertAfter returned error: %v", err)
	}

	want := []OpCode{Ldarg, Brtrue, LdcI4, Nop, Nop, Pop, Ret}
	for pos, op := range want {
		if got := b.At(pos).OpCode; got != op {
			t.Fatalf("IL_%04x = %s, want %s\n%s", pos, got, op, Listing(b))
		}
	}
	if pos := b.Position(br.Operand.Target); pos != 6 {
		t.Fatalf("branch now lands on IL_%04x, want IL_0006", pos)
	}
	if err := b.Verify(1); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
}

func TestInsertRejectsForeignOrPlaced(t *testing.T) {
	b := NewBody()
	placed := b.Emit(Ret, None)
	other := NewBody().Create(Nop, None)

	if err := b.InsertBefore(0, placed); !errors.Is(err, ErrStructuralInvariant) {
		t.Fatalf("re-inserting a placed instruction = %v, want ErrStructuralInvariant", err)
	}
	if err := b.InsertBefore(0, other); !errors.Is(err, ErrStructuralInvariant) {
		t.Fatalf("inserting a foreign instruction = %v, want ErrStructuralInvariant", err)
	}
	if err := b.InsertBefore(5, b.Create(Nop, None)); !errors.Is(err, ErrStructuralInvariant) {
		t.Fatalf("inserting out of range = %v, want ErrStructuralInvariant", err)
	}
}

func TestFindFirst(t *testing.T) {
	b := NewBody()
	b.Emit(Ldstr, Str("a"))
	b.Emit(Call, Member(MemberRef{Kind: MethodMember, Type: "T", Name: "Hit", Return: "System.Void"}))
	b.Emit(Ldstr, Str("b"))
	b.Emit(Stsfld, Member(MemberRef{Kind: FieldMember, Type: "T", Name: "mappings", Return: "System.Object"}))
	b.Emit(Ret, None)

	tests := []struct {
		name string
		pred Predicate
		from int
		want int
		err  error
	}{
		{name: "string", pred: LoadsString("b"), want: 2},
		{name: "call", pred: CallTo("Hit"), want: 1},
		{name: "field store", pred: StoresField("mappings"), want: 3},
		{name: "from skips earlier", pred: Op(Ldstr), from: 1, want: 2},
		{name: "combined", pred: AllOf(Op(Ldstr), Negate(LoadsString("a"))), want: 2},
		{name: "missing", pred: LoadsString("c"), want: -1, err: ErrNotFound},
		{name: "bad start", pred: Op(Nop), from: 9, want: -1, err: ErrStructuralInvariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.FindFirst(tt.pred, tt.from)
			if !errors.Is(err, tt.err) {
				t.Fatalf("FindFirst() error = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Fatalf("FindFirst() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClear(t *testing.T) {
	tests := []struct {
		name      string
		ret       string
		valueType bool
		want      []OpCode
		locals    int
	}{
		{name: "void", ret: "System.Void", want: []OpCode{Ret}},
		{name: "int", ret: "System.Int32", want: []OpCode{LdcI4, Ret}},
		{name: "long", ret: "System.Int64", want: []OpCode{LdcI8, Ret}},
		{name: "double", ret: "System.Double", want: []OpCode{LdcR8, Ret}},
		{name: "native int", ret: "System.IntPtr", want: []OpCode{LdcI4, ConvI, Ret}},
		{name: "reference", ret: "System.String", want: []OpCode{Ldnull, Ret}},
		{name: "struct", ret: "Microsoft.Xna.Framework.Vector2", valueType: true, want: []OpCode{Ldloca, Initobj, Ldloc, Ret}, locals: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBody()
			b.AddLocal("System.Int32")
			b.AddLocal("System.Int32")
			try := b.Emit(Nop, None)
			end := b.Emit(Ret, None)
			b.Handlers = []Handler{{Kind: FinallyHandler, TryStart: try.ID(), TryEnd: end.ID(), HandlerStart: end.ID()}}

			b.Clear(tt.ret, tt.valueType)

			if len(b.Handlers) != 0 {
				t.Fatalf("handlers survived Clear")
			}
			if len(b.Locals) != tt.locals {
				t.Fatalf("locals = %v, want %d", b.Locals, tt.locals)
			}
			if b.Len() != len(tt.want) {
				t.Fatalf("Clear emitted:\n%s", Listing(b))
			}
			for pos, op := range tt.want {
				if b.At(pos).OpCode != op {
					t.Fatalf("Clear emitted:\n%s", Listing(b))
				}
			}
			if b.Instruction(try.ID()) != nil {
				t.Fatalf("old instruction still reachable after Clear")
			}
			if err := b.Verify(0); err != nil {
				t.Fatalf("Verify returned error: %v", err)
			}
		})
	}
}

func TestVerifyReportsEveryProblem(t *testing.T) {
	b := NewBody()
	detached := b.Create(Nop, None)
	b.Emit(Br, Target(detached.ID()))
	b.Emit(Ldloc, Local(3))
	b.Emit(Ldarg, Arg(2))
	b.Emit(Call, None)

	err := b.Verify(1)
	if !errors.Is(err, ErrStructuralInvariant) {
		t.Fatalf("Verify() = %v, want ErrStructuralInvariant", err)
	}
	for _, want := range []string{"not in the body", "V_3", "A_2", "expects a member operand", "falls off the end"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Verify() error does not mention %q:\n%v", want, err)
		}
	}
}

func TestDetachAndReattach(t *testing.T) {
	b := NewBody()
	first := b.Emit(Nop, None)
	ret := b.Emit(Ret, None)
	b.Emit(Br, Target(first.ID())) // unreachable but keeps a reference alive

	orig := b.Detach()
	if b.Len() != 0 {
		t.Fatalf("Detach left %d instructions placed", b.Len())
	}
	b.Emit(Nop, None)
	if err := b.Append(orig...); err != nil {
		t.Fatalf("Append(orig) returned error: %v", err)
	}
	if b.Position(first.ID()) != 1 || b.Position(ret.ID()) != 2 {
		t.Fatalf("reattached stream out of order:\n%s", Listing(b))
	}
	if err := b.Verify(0); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
}

func TestParseOpCode(t *testing.T) {
	tests := []struct {
		in   string
		op   OpCode
		imm  int64
		hasI bool
	}{
		{in: "call", op: Call},
		{in: "brtrue.s", op: Brtrue},
		{in: "ldarg.0", op: Ldarg, imm: 0, hasI: true},
		{in: "ldc.i4.m1", op: LdcI4, imm: -1, hasI: true},
		{in: "stloc.3", op: Stloc, imm: 3, hasI: true},
		{in: "bne.un", op: Bne},
		{in: "ldelem.ref", op: LdelemRef},
		{in: "ldelem", op: Ldelem},
		{in: "stelem.ref", op: StelemRef},
		{in: "conv.i", op: ConvI},
	}
	for _, tt := range tests {
		op, imm, err := ParseOpCode(tt.in)
		if err != nil {
			t.Fatalf("ParseOpCode(%q) returned error: %v", tt.in, err)
		}
		if op != tt.op || (imm != nil) != tt.hasI || (imm != nil && *imm != tt.imm) {
			t.Fatalf("ParseOpCode(%q) = %s, %v", tt.in, op, imm)
		}
	}
	if _, _, err := ParseOpCode("frobnicate"); err == nil {
		t.Fatalf("ParseOpCode accepted an unknown mnemonic")
	}
}
