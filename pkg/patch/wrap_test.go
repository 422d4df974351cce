package patch

import (
	"errors"
	"testing"

	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/emu"
	"github.com/blacktop/ilpatch/pkg/metadata"
)

const (
	int32T = "System.Int32"
	boolT  = "System.Boolean"
)

type wrapFixture struct {
	module  *metadata.Module
	target  *metadata.Method
	counter *metadata.Field
	begin   *metadata.Method
	end     *metadata.Method
}

// Pick has three return sites and bumps counter on entry:
//
//	counter++
//	if x == 0 { return 100 }
//	if x < 10 { return 200 }
//	return 300
func newWrapFixture() *wrapFixture {
	m := metadata.NewModule(metadata.MustParseIdentity("Test, Version=1.0"))
	target := m.AddType(&metadata.Type{Namespace: "Test", Name: "Target"})
	hooks := m.AddType(&metadata.Type{Namespace: "Test", Name: "Hooks"})

	f := &wrapFixture{module: m}
	f.counter = target.AddField(&metadata.Field{Name: "counter", Type: int32T, Static: true})
	f.target = target.AddMethod(&metadata.Method{
		Name:       "Pick",
		ReturnType: int32T,
		Params:     []metadata.Param{{Name: "x", Type: int32T}},
		Body:       cil.NewBody(),
	})

	b := f.target.Body
	b.Emit(cil.Ldsfld, cil.Member(f.counter.Ref()))
	b.Emit(cil.LdcI4, cil.Int(1))
	b.Emit(cil.Add, cil.None)
	b.Emit(cil.Stsfld, cil.Member(f.counter.Ref()))
	b.Emit(cil.Ldarg, cil.Arg(1))
	nonZero := b.Emit(cil.Brtrue, cil.None)
	b.Emit(cil.LdcI4, cil.Int(100))
	b.Emit(cil.Ret, cil.None)
	check := b.Emit(cil.Ldarg, cil.Arg(1))
	b.Emit(cil.LdcI4, cil.Int(10))
	big := b.Emit(cil.Bge, cil.None)
	b.Emit(cil.LdcI4, cil.Int(200))
	b.Emit(cil.Ret, cil.None)
	large := b.Emit(cil.LdcI4, cil.Int(300))
	b.Emit(cil.Ret, cil.None)
	nonZero.Operand = cil.Target(check.ID())
	big.Operand = cil.Target(large.ID())

	f.begin = hooks.AddMethod(&metadata.Method{
		Name:       "OnPickBegin",
		ReturnType: boolT,
		Static:     true,
		Params: []metadata.Param{
			{Name: "self", Type: "Test.Target"},
			{Name: "x", Type: int32T},
			{Name: "result", Type: int32T, ByRef: true},
		},
	})
	f.end = hooks.AddMethod(&metadata.Method{
		Name:       "OnPickEnd",
		ReturnType: metadata.Void,
		Static:     true,
		Params: []metadata.Param{
			{Name: "self", Type: "Test.Target"},
			{Name: "x", Type: int32T},
			{Name: "result", Type: int32T, ByRef: true},
		},
	})
	return f
}

func (f *wrapFixture) wrap(t *testing.T) {
	t.Helper()
	err := Wrap(WrapSpec{
		Target:       f.target,
		Begin:        f.begin,
		End:          f.end,
		Cancellable:  true,
		PassInstance: true,
	})
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	if err := f.module.Verify(); err != nil {
		t.Fatalf("Verify() after Wrap error = %v\n%s", err, cil.Listing(f.target.Body))
	}
}

func TestWrapEndHookRunsOncePerReturnSite(t *testing.T) {
	f := newWrapFixture()
	f.wrap(t)

	e := emu.NewEmulation(f.module, nil)
	var begins, ends int
	var seen []any
	e.Hook(f.begin.Ref(), func(args []any) (any, error) {
		begins++
		return emu.Bool(true), nil
	})
	e.Hook(f.end.Ref(), func(args []any) (any, error) {
		ends++
		seen = append(seen, *args[2].(*any))
		return nil, nil
	})

	tests := []struct {
		x    int64
		want int64
	}{
		{0, 100},
		{5, 200},
		{50, 300},
	}
	self := emu.NewObject("Test.Target")
	for i, tt := range tests {
		got, err := e.Call(f.target, self, tt.x)
		if err != nil {
			t.Fatalf("Pick(%d) error = %v", tt.x, err)
		}
		if got != tt.want {
			t.Fatalf("Pick(%d) = %v, want %d", tt.x, got, tt.want)
		}
		if begins != i+1 || ends != i+1 {
			t.Fatalf("after Pick(%d): begin ran %d times, end ran %d times, want %d", tt.x, begins, ends, i+1)
		}
		if seen[i] != tt.want {
			t.Fatalf("end hook saw %v, want %d", seen[i], tt.want)
		}
	}
	if got := *e.Static(f.counter.Ref()); got != int64(3) {
		t.Fatalf("counter = %v, want 3", got)
	}
}

func TestWrapCancelSkipsBody(t *testing.T) {
	f := newWrapFixture()
	f.wrap(t)

	e := emu.NewEmulation(f.module, nil)
	var ends int
	e.Hook(f.begin.Ref(), func(args []any) (any, error) {
		*args[2].(*any) = int64(42)
		return emu.Bool(false), nil
	})
	e.Hook(f.end.Ref(), func(args []any) (any, error) {
		ends++
		return nil, nil
	})

	for _, x := range []int64{0, 5, 50} {
		got, err := e.Call(f.target, emu.NewObject("Test.Target"), x)
		if err != nil {
			t.Fatalf("Pick(%d) error = %v", x, err)
		}
		if got != int64(42) {
			t.Fatalf("Pick(%d) = %v, want the override 42", x, got)
		}
	}
	if got := *e.Static(f.counter.Ref()); got != int64(0) {
		t.Fatalf("original body ran: counter = %v", got)
	}
	if ends != 3 {
		t.Fatalf("end hook ran %d times, want 3", ends)
	}
}

func TestWrapEndOverridesResult(t *testing.T) {
	f := newWrapFixture()
	f.wrap(t)

	e := emu.NewEmulation(f.module, nil)
	e.Hook(f.begin.Ref(), func(args []any) (any, error) { return emu.Bool(true), nil })
	e.Hook(f.end.Ref(), func(args []any) (any, error) {
		p := args[2].(*any)
		*p = (*p).(int64) + 1
		return nil, nil
	})
	got, err := e.Call(f.target, emu.NewObject("Test.Target"), int64(5))
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(201) {
		t.Fatalf("Pick(5) = %v, want 201", got)
	}
}

func TestWrapByRefHookSeesArgument(t *testing.T) {
	m := metadata.NewModule(metadata.MustParseIdentity("Test, Version=1.0"))
	typ := m.AddType(&metadata.Type{Namespace: "Test", Name: "Math"})
	double := typ.AddMethod(&metadata.Method{
		Name:       "Double",
		ReturnType: int32T,
		Static:     true,
		Params:     []metadata.Param{{Name: "x", Type: int32T}},
		Body:       cil.NewBody(),
	})
	double.Body.Emit(cil.Ldarg, cil.Arg(0))
	double.Body.Emit(cil.Ldarg, cil.Arg(0))
	double.Body.Emit(cil.Add, cil.None)
	double.Body.Emit(cil.Ret, cil.None)
	begin := typ.AddMethod(&metadata.Method{
		Name:   "OnDouble",
		Static: true,
		Params: []metadata.Param{{Name: "x", Type: int32T, ByRef: true}},
	})

	if err := Wrap(WrapSpec{Target: double, Begin: begin}); err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	e := emu.NewEmulation(m, nil)
	e.Hook(begin.Ref(), func(args []any) (any, error) {
		*args[0].(*any) = int64(21)
		return nil, nil
	})
	got, err := e.Call(double, int64(1))
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(42) {
		t.Fatalf("Double(1) = %v, want 42 after the hook rewrote x", got)
	}
	if pos := double.Body.FindAll(cil.Op(cil.Ldarga)); len(pos) != 1 {
		t.Fatalf("want one ldarga in the entry sequence:\n%s", cil.Listing(double.Body))
	}
}

func TestWrapValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *wrapFixture, s *WrapSpec)
	}{
		{"no body", func(f *wrapFixture, s *WrapSpec) { f.target.Body = nil }},
		{"empty body", func(f *wrapFixture, s *WrapSpec) { f.target.Body = cil.NewBody() }},
		{"no hooks", func(f *wrapFixture, s *WrapSpec) { s.Begin, s.End, s.Cancellable = nil, nil, false }},
		{"static target with instance", func(f *wrapFixture, s *WrapSpec) { f.target.Static = true }},
		{"begin must return bool", func(f *wrapFixture, s *WrapSpec) { f.begin.ReturnType = metadata.Void }},
		{"begin result slot must be by-ref", func(f *wrapFixture, s *WrapSpec) { f.begin.Params[2].ByRef = false }},
		{"hook arity", func(f *wrapFixture, s *WrapSpec) { f.end.Params = f.end.Params[:2] }},
		{"hook parameter type", func(f *wrapFixture, s *WrapSpec) { f.end.Params[1].Type = "System.String" }},
		{"by-value hook for by-ref parameter", func(f *wrapFixture, s *WrapSpec) { f.target.Params[0].ByRef = true }},
		{"instance hook", func(f *wrapFixture, s *WrapSpec) { f.end.Static = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWrapFixture()
			spec := WrapSpec{Target: f.target, Begin: f.begin, End: f.end, Cancellable: true, PassInstance: true}
			tt.mutate(f, &spec)
			var before string
			if f.target.Body != nil {
				before = cil.Listing(f.target.Body)
			}
			if err := Wrap(spec); !errors.Is(err, ErrWrapTargetInvalid) {
				t.Fatalf("Wrap() error = %v, want ErrWrapTargetInvalid", err)
			}
			if f.target.Body != nil && cil.Listing(f.target.Body) != before {
				t.Fatal("failed Wrap modified the body")
			}
		})
	}
}
