package metadata

import (
	"fmt"
	"io"
	"os"

	"github.com/blacktop/ilpatch/pkg/cil"
	"gopkg.in/yaml.v3"
)

// Loader reads a module from its container format.
type Loader interface {
	Load(r io.Reader) (*Module, error)
}

// Saver writes a module back to its container format.
type Saver interface {
	Save(w io.Writer, m *Module) error
}

// YAMLCodec reads and writes the textual module image. Branch targets and
// exception handler boundaries are stored as positions in a method's code
// list; -1 stands for the end of the body.
type YAMLCodec struct{}

var (
	_ Loader = YAMLCodec{}
	_ Saver  = YAMLCodec{}
)

type moduleImage struct {
	Identity     Identity    `yaml:"identity"`
	Architecture string      `yaml:"architecture"`
	Attributes   []string    `yaml:"attributes,omitempty"`
	Types        []typeImage `yaml:"types"`
}

type typeImage struct {
	Namespace string        `yaml:"namespace,omitempty"`
	Name      string        `yaml:"name"`
	Base      string        `yaml:"base,omitempty"`
	ValueType bool          `yaml:"value_type,omitempty"`
	Fields    []fieldImage  `yaml:"fields,omitempty"`
	Methods   []methodImage `yaml:"methods,omitempty"`
}

type fieldImage struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Static bool   `yaml:"static,omitempty"`
}

type paramImage struct {
	Name  string `yaml:"name,omitempty"`
	Type  string `yaml:"type"`
	ByRef bool   `yaml:"by_ref,omitempty"`
}

type methodImage struct {
	Name    string       `yaml:"name"`
	Return  string       `yaml:"return,omitempty"`
	Params  []paramImage `yaml:"params,omitempty"`
	Static  bool         `yaml:"static,omitempty"`
	Virtual bool         `yaml:"virtual,omitempty"`
	Body    *bodyImage   `yaml:"body,omitempty"`
}

type bodyImage struct {
	Locals     []string           `yaml:"locals,omitempty"`
	InitLocals bool               `yaml:"init_locals,omitempty"`
	Code       []instructionImage `yaml:"code"`
	Handlers   []handlerImage     `yaml:"handlers,omitempty"`
}

type memberImage struct {
	Kind    string   `yaml:"kind"`
	Type    string   `yaml:"type"`
	Name    string   `yaml:"name,omitempty"`
	Params  []string `yaml:"params,omitempty"`
	Return  string   `yaml:"return,omitempty"`
	HasThis bool     `yaml:"this,omitempty"`
}

type instructionImage struct {
	Op      string       `yaml:"op"`
	Int     *int64       `yaml:"int,omitempty"`
	Float   *float64     `yaml:"float,omitempty"`
	Str     *string      `yaml:"str,omitempty"`
	Member  *memberImage `yaml:"member,omitempty"`
	Target  *int         `yaml:"target,omitempty"`
	Targets []int        `yaml:"targets,omitempty"`
	Slot    *int         `yaml:"slot,omitempty"`
}

type handlerImage struct {
	Kind         string `yaml:"kind"`
	TryStart     int    `yaml:"try_start"`
	TryEnd       int    `yaml:"try_end"`
	HandlerStart int    `yaml:"handler_start"`
	HandlerEnd   int    `yaml:"handler_end"`
	CatchType    string `yaml:"catch_type,omitempty"`
}

// Load decodes a module image. Unknown keys are rejected.
func (YAMLCodec) Load(r io.Reader) (*Module, error) {
	var img moduleImage
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&img); err != nil {
		return nil, fmt.Errorf("failed to decode module image: %w", err)
	}

	m := NewModule(img.Identity)
	if img.Architecture != "" {
		arch, err := ParseArchitecture(img.Architecture)
		if err != nil {
			return nil, err
		}
		m.Architecture = arch
	}
	if img.Attributes != nil {
		attrs, err := ParseModuleAttributes(img.Attributes)
		if err != nil {
			return nil, err
		}
		m.Attributes = attrs
	}

	for _, ti := range img.Types {
		t := m.AddType(&Type{Namespace: ti.Namespace, Name: ti.Name, BaseType: ti.Base, ValueType: ti.ValueType})
		for _, fi := range ti.Fields {
			t.AddField(&Field{Name: fi.Name, Type: fi.Type, Static: fi.Static})
		}
		for _, mi := range ti.Methods {
			mt := &Method{Name: mi.Name, ReturnType: mi.Return, Static: mi.Static, Virtual: mi.Virtual}
			for _, p := range mi.Params {
				mt.Params = append(mt.Params, Param{Name: p.Name, Type: p.Type, ByRef: p.ByRef})
			}
			if mi.Body != nil {
				body, err := decodeBody(mi.Body)
				if err != nil {
					return nil, fmt.Errorf("%s::%s: %w", t.FullName(), mi.Name, err)
				}
				mt.Body = body
			}
			t.AddMethod(mt)
		}
	}
	return m, nil
}

func decodeBody(bi *bodyImage) (*cil.Body, error) {
	b := cil.NewBody()
	b.Locals = bi.Locals
	b.InitLocals = bi.InitLocals

	// instructions first, so forward branches have something to point at
	ids := make([]cil.ID, len(bi.Code))
	ops := make([]cil.OpCode, len(bi.Code))
	imms := make([]*int64, len(bi.Code))
	for pos, ci := range bi.Code {
		op, imm, err := cil.ParseOpCode(ci.Op)
		if err != nil {
			return nil, fmt.Errorf("code[%d]: %w", pos, err)
		}
		ops[pos], imms[pos] = op, imm
		ids[pos] = b.Emit(op, cil.None).ID()
	}
	target := func(pos int) (cil.ID, error) {
		if pos < 0 || pos >= len(ids) {
			return cil.End, fmt.Errorf("branch target %d outside code[0:%d]", pos, len(ids))
		}
		return ids[pos], nil
	}
	boundary := func(pos int, end bool) (cil.ID, error) {
		if end && pos == -1 {
			return cil.End, nil
		}
		return target(pos)
	}

	for pos, ci := range bi.Code {
		operand, err := decodeOperand(ops[pos], imms[pos], ci, target)
		if err != nil {
			return nil, fmt.Errorf("code[%d] %s: %w", pos, ci.Op, err)
		}
		b.Instruction(ids[pos]).Operand = operand
	}

	for i, hi := range bi.Handlers {
		kind, err := cil.ParseHandlerKind(hi.Kind)
		if err != nil {
			return nil, fmt.Errorf("handlers[%d]: %w", i, err)
		}
		h := cil.Handler{Kind: kind, CatchType: hi.CatchType}
		for _, bound := range []struct {
			dst *cil.ID
			pos int
			end bool
		}{
			{&h.TryStart, hi.TryStart, false},
			{&h.TryEnd, hi.TryEnd, true},
			{&h.HandlerStart, hi.HandlerStart, false},
			{&h.HandlerEnd, hi.HandlerEnd, true},
		} {
			if *bound.dst, err = boundary(bound.pos, bound.end); err != nil {
				return nil, fmt.Errorf("handlers[%d]: %w", i, err)
			}
		}
		b.Handlers = append(b.Handlers, h)
	}
	return b, nil
}

func decodeOperand(op cil.OpCode, imm *int64, ci instructionImage, target func(int) (cil.ID, error)) (cil.Operand, error) {
	missing := func() (cil.Operand, error) {
		return cil.None, fmt.Errorf("missing %s operand", op.Operand())
	}
	switch op.Operand() {
	case cil.NoOperand:
		return cil.None, nil
	case cil.IntOperand:
		switch {
		case imm != nil:
			return cil.Int(*imm), nil
		case ci.Int != nil:
			return cil.Int(*ci.Int), nil
		}
		return missing()
	case cil.FloatOperand:
		if ci.Float == nil {
			return missing()
		}
		return cil.Float(*ci.Float), nil
	case cil.StringOperand:
		if ci.Str == nil {
			return missing()
		}
		return cil.Str(*ci.Str), nil
	case cil.MemberOperand:
		if ci.Member == nil {
			return missing()
		}
		ref, err := decodeMember(*ci.Member)
		if err != nil {
			return cil.None, err
		}
		return cil.Member(ref), nil
	case cil.TargetOperand:
		if ci.Target == nil {
			return missing()
		}
		id, err := target(*ci.Target)
		if err != nil {
			return cil.None, err
		}
		return cil.Target(id), nil
	case cil.SwitchOperand:
		table := make([]cil.ID, 0, len(ci.Targets))
		for _, pos := range ci.Targets {
			id, err := target(pos)
			if err != nil {
				return cil.None, err
			}
			table = append(table, id)
		}
		return cil.Targets(table...), nil
	case cil.LocalOperand, cil.ArgOperand:
		slot := ci.Slot
		if imm != nil {
			s := int(*imm)
			slot = &s
		}
		if slot == nil {
			return missing()
		}
		if op.Operand() == cil.LocalOperand {
			return cil.Local(*slot), nil
		}
		return cil.Arg(*slot), nil
	}
	return cil.None, fmt.Errorf("unsupported operand kind %s", op.Operand())
}

func decodeMember(mi memberImage) (cil.MemberRef, error) {
	ref := cil.MemberRef{
		Type:    mi.Type,
		Name:    mi.Name,
		Params:  mi.Params,
		Return:  mi.Return,
		HasThis: mi.HasThis,
	}
	for k := cil.TypeMember; k <= cil.MethodMember; k++ {
		if k.String() == mi.Kind {
			ref.Kind = k
			return ref, nil
		}
	}
	return cil.MemberRef{}, fmt.Errorf("unknown member kind %q", mi.Kind)
}

// Save encodes m as a module image.
func (YAMLCodec) Save(w io.Writer, m *Module) error {
	img := moduleImage{
		Identity:     m.Identity,
		Architecture: m.Architecture.String(),
		Attributes:   m.Attributes.Names(),
	}
	for _, t := range m.types {
		ti := typeImage{Namespace: t.Namespace, Name: t.Name, Base: t.BaseType, ValueType: t.ValueType}
		for _, f := range t.fields {
			ti.Fields = append(ti.Fields, fieldImage{Name: f.Name, Type: f.Type, Static: f.Static})
		}
		for _, mt := range t.methods {
			mi := methodImage{Name: mt.Name, Return: mt.ReturnType, Static: mt.Static, Virtual: mt.Virtual}
			for _, p := range mt.Params {
				mi.Params = append(mi.Params, paramImage{Name: p.Name, Type: p.Type, ByRef: p.ByRef})
			}
			if mt.Body != nil {
				bi, err := encodeBody(mt.Body)
				if err != nil {
					return fmt.Errorf("%s: %w", mt, err)
				}
				mi.Body = bi
			}
			ti.Methods = append(ti.Methods, mi)
		}
		img.Types = append(img.Types, ti)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(img); err != nil {
		return fmt.Errorf("failed to encode module image: %w", err)
	}
	return enc.Close()
}

func encodeBody(b *cil.Body) (*bodyImage, error) {
	bi := &bodyImage{Locals: b.Locals, InitLocals: b.InitLocals, Code: []instructionImage{}}
	position := func(id cil.ID) (int, error) {
		pos := b.Position(id)
		if pos < 0 {
			return 0, fmt.Errorf("%w: instruction #%d is not in the body", cil.ErrDanglingReference, id)
		}
		return pos, nil
	}
	boundary := func(id cil.ID) (int, error) {
		if id == cil.End {
			return -1, nil
		}
		return position(id)
	}

	for _, ins := range b.Instructions() {
		ci := instructionImage{Op: ins.OpCode.String()}
		o := ins.Operand
		switch o.Kind {
		case cil.IntOperand:
			ci.Int = &o.Int
		case cil.FloatOperand:
			ci.Float = &o.Float
		case cil.StringOperand:
			ci.Str = &o.Str
		case cil.MemberOperand:
			ci.Member = &memberImage{
				Kind:    o.Member.Kind.String(),
				Type:    o.Member.Type,
				Name:    o.Member.Name,
				Params:  o.Member.Params,
				Return:  o.Member.Return,
				HasThis: o.Member.HasThis,
			}
		case cil.TargetOperand:
			pos, err := position(o.Target)
			if err != nil {
				return nil, err
			}
			ci.Target = &pos
		case cil.SwitchOperand:
			ci.Targets = []int{}
			for _, id := range o.Targets {
				pos, err := position(id)
				if err != nil {
					return nil, err
				}
				ci.Targets = append(ci.Targets, pos)
			}
		case cil.LocalOperand, cil.ArgOperand:
			ci.Slot = &o.Slot
		}
		bi.Code = append(bi.Code, ci)
	}

	for _, h := range b.Handlers {
		var (
			hi  = handlerImage{Kind: h.Kind.String(), CatchType: h.CatchType}
			err error
		)
		if hi.TryStart, err = position(h.TryStart); err != nil {
			return nil, err
		}
		if hi.TryEnd, err = boundary(h.TryEnd); err != nil {
			return nil, err
		}
		if hi.HandlerStart, err = position(h.HandlerStart); err != nil {
			return nil, err
		}
		if hi.HandlerEnd, err = boundary(h.HandlerEnd); err != nil {
			return nil, err
		}
		bi.Handlers = append(bi.Handlers, hi)
	}
	return bi, nil
}

// LoadFile reads a module image from disk.
func LoadFile(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open module %s: %w", path, err)
	}
	defer f.Close()
	m, err := YAMLCodec{}.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// SaveFile writes m to path, replacing any existing file.
func SaveFile(path string, m *Module) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := (YAMLCodec{}).Save(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
