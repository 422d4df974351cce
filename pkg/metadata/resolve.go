package metadata

import (
	"fmt"
	"slices"
	"strings"

	"github.com/blacktop/ilpatch/pkg/cil"
)

// NoParams selects the parameterless overload in a MethodQuery.
var NoParams = []string{}

// MethodQuery selects a method by signature.
type MethodQuery struct {
	Type   string
	Name   string
	Params []string // nil matches any overload; NoParams matches ()
	Return string   // empty matches any return type
}

func (q MethodQuery) String() string {
	var sb strings.Builder
	if q.Return != "" {
		sb.WriteString(q.Return + " ")
	}
	sb.WriteString(q.Type + "::" + q.Name)
	if q.Params == nil {
		sb.WriteString("(*)")
	} else {
		sb.WriteString("(" + strings.Join(q.Params, ",") + ")")
	}
	return sb.String()
}

func (q MethodQuery) matches(mt *Method) bool {
	if mt.Name != q.Name {
		return false
	}
	if q.Return != "" && q.Return != mt.Ref().Return {
		return false
	}
	return q.Params == nil || slices.Equal(q.Params, mt.ParamSigs())
}

// Type resolves a type by full name.
func (m *Module) Type(fullName string) (*Type, error) {
	var found []*Type
	for _, t := range m.types {
		if t.FullName() == fullName {
			found = append(found, t)
		}
	}
	return one(found, "type "+fullName)
}

// FindTypes returns every type matching pred.
func (m *Module) FindTypes(pred func(*Type) bool) []*Type {
	var out []*Type
	for _, t := range m.types {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}

// ResolveMethod resolves a method by query.
func (m *Module) ResolveMethod(q MethodQuery) (*Method, error) {
	t, err := m.Type(q.Type)
	if err != nil {
		return nil, err
	}
	return t.ResolveMethod(q)
}

// Method resolves typeName::name, failing if the name is overloaded.
func (m *Module) Method(typeName, name string) (*Method, error) {
	return m.ResolveMethod(MethodQuery{Type: typeName, Name: name})
}

// MethodSig resolves typeName::name(params...) with exactly those parameter types.
func (m *Module) MethodSig(typeName, name string, params ...string) (*Method, error) {
	if params == nil {
		params = NoParams
	}
	return m.ResolveMethod(MethodQuery{Type: typeName, Name: name, Params: params})
}

// Field resolves typeName::name.
func (m *Module) Field(typeName, name string) (*Field, error) {
	t, err := m.Type(typeName)
	if err != nil {
		return nil, err
	}
	return t.Field(name)
}

// ResolveMethodRef resolves a method reference operand to its definition.
func (m *Module) ResolveMethodRef(ref cil.MemberRef) (*Method, error) {
	if ref.Kind != cil.MethodMember {
		return nil, fmt.Errorf("%w: %s is a %s reference", ErrSymbolNotFound, ref, ref.Kind)
	}
	params := ref.Params
	if params == nil {
		params = NoParams
	}
	return m.ResolveMethod(MethodQuery{Type: ref.Type, Name: ref.Name, Params: params, Return: ref.Return})
}

// ResolveFieldRef resolves a field reference operand to its definition.
func (m *Module) ResolveFieldRef(ref cil.MemberRef) (*Field, error) {
	if ref.Kind != cil.FieldMember {
		return nil, fmt.Errorf("%w: %s is a %s reference", ErrSymbolNotFound, ref, ref.Kind)
	}
	f, err := m.Field(ref.Type, ref.Name)
	if err != nil {
		return nil, err
	}
	if ref.Return != "" && f.Type != ref.Return {
		return nil, fmt.Errorf("%w: %s (field type is %s)", ErrSymbolNotFound, ref, f.Type)
	}
	return f, nil
}

// ResolveMethod resolves a method of t. The query's Type is ignored.
func (t *Type) ResolveMethod(q MethodQuery) (*Method, error) {
	q.Type = t.FullName()
	var found []*Method
	for _, mt := range t.methods {
		if q.matches(mt) {
			found = append(found, mt)
		}
	}
	return one(found, "method "+q.String())
}

// Method resolves a method of t by name, failing if the name is overloaded.
func (t *Type) Method(name string) (*Method, error) {
	return t.ResolveMethod(MethodQuery{Name: name})
}

// Field resolves a field of t by name.
func (t *Type) Field(name string) (*Field, error) {
	var found []*Field
	for _, f := range t.fields {
		if f.Name == name {
			found = append(found, f)
		}
	}
	return one(found, "field "+t.FullName()+"::"+name)
}

// StaticConstructor returns the type initializer.
func (t *Type) StaticConstructor() (*Method, error) {
	return t.ResolveMethod(MethodQuery{Name: ".cctor", Params: NoParams})
}

func one[T any](found []T, what string) (T, error) {
	var zero T
	switch len(found) {
	case 0:
		return zero, fmt.Errorf("%w: %s", ErrSymbolNotFound, what)
	case 1:
		return found[0], nil
	default:
		return zero, fmt.Errorf("%w: %s matches %d candidates", ErrSymbolAmbiguous, what, len(found))
	}
}
