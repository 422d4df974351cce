// Package metadata is the in-memory metadata graph of a managed module: its
// identity and header attributes, its types and their fields and methods, and
// each method's instruction stream.
//
// The graph is mutated in place by patch units. Lookups (the symbol resolver)
// always see the current state of the graph, so a unit running later observes
// every edit made by the units before it.
package metadata

import (
	"fmt"
	"slices"
	"strings"

	"github.com/blacktop/ilpatch/pkg/cil"
)

// Void is the name of the void return type.
const Void = "System.Void"

// Architecture is the target architecture recorded in a module header.
type Architecture uint8

const (
	I386 Architecture = iota
	AMD64
	IA64
	ARM
	ARMv7
	ARM64
)

var archNames = []string{"I386", "AMD64", "IA64", "ARM", "ARMv7", "ARM64"}

func (a Architecture) String() string {
	if int(a) < len(archNames) {
		return archNames[a]
	}
	return fmt.Sprintf("Architecture(%d)", uint8(a))
}

// ParseArchitecture is the inverse of Architecture.String.
func ParseArchitecture(s string) (Architecture, error) {
	for i, name := range archNames {
		if strings.EqualFold(name, s) {
			return Architecture(i), nil
		}
	}
	return 0, fmt.Errorf("unknown architecture %q", s)
}

// ModuleAttributes are the runtime flags of a module header.
type ModuleAttributes uint32

const (
	ILOnly           ModuleAttributes = 0x00001
	Required32Bit    ModuleAttributes = 0x00002
	ILLibrary        ModuleAttributes = 0x00004
	StrongNameSigned ModuleAttributes = 0x00008
	Preferred32Bit   ModuleAttributes = 0x20000
)

var attrNames = []struct {
	flag ModuleAttributes
	name string
}{
	{ILOnly, "ILOnly"},
	{Required32Bit, "Required32Bit"},
	{ILLibrary, "ILLibrary"},
	{StrongNameSigned, "StrongNameSigned"},
	{Preferred32Bit, "Preferred32Bit"},
}

// Names returns the set flags by name.
func (a ModuleAttributes) Names() []string {
	var out []string
	for _, n := range attrNames {
		if a&n.flag != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

func (a ModuleAttributes) String() string {
	if a == 0 {
		return "None"
	}
	return strings.Join(a.Names(), "|")
}

// ParseModuleAttributes folds flag names into a ModuleAttributes value.
func ParseModuleAttributes(names []string) (ModuleAttributes, error) {
	var a ModuleAttributes
next:
	for _, s := range names {
		for _, n := range attrNames {
			if strings.EqualFold(n.name, s) {
				a |= n.flag
				continue next
			}
		}
		return 0, fmt.Errorf("unknown module attribute %q", s)
	}
	return a, nil
}

// Module is a loaded module.
type Module struct {
	Identity     Identity
	Architecture Architecture
	Attributes   ModuleAttributes

	types []*Type
}

// NewModule returns an empty module.
func NewModule(id Identity) *Module {
	return &Module{Identity: id, Attributes: ILOnly}
}

// Types returns the module's types in declaration order.
func (m *Module) Types() []*Type {
	return slices.Clone(m.types)
}

// AddType adds t to the module and returns it.
func (m *Module) AddType(t *Type) *Type {
	t.module = m
	m.types = append(m.types, t)
	return t
}

// RemoveType removes t from the module. It reports whether t was present.
func (m *Module) RemoveType(t *Type) bool {
	i := slices.Index(m.types, t)
	if i < 0 {
		return false
	}
	m.types = slices.Delete(m.types, i, i+1)
	t.module = nil
	return true
}

// ForEachMethod calls fn for every method of every type.
func (m *Module) ForEachMethod(fn func(*Method)) {
	for _, t := range m.types {
		for _, mt := range t.methods {
			fn(mt)
		}
	}
}

// ForEachInstruction calls fn for every placed instruction of every method body.
func (m *Module) ForEachInstruction(fn func(*Method, *cil.Instruction)) {
	m.ForEachMethod(func(mt *Method) {
		if mt.Body == nil {
			return
		}
		for _, ins := range mt.Body.Instructions() {
			fn(mt, ins)
		}
	})
}

// IsValueType reports whether typeName is a struct defined in the module or a
// primitive.
func (m *Module) IsValueType(typeName string) bool {
	if primitive(typeName) {
		return true
	}
	for _, t := range m.types {
		if t.FullName() == typeName {
			return t.ValueType
		}
	}
	return false
}

func primitive(typeName string) bool {
	switch typeName {
	case "System.Boolean", "System.Char", "System.SByte", "System.Byte",
		"System.Int16", "System.UInt16", "System.Int32", "System.UInt32",
		"System.Int64", "System.UInt64", "System.Single", "System.Double",
		"System.IntPtr", "System.UIntPtr":
		return true
	}
	return false
}

// Type is a type definition.
type Type struct {
	Namespace string
	Name      string
	BaseType  string
	ValueType bool

	fields  []*Field
	methods []*Method
	module  *Module
}

// FullName returns Namespace.Name.
func (t *Type) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// Ref returns a reference to the type.
func (t *Type) Ref() cil.MemberRef {
	return cil.TypeRef(t.FullName())
}

// Module returns the module that declares t, or nil once removed.
func (t *Type) Module() *Module {
	return t.module
}

func (t *Type) Fields() []*Field {
	return slices.Clone(t.fields)
}

func (t *Type) Methods() []*Method {
	return slices.Clone(t.methods)
}

// AddField adds f to t and returns it.
func (t *Type) AddField(f *Field) *Field {
	f.declaring = t
	t.fields = append(t.fields, f)
	return f
}

// AddMethod adds mt to t and returns it.
func (t *Type) AddMethod(mt *Method) *Method {
	mt.declaring = t
	t.methods = append(t.methods, mt)
	return mt
}

// RemoveField removes f from t. It reports whether f was present.
func (t *Type) RemoveField(f *Field) bool {
	i := slices.Index(t.fields, f)
	if i < 0 {
		return false
	}
	t.fields = slices.Delete(t.fields, i, i+1)
	f.declaring = nil
	return true
}

// RemoveMethod removes mt from t. It reports whether mt was present.
func (t *Type) RemoveMethod(mt *Method) bool {
	i := slices.Index(t.methods, mt)
	if i < 0 {
		return false
	}
	t.methods = slices.Delete(t.methods, i, i+1)
	mt.declaring = nil
	return true
}

// Field is a field definition. Type is the field's type name.
type Field struct {
	Name   string
	Type   string
	Static bool

	declaring *Type
}

// DeclaringType returns the type that declares f.
func (f *Field) DeclaringType() *Type {
	return f.declaring
}

// Ref returns a reference to the field.
func (f *Field) Ref() cil.MemberRef {
	var owner string
	if f.declaring != nil {
		owner = f.declaring.FullName()
	}
	return cil.MemberRef{Kind: cil.FieldMember, Type: owner, Name: f.Name, Return: f.Type}
}

// Param is a method parameter.
type Param struct {
	Name  string
	Type  string
	ByRef bool
}

// Sig returns the parameter's type as it appears in a signature.
func (p Param) Sig() string {
	if p.ByRef {
		return cil.ByRef(p.Type)
	}
	return p.Type
}

// Method is a method definition. A nil Body means the method is abstract or
// implemented outside the module.
type Method struct {
	Name       string
	ReturnType string
	Params     []Param
	Static     bool
	Virtual    bool
	Body       *cil.Body

	declaring *Type
}

// DeclaringType returns the type that declares mt.
func (mt *Method) DeclaringType() *Type {
	return mt.declaring
}

// HasThis reports whether the method takes an instance in argument slot 0.
func (mt *Method) HasThis() bool {
	return !mt.Static
}

// IsVoid reports whether the method returns nothing.
func (mt *Method) IsVoid() bool {
	return mt.ReturnType == "" || mt.ReturnType == Void
}

// ArgCount returns the number of argument slots, including the instance.
func (mt *Method) ArgCount() int {
	if mt.HasThis() {
		return len(mt.Params) + 1
	}
	return len(mt.Params)
}

// ArgSlot maps parameter index i to its argument slot.
func (mt *Method) ArgSlot(i int) int {
	if mt.HasThis() {
		return i + 1
	}
	return i
}

// ParamSigs returns the parameter types as they appear in a signature.
func (mt *Method) ParamSigs() []string {
	out := make([]string, 0, len(mt.Params))
	for _, p := range mt.Params {
		out = append(out, p.Sig())
	}
	return out
}

// Ref returns a reference to the method.
func (mt *Method) Ref() cil.MemberRef {
	var owner string
	if mt.declaring != nil {
		owner = mt.declaring.FullName()
	}
	ret := mt.ReturnType
	if ret == "" {
		ret = Void
	}
	return cil.MemberRef{
		Kind:    cil.MethodMember,
		Type:    owner,
		Name:    mt.Name,
		Params:  mt.ParamSigs(),
		Return:  ret,
		HasThis: mt.HasThis(),
	}
}

// FullName returns the method signature, e.g.
// "System.Void Terraria.RemoteClient::Reset()".
func (mt *Method) FullName() string {
	return mt.Ref().Key()
}

func (mt *Method) String() string {
	return mt.FullName()
}

// ClearBody replaces the body with a bare return of the zero value. Methods
// without a body get one.
func (mt *Method) ClearBody() {
	if mt.Body == nil {
		mt.Body = cil.NewBody()
	}
	var valueType bool
	if mt.declaring != nil && mt.declaring.module != nil {
		valueType = mt.declaring.module.IsValueType(mt.ReturnType)
	}
	mt.Body.Clear(mt.ReturnType, valueType)
}
