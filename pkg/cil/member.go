package cil

import (
	"slices"
	"strings"
)

// MemberKind tags what a MemberRef points at.
type MemberKind uint8

const (
	TypeMember MemberKind = iota
	FieldMember
	MethodMember
)

func (k MemberKind) String() string {
	return [...]string{"type", "field", "method"}[k]
}

// MemberRef describes a type, field or method by signature. It is the operand
// form of a symbol: the referenced member may live in the module being patched
// or in another module entirely.
//
// For TypeMember, Type is the referenced type and Name is empty. For fields,
// Return is the field type. By-reference parameter types carry a trailing '&'.
type MemberRef struct {
	Kind    MemberKind `yaml:"kind"`
	Type    string     `yaml:"type"`
	Name    string     `yaml:"name,omitempty"`
	Params  []string   `yaml:"params,omitempty"`
	Return  string     `yaml:"return,omitempty"`
	HasThis bool       `yaml:"this,omitempty"`
}

// TypeRef returns a reference to the named type.
func TypeRef(fullName string) MemberRef {
	return MemberRef{Kind: TypeMember, Type: fullName}
}

func (r MemberRef) Clone() MemberRef {
	r.Params = slices.Clone(r.Params)
	return r
}

// Equal compares two references by signature.
func (r MemberRef) Equal(o MemberRef) bool {
	return r.Kind == o.Kind &&
		r.Type == o.Type &&
		r.Name == o.Name &&
		r.Return == o.Return &&
		slices.Equal(r.Params, o.Params)
}

// String renders the reference the way ildasm prints it, for example
// "System.Void Terraria.NPC::SetDefaults(System.Int32)".
func (r MemberRef) String() string {
	switch r.Kind {
	case TypeMember:
		return r.Type
	case FieldMember:
		return r.Return + " " + r.Type + "::" + r.Name
	}
	var sb strings.Builder
	if r.HasThis {
		sb.WriteString("instance ")
	}
	sb.WriteString(r.Return)
	sb.WriteByte(' ')
	sb.WriteString(r.Type)
	sb.WriteString("::")
	sb.WriteString(r.Name)
	sb.WriteByte('(')
	sb.WriteString(strings.Join(r.Params, ","))
	sb.WriteByte(')')
	return sb.String()
}

// Key identifies the referenced member independently of call convention.
func (r MemberRef) Key() string {
	r.HasThis = false
	return r.String()
}

// ByRef marks a type name as passed by reference.
func ByRef(typeName string) string {
	if IsByRef(typeName) {
		return typeName
	}
	return typeName + "&"
}

// IsByRef reports whether a type name is a by-reference type.
func IsByRef(typeName string) bool {
	return strings.HasSuffix(typeName, "&")
}
