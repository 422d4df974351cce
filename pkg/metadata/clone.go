package metadata

import "slices"

// Clone returns a deep copy of m. Instruction IDs are preserved, so positions
// and branch targets of the copy line up with the original.
func (m *Module) Clone() *Module {
	c := &Module{
		Identity:     m.Identity,
		Architecture: m.Architecture,
		Attributes:   m.Attributes,
	}
	for _, t := range m.types {
		ct := c.AddType(&Type{
			Namespace: t.Namespace,
			Name:      t.Name,
			BaseType:  t.BaseType,
			ValueType: t.ValueType,
		})
		for _, f := range t.fields {
			ct.AddField(&Field{Name: f.Name, Type: f.Type, Static: f.Static})
		}
		for _, mt := range t.methods {
			cm := &Method{
				Name:       mt.Name,
				ReturnType: mt.ReturnType,
				Params:     slices.Clone(mt.Params),
				Static:     mt.Static,
				Virtual:    mt.Virtual,
			}
			if mt.Body != nil {
				cm.Body = mt.Body.Clone()
			}
			ct.AddMethod(cm)
		}
	}
	return c
}
