package metadata

import (
	"errors"
	"fmt"

	"github.com/blacktop/ilpatch/pkg/cil"
)

// Verify checks every method body of m for structural soundness and makes
// sure every member operand that names a type defined in m resolves to a
// definition. References to types m does not define are imports and are not
// checked.
func (m *Module) Verify() error {
	defined := make(map[string]bool, len(m.types))
	for _, t := range m.types {
		defined[t.FullName()] = true
	}

	var errs []error
	m.ForEachMethod(func(mt *Method) {
		if mt.Body == nil {
			return
		}
		if err := mt.Body.Verify(mt.ArgCount()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", mt, err))
		}
		for pos, ins := range mt.Body.Instructions() {
			if ins.Operand.Kind != cil.MemberOperand {
				continue
			}
			ref := ins.Operand.Member
			if !defined[TypeKey(ref.Type)] {
				continue
			}
			var err error
			switch ref.Kind {
			case cil.MethodMember:
				_, err = m.ResolveMethodRef(ref)
			case cil.FieldMember:
				_, err = m.ResolveFieldRef(ref)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: IL_%04x %s: %w", mt, pos, ins.OpCode, err))
			}
		}
	})
	return errors.Join(errs...)
}
