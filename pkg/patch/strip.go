package patch

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/apex/log"
	"github.com/blacktop/ilpatch/pkg/metadata"
)

// StripSpec lists members to remove from a module. Removing a type removes
// its members with it.
type StripSpec struct {
	Fields  []*metadata.Field
	Methods []*metadata.Method
	Types   []*metadata.Type
}

func (s StripSpec) keys() map[string]bool {
	set := make(map[string]bool)
	for _, f := range s.Fields {
		set[metadata.MemberKey(f.Ref())] = true
	}
	for _, mt := range s.Methods {
		set[metadata.MemberKey(mt.Ref())] = true
	}
	for _, t := range s.Types {
		set[metadata.TypeKey(t.FullName())] = true
		for _, f := range t.Fields() {
			set[metadata.MemberKey(f.Ref())] = true
		}
		for _, mt := range t.Methods() {
			set[metadata.MemberKey(mt.Ref())] = true
		}
	}
	return set
}

// Strip removes the members of s from m. It fails with
// metadata.ErrStillReferenced, leaving m untouched, when anything that
// survives the removal still uses one of them.
func Strip(m *metadata.Module, s StripSpec) error {
	refs, err := metadata.BuildReferences(m)
	if err != nil {
		return err
	}
	set := s.keys()
	owners := metadata.Owners(m)

	var errs []error
	for _, key := range slices.Sorted(maps.Keys(set)) {
		for _, from := range refs.Referrers(key) {
			if set[from] {
				continue
			}
			if owner, ok := owners[from]; ok && owner != from {
				errs = append(errs, fmt.Errorf("%w: %s is used by %s in type %s", metadata.ErrStillReferenced, key, from, owner))
			} else {
				errs = append(errs, fmt.Errorf("%w: %s is used by %s", metadata.ErrStillReferenced, key, from))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, f := range s.Fields {
		if t := f.DeclaringType(); t != nil {
			t.RemoveField(f)
		}
	}
	for _, mt := range s.Methods {
		if t := mt.DeclaringType(); t != nil {
			t.RemoveMethod(mt)
		}
	}
	for _, t := range s.Types {
		m.RemoveType(t)
	}
	log.WithFields(log.Fields{
		"fields":  len(s.Fields),
		"methods": len(s.Methods),
		"types":   len(s.Types),
	}).Debug("stripped")
	return nil
}
