package metadata

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/dominikbraun/graph"
)

// References is the use graph of a module. There is an edge u -> v when member
// u uses v: a method calling, loading or storing v, a signature mentioning
// type v, a field of type v, a type deriving from v.
//
// Vertices are keyed by TypeKey / MemberKey.
type References struct {
	g     graph.Graph[string, string]
	preds map[string]map[string]graph.Edge[string]
}

// TypeKey returns the vertex key of a type name, with by-ref, pointer and
// array decorations removed.
func TypeKey(typeName string) string {
	for {
		trimmed := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(typeName, "&"), "*"), "[]")
		if trimmed == typeName {
			return typeName
		}
		typeName = trimmed
	}
}

// MemberKey returns the vertex key of a member reference.
func MemberKey(ref cil.MemberRef) string {
	if ref.Kind == cil.TypeMember {
		return TypeKey(ref.Type)
	}
	return ref.Key()
}

// BuildReferences walks every type, signature and instruction of m.
func BuildReferences(m *Module) (*References, error) {
	r := &References{g: graph.New(graph.StringHash, graph.Directed())}

	for _, t := range m.types {
		tk := TypeKey(t.FullName())
		if err := r.use(tk, t.BaseType); err != nil {
			return nil, err
		}
		for _, f := range t.fields {
			if err := r.use(MemberKey(f.Ref()), f.Type); err != nil {
				return nil, err
			}
		}
		for _, mt := range t.methods {
			mk := MemberKey(mt.Ref())
			uses := append([]string{mt.ReturnType}, mt.ParamSigs()...)
			if mt.Body != nil {
				uses = append(uses, mt.Body.Locals...)
			}
			for _, u := range uses {
				if err := r.use(mk, u); err != nil {
					return nil, err
				}
			}
			if mt.Body == nil {
				continue
			}
			for _, ins := range mt.Body.Instructions() {
				if ins.Operand.Kind != cil.MemberOperand {
					continue
				}
				ref := ins.Operand.Member
				if err := r.edge(mk, MemberKey(ref)); err != nil {
					return nil, err
				}
				if ref.Kind != cil.TypeMember {
					if err := r.use(mk, ref.Type); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	preds, err := r.g.PredecessorMap()
	if err != nil {
		return nil, fmt.Errorf("failed to compute referrers: %w", err)
	}
	r.preds = preds
	return r, nil
}

// use records that from uses the type typeName.
func (r *References) use(from, typeName string) error {
	if typeName == "" {
		return r.vertex(from)
	}
	return r.edge(from, TypeKey(typeName))
}

func (r *References) vertex(key string) error {
	if err := r.g.AddVertex(key); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		return fmt.Errorf("failed to add vertex %s: %w", key, err)
	}
	return nil
}

func (r *References) edge(from, to string) error {
	if err := r.vertex(from); err != nil {
		return err
	}
	if err := r.vertex(to); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if err := r.g.AddEdge(from, to); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return fmt.Errorf("failed to add edge %s -> %s: %w", from, to, err)
	}
	return nil
}

// Referrers returns, sorted, every vertex that uses key.
func (r *References) Referrers(key string) []string {
	var out []string
	for from := range r.preds[key] {
		out = append(out, from)
	}
	slices.Sort(out)
	return out
}

// Owners maps every member key of m to the full name of its declaring type.
// Type keys map to themselves.
func Owners(m *Module) map[string]string {
	owners := make(map[string]string)
	for _, t := range m.types {
		tn := t.FullName()
		owners[TypeKey(tn)] = tn
		for _, f := range t.fields {
			owners[MemberKey(f.Ref())] = tn
		}
		for _, mt := range t.methods {
			owners[MemberKey(mt.Ref())] = tn
		}
	}
	return owners
}
