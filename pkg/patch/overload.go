package patch

import (
	"errors"
	"fmt"

	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
)

// OverloadBuilder emits the body of a new overload.
type OverloadBuilder func(overload *metadata.Method, b *cil.Body) error

// Overload declares, next to source, a method with the same name, return
// type and call convention taking params instead. build emits its body,
// which must verify before the method is added.
func Overload(source *metadata.Method, params []metadata.Param, build OverloadBuilder) (*metadata.Method, error) {
	t := source.DeclaringType()
	if t == nil {
		return nil, fmt.Errorf("%w: %s is not declared by a type", cil.ErrStructuralInvariant, source)
	}

	ov := &metadata.Method{
		Name:       source.Name,
		ReturnType: source.ReturnType,
		Params:     params,
		Static:     source.Static,
		Virtual:    source.Virtual,
		Body:       cil.NewBody(),
	}
	sig := make([]string, 0, len(params))
	for _, p := range params {
		sig = append(sig, p.Sig())
	}
	if existing, err := t.ResolveMethod(metadata.MethodQuery{Name: ov.Name, Params: sig}); err == nil {
		return nil, fmt.Errorf("%w: %s already declared", metadata.ErrSymbolAmbiguous, existing)
	} else if !errors.Is(err, metadata.ErrSymbolNotFound) {
		return nil, err
	}

	if err := build(ov, ov.Body); err != nil {
		return nil, fmt.Errorf("failed to build overload of %s: %w", source, err)
	}
	if err := ov.Body.Verify(ov.ArgCount()); err != nil {
		return nil, fmt.Errorf("overload of %s: %w", source, err)
	}
	return t.AddMethod(ov), nil
}
