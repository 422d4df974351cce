package mods

import (
	"fmt"

	"github.com/blacktop/ilpatch/internal/pipeline"
	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
	"github.com/blacktop/ilpatch/pkg/patch"
)

// PressurePlate routes the pressure plate switch in MessageBuffer.GetData to
// the callback, passing the player that sent the message, and drops the
// server's own broadcast of the switch that followed it.
func PressurePlate() pipeline.Modification {
	return pipeline.NewModificationFunc(
		`Hooking MessageBuffer.GetData\PressurePlate...`,
		[]metadata.Identity{terraria1307, server1307},
		hookPressurePlate,
	)
}

func hookPressurePlate(m *metadata.Module) error {
	getData, err := m.Method("Terraria.MessageBuffer", "GetData")
	if err != nil {
		return err
	}
	callback, err := m.Method(callbacks+".Collision", "HitSwitch")
	if err != nil {
		return err
	}
	players, err := m.Field("Terraria.Main", "player")
	if err != nil {
		return err
	}
	whoAmI, err := m.Field("Terraria.MessageBuffer", "whoAmI")
	if err != nil {
		return err
	}

	b := getData.Body
	if b == nil {
		return fmt.Errorf("%w: %s has no body", cil.ErrStructuralInvariant, getData)
	}
	isHitSwitch := cil.AllOf(cil.Op(cil.Call), cil.CallTo("HitSwitch"), cil.Negate(cil.CallToRef(callback.Ref())))
	calls := b.FindAll(isHitSwitch)
	switch len(calls) {
	case 0:
		if len(b.FindAll(cil.CallToRef(callback.Ref()))) > 0 {
			return pipeline.Skip(fmt.Sprintf("%s already calls %s", getData, callback))
		}
		return fmt.Errorf("%w: no HitSwitch call in %s", patch.ErrAnchorNotFound, getData)
	case 1:
	default:
		return fmt.Errorf("%w: %d HitSwitch calls in %s", metadata.ErrSymbolAmbiguous, len(calls), getData)
	}

	call := b.At(calls[0])
	original := call.Operand.Member
	if want := len(original.Params) + 1; len(callback.Params) != want || original.HasThis {
		return fmt.Errorf("%w: %s cannot replace %s", cil.ErrStructuralInvariant, callback, original)
	}
	call.Operand = cil.Member(callback.Ref())

	// Main.player[this.whoAmI]
	if err := b.InsertBefore(calls[0],
		b.Create(cil.Ldsfld, cil.Member(players.Ref())),
		b.Create(cil.Ldarg, cil.Arg(0)),
		b.Create(cil.Ldfld, cil.Member(whoAmI.Ref())),
		b.Create(cil.LdelemRef, cil.None),
	); err != nil {
		return err
	}

	_, err = patch.RemoveRegion(b, patch.Region{
		Start:      cil.CallToRef(callback.Ref()),
		End:        cil.CallTo("SendData"),
		IncludeEnd: true,
	})
	return err
}
