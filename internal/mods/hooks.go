package mods

import (
	"fmt"

	"github.com/blacktop/ilpatch/internal/pipeline"
	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
	"github.com/blacktop/ilpatch/pkg/patch"
)

// hook wraps typeName::method with the static begin and end callbacks of
// callbacks.<class>. The begin callback can cancel the original body and
// both receive the instance.
type hook struct {
	typeName string
	method   string
	params   []string // nil when the method is not overloaded
	class    string
	begin    string
	end      string
}

func (h hook) run(m *metadata.Module) error {
	target, err := m.ResolveMethod(metadata.MethodQuery{Type: h.typeName, Name: h.method, Params: h.params})
	if err != nil {
		return err
	}
	begin, err := m.Method(callbacks+"."+h.class, h.begin)
	if err != nil {
		return fmt.Errorf("failed to find begin callback: %w", err)
	}
	end, err := m.Method(callbacks+"."+h.class, h.end)
	if err != nil {
		return fmt.Errorf("failed to find end callback: %w", err)
	}
	if target.Body != nil && len(target.Body.FindAll(cil.CallToRef(begin.Ref()))) > 0 {
		return pipeline.Skip(fmt.Sprintf("%s already calls %s", target, begin))
	}
	return patch.Wrap(patch.WrapSpec{
		Target:       target,
		Begin:        begin,
		End:          end,
		Cancellable:  true,
		PassInstance: true,
	})
}

// NpcNetDefaults hooks NPC.SetDefaultsFromNetId(int). The callbacks get the
// net id by reference and may replace it.
func NpcNetDefaults() pipeline.Modification {
	h := hook{
		typeName: "Terraria.NPC",
		method:   "SetDefaultsFromNetId",
		class:    "Npc",
		begin:    "NetDefaultsBegin",
		end:      "NetDefaultsEnd",
	}
	return pipeline.NewModificationFunc(
		"Hooking Npc.NetDefaults(int)...",
		[]metadata.Identity{terraria1353, server1353, terraria1344},
		h.run,
	)
}

// RemoteClientReset hooks RemoteClient.Reset.
func RemoteClientReset() pipeline.Modification {
	h := hook{
		typeName: "Terraria.RemoteClient",
		method:   "Reset",
		params:   metadata.NoParams,
		class:    "RemoteClient",
		begin:    "PreReset",
		end:      "PostReset",
	}
	return pipeline.NewModificationFunc(
		"Hooking RemoteClient.Reset...",
		[]metadata.Identity{terraria1307, server1307},
		h.run,
	)
}

// LoadContent hooks Main.LoadContent on the client.
func LoadContent() pipeline.Modification {
	h := hook{
		typeName: "Terraria.Main",
		method:   "LoadContent",
		params:   metadata.NoParams,
		class:    "Main",
		begin:    "LoadContentBegin",
		end:      "LoadContentEnd",
	}
	return pipeline.NewModificationFunc(
		"Hooking Game.LoadContent...",
		[]metadata.Identity{terraria1353, terraria1344},
		h.run,
	)
}
