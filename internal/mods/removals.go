package mods

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/blacktop/ilpatch/internal/pipeline"
	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
	"github.com/blacktop/ilpatch/pkg/patch"
)

// RemoveMap empties every method of the world map, which a dedicated server
// never draws.
func RemoveMap() pipeline.Modification {
	return pipeline.NewModificationFunc(
		"Removing world map...",
		[]metadata.Identity{server1307},
		func(m *metadata.Module) error {
			worldMap, err := m.Type("Terraria.Map.WorldMap")
			if err != nil {
				return err
			}
			patch.ClearType(worldMap)
			return nil
		},
	)
}

// natRegion is the UPnP setup in Netplay's type initializer: from loading the
// NAT COM class id up to storing the port mapping collection.
var natRegion = patch.Region{
	Start:        cil.LoadsString("AE1E00AA-3FD5-403C-8A27-2BBDC30CD0E1"),
	End:          cil.AllOf(cil.Op(cil.Stsfld), cil.StoresField("mappings")),
	IncludeStart: true,
	IncludeEnd:   true,
	Unique:       true,
}

// RemoveNat removes UPnP port forwarding from the server: the port methods
// become no-ops, the NAT setup leaves the type initializer, and the NAT
// fields and interop types are stripped.
func RemoveNat() pipeline.Modification {
	return pipeline.NewModificationFunc(
		"Removing NAT from Netplay",
		[]metadata.Identity{server1307},
		removeNat,
	)
}

// removeNat skips the steps an earlier run already completed. It only
// reports a skip when every step was skipped.
func removeNat(m *metadata.Module) error {
	netplay, err := m.Type("Terraria.Netplay")
	if err != nil {
		return err
	}

	var (
		memo pipeline.SkipMemento
		done int
	)
	for _, name := range []string{"closePort", "OpenPort"} {
		mt, err := netplay.Method(name)
		if err != nil {
			return err
		}
		if cleared(mt) {
			memo.Remember(pipeline.Skip(name + " already cleared"))
			continue
		}
		if err := patch.ClearMethod(mt); err != nil {
			return err
		}
		done++
	}

	cctor, err := netplay.StaticConstructor()
	if err != nil {
		return err
	}
	_, fieldErr := netplay.Field("mappings")
	if errors.Is(fieldErr, metadata.ErrSymbolNotFound) && len(cctor.Body.FindAll(natRegion.Start)) == 0 {
		// the anchors may only be missing once the field is gone
		memo.Remember(pipeline.Skip("NAT setup already removed"))
	} else {
		n, err := patch.RemoveRegion(cctor.Body, natRegion)
		if err != nil {
			return fmt.Errorf("failed to remove NAT setup from %s: %w", cctor, err)
		}
		log.WithField("count", n).Debug("Removed NAT setup instructions")
		done++
	}

	var strip patch.StripSpec
	for _, name := range []string{"mappings", "upnpnat"} {
		if f, err := netplay.Field(name); err == nil {
			strip.Fields = append(strip.Fields, f)
		} else if !errors.Is(err, metadata.ErrSymbolNotFound) {
			return err
		}
	}
	strip.Types = m.FindTypes(func(t *metadata.Type) bool {
		return strings.HasPrefix(t.Namespace, "NATUPNPLib")
	})
	if len(strip.Fields)+len(strip.Types) == 0 {
		memo.Remember(pipeline.Skip("NAT members already stripped"))
	} else {
		if err := patch.Strip(m, strip); err != nil {
			return err
		}
		done++
	}

	if done == 0 {
		return memo.Evaluate()
	}
	if skipped := memo.Evaluate(); skipped != nil {
		log.WithField("skipped", skipped.Error()).Debug("Partially removed NAT")
	}
	return nil
}

// cleared reports whether mt's body is a lone ret.
func cleared(mt *metadata.Method) bool {
	return mt.Body != nil && mt.Body.Len() == 1 && mt.Body.At(0).OpCode == cil.Ret
}
