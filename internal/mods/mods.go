// Package mods is the patch set applied to Terraria modules. Each
// modification declares the exact module identities it was written against.
package mods

import (
	"github.com/blacktop/ilpatch/internal/pipeline"
	"github.com/blacktop/ilpatch/pkg/metadata"
)

const callbacks = "OTAPI.Callbacks.Terraria"

var (
	terraria1307 = metadata.MustParseIdentity("Terraria, Version=1.3.0.7, Culture=neutral, PublicKeyToken=null")
	server1307   = metadata.MustParseIdentity("TerrariaServer, Version=1.3.0.7, Culture=neutral, PublicKeyToken=null")
	terraria1344 = metadata.MustParseIdentity("Terraria, Version=1.3.4.4, Culture=neutral, PublicKeyToken=null")
	terraria1353 = metadata.MustParseIdentity("Terraria, Version=1.3.5.3, Culture=neutral, PublicKeyToken=null")
	server1353   = metadata.MustParseIdentity("TerrariaServer, Version=1.3.5.3, Culture=neutral, PublicKeyToken=null")
)

// All returns a fresh instance of every modification in registration order.
func All() []pipeline.Modification {
	return []pipeline.Modification{
		ChangeArchitecture(),
		ConsoleWrites(),
		LoadContent(),
		NpcNetDefaults(),
		PressurePlate(),
		RemoteClientReset(),
		RemoveMap(),
		RemoveNat(),
		SendDataNetworkText(),
	}
}
