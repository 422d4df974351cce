package patch

import (
	"errors"
	"slices"
	"testing"

	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
)

var upnp = cil.MemberRef{Kind: cil.MethodMember, Type: "NATUPNPLib.UPnPNATClass", Name: ".ctor", Return: metadata.Void, HasThis: true}

// 0 nop
// 1 ldstr "keep"
// 2 pop
// 3 ldstr "AE1E00AA-3FD5-403C-8A27-2BBDC30CD0E1"
// 4 newobj UPnPNATClass::.ctor
// 5 stsfld upnpnat
// 6 ldnull
// 7 stsfld mappings
// 8 ldstr "keep"
// 9 pop
// 10 ret
func regionBody() *cil.Body {
	b := cil.NewBody()
	b.Emit(cil.Nop, cil.None)
	b.Emit(cil.Ldstr, cil.Str("keep"))
	b.Emit(cil.Pop, cil.None)
	b.Emit(cil.Ldstr, cil.Str("AE1E00AA-3FD5-403C-8A27-2BBDC30CD0E1"))
	b.Emit(cil.Newobj, cil.Member(upnp))
	b.Emit(cil.Stsfld, cil.Member(cil.MemberRef{Kind: cil.FieldMember, Type: "Terraria.Netplay", Name: "upnpnat", Return: "NATUPNPLib.UPnPNATClass"}))
	b.Emit(cil.Ldnull, cil.None)
	b.Emit(cil.Stsfld, cil.Member(cil.MemberRef{Kind: cil.FieldMember, Type: "Terraria.Netplay", Name: "mappings", Return: "NATUPNPLib.IStaticPortMappingCollection"}))
	b.Emit(cil.Ldstr, cil.Str("keep"))
	b.Emit(cil.Pop, cil.None)
	b.Emit(cil.Ret, cil.None)
	return b
}

var natRegion = Region{
	Start:        cil.LoadsString("AE1E00AA-3FD5-403C-8A27-2BBDC30CD0E1"),
	End:          cil.StoresField("mappings"),
	IncludeStart: true,
	IncludeEnd:   true,
	Unique:       true,
}

func TestRemoveRegionLeavesOutsideUntouched(t *testing.T) {
	b := regionBody()
	before := b.Instructions()

	n, err := RemoveRegion(b, natRegion)
	if err != nil {
		t.Fatalf("RemoveRegion() error = %v", err)
	}
	if n != 5 {
		t.Fatalf("RemoveRegion() removed %d, want 5", n)
	}

	want := append(slices.Clone(before[:3]), before[8:]...)
	got := b.Instructions()
	if len(got) != len(want) {
		t.Fatalf("body has %d instructions, want %d:\n%s", len(got), len(want), cil.Listing(b))
	}
	for i := range want {
		// same instruction, same ID, same text
		if got[i] != want[i] || got[i].String() != want[i].String() {
			t.Fatalf("instruction %d changed: %s, want %s", i, got[i], want[i])
		}
	}
	if err := b.Verify(0); err != nil {
		t.Fatal(err)
	}
}

func TestRemoveRegionBounds(t *testing.T) {
	tests := []struct {
		name     string
		region   Region
		from, to int
		wantErr  error
	}{
		{
			name:   "exclusive",
			region: Region{Start: cil.Op(cil.Newobj), End: cil.Op(cil.Stsfld)},
			from:   5, to: 5,
		},
		{
			name:   "exclusive, anchors apart",
			region: Region{Start: cil.Op(cil.Newobj), End: cil.StoresField("mappings")},
			from:   5, to: 7,
		},
		{
			name:   "include end",
			region: Region{Start: cil.Op(cil.Newobj), End: cil.StoresField("mappings"), IncludeEnd: true},
			from:   5, to: 8,
		},
		{
			name:   "end searched from start",
			region: Region{Start: cil.LoadsString("AE1E00AA-3FD5-403C-8A27-2BBDC30CD0E1"), End: cil.LoadsString("keep"), IncludeStart: true},
			from:   3, to: 8,
		},
		{
			name:    "missing start",
			region:  Region{Start: cil.LoadsString("nope"), End: cil.Op(cil.Ret)},
			wantErr: ErrAnchorNotFound,
		},
		{
			name:    "missing end",
			region:  Region{Start: cil.Op(cil.Newobj), End: cil.Op(cil.Throw)},
			wantErr: ErrAnchorNotFound,
		},
		{
			name:    "ambiguous start",
			region:  Region{Start: cil.LoadsString("keep"), End: cil.Op(cil.Ret), Unique: true},
			wantErr: cil.ErrStructuralInvariant,
		},
		{
			name:    "ambiguous end",
			region:  Region{Start: cil.Op(cil.Newobj), End: cil.Op(cil.Stsfld), Unique: true},
			wantErr: cil.ErrStructuralInvariant,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := tt.region.Bounds(regionBody())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Bounds() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Bounds() error = %v", err)
			}
			if from != tt.from || to != tt.to {
				t.Fatalf("Bounds() = [%d,%d), want [%d,%d)", from, to, tt.from, tt.to)
			}
		})
	}
}

func TestRemoveRegionInboundBranch(t *testing.T) {
	b := regionBody()
	// IL_0000 nop -> br into the region
	jump := b.At(0)
	jump.OpCode, jump.Operand = cil.Br, cil.Target(b.At(5).ID())
	before := cil.Listing(b)

	if _, err := RemoveRegion(b, natRegion); !errors.Is(err, cil.ErrDanglingReference) {
		t.Fatalf("RemoveRegion() error = %v, want ErrDanglingReference", err)
	}
	if cil.Listing(b) != before {
		t.Fatal("failed RemoveRegion modified the body")
	}

	r := natRegion
	r.Retarget = true
	after := b.At(8)
	if _, err := RemoveRegion(b, r); err != nil {
		t.Fatalf("RemoveRegion(Retarget) error = %v", err)
	}
	if jump.Operand.Target != after.ID() {
		t.Fatalf("branch targets %s, want the first instruction after the region", b.Label(jump.Operand.Target))
	}
	if err := b.Verify(0); err != nil {
		t.Fatal(err)
	}
}

func TestClearType(t *testing.T) {
	m := metadata.NewModule(metadata.MustParseIdentity("TerrariaServer, Version=1.3.0.7"))
	worldMap := m.AddType(&metadata.Type{Namespace: "Terraria.Map", Name: "WorldMap"})
	m.AddType(&metadata.Type{Namespace: "Terraria.Map", Name: "MapTile", ValueType: true})
	for _, mt := range []*metadata.Method{
		{Name: "UpdateLighting", ReturnType: boolT},
		{Name: "get_Item", ReturnType: "Terraria.Map.MapTile", Params: []metadata.Param{{Name: "x", Type: int32T}}},
		{Name: "Load", ReturnType: metadata.Void},
		{Name: "Abstract", ReturnType: metadata.Void, Virtual: true},
	} {
		if mt.Name != "Abstract" {
			mt.Body = regionBody()
			mt.Body.AddLocal("System.String")
		}
		worldMap.AddMethod(mt)
	}

	if n := ClearType(worldMap); n != 3 {
		t.Fatalf("ClearType() cleared %d, want 3", n)
	}
	tests := map[string][]cil.OpCode{
		"UpdateLighting": {cil.LdcI4, cil.Ret},
		"get_Item":       {cil.Ldloca, cil.Initobj, cil.Ldloc, cil.Ret},
		"Load":           {cil.Ret},
	}
	for name, want := range tests {
		mt, err := worldMap.Method(name)
		if err != nil {
			t.Fatal(err)
		}
		var got []cil.OpCode
		for _, ins := range mt.Body.Instructions() {
			got = append(got, ins.OpCode)
		}
		if !slices.Equal(got, want) {
			t.Fatalf("%s cleared to %v, want %v", name, got, want)
		}
	}
	if err := m.Verify(); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	abstract, _ := worldMap.Method("Abstract")
	if err := ClearMethod(abstract); !errors.Is(err, cil.ErrStructuralInvariant) {
		t.Fatalf("ClearMethod(abstract) error = %v", err)
	}
}
