package patch

import (
	"errors"
	"strings"
	"testing"

	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
)

func natModule() *metadata.Module {
	m := metadata.NewModule(metadata.MustParseIdentity("TerrariaServer, Version=1.3.0.7"))
	nat := m.AddType(&metadata.Type{Namespace: "NATUPNPLib", Name: "IStaticPortMappingCollection"})
	nat.AddMethod(&metadata.Method{Name: "Remove", ReturnType: metadata.Void, Virtual: true, Params: []metadata.Param{
		{Name: "port", Type: int32T},
	}})
	m.AddType(&metadata.Type{Namespace: "NATUPNPLib", Name: "UPnPNATClass"})

	netplay := m.AddType(&metadata.Type{Namespace: "Terraria", Name: "Netplay"})
	mappings := netplay.AddField(&metadata.Field{Name: "mappings", Type: "NATUPNPLib.IStaticPortMappingCollection", Static: true})
	netplay.AddField(&metadata.Field{Name: "upnpnat", Type: "NATUPNPLib.UPnPNATClass", Static: true})
	netplay.AddField(&metadata.Field{Name: "ListenPort", Type: int32T, Static: true})

	closePort := netplay.AddMethod(&metadata.Method{Name: "closePort", ReturnType: metadata.Void, Static: true, Body: cil.NewBody()})
	b := closePort.Body
	b.Emit(cil.Ldsfld, cil.Member(mappings.Ref()))
	b.Emit(cil.LdcI4, cil.Int(7777))
	b.Emit(cil.Callvirt, cil.Member(cil.MemberRef{
		Kind:    cil.MethodMember,
		Type:    "NATUPNPLib.IStaticPortMappingCollection",
		Name:    "Remove",
		Params:  []string{int32T},
		Return:  metadata.Void,
		HasThis: true,
	}))
	b.Emit(cil.Ret, cil.None)
	return m
}

func natStrip(t *testing.T, m *metadata.Module) StripSpec {
	t.Helper()
	netplay, err := m.Type("Terraria.Netplay")
	if err != nil {
		t.Fatal(err)
	}
	var s StripSpec
	for _, name := range []string{"mappings", "upnpnat"} {
		f, err := netplay.Field(name)
		if err != nil {
			t.Fatal(err)
		}
		s.Fields = append(s.Fields, f)
	}
	s.Types = m.FindTypes(func(t *metadata.Type) bool {
		return strings.HasPrefix(t.Namespace, "NATUPNPLib")
	})
	return s
}

func TestStripStillReferenced(t *testing.T) {
	m := natModule()
	err := Strip(m, natStrip(t, m))
	if !errors.Is(err, metadata.ErrStillReferenced) {
		t.Fatalf("Strip() error = %v, want ErrStillReferenced", err)
	}
	if !strings.Contains(err.Error(), "closePort") || !strings.Contains(err.Error(), "in type Terraria.Netplay") {
		t.Fatalf("Strip() error should name the referrer and its type: %v", err)
	}
	if len(m.Types()) != 3 {
		t.Fatal("failed Strip removed types")
	}
}

func TestStripAfterClear(t *testing.T) {
	m := natModule()
	closePort, err := m.Method("Terraria.Netplay", "closePort")
	if err != nil {
		t.Fatal(err)
	}
	if err := ClearMethod(closePort); err != nil {
		t.Fatal(err)
	}
	if err := Strip(m, natStrip(t, m)); err != nil {
		t.Fatalf("Strip() error = %v", err)
	}

	if len(m.Types()) != 1 {
		t.Fatalf("module has %d types, want only Terraria.Netplay", len(m.Types()))
	}
	netplay, _ := m.Type("Terraria.Netplay")
	if _, err := netplay.Field("mappings"); !errors.Is(err, metadata.ErrSymbolNotFound) {
		t.Fatalf("mappings still declared: %v", err)
	}
	if _, err := netplay.Field("ListenPort"); err != nil {
		t.Fatalf("ListenPort was stripped: %v", err)
	}
	if err := m.Verify(); err != nil {
		t.Fatal(err)
	}
}
