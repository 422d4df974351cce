package mods

import (
	"errors"
	"fmt"
	"slices"

	"github.com/blacktop/ilpatch/internal/pipeline"
	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
	"github.com/blacktop/ilpatch/pkg/patch"
)

// ChangeArchitecture marks the module as a plain IL image.
func ChangeArchitecture() pipeline.Modification {
	return pipeline.NewModificationFunc(
		"Changing architecture to AnyCPU (64-bit preferred)",
		[]metadata.Identity{terraria1307, server1307},
		func(m *metadata.Module) error {
			m.Architecture = metadata.I386
			m.Attributes = metadata.ILOnly
			return nil
		},
	)
}

// ConsoleWrites sends System.Console Write and WriteLine calls to the
// callback overload with the same parameters. Calls without a matching
// callback are left alone.
func ConsoleWrites() pipeline.Modification {
	return pipeline.NewModificationFunc(
		"Hooking all Console.Write/Line calls...",
		[]metadata.Identity{terraria1307, server1307},
		func(m *metadata.Module) error {
			console, err := m.Type(callbacks + ".Console")
			if err != nil {
				return err
			}
			isWrite := cil.AllOf(
				cil.AnyOf(cil.CallTo("Write"), cil.CallTo("WriteLine")),
				func(ins *cil.Instruction) bool { return ins.Operand.Member.Type == "System.Console" },
			)
			n, err := patch.RetargetCalls(m, isWrite, func(callee cil.MemberRef) (cil.MemberRef, bool, error) {
				mt, err := consoleOverload(m, console, callee)
				if errors.Is(err, metadata.ErrSymbolNotFound) {
					return cil.MemberRef{}, false, nil
				} else if err != nil {
					return cil.MemberRef{}, false, err
				}
				return mt.Ref(), true, nil
			})
			if err != nil {
				return err
			}
			if n == 0 {
				return pipeline.Skip("no console writes")
			}
			return nil
		},
	)
}

// consoleOverload finds the callback for callee. An exact parameter match
// wins; otherwise System.Object callback parameters accept reference type
// arguments.
func consoleOverload(m *metadata.Module, console *metadata.Type, callee cil.MemberRef) (*metadata.Method, error) {
	params := callee.Params
	if params == nil {
		params = metadata.NoParams
	}
	mt, err := console.ResolveMethod(metadata.MethodQuery{Name: callee.Name, Params: params, Return: callee.Return})
	if !errors.Is(err, metadata.ErrSymbolNotFound) {
		return mt, err
	}

	var found []*metadata.Method
	for _, cand := range console.Methods() {
		if cand.Name != callee.Name || !cand.Static || cand.Ref().Return != callee.Return || len(cand.Params) != len(params) {
			continue
		}
		if slices.EqualFunc(cand.Params, params, func(p metadata.Param, arg string) bool {
			return p.Sig() == arg || (p.Type == "System.Object" && !p.ByRef && !m.IsValueType(arg))
		}) {
			found = append(found, cand)
		}
	}
	switch len(found) {
	case 0:
		return nil, err
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("%w: %d object overloads of %s::%s accept %s", metadata.ErrSymbolAmbiguous, len(found), console.FullName(), callee.Name, callee)
}

// SendDataNetworkText adds an overload of NetMessage.SendData taking
// NetworkText wherever the original takes a string. A null text is replaced
// by NetworkText.Empty, then the text is converted and forwarded.
func SendDataNetworkText() pipeline.Modification {
	return pipeline.NewModificationFunc(
		"Add NetworkText overloading of SendData...",
		[]metadata.Identity{terraria1307, server1307},
		addSendDataOverload,
	).WithPriority(7)
}

const networkText = "Terraria.Localization.NetworkText"

func addSendDataOverload(m *metadata.Module) error {
	netMessage, err := m.Type("Terraria.NetMessage")
	if err != nil {
		return err
	}
	empty, err := m.Field(networkText, "Empty")
	if err != nil {
		return err
	}
	toString, err := m.ResolveMethod(metadata.MethodQuery{Type: networkText, Name: "ToString", Params: metadata.NoParams, Return: "System.String"})
	if err != nil {
		return err
	}

	// the string overload is the one being mirrored; ours takes no strings
	var sources []*metadata.Method
	for _, mt := range netMessage.Methods() {
		if mt.Name == "SendData" && slices.ContainsFunc(mt.Params, isString) {
			sources = append(sources, mt)
		}
	}
	switch len(sources) {
	case 0:
		return fmt.Errorf("%w: no Terraria.NetMessage::SendData takes a string", metadata.ErrSymbolNotFound)
	case 1:
	default:
		return fmt.Errorf("%w: %d string overloads of Terraria.NetMessage::SendData", metadata.ErrSymbolAmbiguous, len(sources))
	}
	sendData := sources[0]

	params := slices.Clone(sendData.Params)
	var texts []int
	sig := make([]string, 0, len(params))
	for i, p := range params {
		if isString(p) {
			params[i].Type = networkText
			texts = append(texts, i)
		}
		sig = append(sig, params[i].Sig())
	}
	if existing, err := netMessage.ResolveMethod(metadata.MethodQuery{Name: sendData.Name, Params: sig}); err == nil {
		return pipeline.Skip(fmt.Sprintf("%s already declared", existing))
	}

	_, err = patch.Overload(sendData, params, func(ov *metadata.Method, b *cil.Body) error {
		var guards []*cil.Instruction
		for _, i := range texts {
			slot := ov.ArgSlot(i)
			b.Emit(cil.Ldarg, cil.Arg(slot))
			guards = append(guards, b.Emit(cil.Brtrue, cil.Target(cil.End)))
			b.Emit(cil.Ldsfld, cil.Member(empty.Ref()))
			b.Emit(cil.Starg, cil.Arg(slot))
		}
		var first *cil.Instruction
		if ov.HasThis() {
			first = b.Emit(cil.Ldarg, cil.Arg(0))
		}
		for i := range ov.Params {
			ins := b.Emit(cil.Ldarg, cil.Arg(ov.ArgSlot(i)))
			if first == nil {
				first = ins
			}
			if slices.Contains(texts, i) {
				b.Emit(cil.Callvirt, cil.Member(toString.Ref()))
			}
		}
		b.Emit(cil.Call, cil.Member(sendData.Ref()))
		b.Emit(cil.Ret, cil.None)

		// each guard skips its own replacement
		for n, br := range guards {
			next := first
			if n+1 < len(guards) {
				next = b.At(b.Position(guards[n+1].ID()) - 1)
			}
			br.Operand = cil.Target(next.ID())
		}
		return nil
	})
	return err
}

func isString(p metadata.Param) bool {
	return p.Type == "System.String" && !p.ByRef
}
