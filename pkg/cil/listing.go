package cil

import (
	"fmt"
	"strings"
)

// Label returns the IL_xxxx label of an instruction's current position.
func (b *Body) Label(id ID) string {
	if id == End {
		return "end"
	}
	if pos := b.Position(id); pos >= 0 {
		return fmt.Sprintf("IL_%04x", pos)
	}
	return fmt.Sprintf("IL_????(#%d)", id)
}

// Listing renders the body as ildasm-style text. Labels are derived from
// positions, so two listings of the same code are identical regardless of
// instruction IDs.
func Listing(b *Body) string {
	var sb strings.Builder
	if len(b.Locals) > 0 {
		sb.WriteString(".locals ")
		if b.InitLocals {
			sb.WriteString("init ")
		}
		sb.WriteByte('(')
		for i, l := range b.Locals {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s V_%d", l, i)
		}
		sb.WriteString(")\n")
	}
	for pos, ins := range b.Instructions() {
		fmt.Fprintf(&sb, "IL_%04x: %s\n", pos, ins.format(b.Label))
	}
	for _, h := range b.Handlers {
		fmt.Fprintf(&sb, ".try %s to %s %s", b.Label(h.TryStart), b.Label(h.TryEnd), h.Kind)
		if h.CatchType != "" {
			fmt.Fprintf(&sb, " %s", h.CatchType)
		}
		fmt.Fprintf(&sb, " handler %s to %s\n", b.Label(h.HandlerStart), b.Label(h.HandlerEnd))
	}
	return sb.String()
}
