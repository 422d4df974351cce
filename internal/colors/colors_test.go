package colors

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestInit(t *testing.T) {
	on, off := true, false
	tests := []struct {
		name    string
		start   bool // color.NoColor before Init
		force   *bool
		enabled bool
	}{
		{"force on", true, &on, true},
		{"force off", false, &off, false},
		{"nil keeps enabled", false, nil, true},
		{"nil keeps disabled", true, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := color.NoColor
			defer func() { color.NoColor = orig }()

			color.NoColor = tt.start
			Init(tt.force)
			if Enabled() != tt.enabled {
				t.Fatalf("Enabled() = %v, want %v", Enabled(), tt.enabled)
			}
		})
	}
}

func TestPalette(t *testing.T) {
	orig := color.NoColor
	defer func() { color.NoColor = orig }()

	palette := map[string]func() *color.Color{
		"Opcode":   Opcode,
		"Address":  Address,
		"Callee":   Callee,
		"Identity": Identity,
		"Type":     Type,
		"Method":   Method,
		"Muted":    Muted,
		"Disabled": Disabled,
		"Added":    Added,
		"Removed":  Removed,
		"Hunk":     Hunk,
	}
	for name, fn := range palette {
		color.NoColor = false
		if got := fn().Sprint("ldarg.0"); !strings.Contains(got, "\x1b[") {
			t.Errorf("%s() with colors on = %q, want ANSI codes", name, got)
		}
		color.NoColor = true
		if got := fn().Sprint("ldarg.0"); got != "ldarg.0" {
			t.Errorf("%s() with colors off = %q, want plain text", name, got)
		}
	}
}
