// Package colors provides the terminal palette for listings, plans and diffs.
//
// Colors are automatically disabled when stdout is not a terminal (piped or
// redirected to a file). This behavior is provided by the underlying fatih/color
// library and respected by default. Use Init() to override based on CLI flags.
package colors

import "github.com/fatih/color"

// Init allows overriding the auto-detected color setting.
//
//   - forceColor == nil: keep auto-detected value (recommended default)
//   - forceColor == true: force colors on (e.g., --color flag)
//   - forceColor == false: force colors off
func Init(forceColor *bool) {
	if forceColor != nil {
		color.NoColor = !*forceColor
	}
}

// Enabled returns true if colors are currently enabled.
func Enabled() bool {
	return !color.NoColor
}

// Disassembly

func Opcode() *color.Color  { return color.New(color.Bold) }
func Address() *color.Color { return color.New(color.Bold, color.FgMagenta) }
func Callee() *color.Color  { return color.New(color.Faint, color.FgHiBlue) }

// Module structure

func Identity() *color.Color { return color.New(color.Bold, color.FgBlue) }
func Type() *color.Color     { return color.New(color.Bold, color.FgHiYellow) }
func Method() *color.Color   { return color.New(color.Bold, color.FgWhite) }
func Muted() *color.Color    { return color.New(color.Faint) }
func Disabled() *color.Color { return color.New(color.Faint, color.FgRed) }

// Unified diffs

func Added() *color.Color   { return color.New(color.FgGreen) }
func Removed() *color.Color { return color.New(color.FgRed) }
func Hunk() *color.Color    { return color.New(color.FgCyan) }
