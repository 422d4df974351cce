package emu

import "github.com/blacktop/ilpatch/internal/colors"

// trace colors
var colorOp = colors.Opcode().SprintFunc()
var colorAddr = colors.Address().SprintfFunc()
var colorCall = colors.Callee().SprintFunc()
