// Package pipeline sequences modifications over loaded modules.
//
// For each module the executor selects the modifications whose declared
// targets contain the module's exact identity, orders them by priority (ties
// keep registration order) and runs them one at a time against the module's
// metadata graph. Each modification sees every edit made by the ones before
// it. The first failure aborts the module; a module whose run aborted must not
// be saved.
//
// Independent modules can be patched in parallel with ExecuteAll. Each module
// graph is owned by exactly one goroutine.
package pipeline

import (
	"github.com/blacktop/ilpatch/internal/config"
	"github.com/blacktop/ilpatch/pkg/metadata"
)

// Modification is a single patch unit.
type Modification interface {
	// Description is the human readable label used in progress output and
	// to disable the modification from configuration.
	Description() string

	// Targets lists the module identities the modification applies to.
	Targets() []metadata.Identity

	// Priority orders modifications, lowest first. Modifications that do not
	// care return 0.
	Priority() int

	// Run applies the modification to m.
	Run(m *metadata.Module) error
}

// Skipper is implemented by modifications that can be turned off by
// configuration.
type Skipper interface {
	Skip(cfg *config.Config) bool
}

// ModificationFunc is an adapter to allow ordinary functions to be used as
// Modifications.
//
// Example:
//
//	mod := NewModificationFunc(
//	    "Removing world map...",
//	    []metadata.Identity{metadata.MustParseIdentity("TerrariaServer, Version=1.3.0.7")},
//	    func(m *metadata.Module) error {
//	        // rewrite m here
//	        return nil
//	    },
//	)
type ModificationFunc struct {
	description string
	targets     []metadata.Identity
	priority    int
	skip        func(*config.Config) bool
	run         func(*metadata.Module) error
}

func (f *ModificationFunc) Description() string          { return f.description }
func (f *ModificationFunc) Targets() []metadata.Identity { return f.targets }
func (f *ModificationFunc) Priority() int                { return f.priority }
func (f *ModificationFunc) Run(m *metadata.Module) error { return f.run(m) }
func (f *ModificationFunc) Skip(cfg *config.Config) bool {
	if f.skip == nil {
		return false
	}
	return f.skip(cfg)
}

// NewModificationFunc creates a Modification from a function, with priority 0.
func NewModificationFunc(description string, targets []metadata.Identity, run func(*metadata.Module) error) *ModificationFunc {
	return &ModificationFunc{
		description: description,
		targets:     targets,
		run:         run,
	}
}

// WithPriority sets the priority and returns f.
func (f *ModificationFunc) WithPriority(p int) *ModificationFunc {
	f.priority = p
	return f
}

// WithSkip sets the configuration predicate that disables f and returns f.
func (f *ModificationFunc) WithSkip(skip func(*config.Config) bool) *ModificationFunc {
	f.skip = skip
	return f
}
