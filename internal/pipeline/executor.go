package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/ilpatch/internal/config"
	"github.com/blacktop/ilpatch/pkg/metadata"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Executor holds the registered modifications and runs them against modules.
type Executor struct {
	Config *config.Config

	units    []Modification
	reporter Reporter

	mu sync.RWMutex
}

// NewExecutor creates a new executor. A nil cfg runs everything with one
// module at a time.
func NewExecutor(cfg *config.Config) *Executor {
	if cfg == nil {
		cfg = &config.Config{Parallelism: 1}
	}
	return &Executor{
		Config:   cfg,
		reporter: logReporter{},
	}
}

// SetReporter replaces the default log reporter.
func (e *Executor) SetReporter(r Reporter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r == nil {
		r = Discard
	}
	e.reporter = r
}

// Register adds a modification to the registry.
func (e *Executor) Register(m Modification) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.units = append(e.units, m)
}

// RegisterAll adds multiple modifications to the registry.
func (e *Executor) RegisterAll(mods ...Modification) {
	for m := range mods {
		e.Register(mods[m])
	}
}

// Units returns the registry in registration order.
func (e *Executor) Units() []Modification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.units)
}

// Plan returns the modifications that would run against a module with the
// given identity, in execution order.
func (e *Executor) Plan(id metadata.Identity) []Modification {
	plan, _ := e.plan(id)
	return plan
}

func (e *Executor) plan(id metadata.Identity) (plan []Modification, disabled []string) {
	for _, u := range e.Units() {
		if !id.In(u.Targets()) {
			continue
		}
		if e.disabled(u) {
			disabled = append(disabled, u.Description())
			continue
		}
		plan = append(plan, u)
	}
	slices.SortStableFunc(plan, func(a, b Modification) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	return plan, disabled
}

func (e *Executor) disabled(u Modification) bool {
	if e.Config.IsDisabled(u.Description()) {
		return true
	}
	if s, ok := u.(Skipper); ok {
		return s.Skip(e.Config)
	}
	return false
}

// Execute runs the plan for m one unit at a time. Each unit sees the edits of
// the ones before it and the module is verified after every unit.
//
// The first failure stops the run and is returned as a *UnitError; the
// module is left as that unit left it and must not be saved. Cancelling ctx
// stops the run before the next unit.
func (e *Executor) Execute(ctx context.Context, m *metadata.Module) (*Result, error) {
	e.mu.RLock()
	rep := e.reporter
	e.mu.RUnlock()

	res := &Result{
		RunID:  uuid.NewString(),
		Module: m.Identity,
		State:  Selecting,
	}
	res.Stats.StartTime = time.Now()
	defer func() {
		res.Stats.EndTime = time.Now()
	}()

	plan, disabled := e.plan(m.Identity)
	res.Skipped = append(res.Skipped, disabled...)
	res.Stats.UnitsSkipped = len(disabled)
	if len(plan) == 0 {
		log.WithField("module", m.Identity.String()).Debug("No modifications target module")
		res.State = Done
		return res, nil
	}

	res.State = Running
	for i, u := range plan {
		desc := u.Description()
		if err := ctx.Err(); err != nil {
			return e.abort(res, desc, i, err)
		}

		rep.Begin(res, desc)
		err := u.Run(m)
		if IsSkip(err) {
			rep.End(res, desc, err)
			res.Skipped = append(res.Skipped, desc)
			res.Stats.UnitsSkipped++
			res.Stats.Warnings = append(res.Stats.Warnings, err)
			continue
		}
		if err == nil {
			if verr := m.Verify(); verr != nil {
				err = fmt.Errorf("module failed verification: %w", verr)
			}
		}
		rep.End(res, desc, err)
		if err != nil {
			return e.abort(res, desc, i, err)
		}
		res.Ran = append(res.Ran, desc)
		res.Stats.UnitsRun++
	}

	res.State = Done
	return res, nil
}

func (e *Executor) abort(res *Result, desc string, index int, cause error) (*Result, error) {
	uerr := &UnitError{Description: desc, Index: index, Err: cause}
	res.State = Aborted
	res.Err = uerr
	res.Stats.Errors = append(res.Stats.Errors, uerr)
	return res, uerr
}

// ExecuteAll runs Execute for every module, Config.Parallelism at a time.
// Modules are independent: one aborting does not stop the others. Results
// are returned in the order of modules along with every abort joined.
func (e *Executor) ExecuteAll(ctx context.Context, modules []*metadata.Module) ([]*Result, error) {
	results := make([]*Result, len(modules))

	var g errgroup.Group
	if e.Config.Parallelism > 0 {
		g.SetLimit(e.Config.Parallelism)
	}
	for i, m := range modules {
		g.Go(func() error {
			res, err := e.Execute(ctx, m)
			results[i] = res
			if err != nil {
				log.WithError(err).Warnf("Patching %s aborted", m.Identity)
			}
			return nil
		})
	}
	g.Wait()

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Module, res.Err))
		}
	}
	return results, errors.Join(errs...)
}
