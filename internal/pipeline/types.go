package pipeline

import (
	"time"

	"github.com/blacktop/ilpatch/pkg/metadata"
)

// State is the sequencer's progress through one module.
type State uint8

const (
	Idle State = iota
	Selecting
	Running
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Running:
		return "running"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// Result is the outcome of running a plan against one module.
type Result struct {
	RunID  string
	Module metadata.Identity
	State  State
	// Ran and Skipped hold unit descriptions in the order they were reached.
	Ran     []string
	Skipped []string
	// Err is the *UnitError that aborted the run, if any.
	Err   error
	Stats ExecutionStats
}

// ExecutionStats tracks sequencer execution metrics.
type ExecutionStats struct {
	StartTime    time.Time
	EndTime      time.Time
	UnitsRun     int
	UnitsSkipped int
	Errors       []error
	Warnings     []error
}

// Duration returns the total execution time.
func (s *ExecutionStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}
