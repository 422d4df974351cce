package pipeline

import (
	"github.com/apex/log"
	"github.com/blacktop/ilpatch/internal/utils"
)

// Reporter receives progress for every unit the sequencer reaches.
type Reporter interface {
	Begin(r *Result, desc string)
	End(r *Result, desc string, err error)
}

type logReporter struct{}

func (logReporter) Begin(r *Result, desc string) {
	utils.Indent(entry(r).Info, 2)(desc)
}

func (logReporter) End(r *Result, desc string, err error) {
	switch {
	case err == nil:
		utils.Indent(entry(r).Debug, 3)("done")
	case IsSkip(err):
		utils.Indent(entry(r).WithField("reason", err.Error()).Warn, 3)("skipped")
	default:
		utils.Indent(entry(r).WithError(err).Error, 3)("failed")
	}
}

func entry(r *Result) *log.Entry {
	id := r.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	return log.WithFields(log.Fields{"module": r.Module.Name, "run": id})
}

// Discard is a Reporter that drops all progress.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Begin(*Result, string)      {}
func (discard) End(*Result, string, error) {}
