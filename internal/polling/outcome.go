package polling

import (
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/remote"
)

// outcome is the handler's reading of one remote status report.
type outcome interface {
	isOutcome()
}

type succeeded struct {
	outputs []string
}

type failed struct {
	reason string
	code   string
}

type cancelled struct{}

// inProgress covers every report that is not a usable terminal outcome.
// status is empty when the report carried nothing the job should adopt.
type inProgress struct {
	status   domain.JobStatus
	reported string
}

func (succeeded) isOutcome()  {}
func (failed) isOutcome()     {}
func (cancelled) isOutcome()  {}
func (inProgress) isOutcome() {}

// classify maps a remote task report to an outcome. A success without any
// output is not trusted as terminal.
func classify(t *remote.Task) outcome {
	switch t.Status {
	case remote.StatusSucceeded:
		if len(t.Output) > 0 {
			return succeeded{outputs: t.Output}
		}
	case remote.StatusFailed:
		return failed{reason: t.Failure, code: t.FailureCode}
	case remote.StatusCancelled:
		return cancelled{}
	case remote.StatusPending, remote.StatusRunning, remote.StatusThrottled:
		return inProgress{status: domain.JobStatus(t.Status), reported: t.Status}
	}
	return inProgress{reported: t.Status}
}
