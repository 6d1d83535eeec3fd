package routines

import "github.com/silvermint/diagd/pkg/diag"

// taskResult is the terminal outcome computed by a simple routine task.
type taskResult struct {
	status  diag.Status
	message string
	output  map[string]any
}

// simpleTask computes a routine result in one shot. Tasks run on the
// service task loop and must only perform quick synchronous reads.
type simpleTask func() taskResult

// simpleRoutine runs a single-shot task on Start and is terminal
// immediately afterwards. Threshold routines and network delegations are
// built on it.
type simpleRoutine struct {
	task    simpleTask
	status  diag.Status
	message string
	output  map[string]any
}

func newSimpleRoutine(task simpleTask) *simpleRoutine {
	return &simpleRoutine{task: task, status: diag.StatusReady}
}

func (r *simpleRoutine) Start() {
	if r.status != diag.StatusReady {
		return
	}
	r.status = diag.StatusRunning
	res := r.task()
	r.status = res.status
	r.message = res.message
	r.output = res.output
}

// Resume is not meaningful for single-shot routines.
func (r *simpleRoutine) Resume() {}

// Cancel is a no-op: the task completes within Start, so there is nothing
// in flight to stop and terminal results are preserved.
func (r *simpleRoutine) Cancel() {}

func (r *simpleRoutine) PopulateStatusUpdate(update *diag.Update, includeOutput bool) {
	update.SetNoninteractive(r.status, r.message)
	// Errors happen before any measurable work, so only a completed
	// comparison reports full progress.
	switch r.status {
	case diag.StatusPassed, diag.StatusFailed:
		update.Progress = 100
	default:
		update.Progress = 0
	}
	if includeOutput {
		update.Output = marshalOutput(r.output)
	}
}

func (r *simpleRoutine) Status() diag.Status {
	return r.status
}
