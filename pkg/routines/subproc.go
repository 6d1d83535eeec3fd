package routines

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/launcher"
	"github.com/silvermint/diagd/pkg/taskloop"
)

// Generic subprocess routine status messages.
const (
	SubprocPassedMessage    = "Routine passed."
	SubprocCancelledMessage = "Routine cancelled."
)

// exitDecoder maps a worker exit code and its captured output to a routine
// result. code is the exit code of the first failing command, or 0 when
// every command succeeded.
type exitDecoder func(code int, output string) (diag.Status, string)

// defaultDecode treats exit 0 as a pass and anything else as a failure.
func defaultDecode(code int, _ string) (diag.Status, string) {
	if code == 0 {
		return diag.StatusPassed, SubprocPassedMessage
	}
	return diag.StatusFailed, fmt.Sprintf("Routine failed with exit code %d.", code)
}

// subprocRoutine supervises one or more worker commands run in sequence.
// The worker runs on its own goroutine; its exit is posted back to the
// runner so state transitions stay on the task loop.
type subprocRoutine struct {
	launcher launcher.Launcher
	clock    clockwork.Clock
	runner   taskloop.Runner

	commands [][]string
	expected time.Duration
	dir      string

	// preStart runs before spawning; an error aborts the routine. postStop
	// runs exactly once on the transition to a terminal status. decode maps
	// the worker exit code to a result; parseOutput may rewrite the raw
	// captured output for reporting. All four are optional.
	preStart    func() error
	postStop    func()
	decode      exitDecoder
	parseOutput func(raw string) []byte

	status    diag.Status
	message   string
	output    []byte
	startTime time.Time

	procMu sync.Mutex
	proc   launcher.Process

	stopped bool
}

// subprocConfig carries the per-kind knobs for a subprocess routine.
type subprocConfig struct {
	Commands    [][]string
	Expected    time.Duration
	Dir         string
	PreStart    func() error
	PostStop    func()
	Decode      exitDecoder
	ParseOutput func(raw string) []byte
}

func newSubprocRoutine(l launcher.Launcher, clock clockwork.Clock, runner taskloop.Runner, cfg subprocConfig) *subprocRoutine {
	decode := cfg.Decode
	if decode == nil {
		decode = defaultDecode
	}
	return &subprocRoutine{
		launcher:    l,
		clock:       clock,
		runner:      runner,
		commands:    cfg.Commands,
		expected:    cfg.Expected,
		dir:         cfg.Dir,
		preStart:    cfg.PreStart,
		postStop:    cfg.PostStop,
		decode:      decode,
		parseOutput: cfg.ParseOutput,
		status:      diag.StatusReady,
	}
}

func (r *subprocRoutine) Start() {
	if r.status != diag.StatusReady {
		return
	}

	if r.preStart != nil {
		if err := r.preStart(); err != nil {
			r.status = diag.StatusError
			r.message = err.Error()
			r.runPostStop()
			return
		}
	}

	r.status = diag.StatusRunning
	r.startTime = r.clock.Now()
	go r.supervise()
}

func (r *subprocRoutine) Resume() {}

func (r *subprocRoutine) Cancel() {
	if r.status != diag.StatusRunning {
		return
	}
	r.status = diag.StatusCancelling

	r.procMu.Lock()
	proc := r.proc
	r.procMu.Unlock()
	if proc != nil {
		proc.Kill()
	}
}

// supervise runs the worker commands in order and posts the outcome back
// to the task loop. It is the only code that runs off-loop.
func (r *subprocRoutine) supervise() {
	var combined strings.Builder
	exitCode := 0

	for _, argv := range r.commands {
		proc, err := r.launcher.Launch(argv, r.dir)
		if err != nil {
			r.runner.Post(func() { r.onSpawnError(err) })
			return
		}

		r.procMu.Lock()
		r.proc = proc
		r.procMu.Unlock()

		result, err := proc.Wait()
		if err != nil {
			r.runner.Post(func() { r.onSpawnError(err) })
			return
		}
		combined.Write(result.Output)
		if result.ExitCode != 0 {
			exitCode = result.ExitCode
			break
		}
	}

	output := combined.String()
	r.runner.Post(func() { r.onExit(exitCode, output) })
}

func (r *subprocRoutine) onSpawnError(err error) {
	if r.status.Terminal() {
		return
	}
	r.status = diag.StatusError
	r.message = err.Error()
	r.runPostStop()
}

func (r *subprocRoutine) onExit(code int, raw string) {
	if r.status.Terminal() {
		return
	}

	if r.parseOutput != nil {
		r.output = r.parseOutput(raw)
	} else {
		r.output = []byte(raw)
	}

	if r.status == diag.StatusCancelling {
		r.status = diag.StatusCancelled
		r.message = SubprocCancelledMessage
		r.runPostStop()
		return
	}

	r.status, r.message = r.decode(code, raw)
	r.runPostStop()
}

func (r *subprocRoutine) runPostStop() {
	if r.stopped || r.postStop == nil {
		return
	}
	r.stopped = true
	r.postStop()
}

func (r *subprocRoutine) PopulateStatusUpdate(update *diag.Update, includeOutput bool) {
	update.SetNoninteractive(r.status, r.message)
	switch {
	case r.status.Terminal():
		update.Progress = 100
	case r.status == diag.StatusRunning || r.status == diag.StatusCancelling:
		elapsed := r.clock.Now().Sub(r.startTime)
		update.Progress = clampPercent(int64(100*elapsed/r.expected), 99)
	default:
		update.Progress = 0
	}
	if includeOutput && r.output != nil {
		update.Output = r.output
	}
}

func (r *subprocRoutine) Status() diag.Status {
	return r.status
}

var _ diag.Routine = (*subprocRoutine)(nil)
