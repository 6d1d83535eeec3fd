package routines

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/launcher"
)

func TestSubprocRoutine_PassOnExitZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newStepRunner()
	l := &scriptedLauncher{results: []launcher.Result{{ExitCode: 0, Output: []byte("all good\n")}}}

	r := newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{{"worker"}},
		Expected: 10 * time.Second,
	})
	r.Start()
	require.Equal(t, diag.StatusRunning, r.Status())

	runner.step(t)
	update := poll(r, true)
	require.Equal(t, diag.StatusPassed, update.Noninteractive.Status)
	assert.Equal(t, SubprocPassedMessage, update.Noninteractive.Message)
	assert.Equal(t, uint32(100), update.Progress)
	assert.Equal(t, "all good\n", string(update.Output))
}

func TestSubprocRoutine_FailOnNonZeroExit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newStepRunner()
	l := &scriptedLauncher{results: []launcher.Result{{ExitCode: 3}}}

	r := newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{{"worker"}},
		Expected: 10 * time.Second,
	})
	r.Start()
	runner.step(t)

	update := poll(r, false)
	require.Equal(t, diag.StatusFailed, update.Noninteractive.Status)
	assert.Equal(t, "Routine failed with exit code 3.", update.Noninteractive.Message)
}

func TestSubprocRoutine_CommandsRunInSequence(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newStepRunner()
	l := &scriptedLauncher{results: []launcher.Result{
		{ExitCode: 0, Output: []byte("prepare ")},
		{ExitCode: 0, Output: []byte("run")},
	}}

	r := newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{{"worker", "prepare"}, {"worker", "run"}},
		Expected: 10 * time.Second,
	})
	r.Start()
	runner.step(t)

	require.Equal(t, diag.StatusPassed, r.Status())
	assert.Equal(t, 2, l.calls)
	assert.Equal(t, "prepare run", string(poll(r, true).Output))
}

func TestSubprocRoutine_StopsAfterFailedCommand(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newStepRunner()
	l := &scriptedLauncher{results: []launcher.Result{
		{ExitCode: 5, Output: []byte("prepare failed")},
		{ExitCode: 0},
	}}

	r := newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{{"worker", "prepare"}, {"worker", "run"}},
		Expected: 10 * time.Second,
	})
	r.Start()
	runner.step(t)

	require.Equal(t, diag.StatusFailed, r.Status())
	assert.Equal(t, 1, l.calls)
}

func TestSubprocRoutine_ProgressCappedAt99(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newStepRunner()
	l := &scriptedLauncher{results: []launcher.Result{{ExitCode: 0}}}

	r := newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{{"worker"}},
		Expected: 10 * time.Second,
	})
	r.Start()

	clock.Advance(5 * time.Second)
	assert.Equal(t, uint32(50), poll(r, false).Progress)

	// Workers regularly overrun their estimate; progress must not report
	// completion before the process exits.
	clock.Advance(20 * time.Second)
	assert.Equal(t, uint32(99), poll(r, false).Progress)

	runner.step(t)
	assert.Equal(t, uint32(100), poll(r, false).Progress)
}

func TestSubprocRoutine_Cancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newStepRunner()
	l := &scriptedLauncher{
		results:  []launcher.Result{{ExitCode: -1}},
		launched: make(chan struct{}, 1),
	}

	r := newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{{"worker"}},
		Expected: 10 * time.Second,
	})
	r.Start()
	<-l.launched
	r.Cancel()
	require.Equal(t, diag.StatusCancelling, r.Status())

	runner.step(t)
	update := poll(r, false)
	require.Equal(t, diag.StatusCancelled, update.Noninteractive.Status)
	assert.Equal(t, SubprocCancelledMessage, update.Noninteractive.Message)
	assert.GreaterOrEqual(t, l.killed, 1)
}

func TestSubprocRoutine_PreStartFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newStepRunner()
	l := &scriptedLauncher{}
	stops := 0

	r := newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{{"worker"}},
		Expected: 10 * time.Second,
		PreStart: func() error { return errors.New("precondition unmet") },
		PostStop: func() { stops++ },
	})
	r.Start()

	update := poll(r, false)
	require.Equal(t, diag.StatusError, update.Noninteractive.Status)
	assert.Equal(t, "precondition unmet", update.Noninteractive.Message)
	assert.Equal(t, 0, l.calls)
	assert.Equal(t, 1, stops)
}

func TestSubprocRoutine_PostStopRunsOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newStepRunner()
	l := &scriptedLauncher{results: []launcher.Result{{ExitCode: 0}}}
	stops := 0

	r := newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{{"worker"}},
		Expected: 10 * time.Second,
		PostStop: func() { stops++ },
	})
	r.Start()
	runner.step(t)
	require.Equal(t, diag.StatusPassed, r.Status())

	r.Cancel()
	assert.Equal(t, 1, stops)
}

func TestSubprocRoutine_SpawnErrorText(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newStepRunner()
	l := &scriptedLauncher{errs: []error{errors.New("exec: not found")}}

	r := newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{{"worker"}},
		Expected: 10 * time.Second,
	})
	r.Start()
	runner.step(t)

	update := poll(r, false)
	require.Equal(t, diag.StatusError, update.Noninteractive.Status)
	assert.Equal(t, "exec: not found", update.Noninteractive.Message)
}
