package routines

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/silvermint/diagd/pkg/debugd"
	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/launcher"
	"github.com/silvermint/diagd/pkg/power"
)

// fakePower serves a canned power supply snapshot.
type fakePower struct {
	snap *power.Snapshot
	err  error
}

func (f *fakePower) PowerSupplySnapshot() (*power.Snapshot, error) {
	return f.snap, f.err
}

// fakeDebugd answers helper calls synchronously with canned payloads.
type fakeDebugd struct {
	smartPayload string
	smartErr     error
	startPayload string
	startErr     error
	stopPayload  string
	stopErr      error
	logPayloads  []string
	logErr       error

	logCalls  int
	stopCalls int
	logPageID uint32
	logLen    uint32
	logRaw    bool
}

func (f *fakeDebugd) GetSmartAttributes(cb debugd.ResultCallback) { cb(f.smartPayload, f.smartErr) }
func (f *fakeDebugd) GetNvmeIdentity(cb debugd.ResultCallback)    { cb("", nil) }
func (f *fakeDebugd) RunNvmeShortSelfTest(cb debugd.ResultCallback) {
	cb(f.startPayload, f.startErr)
}
func (f *fakeDebugd) RunNvmeLongSelfTest(cb debugd.ResultCallback) {
	cb(f.startPayload, f.startErr)
}
func (f *fakeDebugd) StopNvmeSelfTest(cb debugd.ResultCallback) {
	f.stopCalls++
	cb(f.stopPayload, f.stopErr)
}

func (f *fakeDebugd) GetNvmeLog(pageID, length uint32, rawBinary bool, cb debugd.ResultCallback) {
	var payload string
	if f.logCalls < len(f.logPayloads) {
		payload = f.logPayloads[f.logCalls]
	}
	f.logCalls++
	f.logPageID = pageID
	f.logLen = length
	f.logRaw = rawBinary
	cb(payload, f.logErr)
}

// stepRunner queues posted tasks so tests execute them deterministically
// on the test goroutine.
type stepRunner struct {
	ch chan func()
}

func newStepRunner() *stepRunner {
	return &stepRunner{ch: make(chan func(), 16)}
}

func (r *stepRunner) Post(fn func()) { r.ch <- fn }

func (r *stepRunner) step(t *testing.T) {
	t.Helper()
	select {
	case fn := <-r.ch:
		fn()
	case <-time.After(5 * time.Second):
		t.Fatal("no task was posted")
	}
}

// scriptedLauncher returns canned process results in order. When launched
// is non-nil it receives one value per spawned process.
type scriptedLauncher struct {
	results  []launcher.Result
	errs     []error
	killed   int
	calls    int
	launched chan struct{}
}

type scriptedProcess struct {
	l      *scriptedLauncher
	result launcher.Result
	err    error
}

func (l *scriptedLauncher) Launch(argv []string, dir string) (launcher.Process, error) {
	i := l.calls
	l.calls++
	var res launcher.Result
	if i < len(l.results) {
		res = l.results[i]
	}
	var err error
	if i < len(l.errs) {
		err = l.errs[i]
	}
	return &scriptedProcess{l: l, result: res, err: err}, nil
}

func (p *scriptedProcess) Wait() (*launcher.Result, error) {
	if p.l.launched != nil {
		p.l.launched <- struct{}{}
	}
	if p.err != nil {
		return nil, p.err
	}
	res := p.result
	return &res, nil
}

func (p *scriptedProcess) Kill() { p.l.killed++ }

// poll populates a fresh update from the routine.
func poll(r diag.Routine, includeOutput bool) *diag.Update {
	update := &diag.Update{}
	r.PopulateStatusUpdate(update, includeOutput)
	return update
}

// decodeOutput unmarshals a JSON output document.
func decodeOutput(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestSimpleRoutine_StartIsSingleShot(t *testing.T) {
	calls := 0
	r := newSimpleRoutine(func() taskResult {
		calls++
		return taskResult{status: diag.StatusPassed, message: "ok"}
	})

	require.Equal(t, diag.StatusReady, r.Status())
	r.Start()
	require.Equal(t, diag.StatusPassed, r.Status())

	// A second Start must not rerun the task.
	r.Start()
	require.Equal(t, 1, calls)
}

func TestSimpleRoutine_CancelPreservesResult(t *testing.T) {
	r := newSimpleRoutine(func() taskResult {
		return taskResult{status: diag.StatusFailed, message: "bad"}
	})
	r.Start()
	r.Cancel()

	update := poll(r, false)
	require.Equal(t, diag.StatusFailed, update.Noninteractive.Status)
	require.Equal(t, uint32(100), update.Progress)
}

func TestSimpleRoutine_ErrorProgressZero(t *testing.T) {
	r := newSimpleRoutine(func() taskResult {
		return taskResult{status: diag.StatusError, message: "boom"}
	})
	r.Start()

	update := poll(r, false)
	require.Equal(t, diag.StatusError, update.Noninteractive.Status)
	require.Equal(t, uint32(0), update.Progress)
}

func TestSimpleRoutine_OutputOnlyWhenRequested(t *testing.T) {
	r := newSimpleRoutine(func() taskResult {
		return taskResult{
			status:  diag.StatusPassed,
			message: "ok",
			output:  map[string]any{"resultDetails": map[string]any{"k": "v"}},
		}
	})
	r.Start()

	require.Nil(t, poll(r, false).Output)
	require.NotNil(t, poll(r, true).Output)
}

func TestClampPercent(t *testing.T) {
	require.Equal(t, uint32(0), clampPercent(-5, 99))
	require.Equal(t, uint32(42), clampPercent(42, 99))
	require.Equal(t, uint32(99), clampPercent(180, 99))
	require.Equal(t, uint32(100), clampPercent(250, 100))
}
