package routines

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/launcher"
)

func TestCheckDiskSpace_InsufficientSpace(t *testing.T) {
	dir := t.TempDir()
	err := checkDiskSpace(dir, filepath.Join(dir, diskReadTestFile), math.MaxUint32, diskReadHeadroomMiB)
	require.Error(t, err)
	assert.Equal(t, DiskReadInsufficientSpaceMessage, err.Error())
}

func TestCheckDiskSpace_RemovesStaleTestFile(t *testing.T) {
	dir := t.TempDir()
	testFile := filepath.Join(dir, diskReadTestFile)
	require.NoError(t, os.WriteFile(testFile, []byte("stale"), 0o644))

	// Even a failed space check must not leave the stale file behind.
	checkDiskSpace(dir, testFile, math.MaxUint32, diskReadHeadroomMiB)
	_, err := os.Stat(testFile)
	assert.True(t, os.IsNotExist(err))
}

func TestCheckDiskSpace_MissingRoot(t *testing.T) {
	err := checkDiskSpace("/nonexistent/diagd-cache", "/nonexistent/diagd-cache/f", 1, diskReadHeadroomMiB)
	assert.Error(t, err)
}

func TestDiskRead_PreStartFailureCleansUp(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newStepRunner()
	l := &scriptedLauncher{}
	dir := t.TempDir()

	r := NewDiskReadRoutine(l, clock, runner, dir, DiskReadLinear, 5*time.Second, math.MaxUint32, DefaultDiskReadTuning())
	r.Start()

	update := poll(r, false)
	require.Equal(t, diag.StatusError, update.Noninteractive.Status)
	assert.Equal(t, DiskReadInsufficientSpaceMessage, update.Noninteractive.Message)
	assert.Equal(t, 0, l.calls)
}

func TestDiskRead_RunsPrepareThenRead(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newStepRunner()
	l := &scriptedLauncher{results: []launcher.Result{
		{ExitCode: 0, Output: []byte("prepare ok\n")},
		{ExitCode: 0, Output: []byte("read ok\n")},
	}}
	dir := t.TempDir()
	testFile := filepath.Join(dir, diskReadTestFile)
	require.NoError(t, os.WriteFile(testFile, []byte("x"), 0o644))

	r := NewDiskReadRoutine(l, clock, runner, dir, DiskReadRandom, 5*time.Second, 1, DefaultDiskReadTuning())
	r.Start()
	runner.step(t)

	update := poll(r, false)
	require.Equal(t, diag.StatusPassed, update.Noninteractive.Status)
	assert.Equal(t, DiskReadSucceededMessage, update.Noninteractive.Message)
	assert.Equal(t, 2, l.calls)

	// The post stop hook removes the test file.
	_, err := os.Stat(testFile)
	assert.True(t, os.IsNotExist(err))
}

func TestDiskRead_FailurePropagates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newStepRunner()
	l := &scriptedLauncher{results: []launcher.Result{{ExitCode: 1}}}
	dir := t.TempDir()

	r := NewDiskReadRoutine(l, clock, runner, dir, DiskReadLinear, 5*time.Second, 1, DefaultDiskReadTuning())
	r.Start()
	runner.step(t)

	update := poll(r, false)
	require.Equal(t, diag.StatusFailed, update.Noninteractive.Status)
	assert.Equal(t, DiskReadFailedMessage, update.Noninteractive.Message)
}
