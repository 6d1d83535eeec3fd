package routines

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/launcher"
	"github.com/silvermint/diagd/pkg/taskloop"
)

// Worker routine status messages.
const (
	URandomSucceededMessage       = "Urandom routine passed."
	URandomFailedMessage          = "Urandom routine failed."
	CPUCacheSucceededMessage      = "CPU cache routine passed."
	CPUCacheFailedMessage         = "CPU cache routine failed."
	CPUStressSucceededMessage     = "CPU stress routine passed."
	CPUStressFailedMessage        = "CPU stress routine failed."
	FloatingPointSucceededMessage = "Floating point accuracy routine passed."
	FloatingPointFailedMessage    = "Floating point accuracy routine failed."
	PrimeSearchSucceededMessage   = "Prime search routine passed."
	PrimeSearchFailedMessage      = "Prime search routine failed."
)

// DefaultURandomDuration is used when the caller does not override the
// urandom test length.
const DefaultURandomDuration = 10 * time.Second

// passFailDecoder maps exit 0 to pass and anything else to fail with
// fixed messages.
func passFailDecoder(pass, fail string) exitDecoder {
	return func(code int, _ string) (diag.Status, string) {
		if code == 0 {
			return diag.StatusPassed, pass
		}
		return diag.StatusFailed, fail
	}
}

// NewURandomRoutine creates the urandom routine. The worker reads from
// /dev/urandom for the given duration and verifies the stream is
// producing data.
func NewURandomRoutine(l launcher.Launcher, clock clockwork.Clock, runner taskloop.Runner, duration time.Duration) diag.Routine {
	if duration <= 0 {
		duration = DefaultURandomDuration
	}
	return newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{
			{"urandom", fmt.Sprintf("--time_delta_ms=%d", duration.Milliseconds())},
		},
		Expected: duration,
		Decode:   passFailDecoder(URandomSucceededMessage, URandomFailedMessage),
	})
}

// NewCPUCacheRoutine creates the CPU cache routine, a stressapptest run
// in cache-coherency mode.
func NewCPUCacheRoutine(l launcher.Launcher, clock clockwork.Clock, runner taskloop.Runner, duration time.Duration) diag.Routine {
	return newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{
			{"stressapptest", "--cc_test", "-s", strconv.Itoa(int(duration.Seconds()))},
		},
		Expected: duration,
		Decode:   passFailDecoder(CPUCacheSucceededMessage, CPUCacheFailedMessage),
	})
}

// NewCPUStressRoutine creates the CPU stress routine, a plain
// stressapptest run.
func NewCPUStressRoutine(l launcher.Launcher, clock clockwork.Clock, runner taskloop.Runner, duration time.Duration) diag.Routine {
	return newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{
			{"stressapptest", "-s", strconv.Itoa(int(duration.Seconds()))},
		},
		Expected: duration,
		Decode:   passFailDecoder(CPUStressSucceededMessage, CPUStressFailedMessage),
	})
}

// NewFloatingPointRoutine creates the floating point accuracy routine.
func NewFloatingPointRoutine(l launcher.Launcher, clock clockwork.Clock, runner taskloop.Runner, duration time.Duration) diag.Routine {
	return newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{
			{"floating-point-accuracy", fmt.Sprintf("--duration=%d", int(duration.Seconds()))},
		},
		Expected: duration,
		Decode:   passFailDecoder(FloatingPointSucceededMessage, FloatingPointFailedMessage),
	})
}

// NewPrimeSearchRoutine creates the prime search routine. The worker
// computes and verifies primes up to maxNum for the given duration.
func NewPrimeSearchRoutine(l launcher.Launcher, clock clockwork.Clock, runner taskloop.Runner, duration time.Duration, maxNum uint64) diag.Routine {
	return newSubprocRoutine(l, clock, runner, subprocConfig{
		Commands: [][]string{
			{"prime-search",
				fmt.Sprintf("--time=%d", int(duration.Seconds())),
				fmt.Sprintf("--max_num=%d", maxNum)},
		},
		Expected: duration,
		Decode:   passFailDecoder(PrimeSearchSucceededMessage, PrimeSearchFailedMessage),
	})
}
