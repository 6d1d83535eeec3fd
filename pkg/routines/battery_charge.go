package routines

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/silvermint/diagd/pkg/diag"
	"github.com/silvermint/diagd/pkg/power"
	"github.com/silvermint/diagd/pkg/taskloop"
)

// Battery charge routine status messages.
const (
	BatteryChargeRunningMessage            = "Battery charge routine running."
	BatteryChargeSucceededMessage          = "Battery charge routine passed."
	BatteryChargeCancelledMessage          = "Battery charge routine cancelled."
	BatteryChargeNotChargingMessage        = "Battery is not charging."
	BatteryChargeInsufficientChargeMessage = "Battery charge percent less than minimum required charge percent."
	BatteryChargeInvalidParametersMessage  = "Invalid minimum required charge percent requested."
	BatteryChargeSnapshotFailedMessage     = "Failed to read battery attributes."
)

// chargeRoutine measures how much the battery charges over a fixed window.
// Interactive: after Start it waits for the user to plug in AC power and
// acknowledge with a continue command.
type chargeRoutine struct {
	adapter  power.Adapter
	clock    clockwork.Clock
	runner   taskloop.Runner
	duration time.Duration
	required uint32

	status       diag.Status
	message      string
	output       []byte
	started      bool
	startTime    time.Time
	beginPercent float64
	progress     uint32
	pending      *taskloop.Delayed
}

// NewBatteryChargeRoutine creates the battery charge routine. The routine
// passes when the battery gains at least required percentage points over
// duration while on AC power.
func NewBatteryChargeRoutine(adapter power.Adapter, clock clockwork.Clock, runner taskloop.Runner, duration time.Duration, required uint32) diag.Routine {
	return &chargeRoutine{
		adapter:  adapter,
		clock:    clock,
		runner:   runner,
		duration: duration,
		required: required,
		status:   diag.StatusReady,
	}
}

func (r *chargeRoutine) Start() {
	if r.status != diag.StatusReady {
		return
	}
	// Wait for the user to plug in the charger before measuring.
	r.status = diag.StatusWaiting
}

func (r *chargeRoutine) Resume() {
	if r.status != diag.StatusWaiting {
		return
	}

	snapshot, err := r.adapter.PowerSupplySnapshot()
	if err != nil {
		r.status = diag.StatusError
		r.message = BatteryChargeSnapshotFailedMessage
		return
	}
	if snapshot.State != power.StateCharging {
		r.status = diag.StatusError
		r.message = BatteryChargeNotChargingMessage
		return
	}
	if snapshot.Percent+float64(r.required) > 100 {
		r.status = diag.StatusError
		r.message = BatteryChargeInvalidParametersMessage
		r.output = marshalOutput(map[string]any{
			"errorDetails": map[string]any{
				"startingBatteryChargePercent": snapshot.Percent,
				"chargePercentRequested":       r.required,
			},
		})
		return
	}

	r.beginPercent = snapshot.Percent
	r.startTime = r.clock.Now()
	r.started = true
	r.pending = taskloop.After(r.clock, r.runner, r.duration, r.complete)
	r.status = diag.StatusRunning
	r.message = BatteryChargeRunningMessage
}

func (r *chargeRoutine) Cancel() {
	switch r.status {
	case diag.StatusPassed, diag.StatusFailed, diag.StatusError:
		return
	}
	r.updateProgress()
	r.pending.Cancel()
	r.status = diag.StatusCancelled
	r.message = BatteryChargeCancelledMessage
}

func (r *chargeRoutine) complete() {
	if r.status != diag.StatusRunning {
		return
	}

	snapshot, err := r.adapter.PowerSupplySnapshot()
	if err != nil {
		r.status = diag.StatusError
		r.message = BatteryChargeSnapshotFailedMessage
		return
	}
	if snapshot.Percent < r.beginPercent {
		r.status = diag.StatusError
		r.message = BatteryChargeNotChargingMessage
		return
	}

	delta := snapshot.Percent - r.beginPercent
	r.output = marshalOutput(map[string]any{
		"resultDetails": map[string]any{
			"chargePercent": delta,
		},
	})
	if delta < float64(r.required) {
		r.status = diag.StatusFailed
		r.message = BatteryChargeInsufficientChargeMessage
		return
	}
	r.status = diag.StatusPassed
	r.message = BatteryChargeSucceededMessage
}

// updateProgress recomputes progress except in states where it is frozen.
func (r *chargeRoutine) updateProgress() {
	switch r.status {
	case diag.StatusPassed, diag.StatusFailed:
		r.progress = 100
	case diag.StatusError, diag.StatusCancelled:
		// Retains the last value reached.
	default:
		if r.started {
			elapsed := r.clock.Now().Sub(r.startTime)
			r.progress = clampPercent(int64(100*elapsed/r.duration), 100)
		}
	}
}

func (r *chargeRoutine) PopulateStatusUpdate(update *diag.Update, includeOutput bool) {
	if r.status == diag.StatusWaiting {
		update.SetInteractive(diag.MessagePlugInACPower)
	} else {
		update.SetNoninteractive(r.status, r.message)
	}
	r.updateProgress()
	update.Progress = r.progress
	if includeOutput && r.output != nil {
		update.Output = r.output
	}
}

func (r *chargeRoutine) Status() diag.Status {
	return r.status
}

var _ diag.Routine = (*chargeRoutine)(nil)
